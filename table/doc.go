// Package table defines the backing store contract consumed by the cache
// decorator in package tablecache.
//
// A Table is a record store addressed by a hash key and an optional range
// key. It supports single reads, creates, updates, destroys, batch reads and
// paged queries and scans. Adapters live in sub packages:
//
//   - table/dynamo: Amazon DynamoDB through aws-sdk-go-v2
//   - table/bunstore: SQL databases through uptrace/bun
//
// Records are plain attribute maps. Schema carries the table name and the
// names of the key attributes and knows how to extract a Key from a Record:
//
//	schema := table.Schema{TableName: "Orders", HashKey: "userId", RangeKey: "orderId"}
//	key, err := schema.KeyOf(table.Record{"userId": "u-1", "orderId": "o-9"})
//
// Get and Destroy report "nothing there" as a nil record with a nil error.
// Errors are reserved for failures of the store itself.
package table
