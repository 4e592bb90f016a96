package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/goliatone/go-table-cache/table"
)

const (
	maxBatchGet   = 100
	maxBatchWrite = 25
	// maxUnprocessedRounds bounds retries of throttled batch leftovers.
	maxUnprocessedRounds = 8
)

// Table implements table.Table over a single DynamoDB table.
type Table struct {
	client Client
	schema table.Schema
}

var _ table.Table = (*Table)(nil)

// New binds a DynamoDB table. The schema names must match the table's key
// schema.
func New(client Client, schema table.Schema) (*Table, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &Table{client: client, schema: schema}, nil
}

func (t *Table) Schema() table.Schema {
	return t.schema
}

func (t *Table) Get(ctx context.Context, key table.Key, params table.Params) (table.Record, error) {
	keyMap, err := t.keyMap(key)
	if err != nil {
		return nil, err
	}

	e := newExpr()
	input := &sdk.GetItemInput{
		TableName:      aws.String(t.schema.TableName),
		Key:            keyMap,
		ConsistentRead: aws.Bool(params.ConsistentRead),
	}
	input.ProjectionExpression = e.projection(params.Attributes)
	input.ExpressionAttributeNames = e.attributeNames()

	out, err := t.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get item from DynamoDB: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return unmarshalRecord(out.Item)
}

func (t *Table) Create(ctx context.Context, record table.Record, params table.Params) (table.Record, error) {
	if _, err := t.schema.KeyOf(record); err != nil {
		return nil, err
	}
	item, err := attributevalue.MarshalMap(map[string]any(record))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}

	e := newExpr()
	var guard string
	if params.NoOverwrite {
		guard = "attribute_not_exists(" + e.name(t.schema.HashKey) + ")"
	}
	custom, err := e.merge(params.Condition)
	if err != nil {
		return nil, err
	}

	_, err = t.client.PutItem(ctx, &sdk.PutItemInput{
		TableName:                 aws.String(t.schema.TableName),
		Item:                      item,
		ConditionExpression:       optional(joinConditions(guard, custom)),
		ExpressionAttributeNames:  e.attributeNames(),
		ExpressionAttributeValues: e.attributeValues(),
	})
	if err != nil {
		return nil, t.writeError("create", err)
	}
	return record.Clone(), nil
}

// CreateMany writes records with BatchWriteItem. Conditional creates fall
// back to one PutItem per record since batch writes cannot carry conditions.
func (t *Table) CreateMany(ctx context.Context, records []table.Record, params table.Params) ([]table.Record, error) {
	if params.NoOverwrite || params.Condition != nil {
		out := make([]table.Record, 0, len(records))
		for _, rec := range records {
			created, err := t.Create(ctx, rec, params)
			if err != nil {
				return nil, err
			}
			out = append(out, created)
		}
		return out, nil
	}

	requests := make([]types.WriteRequest, 0, len(records))
	for i, rec := range records {
		if _, err := t.schema.KeyOf(rec); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		item, err := attributevalue.MarshalMap(map[string]any(rec))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal record %d: %w", i, err)
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}

	for start := 0; start < len(requests); start += maxBatchWrite {
		end := min(start+maxBatchWrite, len(requests))
		if err := t.batchWrite(ctx, requests[start:end]); err != nil {
			return nil, err
		}
	}

	out := make([]table.Record, len(records))
	for i, rec := range records {
		out[i] = rec.Clone()
	}
	return out, nil
}

func (t *Table) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{t.schema.TableName: requests}
	for round := 0; len(pending[t.schema.TableName]) > 0; round++ {
		if round == maxUnprocessedRounds {
			return fmt.Errorf("batch write: %d items left unprocessed", len(pending[t.schema.TableName]))
		}
		out, err := t.client.BatchWriteItem(ctx, &sdk.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("failed to batch write items to DynamoDB: %w", err)
		}
		pending = out.UnprocessedItems
	}
	return nil
}

// Update applies the record's non key attributes with an UpdateItem SET and
// REMOVE expression and returns the full item after the update.
func (t *Table) Update(ctx context.Context, record table.Record, params table.Params) (table.Record, error) {
	key, err := t.schema.KeyOf(record)
	if err != nil {
		return nil, err
	}
	keyMap, err := t.keyMap(key)
	if err != nil {
		return nil, err
	}

	e := newExpr()
	update, err := e.updateExpression(t.schema, record)
	if err != nil {
		return nil, err
	}
	cond, err := e.merge(params.Condition)
	if err != nil {
		return nil, err
	}

	out, err := t.client.UpdateItem(ctx, &sdk.UpdateItemInput{
		TableName:                 aws.String(t.schema.TableName),
		Key:                       keyMap,
		UpdateExpression:          update,
		ConditionExpression:       optional(cond),
		ExpressionAttributeNames:  e.attributeNames(),
		ExpressionAttributeValues: e.attributeValues(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, t.writeError("update", err)
	}
	if len(out.Attributes) == 0 {
		return t.schema.KeyRecord(key), nil
	}
	return unmarshalRecord(out.Attributes)
}

func (t *Table) Destroy(ctx context.Context, key table.Key, params table.Params) (table.Record, error) {
	keyMap, err := t.keyMap(key)
	if err != nil {
		return nil, err
	}

	e := newExpr()
	cond, err := e.merge(params.Condition)
	if err != nil {
		return nil, err
	}

	out, err := t.client.DeleteItem(ctx, &sdk.DeleteItemInput{
		TableName:                 aws.String(t.schema.TableName),
		Key:                       keyMap,
		ConditionExpression:       optional(cond),
		ExpressionAttributeNames:  e.attributeNames(),
		ExpressionAttributeValues: e.attributeValues(),
		ReturnValues:              types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, t.writeError("destroy", err)
	}
	if len(out.Attributes) == 0 {
		return nil, nil
	}
	return unmarshalRecord(out.Attributes)
}

// BatchGet reads keys in chunks of 100 and retries unprocessed keys. Result
// order follows DynamoDB, not the input.
func (t *Table) BatchGet(ctx context.Context, keys []table.Key, params table.Params) ([]table.Record, error) {
	out := make([]table.Record, 0, len(keys))
	for start := 0; start < len(keys); start += maxBatchGet {
		end := min(start+maxBatchGet, len(keys))
		recs, err := t.batchGet(ctx, keys[start:end], params)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func (t *Table) batchGet(ctx context.Context, keys []table.Key, params table.Params) ([]table.Record, error) {
	keyMaps := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, k := range keys {
		km, err := t.keyMap(k)
		if err != nil {
			return nil, err
		}
		keyMaps = append(keyMaps, km)
	}

	e := newExpr()
	request := types.KeysAndAttributes{
		Keys:           keyMaps,
		ConsistentRead: aws.Bool(params.ConsistentRead),
	}
	request.ProjectionExpression = e.projection(params.Attributes)
	request.ExpressionAttributeNames = e.attributeNames()

	pending := map[string]types.KeysAndAttributes{t.schema.TableName: request}
	var out []table.Record
	for round := 0; len(pending[t.schema.TableName].Keys) > 0; round++ {
		if round == maxUnprocessedRounds {
			return nil, fmt.Errorf("batch get: %d keys left unprocessed", len(pending[t.schema.TableName].Keys))
		}
		resp, err := t.client.BatchGetItem(ctx, &sdk.BatchGetItemInput{RequestItems: pending})
		if err != nil {
			return nil, fmt.Errorf("failed to batch get items from DynamoDB: %w", err)
		}
		for _, item := range resp.Responses[t.schema.TableName] {
			rec, err := unmarshalRecord(item)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
		pending = resp.UnprocessedKeys
	}
	return out, nil
}

func (t *Table) Query(hash any, params table.QueryParams) table.Executor {
	return &queryExecutor{table: t, hash: hash, params: params}
}

func (t *Table) Scan(params table.ScanParams) table.Executor {
	return &scanExecutor{table: t, params: params}
}

func (t *Table) ParallelScan(segments int, params table.ScanParams) table.Executor {
	return &parallelScanExecutor{table: t, segments: max(segments, 1), params: params}
}

func (t *Table) keyMap(key table.Key) (map[string]types.AttributeValue, error) {
	if key.Hash == nil {
		return nil, fmt.Errorf("%s: hash key %q: %w", t.schema.TableName, t.schema.HashKey, table.ErrMissingKey)
	}
	if t.schema.HasRange() && !key.HasRange() {
		return nil, fmt.Errorf("%s: range key %q: %w", t.schema.TableName, t.schema.RangeKey, table.ErrMissingKey)
	}
	km, err := attributevalue.MarshalMap(map[string]any(t.schema.KeyRecord(key)))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key: %w", err)
	}
	return km, nil
}

func (t *Table) writeError(op string, err error) error {
	var cfe *types.ConditionalCheckFailedException
	if errors.As(err, &cfe) {
		return &table.ConditionFailedError{Operation: op, Table: t.schema.TableName, Err: err}
	}
	return fmt.Errorf("failed to %s item in DynamoDB: %w", op, err)
}

func unmarshalRecord(item map[string]types.AttributeValue) (table.Record, error) {
	var rec map[string]any
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return table.Record(rec), nil
}

func unmarshalRecords(items []map[string]types.AttributeValue) ([]table.Record, error) {
	out := make([]table.Record, 0, len(items))
	for _, item := range items {
		rec, err := unmarshalRecord(item)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
