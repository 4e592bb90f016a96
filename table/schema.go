package table

import "fmt"

// Schema describes how records of a table are addressed.
type Schema struct {
	TableName string `yaml:"table_name" json:"table_name"`
	HashKey   string `yaml:"hash_key" json:"hash_key"`
	RangeKey  string `yaml:"range_key" json:"range_key"`
}

// HasRange reports whether the table defines a range key.
func (s Schema) HasRange() bool {
	return s.RangeKey != ""
}

// Validate checks that the schema can address records.
func (s Schema) Validate() error {
	if s.TableName == "" {
		return &SchemaError{Field: "TableName", Message: "must not be empty"}
	}
	if s.HashKey == "" {
		return &SchemaError{Field: "HashKey", Message: "must not be empty"}
	}
	if s.RangeKey == s.HashKey {
		return &SchemaError{Field: "RangeKey", Message: "must differ from HashKey"}
	}
	return nil
}

// KeyOf extracts the key of a record. The range part is only read when the
// schema defines a range key.
func (s Schema) KeyOf(r Record) (Key, error) {
	hash, ok := r[s.HashKey]
	if !ok || hash == nil {
		return Key{}, fmt.Errorf("%s: hash key %q: %w", s.TableName, s.HashKey, ErrMissingKey)
	}
	if !s.HasRange() {
		return HashKey(hash), nil
	}
	rng, ok := r[s.RangeKey]
	if !ok || rng == nil {
		return Key{}, fmt.Errorf("%s: range key %q: %w", s.TableName, s.RangeKey, ErrMissingKey)
	}
	return CompositeKey(hash, rng), nil
}

// KeyRecord returns the key attributes as a record.
func (s Schema) KeyRecord(k Key) Record {
	out := Record{s.HashKey: k.Hash}
	if s.HasRange() && k.HasRange() {
		out[s.RangeKey] = k.Range
	}
	return out
}
