package dynamo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/goliatone/go-table-cache/table"
)

// expr accumulates placeholder names and values shared by the expressions
// of a single request.
type expr struct {
	names  map[string]string
	values map[string]types.AttributeValue
	n      int
}

func newExpr() *expr {
	return &expr{names: map[string]string{}, values: map[string]types.AttributeValue{}}
}

func (e *expr) name(attr string) string {
	placeholder := fmt.Sprintf("#n%d", e.n)
	e.n++
	e.names[placeholder] = attr
	return placeholder
}

func (e *expr) value(v any) (string, error) {
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return "", err
	}
	placeholder := fmt.Sprintf(":v%d", e.n)
	e.n++
	e.values[placeholder] = av
	return placeholder, nil
}

// merge folds a caller supplied condition into the request.
func (e *expr) merge(c *table.Condition) (string, error) {
	if c == nil {
		return "", nil
	}
	for k, v := range c.Names {
		e.names[k] = v
	}
	for k, v := range c.Values {
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("condition value %s: %w", k, err)
		}
		e.values[k] = av
	}
	return c.Expression, nil
}

func (e *expr) projection(attrs []string) *string {
	if len(attrs) == 0 {
		return nil
	}
	parts := make([]string, len(attrs))
	for i, a := range attrs {
		parts[i] = e.name(a)
	}
	out := strings.Join(parts, ", ")
	return &out
}

func (e *expr) attributeNames() map[string]string {
	if len(e.names) == 0 {
		return nil
	}
	return e.names
}

func (e *expr) attributeValues() map[string]types.AttributeValue {
	if len(e.values) == 0 {
		return nil
	}
	return e.values
}

// updateExpression sets every non key attribute and removes nil ones.
func (e *expr) updateExpression(schema table.Schema, record table.Record) (*string, error) {
	attrs := make([]string, 0, len(record))
	for k := range record {
		if k == schema.HashKey || (schema.HasRange() && k == schema.RangeKey) {
			continue
		}
		attrs = append(attrs, k)
	}
	sort.Strings(attrs)

	var sets, removes []string
	for _, attr := range attrs {
		v := record[attr]
		if v == nil {
			removes = append(removes, e.name(attr))
			continue
		}
		placeholder, err := e.value(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", attr, err)
		}
		sets = append(sets, e.name(attr)+" = "+placeholder)
	}

	var clauses []string
	if len(sets) > 0 {
		clauses = append(clauses, "SET "+strings.Join(sets, ", "))
	}
	if len(removes) > 0 {
		clauses = append(clauses, "REMOVE "+strings.Join(removes, ", "))
	}
	if len(clauses) == 0 {
		return nil, nil
	}
	out := strings.Join(clauses, " ")
	return &out, nil
}

func joinConditions(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, "("+p+")")
		}
	}
	return strings.Join(nonEmpty, " AND ")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
