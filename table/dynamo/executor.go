package dynamo

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-table-cache/table"
)

type queryExecutor struct {
	table  *Table
	hash   any
	params table.QueryParams
}

func (q *queryExecutor) WithStartKey(key table.Record) table.Executor {
	next := *q
	next.params.StartKey = key
	return &next
}

func (q *queryExecutor) Exec(ctx context.Context) (*table.Page, error) {
	t := q.table
	e := newExpr()

	hashValue, err := e.value(q.hash)
	if err != nil {
		return nil, fmt.Errorf("query hash value: %w", err)
	}
	rangeCond, err := e.merge(q.params.RangeCondition)
	if err != nil {
		return nil, err
	}
	keyCond := e.name(t.schema.HashKey) + " = " + hashValue
	if rangeCond != "" {
		keyCond += " AND " + rangeCond
	}
	filter, err := e.merge(q.params.Filter)
	if err != nil {
		return nil, err
	}
	startKey, err := marshalStartKey(q.params.StartKey)
	if err != nil {
		return nil, err
	}

	input := &sdk.QueryInput{
		TableName:              aws.String(t.schema.TableName),
		IndexName:              optional(q.params.IndexName),
		KeyConditionExpression: aws.String(keyCond),
		FilterExpression:       optional(filter),
		ExclusiveStartKey:      startKey,
		ScanIndexForward:       aws.Bool(!q.params.Descending),
	}
	if q.params.Limit > 0 {
		input.Limit = aws.Int32(int32(q.params.Limit))
	}
	input.ProjectionExpression = e.projection(q.params.Attributes)
	input.ExpressionAttributeNames = e.attributeNames()
	input.ExpressionAttributeValues = e.attributeValues()

	out, err := t.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query DynamoDB: %w", err)
	}
	return toPage(out.Items, out.Count, out.ScannedCount, out.LastEvaluatedKey)
}

type scanExecutor struct {
	table  *Table
	params table.ScanParams
}

func (s *scanExecutor) WithStartKey(key table.Record) table.Executor {
	next := *s
	next.params.StartKey = key
	return &next
}

func (s *scanExecutor) Exec(ctx context.Context) (*table.Page, error) {
	input, err := s.table.scanInput(s.params)
	if err != nil {
		return nil, err
	}
	out, err := s.table.client.Scan(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to scan DynamoDB: %w", err)
	}
	return toPage(out.Items, out.Count, out.ScannedCount, out.LastEvaluatedKey)
}

// parallelScanExecutor reads every segment to completion concurrently and
// returns the union as one page.
type parallelScanExecutor struct {
	table    *Table
	segments int
	params   table.ScanParams
}

// WithStartKey is a no op: a parallel scan always covers the whole table.
func (p *parallelScanExecutor) WithStartKey(table.Record) table.Executor {
	return p
}

func (p *parallelScanExecutor) Exec(ctx context.Context) (*table.Page, error) {
	var (
		mu      sync.Mutex
		page    = &table.Page{}
		g, gctx = errgroup.WithContext(ctx)
	)

	for segment := 0; segment < p.segments; segment++ {
		g.Go(func() error {
			params := p.params
			params.StartKey = nil
			input, err := p.table.scanInput(params)
			if err != nil {
				return err
			}
			input.Segment = aws.Int32(int32(segment))
			input.TotalSegments = aws.Int32(int32(p.segments))

			for {
				out, err := p.table.client.Scan(gctx, input)
				if err != nil {
					return fmt.Errorf("failed to scan segment %d: %w", segment, err)
				}
				recs, err := unmarshalRecords(out.Items)
				if err != nil {
					return err
				}

				mu.Lock()
				page.Items = append(page.Items, recs...)
				page.ScannedCount += int(out.ScannedCount)
				mu.Unlock()

				if len(out.LastEvaluatedKey) == 0 {
					return nil
				}
				input.ExclusiveStartKey = out.LastEvaluatedKey
			}
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	page.Count = len(page.Items)
	return page, nil
}

func (t *Table) scanInput(params table.ScanParams) (*sdk.ScanInput, error) {
	e := newExpr()
	filter, err := e.merge(params.Filter)
	if err != nil {
		return nil, err
	}
	startKey, err := marshalStartKey(params.StartKey)
	if err != nil {
		return nil, err
	}

	input := &sdk.ScanInput{
		TableName:         aws.String(t.schema.TableName),
		IndexName:         optional(params.IndexName),
		FilterExpression:  optional(filter),
		ExclusiveStartKey: startKey,
	}
	if params.Limit > 0 {
		input.Limit = aws.Int32(int32(params.Limit))
	}
	input.ProjectionExpression = e.projection(params.Attributes)
	input.ExpressionAttributeNames = e.attributeNames()
	input.ExpressionAttributeValues = e.attributeValues()
	return input, nil
}

func marshalStartKey(key table.Record) (map[string]types.AttributeValue, error) {
	if len(key) == 0 {
		return nil, nil
	}
	av, err := attributevalue.MarshalMap(map[string]any(key))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal start key: %w", err)
	}
	return av, nil
}

func toPage(items []map[string]types.AttributeValue, count, scanned int32, last map[string]types.AttributeValue) (*table.Page, error) {
	recs, err := unmarshalRecords(items)
	if err != nil {
		return nil, err
	}
	page := &table.Page{Items: recs, Count: int(count), ScannedCount: int(scanned)}
	if len(last) > 0 {
		lastKey, err := unmarshalRecord(last)
		if err != nil {
			return nil, err
		}
		page.LastEvaluatedKey = lastKey
	}
	return page, nil
}
