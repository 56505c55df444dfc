package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// ProductNameRepository resolves product ids to display names. Ids with no
// known product are absent from the result.
type ProductNameRepository interface {
	ProductNames(ctx context.Context, ids []string) (map[string]string, error)
}

// BatchGetItemAPI is the part of the DynamoDB client DynamoProductNames uses.
type BatchGetItemAPI interface {
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
}

// DynamoDB caps BatchGetItem at 100 keys per request.
const batchGetLimit = 100

// Unprocessed keys are re-requested up to maxUnprocessedRetries times,
// waiting unprocessedBackoff, then twice as long, between attempts.
const (
	maxUnprocessedRetries = 3
	unprocessedBackoff    = 25 * time.Millisecond
)

// DynamoProductNames reads names from the products table, keyed by
// `product_id` (string).
type DynamoProductNames struct {
	client BatchGetItemAPI
	table  string
	logger *zap.Logger
}

func NewDynamoProductNames(client BatchGetItemAPI, table string, logger *zap.Logger) *DynamoProductNames {
	return &DynamoProductNames{client: client, table: table, logger: logger}
}

type ddbProductName struct {
	ProductID string `dynamodbav:"product_id"`
	Name      string `dynamodbav:"name"`
}

func (d *DynamoProductNames) ProductNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	ids = dedupe(ids)
	for start := 0; start < len(ids); start += batchGetLimit {
		end := start + batchGetLimit
		if end > len(ids) {
			end = len(ids)
		}
		if err := d.fetchBatch(ctx, ids[start:end], names); err != nil {
			return nil, err
		}
	}
	return names, nil
}

func (d *DynamoProductNames) fetchBatch(ctx context.Context, ids []string, names map[string]string) error {
	keys := make([]map[string]types.AttributeValue, 0, len(ids))
	for _, id := range ids {
		key, err := attributevalue.MarshalMap(map[string]string{"product_id": id})
		if err != nil {
			return fmt.Errorf("marshal key: %w", err)
		}
		keys = append(keys, key)
	}

	request := map[string]types.KeysAndAttributes{
		d.table: {
			Keys:                 keys,
			ProjectionExpression: stringPtr("product_id, #n"),
			ExpressionAttributeNames: map[string]string{
				"#n": "name",
			},
		},
	}
	wait := unprocessedBackoff
	for attempt := 0; len(request) > 0; attempt++ {
		if attempt > maxUnprocessedRetries {
			d.logger.Warn("Dropping unprocessed product name lookups",
				zap.String("table", d.table),
				zap.Strings("product_ids", unprocessedIDs(request[d.table])),
			)
			return nil
		}
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
		}
		out, err := d.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
		if err != nil {
			return fmt.Errorf("dynamodb BatchGetItem failed: %w", err)
		}
		for _, item := range out.Responses[d.table] {
			var p ddbProductName
			if err := attributevalue.UnmarshalMap(item, &p); err != nil {
				return fmt.Errorf("unmarshal item: %w", err)
			}
			if p.ProductID != "" && p.Name != "" {
				names[p.ProductID] = p.Name
			}
		}
		request = out.UnprocessedKeys
	}
	return nil
}

func unprocessedIDs(ka types.KeysAndAttributes) []string {
	ids := make([]string, 0, len(ka.Keys))
	for _, key := range ka.Keys {
		var k ddbProductName
		if err := attributevalue.UnmarshalMap(key, &k); err == nil {
			ids = append(ids, k.ProductID)
		}
	}
	return ids
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func stringPtr(s string) *string { return &s }
