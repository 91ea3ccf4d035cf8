package ddb

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

// Store implements ports.KVStore on DynamoDB, single-table. Used for
// roaming state: a user's preferences follow them across terminals.
// Client state is tiny, so one partition per user keeps it simple.
type Store struct {
	table string
	owner string
	cli   *dynamodb.Client
}

type kvItem struct {
	PK    string `dynamodbav:"PK"`
	SK    string `dynamodbav:"SK"`
	Value []byte `dynamodbav:"val"`
}

// New creates the store for the given owner (user or terminal ID); the
// owner scopes the partition key so tenants never collide.
func New(table, owner string, cli *dynamodb.Client) *Store {
	createTableIfNotExists(cli, table)
	return &Store{table: table, owner: owner, cli: cli}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.cli.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.table,
		ConsistentRead: awsBool(true),
		Key: map[string]ddbTypes.AttributeValue{
			"PK": &ddbTypes.AttributeValueMemberS{Value: pkOwner(s.owner)},
			"SK": &ddbTypes.AttributeValueMemberS{Value: skEntry(key)},
		},
	})
	if err != nil {
		return nil, types.Err(types.ErrStoreAccess, err, "")
	}
	if out.Item == nil {
		return nil, types.Err(types.ErrNotFound, nil, "key %q", key)
	}
	var item kvItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, types.Err(types.ErrStoreAccess, err, "")
	}
	return item.Value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	av, _ := attributevalue.MarshalMap(kvItem{
		PK:    pkOwner(s.owner),
		SK:    skEntry(key),
		Value: value,
	})
	_, err := s.cli.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.table,
		Item:      av,
	})
	if err != nil {
		return types.Err(types.ErrStoreAccess, err, "")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.cli.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.table,
		Key: map[string]ddbTypes.AttributeValue{
			"PK": &ddbTypes.AttributeValueMemberS{Value: pkOwner(s.owner)},
			"SK": &ddbTypes.AttributeValueMemberS{Value: skEntry(key)},
		},
	})
	if err != nil {
		return types.Err(types.ErrStoreAccess, err, "")
	}
	return nil
}

func (s *Store) DeleteMatching(ctx context.Context, pattern string) error {
	keys, err := s.Keys(ctx, pattern)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	prefix, wildcard := strings.CutSuffix(pattern, "*")
	keyCond := "PK = :pk AND begins_with(SK, :sk)"
	skValue := skEntry(prefix)
	if !wildcard {
		keyCond = "PK = :pk AND SK = :sk"
		skValue = skEntry(pattern)
	}
	var keys []string
	var startKey map[string]ddbTypes.AttributeValue
	for {
		out, err := s.cli.Query(ctx, &dynamodb.QueryInput{
			TableName:              &s.table,
			KeyConditionExpression: awsString(keyCond),
			ExpressionAttributeValues: map[string]ddbTypes.AttributeValue{
				":pk": &ddbTypes.AttributeValueMemberS{Value: pkOwner(s.owner)},
				":sk": &ddbTypes.AttributeValueMemberS{Value: skValue},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, types.Err(types.ErrStoreAccess, err, "")
		}
		for _, item := range out.Items {
			var row kvItem
			if err := attributevalue.UnmarshalMap(item, &row); err != nil {
				continue
			}
			if k, ok := parseEntryKey(row.SK); ok {
				keys = append(keys, k)
			}
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return keys, nil
}

func (s *Store) Close() error { return nil }
