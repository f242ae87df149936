package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/bobur-yusupov/daylog-sub000/internal/domain"
)

// FlowRepo stores per-caller flow state, addressed by the opaque value of the
// flow cookie. Rows expire via TTL; a flow record that outlives its TTL simply
// forces the user to restart the flow.
type FlowRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewFlowRepo(client *dynamodb.Client, tableName string) *FlowRepo {
	return &FlowRepo{client: client, tableName: tableName}
}

func (r *FlowRepo) Put(ctx context.Context, f *domain.FlowState) error {
	item, err := attributevalue.MarshalMap(f)
	if err != nil {
		return fmt.Errorf("marshal flow state: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *FlowRepo) Get(ctx context.Context, flowID string) (*domain.FlowState, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("flow_id", flowID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("flow state not found: %w", domain.ErrNotFound)
	}
	var f domain.FlowState
	if err := attributevalue.UnmarshalMap(out.Item, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FlowRepo) Delete(ctx context.Context, flowID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("flow_id", flowID),
	})
	return err
}
