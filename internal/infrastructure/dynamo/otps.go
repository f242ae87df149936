package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/bobur-yusupov/daylog-sub000/internal/domain"
)

// OtpRepo manages issued OTP tokens.
// PK: user_id, SK: kind#token_id (ULID). Descending queries on the kind prefix
// return most-recently-created tokens first. Expired rows are swept by the
// table TTL, but validity is always recomputed from expires_at since TTL
// deletion can lag by hours and is never relied on for correctness.
type OtpRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewOtpRepo(client *dynamodb.Client, tableName string) *OtpRepo {
	return &OtpRepo{client: client, tableName: tableName}
}

func (r *OtpRepo) Put(ctx context.Context, t *domain.OtpToken) error {
	t.SK = domain.OtpSortKey(t.Kind, t.TokenID)
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("marshal otp token: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// LatestUnused returns the most-recently-created unused token for the
// (user, kind) pair, or ErrNotFound.
func (r *OtpRepo) LatestUnused(ctx context.Context, userID string, kind domain.OtpKind) (*domain.OtpToken, error) {
	tokens, err := r.queryKind(ctx, userID, kind, aws.String("used = :f"), map[string]types.AttributeValue{
		":f": &types.AttributeValueMemberBOOL{Value: false},
	})
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("otp token not found: %w", domain.ErrNotFound)
	}
	return &tokens[0], nil
}

// Latest returns the most-recently-created token for the (user, kind) pair
// regardless of its used flag, or ErrNotFound. Resend throttling keys off
// this record.
func (r *OtpRepo) Latest(ctx context.Context, userID string, kind domain.OtpKind) (*domain.OtpToken, error) {
	tokens, err := r.queryKind(ctx, userID, kind, nil, nil)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("otp token not found: %w", domain.ErrNotFound)
	}
	return &tokens[0], nil
}

// GetUnusedByCode returns the most recent unused token of the kind carrying
// exactly this code, or ErrNotFound.
func (r *OtpRepo) GetUnusedByCode(ctx context.Context, userID string, kind domain.OtpKind, code string) (*domain.OtpToken, error) {
	tokens, err := r.queryKind(ctx, userID, kind, aws.String("used = :f AND code = :c"), map[string]types.AttributeValue{
		":f": &types.AttributeValueMemberBOOL{Value: false},
		":c": &types.AttributeValueMemberS{Value: code},
	})
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("otp token not found: %w", domain.ErrNotFound)
	}
	return &tokens[0], nil
}

// InvalidateUnused marks every unused token of the kind as used and returns
// how many were flipped. Not transactional with the follow-up Put in the issue
// path; verification always targets the most recent token, so a racing
// double-issue only decides which fresh code stays live.
func (r *OtpRepo) InvalidateUnused(ctx context.Context, userID string, kind domain.OtpKind) (int, error) {
	tokens, err := r.queryKind(ctx, userID, kind, aws.String("used = :f"), map[string]types.AttributeValue{
		":f": &types.AttributeValueMemberBOOL{Value: false},
	})
	if err != nil {
		return 0, err
	}
	for i := range tokens {
		if err := r.MarkUsed(ctx, &tokens[i]); err != nil {
			return i, err
		}
	}
	return len(tokens), nil
}

// MarkUsed flips the token's used flag. The flag is monotonic: nothing ever
// sets it back to false.
func (r *OtpRepo) MarkUsed(ctx context.Context, t *domain.OtpToken) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              compositeKey("user_id", t.UserID, "sk", domain.OtpSortKey(t.Kind, t.TokenID)),
		UpdateExpression: aws.String("SET used = :t"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		return err
	}
	t.Used = true
	return nil
}

// IncrementAttempts atomically adds one to the token's attempt counter and
// refreshes t.Attempts with the stored value.
func (r *OtpRepo) IncrementAttempts(ctx context.Context, t *domain.OtpToken) error {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              compositeKey("user_id", t.UserID, "sk", domain.OtpSortKey(t.Kind, t.TokenID)),
		UpdateExpression: aws.String("ADD attempts :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return err
	}
	if v, ok := out.Attributes["attempts"].(*types.AttributeValueMemberN); ok {
		if n, err := strconv.Atoi(v.Value); err == nil {
			t.Attempts = n
			return nil
		}
	}
	t.Attempts++
	return nil
}

// CountCreatedSince counts tokens of the kind created at or after the cutoff.
// Used by the reset flow's abuse check; token sets per user are small.
func (r *OtpRepo) CountCreatedSince(ctx context.Context, userID string, kind domain.OtpKind, since time.Time) (int, error) {
	tokens, err := r.queryKind(ctx, userID, kind, nil, nil)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range tokens {
		if !tokens[i].CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *OtpRepo) queryKind(ctx context.Context, userID string, kind domain.OtpKind, filter *string, filterValues map[string]types.AttributeValue) ([]domain.OtpToken, error) {
	values := map[string]types.AttributeValue{
		":u": &types.AttributeValueMemberS{Value: userID},
		":k": &types.AttributeValueMemberS{Value: string(kind) + "#"},
	}
	for k, v := range filterValues {
		values[k] = v
	}
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    aws.String("user_id = :u AND begins_with(sk, :k)"),
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(false),
	}
	if filter != nil {
		input.FilterExpression = filter
	}
	out, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, err
	}
	var tokens []domain.OtpToken
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}
