package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/wolfman30/leadflow/pkg/logging"
)

const (
	// finished runs expire this long after they end; open runs never expire.
	runTTL       = 30 * 24 * time.Hour
	leadKeyIndex = "leadKey-index"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// runItem is the DynamoDB shape of a Run.
type runItem struct {
	RunID         string   `dynamodbav:"runId"`
	LeadKey       string   `dynamodbav:"leadKey"`
	WorkflowID    string   `dynamodbav:"workflowId"`
	OrgID         string   `dynamodbav:"orgId"`
	LeadID        string   `dynamodbav:"leadId"`
	Event         string   `dynamodbav:"event,omitempty"`
	Status        string   `dynamodbav:"status"`
	NextAction    int      `dynamodbav:"nextAction"`
	PendingStepID string   `dynamodbav:"pendingStepId,omitempty"`
	ActivityIDs   []string `dynamodbav:"activityIds,omitempty"`
	ErrorMessage  string   `dynamodbav:"errorMessage,omitempty"`
	StartedAt     string   `dynamodbav:"startedAt"`
	UpdatedAt     string   `dynamodbav:"updatedAt"`
	FinishedAt    string   `dynamodbav:"finishedAt,omitempty"`
	ExpiresAt     int64    `dynamodbav:"expiresAt,omitempty"`
}

func runLeadKey(orgID, leadID string) string {
	return orgID + "#" + leadID
}

func toRunItem(run *Run) runItem {
	item := runItem{
		RunID:         run.ID,
		LeadKey:       runLeadKey(run.OrgID, run.LeadID),
		WorkflowID:    run.WorkflowID,
		OrgID:         run.OrgID,
		LeadID:        run.LeadID,
		Event:         string(run.Event),
		Status:        string(run.Status),
		NextAction:    run.NextAction,
		PendingStepID: run.PendingStepID,
		ActivityIDs:   run.ActivityIDs,
		ErrorMessage:  run.Error,
		StartedAt:     run.StartedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:     run.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if run.FinishedAt != nil {
		item.FinishedAt = run.FinishedAt.UTC().Format(time.RFC3339Nano)
		item.ExpiresAt = run.FinishedAt.Add(runTTL).Unix()
	}
	return item
}

func (i runItem) toRun() (*Run, error) {
	run := &Run{
		ID:            i.RunID,
		WorkflowID:    i.WorkflowID,
		OrgID:         i.OrgID,
		LeadID:        i.LeadID,
		Event:         Event(i.Event),
		Status:        RunStatus(i.Status),
		NextAction:    i.NextAction,
		PendingStepID: i.PendingStepID,
		ActivityIDs:   i.ActivityIDs,
		Error:         i.ErrorMessage,
	}
	var err error
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, i.StartedAt); err != nil {
		return nil, fmt.Errorf("automation: decode startedAt: %w", err)
	}
	if run.UpdatedAt, err = time.Parse(time.RFC3339Nano, i.UpdatedAt); err != nil {
		return nil, fmt.Errorf("automation: decode updatedAt: %w", err)
	}
	if i.FinishedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, i.FinishedAt)
		if err != nil {
			return nil, fmt.Errorf("automation: decode finishedAt: %w", err)
		}
		run.FinishedAt = &t
	}
	return run, nil
}

// DynamoRunStore persists runs in DynamoDB keyed by runId with a leadKey
// GSI for per-lead lookups.
type DynamoRunStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

func NewDynamoRunStore(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoRunStore {
	if client == nil {
		panic("automation: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("automation: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoRunStore{client: client, tableName: tableName, logger: logger}
}

func (s *DynamoRunStore) Create(ctx context.Context, run *Run) error {
	return s.put(ctx, run, "attribute_not_exists(runId)")
}

func (s *DynamoRunStore) Update(ctx context.Context, run *Run) error {
	err := s.put(ctx, run, "attribute_exists(runId)")
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ErrRunNotFound
	}
	return err
}

func (s *DynamoRunStore) put(ctx context.Context, run *Run, condition string) error {
	if run == nil || run.ID == "" {
		return errors.New("automation: run id required")
	}
	item, err := attributevalue.MarshalMap(toRunItem(run))
	if err != nil {
		return fmt.Errorf("automation: marshal run: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String(condition),
	})
	if err != nil {
		return fmt.Errorf("automation: persist run: %w", err)
	}
	return nil
}

func (s *DynamoRunStore) Get(ctx context.Context, id string) (*Run, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"runId": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("automation: fetch run: %w", err)
	}
	if out.Item == nil {
		return nil, ErrRunNotFound
	}
	var item runItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("automation: decode run: %w", err)
	}
	return item.toRun()
}

func (s *DynamoRunStore) ListByLead(ctx context.Context, orgID, leadID string) ([]*Run, error) {
	var (
		runs  []*Run
		start map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                aws.String(s.tableName),
			IndexName:                aws.String(leadKeyIndex),
			KeyConditionExpression:   aws.String("#leadKey = :leadKey"),
			ExpressionAttributeNames: map[string]string{"#leadKey": "leadKey"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":leadKey": &types.AttributeValueMemberS{Value: runLeadKey(orgID, leadID)},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("automation: query runs by lead: %w", err)
		}
		var items []runItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("automation: decode runs: %w", err)
		}
		for _, item := range items {
			run, err := item.toRun()
			if err != nil {
				return nil, err
			}
			runs = append(runs, run)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return runs, nil
		}
		start = out.LastEvaluatedKey
	}
}

var _ RunStore = (*DynamoRunStore)(nil)
