package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/ghalamif/sensorflow/internal/domain"
	"github.com/ghalamif/sensorflow/internal/ports"
)

// ErrorStore keeps sensor error records in a DynamoDB table keyed by "sensorKey".
// Increments use UpdateItem ADD, which DynamoDB applies atomically per item.
type ErrorStore struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

const DefaultTable = "SensorErrors"

type Config struct {
	Region   string
	Table    string
	Endpoint string
}

func NewErrorStore(cfg Config) (*ErrorStore, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("dynamodb session: %w", err)
	}
	return NewErrorStoreWithClient(dynamodb.New(sess), cfg.Table), nil
}

func NewErrorStoreWithClient(client dynamodbiface.DynamoDBAPI, table string) *ErrorStore {
	if table == "" {
		table = DefaultTable
	}
	return &ErrorStore{client: client, table: table}
}

func (s *ErrorStore) Name() string { return "dynamodb" }

type item struct {
	SensorKey          string `dynamodbav:"sensorKey"`
	SensorID           string `dynamodbav:"sensorId"`
	SensorType         string `dynamodbav:"sensorType"`
	ErrorCount         int64  `dynamodbav:"errorCount"`
	LastErrorTimestamp string `dynamodbav:"lastErrorTimestamp"`
	LastErrorMessage   string `dynamodbav:"lastErrorMessage"`
}

func sensorKey(k domain.ErrorKey) string { return string(k.SensorType) + "#" + k.SensorID }

func (it item) record() domain.SensorErrorRecord {
	ts, _ := time.Parse(time.RFC3339Nano, it.LastErrorTimestamp)
	return domain.SensorErrorRecord{
		SensorID:           it.SensorID,
		SensorType:         domain.SensorType(it.SensorType),
		ErrorCount:         it.ErrorCount,
		LastErrorTimestamp: ts.UTC(),
		LastErrorMessage:   it.LastErrorMessage,
	}
}

func (s *ErrorStore) UpsertError(ctx context.Context, key domain.ErrorKey, delta int64, at time.Time, msg string) (domain.SensorErrorRecord, error) {
	out, err := s.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]*dynamodb.AttributeValue{
			"sensorKey": {S: aws.String(sensorKey(key))},
		},
		UpdateExpression: aws.String("ADD errorCount :delta SET sensorId = :sid, sensorType = :stype, lastErrorTimestamp = :ts, lastErrorMessage = :msg"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":delta": {N: aws.String(fmt.Sprintf("%d", delta))},
			":sid":   {S: aws.String(key.SensorID)},
			":stype": {S: aws.String(string(key.SensorType))},
			":ts":    {S: aws.String(at.UTC().Format(time.RFC3339Nano))},
			":msg":   {S: aws.String(msg)},
		},
		ReturnValues: aws.String(dynamodb.ReturnValueAllNew),
	})
	if err != nil {
		return domain.SensorErrorRecord{}, fmt.Errorf("dynamodb update %s: %w", key, err)
	}
	var it item
	if err := dynamodbattribute.UnmarshalMap(out.Attributes, &it); err != nil {
		return domain.SensorErrorRecord{}, fmt.Errorf("dynamodb decode %s: %w", key, err)
	}
	return it.record(), nil
}

// QueryErrors scans the table; the number of distinct sensors is small.
func (s *ErrorStore) QueryErrors(ctx context.Context, limit int) ([]domain.SensorErrorRecord, error) {
	var (
		out     []domain.SensorErrorRecord
		scanErr error
	)
	err := s.client.ScanPagesWithContext(ctx, &dynamodb.ScanInput{TableName: aws.String(s.table)},
		func(page *dynamodb.ScanOutput, _ bool) bool {
			var items []item
			if err := dynamodbattribute.UnmarshalListOfMaps(page.Items, &items); err != nil {
				scanErr = err
				return false
			}
			for _, it := range items {
				out = append(out, it.record())
			}
			return true
		})
	if err == nil {
		err = scanErr
	}
	if err != nil {
		return nil, fmt.Errorf("dynamodb scan %s: %w", s.table, err)
	}
	domain.SortErrorRecords(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ ports.ErrorStore = (*ErrorStore)(nil)
