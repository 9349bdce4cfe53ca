package dynamo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/ghalamif/sensorflow/internal/domain"
)

type stubDynamo struct {
	dynamodbiface.DynamoDBAPI
	update *dynamodb.UpdateItemInput
	pages  []*dynamodb.ScanOutput
}

func (s *stubDynamo) UpdateItemWithContext(_ aws.Context, in *dynamodb.UpdateItemInput, _ ...request.Option) (*dynamodb.UpdateItemOutput, error) {
	s.update = in
	return &dynamodb.UpdateItemOutput{Attributes: map[string]*dynamodb.AttributeValue{
		"sensorKey":          {S: aws.String("Water#water-001")},
		"sensorId":           {S: aws.String("water-001")},
		"sensorType":         {S: aws.String("Water")},
		"errorCount":         {N: aws.String("3")},
		"lastErrorTimestamp": {S: aws.String("2024-06-01T10:00:00Z")},
		"lastErrorMessage":   {S: aws.String("pH out of valid range (0-14): 15")},
	}}, nil
}

func (s *stubDynamo) ScanPagesWithContext(_ aws.Context, _ *dynamodb.ScanInput, fn func(*dynamodb.ScanOutput, bool) bool, _ ...request.Option) error {
	for i, p := range s.pages {
		if !fn(p, i == len(s.pages)-1) {
			break
		}
	}
	return nil
}

func row(id, typ, count, ts string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"sensorKey":          {S: aws.String(typ + "#" + id)},
		"sensorId":           {S: aws.String(id)},
		"sensorType":         {S: aws.String(typ)},
		"errorCount":         {N: aws.String(count)},
		"lastErrorTimestamp": {S: aws.String(ts)},
		"lastErrorMessage":   {S: aws.String("bad")},
	}
}

func TestUpsertErrorUsesAtomicAdd(t *testing.T) {
	stub := &stubDynamo{}
	s := NewErrorStoreWithClient(stub, "")

	rec, err := s.UpsertError(context.Background(),
		domain.ErrorKey{SensorID: "water-001", SensorType: domain.Water}, 1,
		time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), "pH out of valid range (0-14): 15")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !strings.HasPrefix(*stub.update.UpdateExpression, "ADD errorCount :delta") {
		t.Fatalf("expected ADD expression, got %s", *stub.update.UpdateExpression)
	}
	if *stub.update.Key["sensorKey"].S != "Water#water-001" {
		t.Fatalf("unexpected key %v", stub.update.Key)
	}
	if *stub.update.TableName != "SensorErrors" {
		t.Fatalf("unexpected table %s", *stub.update.TableName)
	}
	if rec.ErrorCount != 3 || rec.SensorType != domain.Water || rec.LastErrorTimestamp.Hour() != 10 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestQueryErrorsSortsAcrossPages(t *testing.T) {
	stub := &stubDynamo{pages: []*dynamodb.ScanOutput{
		{Items: []map[string]*dynamodb.AttributeValue{
			row("env-001", "Environmental", "2", "2024-06-01T10:00:00Z"),
			row("air-001", "AirQuality", "9", "2024-06-01T10:00:00Z"),
		}},
		{Items: []map[string]*dynamodb.AttributeValue{
			row("light-002", "Light", "2", "2024-06-01T11:00:00Z"),
			row("motion-001", "Motion", "1", "2024-06-01T12:00:00Z"),
		}},
	}}
	s := NewErrorStoreWithClient(stub, "errors")

	recs, err := s.QueryErrors(context.Background(), 3)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	got := []string{recs[0].SensorID, recs[1].SensorID, recs[2].SensorID}
	want := []string{"air-001", "light-002", "env-001"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ranking mismatch: got %v want %v", got, want)
		}
	}
}
