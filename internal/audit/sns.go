// internal/audit/sns.go
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"welfare-caseworker/internal/models"
)

// SNSService is the subset of the SNS client the sink needs.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSink publishes every decision to a topic so downstream systems can act on it.
type SNSSink struct {
	client   SNSService
	topicARN string
}

func NewSNSSink(client SNSService, topicARN string) *SNSSink {
	return &SNSSink{client: client, topicARN: topicARN}
}

func (s *SNSSink) Name() string { return "sns" }

func (s *SNSSink) Record(ctx context.Context, rec *models.ApprovalRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal approval: %w", err)
	}

	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Subject:  aws.String(fmt.Sprintf("Case %s %s", rec.CaseID, rec.Decision)),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"decision": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(rec.Decision)),
			},
			"alignment": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(rec.DecisionAlignment)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publish approval: %w", err)
	}
	return nil
}
