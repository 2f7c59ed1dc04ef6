package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SqsNotifier hands events to the mailer through an SQS queue.
type SqsNotifier struct {
	client   *sqs.Client
	queueUrl string
}

func NewSqsNotifier(client *sqs.Client, queueUrl string) *SqsNotifier {
	return &SqsNotifier{client: client, queueUrl: queueUrl}
}

type envelope struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

func (n *SqsNotifier) StreakBroken(ctx context.Context, ev StreakBroken) error {
	return n.send(ctx, EventStreakBroken, ev)
}

func (n *SqsNotifier) StreakReminder(ctx context.Context, ev StreakReminder) error {
	return n.send(ctx, EventStreakReminder, ev)
}

func (n *SqsNotifier) WeeklySummary(ctx context.Context, ev WeeklySummary) error {
	return n.send(ctx, EventWeeklySummary, ev)
}

func (n *SqsNotifier) send(ctx context.Context, typ EventType, data any) error {
	body, err := json.Marshal(envelope{Type: typ, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", typ, err)
	}
	_, err = n.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueUrl),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"type": {DataType: aws.String("String"), StringValue: aws.String(string(typ))},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send %s event: %w", typ, err)
	}
	return nil
}
