package jobqueue

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/klauspost/compress/zstd"
)

// SQS caps DelaySeconds at 15 minutes.
const maxSqsDelay = 15 * time.Minute

type SqsBroker struct {
	client   *sqs.Client
	queueUrl string
	enc      *zstd.Encoder
	dec      *zstd.Decoder
	log      *slog.Logger
}

func NewSqsClient(ctx context.Context, region string) (*sqs.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithRetryer(func() aws.Retryer {
			return retry.AddWithMaxAttempts(retry.NewStandard(), 10)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return sqs.NewFromConfig(cfg), nil
}

func NewSqsBroker(client *sqs.Client, queueUrl string) (*SqsBroker, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &SqsBroker{
		client:   client,
		queueUrl: queueUrl,
		enc:      enc,
		dec:      dec,
		log:      slog.Default().With("module", "sqsbroker"),
	}, nil
}

func (b *SqsBroker) Publish(ctx context.Context, job Job, delay time.Duration) error {
	body, err := encodeBody(b.enc, job)
	if err != nil {
		return err
	}
	_, err = b.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(b.queueUrl),
		MessageBody:  aws.String(body),
		DelaySeconds: int32(min(delay, maxSqsDelay) / time.Second),
	})
	if err != nil {
		return fmt.Errorf("failed to send message to job queue: %w", err)
	}
	return nil
}

func (b *SqsBroker) Receive(ctx context.Context) ([]Delivery, error) {
	output, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(b.queueUrl),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     1,
	})
	if err != nil {
		return nil, err
	}
	res := make([]Delivery, 0, len(output.Messages))
	for _, msg := range output.Messages {
		if msg.Body == nil || msg.ReceiptHandle == nil {
			continue
		}
		job, err := decodeBody(b.dec, *msg.Body)
		if err != nil {
			// poison message, drop it so it does not loop forever
			b.log.Error("failed to decode job message", "error", err)
			b.delete(ctx, *msg.ReceiptHandle)
			continue
		}
		res = append(res, Delivery{Job: job, handle: *msg.ReceiptHandle})
	}
	return res, nil
}

func (b *SqsBroker) Ack(ctx context.Context, d Delivery) error {
	return b.delete(ctx, d.handle)
}

func (b *SqsBroker) delete(ctx context.Context, handle string) error {
	_, err := b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(b.queueUrl),
		ReceiptHandle: aws.String(handle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func encodeBody(enc *zstd.Encoder, job Job) (string, error) {
	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}
	compressed := enc.EncodeAll(raw, make([]byte, 0, len(raw)))
	return base64.StdEncoding.EncodeToString(compressed), nil
}

func decodeBody(dec *zstd.Decoder, body string) (Job, error) {
	compressed, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return Job{}, fmt.Errorf("failed to decode base64: %w", err)
	}
	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return Job{}, fmt.Errorf("failed to decompress: %w", err)
	}
	var job Job
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&job); err != nil {
		return Job{}, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return job, nil
}
