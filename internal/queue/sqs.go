package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSQueue binds the job queue to one Amazon SQS queue. Long polling
// keeps the worker loop cheap; visibility timeout handles redelivery.
type SQSQueue struct {
	client   *sqs.Client
	queueURL string
}

// NewSQSQueue builds the binding from the default AWS config chain. A
// non-empty endpoint overrides the service URL, which is how local
// SQS-compatible brokers are wired in.
func NewSQSQueue(ctx context.Context, queueURL, endpoint string) (*SQSQueue, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &SQSQueue{client: client, queueURL: queueURL}, nil
}

func (q *SQSQueue) Enqueue(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to send job: %w", err)
	}
	return nil
}

func (q *SQSQueue) Receive(ctx context.Context) (*Delivery, error) {
	for {
		out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.queueURL),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to receive: %w", err)
		}
		if len(out.Messages) == 0 {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		msg := out.Messages[0]
		var job Job
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &job); err != nil {
			// Poison message: drop it instead of blocking the queue.
			_, _ = q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(q.queueURL),
				ReceiptHandle: msg.ReceiptHandle,
			})
			continue
		}
		receipt := msg.ReceiptHandle
		return &Delivery{
			Job: job,
			Ack: func(ctx context.Context) error {
				_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
					QueueUrl:      aws.String(q.queueURL),
					ReceiptHandle: receipt,
				})
				return err
			},
		}, nil
	}
}
