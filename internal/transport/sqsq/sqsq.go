// Package sqsq consumes job envelopes from an SQS queue and publishes
// replies to a result queue.
package sqsq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/programme-lv/modbox/internal/worker"
)

type Config struct {
	Region         string `toml:"region"`
	QueueURL       string `toml:"queue_url"`
	ResultQueueURL string `toml:"result_queue_url"`
	// WaitSeconds is the long poll duration, at most 20.
	WaitSeconds int32 `toml:"wait_seconds"`
	// VisibilitySeconds should exceed the longest wall time limit.
	VisibilitySeconds int32 `toml:"visibility_seconds"`
}

// API is the subset of the SQS client the source uses.
type API interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

func NewClient(ctx context.Context, region string) (*sqs.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sqs.NewFromConfig(cfg), nil
}

const retryDelay = time.Second

type Source struct {
	api     API
	cfg     Config
	pending []types.Message
	log     *slog.Logger
}

func NewSource(api API, cfg Config, log *slog.Logger) *Source {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Source{api: api, cfg: cfg, log: log}
}

// Receive long polls until a message arrives. Receive errors are logged
// and retried until ctx is cancelled.
func (s *Source) Receive(ctx context.Context) (worker.Delivery, error) {
	for len(s.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := s.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(s.cfg.QueueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     s.cfg.WaitSeconds,
			VisibilityTimeout:   s.cfg.VisibilitySeconds,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Warn("failed to receive from sqs", "queue", s.cfg.QueueURL, "error", err)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}
		s.pending = out.Messages
	}
	msg := s.pending[0]
	s.pending = s.pending[1:]
	return &delivery{src: s, msg: msg}, nil
}

type delivery struct {
	src *Source
	msg types.Message
}

func (d *delivery) Body() []byte {
	return []byte(aws.ToString(d.msg.Body))
}

// Respond sends the reply to the result queue, then deletes the job so it
// is not redelivered.
func (d *delivery) Respond(ctx context.Context, reply []byte) error {
	if d.src.cfg.ResultQueueURL != "" {
		_, err := d.src.api.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(d.src.cfg.ResultQueueURL),
			MessageBody: aws.String(string(reply)),
		})
		if err != nil {
			return fmt.Errorf("send reply: %w", err)
		}
	}
	_, err := d.src.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(d.src.cfg.QueueURL),
		ReceiptHandle: d.msg.ReceiptHandle,
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}
