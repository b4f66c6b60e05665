package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Georgesa98/UrlShortner-sub000/internal/app/model"
	"github.com/Georgesa98/UrlShortner-sub000/internal/app/repository"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// FraudConsumer drains the fraud incident stream into the database.
type FraudConsumer struct {
	js     nats.JetStreamContext
	logger *zap.Logger
	repo   repository.FraudRepository
}

// NewFraudConsumer creates a new fraud incident consumer.
func NewFraudConsumer(js nats.JetStreamContext, logger *zap.Logger, repo repository.FraudRepository) *FraudConsumer {
	return &FraudConsumer{js: js, logger: logger, repo: repo}
}

// Start bootstraps the stream and durable consumer and begins consuming.
func (c *FraudConsumer) Start() error {
	_, err := c.js.StreamInfo(model.FraudStreamName)
	if err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:     model.FraudStreamName,
			Subjects: []string{model.FraudStreamSubject},
			MaxBytes: model.FraudStreamMaxBytes,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	_, err = c.js.ConsumerInfo(model.FraudStreamName, model.FraudConsumerName)
	if err != nil {
		_, err = c.js.AddConsumer(model.FraudStreamName, &nats.ConsumerConfig{
			Durable:   model.FraudConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.FraudStreamSubject, model.FraudConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.consume(sub)
	return nil
}

func (c *FraudConsumer) consume(sub *nats.Subscription) {
	ctx := context.Background()
	for {
		msgs, err := sub.Fetch(10, nats.MaxWait(5*time.Second))
		if err != nil && err != nats.ErrTimeout {
			c.logger.Error("failed to fetch fraud incidents", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			var incident model.FraudIncident
			if err := json.Unmarshal(msg.Data, &incident); err != nil {
				c.logger.Error("failed to unmarshal fraud incident", zap.Error(err))
				msg.Nak()
				continue
			}

			if err := c.repo.Create(ctx, &incident); err != nil {
				c.logger.Error("failed to store fraud incident",
					zap.String("id", incident.ID),
					zap.String("type", incident.Type),
					zap.Error(err))
				msg.Nak()
				continue
			}

			c.logger.Debug("fraud incident stored",
				zap.String("id", incident.ID),
				zap.String("type", incident.Type),
				zap.String("severity", incident.Severity),
			)

			msg.Ack()
		}
	}
}
