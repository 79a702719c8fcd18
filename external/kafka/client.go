// Package kafka publishes transaction lifecycle events for downstream
// consumers.
package kafka

import (
	"context"
	"encoding/json"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/openuhs/go-sentinel/entities"
)

type KafkaClient interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// Client emits one record per archived status transition, keyed by
// transaction id. Publishing is fire-and-forget; failures are logged only.
type Client struct {
	kcl    KafkaClient
	logger *zap.SugaredLogger
}

func NewClient(kafkaClient KafkaClient, logger *zap.SugaredLogger) *Client {
	return &Client{kcl: kafkaClient, logger: logger}
}

type statusEvent struct {
	TxID        entities.Hash `json:"txId"`
	State       string        `json:"state"`
	TimestampMs uint64        `json:"timestampMs"`
}

func (c *Client) PublishStatusEvent(txID entities.Hash, state entities.TxState, timestampMs uint64) {
	payload, err := json.Marshal(statusEvent{
		TxID:        txID,
		State:       state.String(),
		TimestampMs: timestampMs,
	})
	if err != nil {
		c.logger.Errorw("Failed to marshal status event", "txId", txID, "error", err)
		return
	}

	record := &kgo.Record{
		Key:   []byte(txID.String()),
		Value: payload,
	}
	c.kcl.Produce(context.Background(), record, func(_ *kgo.Record, err error) {
		if err != nil {
			c.logger.Errorw("Failed to produce status event", "txId", txID, "error", err)
		}
	})
}
