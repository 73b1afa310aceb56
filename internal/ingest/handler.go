// Package ingest loads person records published by upstream registries onto the store
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/utils"
)

// Upserter stores records, creating or replacing by id
type Upserter interface {
	Upsert(ctx context.Context, records ...models.PersonRecord) error
}

type Handler struct {
	store  Upserter
	logger ectologger.Logger
}

func NewHandler(store Upserter, logger ectologger.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// Handle accepts a single record object or an array of records. Malformed payloads are
// logged and dropped; store failures are returned so the offset is not committed.
func (h *Handler) Handle(ctx context.Context, msg *kafka.Message) error {
	ctx, span := tracing.StartSpan(ctx, "ingest.Handler.Handle")
	defer span.End()

	log := h.logger.WithContext(ctx).WithFields(map[string]any{
		"key":    msg.Key,
		"offset": msg.Offset,
	})

	records, err := decode(msg)
	if err != nil {
		metrics.KafkaMessagesConsumed.WithLabelValues("invalid").Inc()
		log.WithError(err).Warn("Dropping invalid person record message")
		return nil
	}
	if len(records) == 0 {
		metrics.KafkaMessagesConsumed.WithLabelValues("empty").Inc()
		return nil
	}

	if err := h.store.Upsert(ctx, records...); err != nil {
		metrics.KafkaMessagesConsumed.WithLabelValues("error").Inc()
		return err
	}

	metrics.KafkaMessagesConsumed.WithLabelValues("success").Inc()
	log.WithField("records", len(records)).Debug("Ingested person records")
	return nil
}

func decode(msg *kafka.Message) ([]models.PersonRecord, error) {
	body := bytes.TrimSpace(msg.Value)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	var records []models.PersonRecord
	if body[0] == '[' {
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, err
		}
	} else {
		var r models.PersonRecord
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, err
		}
		// single-record messages may carry the id only as the message key
		if r.ID == "" {
			r.ID = msg.Key
		}
		records = append(records, r)
	}

	for i, r := range records {
		if err := utils.Validate(r); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return records, nil
}
