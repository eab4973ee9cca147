package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/asapdigest/central-command/engine/domain"
	"github.com/asapdigest/central-command/pkg/metrics"
)

const (
	// IngestSubject is the NATS subject for fetched items.
	IngestSubject = "asap.ingest"
	// DLQSubject receives items that kept failing.
	DLQSubject = "asap.ingest.dlq"
	// MaxRetries before a message is sent to the DLQ.
	MaxRetries = 3

	retryHeader = "X-Retry-Count"
)

// dlqMessage is published on repeated pipeline failure.
type dlqMessage struct {
	Item    domain.FetchedItem `json:"item"`
	Error   string             `json:"error"`
	Retries int                `json:"retries"`
}

// StartConsumer subscribes the pipeline to the ingest subject with
// retry and DLQ handling. Duplicate items are dropped without retry.
func StartConsumer(nc *nats.Conn, deps Deps, reg *metrics.Registry) (*nats.Subscription, error) {
	pipeline := New(deps)
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	processed := reg.Counter("ingest_items_total", "Items processed successfully.")
	duplicates := reg.Counter("ingest_duplicates_total", "Items dropped as exact duplicates.")
	failures := reg.Counter("ingest_failures_total", "Pipeline failures, including retries.")
	deadLetters := reg.Counter("ingest_dead_letters_total", "Items given up on and sent to the DLQ.")

	return nc.Subscribe(IngestSubject, func(msg *nats.Msg) {
		var it domain.FetchedItem
		if err := json.Unmarshal(msg.Data, &it); err != nil {
			log.Error("ingest unmarshal failed", "error", err)
			return
		}

		ctx := context.Background()
		result := pipeline(ctx, it)
		if result.IsOk() {
			item, _ := result.Unwrap()
			processed.Inc()
			log.Info("item ingested",
				"item_id", item.ID,
				"source_id", item.SourceID,
				"status", item.Status,
				"score", item.Quality.Composite)
			return
		}

		_, pipeErr := result.Unwrap()
		if errors.Is(pipeErr, domain.ErrDuplicate) {
			duplicates.Inc()
			log.Info("duplicate dropped", "external_id", it.ExternalID, "error", pipeErr)
			return
		}

		failures.Inc()
		retries := 0
		if v := msg.Header.Get(retryHeader); v != "" {
			fmt.Sscanf(v, "%d", &retries)
		}
		retries++
		log.Error("pipeline failed",
			"external_id", it.ExternalID,
			"retry", retries,
			"error", pipeErr)

		if retries >= MaxRetries {
			deadLetters.Inc()
			data, _ := json.Marshal(dlqMessage{Item: it, Error: pipeErr.Error(), Retries: retries})
			if err := nc.Publish(DLQSubject, data); err != nil {
				log.Error("dlq publish failed", "error", err)
			}
			return
		}

		retry := nats.NewMsg(IngestSubject)
		retry.Data = msg.Data
		retry.Header.Set(retryHeader, fmt.Sprintf("%d", retries))
		if err := nc.PublishMsg(retry); err != nil {
			log.Error("retry publish failed", "error", err)
		}
	})
}
