// Package sinks delivers finished article records to durable destinations:
// local files and databases, HTTP endpoints, queues, topics and buckets.
package sinks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samvad-hq/rubric-harvester/internal/domain"
)

// Sink persists article records. Each Write is atomic with respect to other
// writes on the same sink.
type Sink interface {
	ID() string
	Type() string
	Write(ctx context.Context, rec domain.ArticleRecord) error
	Close() error
}

// Env carries run-wide values handed to every sink builder.
type Env struct {
	RunID string
	Log   Logger
}

const (
	AttrRubricID = "rubrique_id"
	AttrRunID    = "run_id"
)

// encodeRecord renders the stable JSON shape of rec.
func encodeRecord(rec domain.ArticleRecord) ([]byte, error) {
	payload, err := json.Marshal(rec.Normalize())
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return payload, nil
}

// attributes are the routing attributes attached to message sinks.
func attributes(rec domain.ArticleRecord, runID string) map[string]string {
	attrs := map[string]string{AttrRubricID: rec.RubricID}
	if runID != "" {
		attrs[AttrRunID] = runID
	}
	return attrs
}
