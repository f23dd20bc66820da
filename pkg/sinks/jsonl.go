package sinks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/samvad-hq/rubric-harvester/internal/domain"
)

// jsonlSink appends one JSON object per line to a local file. A single
// mutex-guarded write per record keeps lines whole under concurrency.
type jsonlSink struct {
	id   string
	path string
	log  Logger

	mu     sync.Mutex
	file   *os.File
	closed bool
}

func newJSONLSink(_ context.Context, cfg SinkConfig, env Env) (Sink, error) {
	if cfg.JSONL == nil || cfg.JSONL.Path == "" {
		return nil, fmt.Errorf("sink %q missing jsonl path", cfg.ID)
	}
	path := cfg.JSONL.Path
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	return &jsonlSink{id: cfg.ID, path: path, file: file, log: ensureLogger(env.Log)}, nil
}

func (s *jsonlSink) ID() string   { return s.id }
func (s *jsonlSink) Type() string { return TypeJSONL }

func (s *jsonlSink) Write(_ context.Context, rec domain.ArticleRecord) error {
	payload, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	line := append(payload, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("jsonl sink is closed")
	}
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("append to %s: %w", s.path, err)
	}
	return nil
}

func (s *jsonlSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	syncErr := s.file.Sync()
	closeErr := s.file.Close()
	s.log.DebugObj("jsonl sink closed", "sink_close", map[string]any{"sink_id": s.id, "path": s.path})
	return errors.Join(syncErr, closeErr)
}
