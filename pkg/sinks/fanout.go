package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/samvad-hq/rubric-harvester/internal/domain"
)

// Fanout writes every record to all configured sinks.
type Fanout struct {
	sinks []Sink
	log   Logger
}

// NewFanout builds a dispatcher over sinks.
func NewFanout(sinks []Sink, log Logger) *Fanout {
	cp := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s == nil {
			continue
		}
		cp = append(cp, s)
	}
	return &Fanout{sinks: cp, log: ensureLogger(log)}
}

// Write forwards rec to every sink. The record counts as delivered when at
// least one sink accepted it; otherwise the joined sink errors are returned.
func (f *Fanout) Write(ctx context.Context, rec domain.ArticleRecord) error {
	if f == nil || len(f.sinks) == 0 {
		return errors.New("no sinks configured")
	}

	var errs []error
	accepted := 0
	for _, s := range f.sinks {
		if err := s.Write(ctx, rec); err != nil {
			err = fmt.Errorf("%s sink[%s]: %w", s.Type(), s.ID(), err)
			errs = append(errs, err)
			f.log.WarnObj("sink write failed", "sink_error", map[string]any{
				"sink_id": s.ID(),
				"type":    s.Type(),
				"url":     rec.URL,
				"error":   err.Error(),
			})
			continue
		}
		accepted++
	}
	if accepted == 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Close closes every sink and joins their errors.
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	return closeAll(f.sinks)
}

// Size returns the number of active sinks.
func (f *Fanout) Size() int {
	if f == nil {
		return 0
	}
	return len(f.sinks)
}
