package sinks

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/samvad-hq/rubric-harvester/internal/domain"
)

type stubSink struct {
	id     string
	typ    string
	err    error
	calls  int
	closed bool
}

func (s *stubSink) ID() string   { return s.id }
func (s *stubSink) Type() string { return s.typ }
func (s *stubSink) Write(context.Context, domain.ArticleRecord) error {
	s.calls++
	return s.err
}
func (s *stubSink) Close() error {
	s.closed = true
	return nil
}

func TestFanoutAcceptsWhenOneSinkSucceeds(t *testing.T) {
	ok := &stubSink{id: "ok", typ: TypeJSONL}
	bad := &stubSink{id: "bad", typ: TypeHTTP, err: errors.New("failed")}
	fanout := NewFanout([]Sink{ok, nil, bad}, nil)

	if err := fanout.Write(context.Background(), domain.ArticleRecord{URL: "u"}); err != nil {
		t.Fatalf("expected record to be accepted, got %v", err)
	}
	if ok.calls != 1 || bad.calls != 1 {
		t.Fatalf("every sink must be called, got ok=%d bad=%d", ok.calls, bad.calls)
	}
	if fanout.Size() != 2 {
		t.Fatalf("nil sinks must be skipped, size=%d", fanout.Size())
	}
}

func TestFanoutFailsWhenEverySinkFails(t *testing.T) {
	fanout := NewFanout([]Sink{
		&stubSink{id: "a", typ: TypeHTTP, err: errors.New("a down")},
		&stubSink{id: "b", typ: TypeSQS, err: errors.New("b down")},
	}, nil)

	err := fanout.Write(context.Background(), domain.ArticleRecord{})
	if err == nil {
		t.Fatalf("expected aggregated error")
	}
	if got := err.Error(); !strings.Contains(got, "a down") || !strings.Contains(got, "b down") {
		t.Fatalf("error should mention every sink: %v", got)
	}
}

func TestFanoutWithoutSinks(t *testing.T) {
	if err := NewFanout(nil, nil).Write(context.Background(), domain.ArticleRecord{}); err == nil {
		t.Fatalf("expected error when no sinks are configured")
	}
}

func TestFanoutCloseClosesEverySink(t *testing.T) {
	a, b := &stubSink{id: "a"}, &stubSink{id: "b"}
	if err := NewFanout([]Sink{a, b}, nil).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !a.closed || !b.closed {
		t.Fatalf("expected every sink closed")
	}
}

func TestBuildAllClosesBuiltSinksOnFailure(t *testing.T) {
	built := &stubSink{id: "first", typ: "stub"}
	reg := NewRegistry(map[string]Builder{
		"stub": func(context.Context, SinkConfig, Env) (Sink, error) { return built, nil },
		"boom": func(context.Context, SinkConfig, Env) (Sink, error) { return nil, errors.New("cannot open") },
	})

	_, err := BuildAll(context.Background(), reg, []SinkConfig{
		{ID: "first", Type: "stub"},
		{ID: "second", Type: "boom"},
	}, Env{})
	if err == nil {
		t.Fatalf("expected build error")
	}
	if !built.closed {
		t.Fatalf("already built sinks must be closed on failure")
	}
}

func TestBuildAllWithDefaultRegistry(t *testing.T) {
	sinks, err := BuildAll(context.Background(), DefaultRegistry(), []SinkConfig{
		{ID: "hook", Type: TypeHTTP, HTTP: &HTTPConfig{URL: "https://example.com", Method: "POST", TimeoutSeconds: 1}},
	}, Env{RunID: "run-1"})
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if len(sinks) != 1 || sinks[0].Type() != TypeHTTP {
		t.Fatalf("unexpected sinks %+v", sinks)
	}
	if _, err := DefaultRegistry().SinkFor(context.Background(), SinkConfig{ID: "x", Type: "kafka"}, Env{}); err == nil {
		t.Fatalf("expected unknown type error")
	}
}
