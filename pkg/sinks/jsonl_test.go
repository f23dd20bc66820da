package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/samvad-hq/rubric-harvester/internal/domain"
)

func sampleRecord(n int) domain.ArticleRecord {
	title := fmt.Sprintf("Titre %d", n)
	return domain.ArticleRecord{
		Title:    &title,
		Body:     []string{"Un paragraphe assez long pour que les écritures concurrentes se chevauchent si elles n'étaient pas sérialisées."},
		URL:      fmt.Sprintf("https://lefaso.net/spip.php?article%d", n),
		RubricID: "4",
		PageNum:  1,
	}
}

func TestJSONLSinkWritesWholeLinesConcurrently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "articles.jsonl")
	s, err := newJSONLSink(context.Background(), SinkConfig{ID: "local", JSONL: &FileConfig{Path: path}}, Env{})
	if err != nil {
		t.Fatalf("newJSONLSink: %v", err)
	}

	const writers = 64
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := s.Write(context.Background(), sampleRecord(n)); err != nil {
				t.Errorf("Write: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	seen := map[string]bool{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var got map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &got); err != nil {
			t.Fatalf("line is not a JSON object: %q (%v)", scanner.Text(), err)
		}
		if _, ok := got["comments"].([]any); !ok {
			t.Fatalf("comments must serialize as an array: %q", scanner.Text())
		}
		seen[got["url"].(string)] = true
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(seen) != writers {
		t.Fatalf("expected %d distinct lines, got %d", writers, len(seen))
	}
}

func TestJSONLSinkAppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles.jsonl")
	cfg := SinkConfig{ID: "local", JSONL: &FileConfig{Path: path}}
	for run := 0; run < 2; run++ {
		s, err := newJSONLSink(context.Background(), cfg, Env{})
		if err != nil {
			t.Fatalf("newJSONLSink: %v", err)
		}
		if err := s.Write(context.Background(), sampleRecord(run)); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if lines := countLines(raw); lines != 2 {
		t.Fatalf("expected 2 lines after two runs, got %d", lines)
	}
}

func TestJSONLSinkRejectsWritesAfterClose(t *testing.T) {
	s, err := newJSONLSink(context.Background(), SinkConfig{ID: "local", JSONL: &FileConfig{Path: filepath.Join(t.TempDir(), "a.jsonl")}}, Env{})
	if err != nil {
		t.Fatalf("newJSONLSink: %v", err)
	}
	_ = s.Close()
	if err := s.Write(context.Background(), sampleRecord(1)); err == nil {
		t.Fatalf("expected error writing to a closed sink")
	}
}

func TestJSONLSinkFailsOnUnwritablePath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := newJSONLSink(context.Background(), SinkConfig{ID: "local", JSONL: &FileConfig{Path: filepath.Join(blocker, "articles.jsonl")}}, Env{})
	if err == nil {
		t.Fatalf("expected error when the parent path is a file")
	}
}

func countLines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}
