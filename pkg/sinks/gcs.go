package sinks

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/samvad-hq/rubric-harvester/internal/domain"
)

// objectStore uploads whole objects to a bucket.
type objectStore interface {
	Put(ctx context.Context, name string, data []byte, metadata map[string]string) error
	Close() error
}

// gcsSink writes one JSON object per article under
// <prefix>/<rubrique_id>/<sha1(url)>.json, so re-emitting a URL overwrites
// the same object.
type gcsSink struct {
	id     string
	bucket string
	prefix string
	runID  string
	store  objectStore
	log    Logger
}

func newGCSSink(ctx context.Context, cfg SinkConfig, env Env) (Sink, error) {
	if cfg.GCS == nil {
		return nil, fmt.Errorf("sink %q missing gcs configuration", cfg.ID)
	}
	client, err := storage.NewClient(ctx, googleOptions(cfg.GCS.CredentialsFile, cfg.GCS.Endpoint)...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &gcsSink{
		id:     cfg.ID,
		bucket: cfg.GCS.Bucket,
		prefix: cfg.GCS.Prefix,
		runID:  env.RunID,
		store:  &gcsObjectStore{client: client, bucket: cfg.GCS.Bucket},
		log:    ensureLogger(env.Log),
	}, nil
}

func (g *gcsSink) ID() string   { return g.id }
func (g *gcsSink) Type() string { return TypeGCS }

func (g *gcsSink) Write(ctx context.Context, rec domain.ArticleRecord) error {
	payload, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	name := objectName(g.prefix, rec)
	meta := attributes(rec, g.runID)
	meta["url"] = rec.URL

	if err := g.store.Put(ctx, name, payload, meta); err != nil {
		return fmt.Errorf("upload gs://%s/%s: %w", g.bucket, name, err)
	}
	g.log.DebugObj("gcs sink stored record", "sink_gcs_delivery", map[string]any{
		"sink_id": g.id,
		"object":  name,
	})
	return nil
}

func (g *gcsSink) Close() error { return g.store.Close() }

func objectName(prefix string, rec domain.ArticleRecord) string {
	sum := sha1.Sum([]byte(rec.URL))
	rubric := rec.RubricID
	if rubric == "" {
		rubric = "unknown"
	}
	return path.Join(prefix, rubric, hex.EncodeToString(sum[:])+".json")
}

type gcsObjectStore struct {
	client *storage.Client
	bucket string
}

func (s *gcsObjectStore) Put(ctx context.Context, name string, data []byte, metadata map[string]string) error {
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = "application/json"
	writer.Metadata = metadata
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

func (s *gcsObjectStore) Close() error { return s.client.Close() }
