package sinks

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadRegistrySanitizesEntries(t *testing.T) {
	path := writeConfig(t, "sinks.yaml", `
sinks:
  - id: " local "
    type: JSONL
    jsonl:
      path: " ./data/articles.jsonl "
  - id: hook
    type: http
    http:
      url: https://hooks.example/articles
      headers:
        Authorization: " Bearer x "
        Empty: "  "
  - id: queue
    type: sqs
    enabled: false
    sqs:
      uri: https://sqs.eu-west-1.amazonaws.com/1/articles
      region: eu-west-1
      endpoint: http://localhost:4566
  - id: archive
    type: gcs
    gcs:
      bucket: harvest
      prefix: /lefaso/
`)
	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	local, ok := reg.ByID("local")
	if !ok || local.Type != TypeJSONL || local.JSONL.Path != "./data/articles.jsonl" {
		t.Fatalf("unexpected jsonl entry %+v", local)
	}
	hook, _ := reg.ByID("hook")
	if hook.HTTP.Method != "POST" || hook.HTTP.TimeoutSeconds != httpDefaultTimeoutSeconds {
		t.Fatalf("http defaults not applied: %+v", hook.HTTP)
	}
	if len(hook.HTTP.Headers) != 1 || hook.HTTP.Headers["Authorization"] != "Bearer x" {
		t.Fatalf("headers not sanitized: %+v", hook.HTTP.Headers)
	}
	queue, _ := reg.ByID("queue")
	if queue.SQS.Region != "eu-west-1" || queue.SQS.Endpoint != "http://localhost:4566" {
		t.Fatalf("inline aws config not decoded: %+v", queue.SQS)
	}
	archive, _ := reg.ByID("archive")
	if archive.GCS.Prefix != "lefaso" {
		t.Fatalf("prefix not trimmed: %q", archive.GCS.Prefix)
	}

	if got := len(reg.All()); got != 4 {
		t.Fatalf("expected 4 sinks, got %d", got)
	}
	if got := len(reg.Enabled()); got != 3 {
		t.Fatalf("expected 3 enabled sinks, got %d", got)
	}
}

func TestLoadRegistryJSON(t *testing.T) {
	path := writeConfig(t, "sinks.json", `{"sinks":[{"id":"db","type":"sqlite","sqlite":{"path":"h.db"}}]}`)
	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if cfg, ok := reg.ByID("db"); !ok || cfg.SQLite.Path != "h.db" {
		t.Fatalf("unexpected entry %+v", cfg)
	}
}

func TestValidateConfigErrors(t *testing.T) {
	cases := map[string]struct {
		cfg  SinkConfig
		want string
	}{
		"no id":          {SinkConfig{Type: TypeJSONL}, "id is required"},
		"no type":        {SinkConfig{ID: "x"}, "type is required"},
		"unknown type":   {SinkConfig{ID: "x", Type: "kafka"}, "unsupported sink type"},
		"jsonl path":     {SinkConfig{ID: "x", Type: TypeJSONL}, "jsonl.path"},
		"sqlite path":    {SinkConfig{ID: "x", Type: TypeSQLite, SQLite: &SQLiteConfig{}}, "sqlite.path"},
		"http url":       {SinkConfig{ID: "x", Type: TypeHTTP, HTTP: &HTTPConfig{}}, "http.url"},
		"sqs region":     {SinkConfig{ID: "x", Type: TypeSQS, SQS: &SQSConfig{QueueURL: "q"}}, "sqs.region"},
		"sns topic":      {SinkConfig{ID: "x", Type: TypeSNS, SNS: &SNSConfig{}}, "sns.topic_arn"},
		"half creds":     {SinkConfig{ID: "x", Type: TypeSNS, SNS: &SNSConfig{TopicARN: "t", AWSConfig: AWSConfig{Region: "r", AccessKeyID: "a"}}}, "must be set together"},
		"pubsub topic":   {SinkConfig{ID: "x", Type: TypePubSub, PubSub: &PubSubConfig{ProjectID: "p"}}, "pubsub.topic"},
		"pubsub project": {SinkConfig{ID: "x", Type: TypePubSub, PubSub: &PubSubConfig{Topic: "t"}}, "pubsub.project_id"},
		"gcs bucket":     {SinkConfig{ID: "x", Type: TypeGCS, GCS: &GCSConfig{}}, "gcs.bucket"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := validateConfig(sanitizeConfig(tc.cfg))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestNewConfigRegistryRejectsDuplicates(t *testing.T) {
	cfgs := append(DefaultConfigs("a.jsonl"), DefaultConfigs("b.jsonl")...)
	if _, err := NewConfigRegistry(cfgs); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestLoadRegistryRejectsEmptyFile(t *testing.T) {
	if _, err := LoadRegistry(writeConfig(t, "sinks.yaml", "sinks: []\n")); err == nil {
		t.Fatalf("expected error for empty sinks list")
	}
	if _, err := LoadRegistry(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
