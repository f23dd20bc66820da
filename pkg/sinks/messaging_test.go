package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/samvad-hq/rubric-harvester/internal/domain"
)

type fakeSQS struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

type fakeSNS struct {
	input *sns.PublishInput
	err   error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("m-2")}, nil
}

func TestSQSSinkSendsAttributes(t *testing.T) {
	client := &fakeSQS{}
	s := &sqsSink{id: "queue", queueURL: "https://sqs.local/q", runID: "run-1", client: client, log: ensureLogger(nil)}

	rec := sampleRecord(5)
	if err := s.Write(context.Background(), rec); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if aws.ToString(client.input.QueueUrl) != "https://sqs.local/q" {
		t.Fatalf("queue url = %q", aws.ToString(client.input.QueueUrl))
	}
	if got := aws.ToString(client.input.MessageAttributes[AttrRubricID].StringValue); got != "4" {
		t.Fatalf("rubrique_id attribute = %q", got)
	}
	if got := aws.ToString(client.input.MessageAttributes[AttrRunID].StringValue); got != "run-1" {
		t.Fatalf("run_id attribute = %q", got)
	}
	var body domain.ArticleRecord
	if err := json.Unmarshal([]byte(aws.ToString(client.input.MessageBody)), &body); err != nil || body.URL != rec.URL {
		t.Fatalf("unexpected body %q (%v)", aws.ToString(client.input.MessageBody), err)
	}
}

func TestSQSSinkWrapsSendError(t *testing.T) {
	s := &sqsSink{id: "queue", queueURL: "q", client: &fakeSQS{err: errors.New("throttled")}, log: ensureLogger(nil)}
	err := s.Write(context.Background(), sampleRecord(1))
	if err == nil || !strings.Contains(err.Error(), "throttled") {
		t.Fatalf("expected wrapped send error, got %v", err)
	}
}

func TestSNSSinkPublishesAttributes(t *testing.T) {
	client := &fakeSNS{}
	s := &snsSink{id: "topic", topicARN: "arn:aws:sns:eu-west-1:1:articles", client: client, log: ensureLogger(nil)}

	if err := s.Write(context.Background(), sampleRecord(6)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if aws.ToString(client.input.TopicArn) != "arn:aws:sns:eu-west-1:1:articles" {
		t.Fatalf("topic arn = %q", aws.ToString(client.input.TopicArn))
	}
	if got := aws.ToString(client.input.MessageAttributes[AttrRubricID].StringValue); got != "4" {
		t.Fatalf("rubrique_id attribute = %q", got)
	}
	if _, ok := client.input.MessageAttributes[AttrRunID]; ok {
		t.Fatalf("run_id attribute must be omitted without a run id")
	}
}

func TestSNSSinkWrapsPublishError(t *testing.T) {
	s := &snsSink{id: "topic", topicARN: "t", client: &fakeSNS{err: errors.New("denied")}, log: ensureLogger(nil)}
	if err := s.Write(context.Background(), sampleRecord(1)); err == nil {
		t.Fatalf("expected publish error")
	}
}

func TestPubSubSinkPublishesToEmulator(t *testing.T) {
	srv := pstest.NewServer()
	defer srv.Close()
	t.Setenv("PUBSUB_EMULATOR_HOST", srv.Addr)

	ctx := context.Background()
	admin, err := pubsub.NewClient(ctx, "test-project")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	defer admin.Close()
	if _, err := admin.CreateTopic(ctx, "articles"); err != nil {
		t.Fatalf("create topic: %v", err)
	}

	s, err := newPubSubSink(ctx, SinkConfig{
		ID:     "pubsub",
		PubSub: &PubSubConfig{ProjectID: "test-project", Topic: "articles"},
	}, Env{RunID: "run-9"})
	if err != nil {
		t.Fatalf("newPubSubSink: %v", err)
	}
	defer s.Close()

	rec := sampleRecord(8)
	if err := s.Write(ctx, rec); err != nil {
		t.Fatalf("Write: %v", err)
	}

	msgs := srv.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Attributes[AttrRubricID] != "4" || msgs[0].Attributes[AttrRunID] != "run-9" {
		t.Fatalf("unexpected attributes %v", msgs[0].Attributes)
	}
	if !strings.Contains(string(msgs[0].Data), rec.URL) {
		t.Fatalf("payload does not carry the url: %s", msgs[0].Data)
	}
}

type fakeObjectStore struct {
	objects  map[string][]byte
	metadata map[string]map[string]string
	err      error
	closed   bool
}

func (f *fakeObjectStore) Put(_ context.Context, name string, data []byte, metadata map[string]string) error {
	if f.err != nil {
		return f.err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
		f.metadata = map[string]map[string]string{}
	}
	f.objects[name] = data
	f.metadata[name] = metadata
	return nil
}

func (f *fakeObjectStore) Close() error {
	f.closed = true
	return nil
}

func TestGCSSinkOverwritesSameObjectPerURL(t *testing.T) {
	store := &fakeObjectStore{}
	s := &gcsSink{id: "archive", bucket: "harvest", prefix: "lefaso", runID: "run-3", store: store, log: ensureLogger(nil)}

	rec := sampleRecord(2)
	for i := 0; i < 2; i++ {
		if err := s.Write(context.Background(), rec); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if len(store.objects) != 1 {
		t.Fatalf("expected a single object, got %d", len(store.objects))
	}
	name := objectName("lefaso", rec)
	if !strings.HasPrefix(name, "lefaso/4/") || !strings.HasSuffix(name, ".json") {
		t.Fatalf("unexpected object name %q", name)
	}
	if store.metadata[name]["url"] != rec.URL || store.metadata[name][AttrRunID] != "run-3" {
		t.Fatalf("unexpected metadata %v", store.metadata[name])
	}
	if err := s.Close(); err != nil || !store.closed {
		t.Fatalf("Close must close the store: %v", err)
	}
}

func TestGCSObjectNameWithoutRubric(t *testing.T) {
	name := objectName("", domain.ArticleRecord{URL: "https://lefaso.net/spip.php?article1"})
	if !strings.HasPrefix(name, "unknown/") {
		t.Fatalf("expected unknown rubric folder, got %q", name)
	}
}

func TestGCSSinkWrapsUploadError(t *testing.T) {
	s := &gcsSink{id: "archive", bucket: "b", store: &fakeObjectStore{err: errors.New("quota")}, log: ensureLogger(nil)}
	err := s.Write(context.Background(), sampleRecord(1))
	if err == nil || !strings.Contains(err.Error(), "gs://b/") {
		t.Fatalf("expected upload error naming the object, got %v", err)
	}
}
