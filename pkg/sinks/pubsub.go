package sinks

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/samvad-hq/rubric-harvester/internal/domain"
	"google.golang.org/api/option"
)

type pubsubSink struct {
	id     string
	runID  string
	client *pubsub.Client
	topic  *pubsub.Topic
	log    Logger
}

func newPubSubSink(ctx context.Context, cfg SinkConfig, env Env) (Sink, error) {
	if cfg.PubSub == nil {
		return nil, fmt.Errorf("sink %q missing pubsub configuration", cfg.ID)
	}

	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, googleOptions(cfg.PubSub.CredentialsFile, cfg.PubSub.Endpoint)...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	return &pubsubSink{
		id:     cfg.ID,
		runID:  env.RunID,
		client: client,
		topic:  client.Topic(cfg.PubSub.Topic),
		log:    ensureLogger(env.Log),
	}, nil
}

func (p *pubsubSink) ID() string   { return p.id }
func (p *pubsubSink) Type() string { return TypePubSub }

// Write publishes the record and waits for the server acknowledgement.
func (p *pubsubSink) Write(ctx context.Context, rec domain.ArticleRecord) error {
	payload, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: attributes(rec, p.runID),
	})
	id, err := result.Get(ctx)
	if err != nil {
		p.log.ErrorObj("pubsub sink publish failed", "sink_pubsub_error", map[string]any{
			"sink_id": p.id,
			"url":     rec.URL,
			"error":   err.Error(),
		})
		return fmt.Errorf("publish to pubsub: %w", err)
	}
	p.log.DebugObj("pubsub sink delivered record", "sink_pubsub_delivery", map[string]any{
		"sink_id":    p.id,
		"url":        rec.URL,
		"message_id": id,
	})
	return nil
}

func (p *pubsubSink) Close() error {
	p.topic.Stop()
	return p.client.Close()
}

// googleOptions builds client options shared by the Google Cloud sinks.
func googleOptions(credentialsFile, endpoint string) []option.ClientOption {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts
}
