package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/idvault/authserver/config"
	"google.golang.org/api/option"
)

// PubSubPublisher publishes events to Google Cloud Pub/Sub, one topic per
// event name.
type PubSubPublisher struct {
	client *pubsub.Client

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPubSubPublisher constructs a Pub/Sub publisher from config.
func NewPubSubPublisher(ctx context.Context, cfg config.PubSubConfig) (*PubSubPublisher, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("pubsub project id is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, err
	}

	return &PubSubPublisher{
		client: client,
		topics: make(map[string]*pubsub.Topic),
	}, nil
}

// Publish sends the event to the topic named after the event's topic.
func (p *PubSubPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	topic, err := p.ensureTopic(ctx, event.Topic)
	if err != nil {
		return err
	}

	result := topic.Publish(ctx, &pubsub.Message{
		Data: body,
		Attributes: map[string]string{
			"event_id": event.ID,
			"username": event.Username,
		},
	})
	_, err = result.Get(ctx)
	return err
}

// Close flushes pending publishes and closes the client.
func (p *PubSubPublisher) Close() error {
	p.mu.Lock()
	for _, topic := range p.topics {
		topic.Stop()
	}
	p.mu.Unlock()
	return p.client.Close()
}

func (p *PubSubPublisher) ensureTopic(ctx context.Context, name string) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if topic, ok := p.topics[name]; ok {
		return topic, nil
	}

	topic := p.client.Topic(name)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		topic, err = p.client.CreateTopic(ctx, name)
		if err != nil {
			return nil, err
		}
	}
	p.topics[name] = topic
	return topic, nil
}
