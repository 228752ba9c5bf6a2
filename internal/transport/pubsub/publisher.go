package pubsub

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	pubsubv1 "google.golang.org/api/pubsub/v1"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	"github.com/tsubouchi/intelligence-agent-maker/internal/usecase/generation"
)

// Publisher enqueues generation jobs on a topic.
type Publisher struct {
	topics *pubsubv1.ProjectsTopicsService
	topic  string
}

// NewPublisher creates a publisher for projects/<project>/topics/<topic>.
// Credentials come from the environment unless opts override them.
func NewPublisher(ctx context.Context, project, topic string, opts ...option.ClientOption) (*Publisher, error) {
	if project == "" || topic == "" {
		return nil, fmt.Errorf("pubsub project and topic are required")
	}
	svc, err := pubsubv1.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub service: %w", err)
	}
	return &Publisher{
		topics: pubsubv1.NewProjectsTopicsService(svc),
		topic:  fmt.Sprintf("projects/%s/topics/%s", project, topic),
	}, nil
}

// Publish enqueues one job and returns the server-assigned message id.
func (p *Publisher) Publish(ctx context.Context, req generation.Request) (string, error) {
	data, err := encodeJob(req)
	if err != nil {
		return "", err
	}
	resp, err := p.topics.Publish(p.topic, &pubsubv1.PublishRequest{
		Messages: []*pubsubv1.PubsubMessage{{
			Data:       data,
			Attributes: map[string]string{"userId": req.UserID},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w: %w", p.topic, domain.ErrStore, err)
	}
	if len(resp.MessageIds) == 0 {
		return "", fmt.Errorf("publish to %s: no message id: %w", p.topic, domain.ErrStore)
	}
	return resp.MessageIds[0], nil
}
