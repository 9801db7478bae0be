// Package publish builds and sends outbound dashboard values.
package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrBlankField = errors.New("project, variable and value are required")

// Request is an outbound value addressed to <prefix>/<project>/<variable>.
type Request struct {
	Project  string `json:"project"`
	Variable string `json:"variable"`
	Value    string `json:"value"`
}

func (r Request) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Project) == "" {
		missing = append(missing, "project")
	}
	if strings.TrimSpace(r.Variable) == "" {
		missing = append(missing, "variable")
	}
	if strings.TrimSpace(r.Value) == "" {
		missing = append(missing, "value")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrBlankField, strings.Join(missing, ", "))
	}
	return nil
}

// Topic joins the request onto prefix.
func (r Request) Topic(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + r.Project + "/" + r.Variable
}

// Sender is the outbound half of a transport.
type Sender interface {
	Publish(ctx context.Context, topic, payload string) error
}

type Publisher struct {
	sender Sender
	prefix string
}

func NewPublisher(sender Sender, prefix string) *Publisher {
	return &Publisher{sender: sender, prefix: prefix}
}

func (p *Publisher) Prefix() string { return p.prefix }

// Send validates r and publishes its value. It returns the topic used.
func (p *Publisher) Send(ctx context.Context, r Request) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	topic := r.Topic(p.prefix)
	if err := p.sender.Publish(ctx, topic, r.Value); err != nil {
		return topic, fmt.Errorf("publish %s: %w", topic, err)
	}
	return topic, nil
}
