// Package buildamqp announces finished builds on an AMQP queue.
package buildamqp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/k11v/arframe/internal/amqputil"
	"github.com/k11v/arframe/internal/build"
)

var _ build.Broker = (*Broker)(nil)

type Broker struct {
	client *amqputil.Client // required
}

func NewBroker(client *amqputil.Client) *Broker {
	return &Broker{client: client}
}

// PublishFinished implements build.Broker.
func (b *Broker) PublishFinished(ctx context.Context, event *build.FinishedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("buildamqp.PublishFinished: %w", err)
	}
	if err = b.client.Publish(ctx, "application/json", body); err != nil {
		return fmt.Errorf("buildamqp.PublishFinished: %w", err)
	}
	return nil
}
