package webhooks

import (
	"context"

	"github.com/platinummonkey/httpusers/pkg/events"
)

// NewEventSubscriber forwards every event to the client as "<resource>.<action>"
func NewEventSubscriber(c *Client) events.Subscriber {
	return events.SubscriberFunc(func(ctx context.Context, evt events.Event) error {
		return c.Post(ctx, evt.Resource+"."+evt.Action, evt)
	})
}
