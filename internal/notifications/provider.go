package notifications

import (
	"context"
	"fmt"

	"github.com/bissquit/notification-garden/internal/domain"
)

// Message is the channel-agnostic payload handed to a provider.
type Message struct {
	Recipient string
	Subject   string
	Content   string
	Metadata  map[string]string
}

// Receipt is what a provider returns for an accepted message.
// Delivered is true only when the provider can confirm delivery
// synchronously; otherwise delivery is assumed asynchronous.
type Receipt struct {
	ProviderID string
	Delivered  bool
}

// Provider sends messages over one delivery channel. Implementations
// must return a *ProviderError for delivery failures so callers can
// tell retryable failures from permanent ones.
type Provider interface {
	Channel() domain.Channel
	Send(ctx context.Context, userID string, msg Message) (Receipt, error)
}

// Gateway routes messages to the provider registered for a channel.
type Gateway struct {
	providers map[domain.Channel]Provider
}

// NewGateway creates a gateway with the given providers.
func NewGateway(providers ...Provider) *Gateway {
	m := make(map[domain.Channel]Provider, len(providers))
	for _, p := range providers {
		m[p.Channel()] = p
	}
	return &Gateway{providers: m}
}

// Send dispatches the message over the requested channel.
func (g *Gateway) Send(ctx context.Context, channel domain.Channel, userID string, msg Message) (Receipt, error) {
	p, ok := g.providers[channel]
	if !ok {
		return Receipt{}, fmt.Errorf("%w: no provider for channel %q", ErrValidation, channel)
	}
	return p.Send(ctx, userID, msg)
}

// Supports reports whether a provider is registered for the channel.
func (g *Gateway) Supports(channel domain.Channel) bool {
	_, ok := g.providers[channel]
	return ok
}
