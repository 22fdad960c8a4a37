// Package sms delivers notifications through an HTTP SMS gateway.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bissquit/notification-garden/internal/domain"
	"github.com/bissquit/notification-garden/internal/notifications"
	"golang.org/x/time/rate"
)

const defaultTimeout = 10 * time.Second

// Config holds SMS provider configuration.
type Config struct {
	GatewayURL string
	APIKey     string
	SenderID   string
	Timeout    time.Duration
	// RatePerSecond caps outgoing messages. Zero disables the limiter.
	RatePerSecond float64
}

// Provider sends text messages through a JSON-over-HTTP gateway.
type Provider struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates an SMS provider.
func New(config Config) (*Provider, error) {
	if config.GatewayURL == "" {
		return nil, errors.New("sms provider: gateway URL is required")
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	var limiter *rate.Limiter
	if config.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), 1)
	}

	slog.Info("sms provider configured",
		"gateway_url", config.GatewayURL,
		"sender_id", config.SenderID,
		"rate_per_second", config.RatePerSecond,
	)

	return &Provider{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    limiter,
	}, nil
}

// Channel returns the delivery channel.
func (p *Provider) Channel() domain.Channel {
	return domain.ChannelSMS
}

type gatewayRequest struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

type gatewayResponse struct {
	MessageID string `json:"message_id"`
}

// Send posts the message to the gateway. The recipient is a phone
// number; the subject is ignored since SMS has no subject line.
func (p *Provider) Send(ctx context.Context, userID string, msg notifications.Message) (notifications.Receipt, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return notifications.Receipt{}, notifications.NewProviderError(domain.ChannelSMS, err, false)
		}
	}

	body, err := json.Marshal(gatewayRequest{
		To:      msg.Recipient,
		From:    p.config.SenderID,
		Message: msg.Content,
	})
	if err != nil {
		return notifications.Receipt{}, notifications.NewProviderError(domain.ChannelSMS, fmt.Errorf("marshal payload: %w", err), false)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.GatewayURL, bytes.NewReader(body))
	if err != nil {
		return notifications.Receipt{}, notifications.NewProviderError(domain.ChannelSMS, fmt.Errorf("create request: %w", err), false)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return notifications.Receipt{}, notifications.NewProviderError(domain.ChannelSMS, fmt.Errorf("send request: %w", err), isNetworkError(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("gateway returned %d: %s", resp.StatusCode, respBody)
		// 5xx and 429 are worth retrying, other 4xx are not
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return notifications.Receipt{}, notifications.NewProviderError(domain.ChannelSMS, err, retryable)
	}

	var gw gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&gw); err != nil {
		return notifications.Receipt{}, notifications.NewProviderError(domain.ChannelSMS, fmt.Errorf("decode response: %w", err), false)
	}

	return notifications.Receipt{ProviderID: gw.MessageID}, nil
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
