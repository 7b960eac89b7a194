package notify

import (
	"context"
	"fmt"
	"log"
	"net/url"

	svix "github.com/svix/svix-webhooks/go"
	"github.com/svix/svix-webhooks/go/models"
)

// Delivery defines the interface for webhook delivery backends, so Svix can
// be swapped for a mock in tests or a different provider entirely.
type Delivery interface {
	// Subscribe registers a webhook URL to receive events for a given
	// subscriber. Each subscriber gets its own Svix application so one
	// subscriber's endpoints, delivery history, and failures stay isolated
	// from every other subscriber's.
	Subscribe(ctx context.Context, subscriberID, webhookURL string) (endpointID string, err error)

	// Send dispatches an Event to every endpoint registered under
	// subscriberID.
	Send(ctx context.Context, subscriberID string, evt Event) error

	// Unsubscribe removes an endpoint.
	Unsubscribe(ctx context.Context, subscriberID, endpointID string) error
}

// SvixClient wraps the Svix Go SDK to implement Delivery.
type SvixClient struct {
	client *svix.Svix
}

var _ Delivery = (*SvixClient)(nil)

// NewSvixClient creates a new SvixClient. If serverURL is empty, the default
// Svix cloud endpoint is used.
func NewSvixClient(authToken, serverURL string) (*SvixClient, error) {
	var opts *svix.SvixOptions
	if serverURL != "" {
		u, err := url.Parse(serverURL)
		if err != nil {
			return nil, fmt.Errorf("parse svix server url: %w", err)
		}
		opts = &svix.SvixOptions{ServerUrl: u}
	}

	client, err := svix.New(authToken, opts)
	if err != nil {
		return nil, fmt.Errorf("create svix client: %w", err)
	}
	return &SvixClient{client: client}, nil
}

// Subscribe gets or creates a Svix application for subscriberID, then
// registers webhookURL as an endpoint under it.
func (s *SvixClient) Subscribe(ctx context.Context, subscriberID, webhookURL string) (string, error) {
	uid := subscriberID
	app, err := s.client.Application.GetOrCreate(ctx, models.ApplicationIn{
		Name: subscriberID,
		Uid:  &uid,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("svix get-or-create application: %w", err)
	}

	ep, err := s.client.Endpoint.Create(ctx, app.Id, models.EndpointIn{
		Url: webhookURL,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("svix create endpoint: %w", err)
	}
	log.Printf("[notify/svix] endpoint registered: app=%s ep=%s url=%s", app.Id, ep.Id, webhookURL)
	return ep.Id, nil
}

// Send dispatches evt as a Svix message under subscriberID's application.
func (s *SvixClient) Send(ctx context.Context, subscriberID string, evt Event) error {
	payload := eventPayload(evt)
	msg, err := s.client.Message.Create(ctx, subscriberID, models.MessageIn{
		EventType: "node." + evt.Outcome.String(),
		Payload:   payload,
	}, nil)
	if err != nil {
		return fmt.Errorf("svix send message: %w", err)
	}
	log.Printf("[notify/svix] message sent: id=%s app=%s node=%x outcome=%s", msg.Id, subscriberID, evt.NodeHash, evt.Outcome)
	return nil
}

// Unsubscribe removes an endpoint from a subscriber's application.
func (s *SvixClient) Unsubscribe(ctx context.Context, subscriberID, endpointID string) error {
	if err := s.client.Endpoint.Delete(ctx, subscriberID, endpointID); err != nil {
		return fmt.Errorf("svix delete endpoint: %w", err)
	}
	return nil
}

// NoopDelivery logs events but never delivers them; tsgraphd uses it when
// notify is disabled (NotifyConfig.Enabled == false) or no Svix token is
// configured.
type NoopDelivery struct{}

var _ Delivery = (*NoopDelivery)(nil)

func (n *NoopDelivery) Subscribe(_ context.Context, subscriberID, webhookURL string) (string, error) {
	log.Printf("[notify/noop] subscribe: subscriber=%s url=%s", subscriberID, webhookURL)
	return "noop-ep-" + subscriberID, nil
}

func (n *NoopDelivery) Send(_ context.Context, subscriberID string, evt Event) error {
	log.Printf("[notify/noop] send: subscriber=%s node=%x outcome=%s", subscriberID, evt.NodeHash, evt.Outcome)
	return nil
}

func (n *NoopDelivery) Unsubscribe(_ context.Context, subscriberID, endpointID string) error {
	log.Printf("[notify/noop] unsubscribe: subscriber=%s ep=%s", subscriberID, endpointID)
	return nil
}

func eventPayload(evt Event) map[string]interface{} {
	p := map[string]interface{}{
		"node_hash": fmt.Sprintf("%x", evt.NodeHash),
		"name":      evt.Name,
		"outcome":   evt.Outcome.String(),
		"timestamp": evt.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if evt.Err != nil {
		p["error"] = evt.Err.Error()
	}
	return p
}
