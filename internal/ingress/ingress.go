// Package ingress accepts inbound webhook deliveries, verifies their
// signatures against the session secret, collapses retried deliveries
// into duplicate markers, and appends everything to the session's event
// log. The hot path does only a dedup lookup and one append; all other
// work happens off it.
package ingress

import (
	"context"
	"net/http"
	"net/textproto"
	"time"

	"github.com/google/uuid"

	"github.com/hookbench/hookbench/internal/domain"
	"github.com/hookbench/hookbench/internal/logging"
	"github.com/hookbench/hookbench/internal/metrics"
	"github.com/hookbench/hookbench/internal/store"
)

// Broadcaster pushes freshly appended events to live observers.
type Broadcaster interface {
	Publish(ev domain.Event)
}

// Ingestor records webhook deliveries for active sessions.
type Ingestor struct {
	sessions *store.SessionManager
	events   store.EventStore
	notify   Broadcaster
	metrics  *metrics.Metrics
	log      *logging.Logger
}

// New creates an ingestor. notify and m may be nil.
func New(sessions *store.SessionManager, events store.EventStore, notify Broadcaster, m *metrics.Metrics, log *logging.Logger) *Ingestor {
	return &Ingestor{
		sessions: sessions,
		events:   events,
		notify:   notify,
		metrics:  m,
		log:      log.Sub("ingress"),
	}
}

// Ingest records one delivery and returns the appended event. A retried
// delivery (same delivery key) yields a duplicate marker pointing at the
// original event rather than a second full record. Failed or unknown
// signature verification never rejects the delivery; the outcome is
// recorded on the event for the developer to inspect.
func (i *Ingestor) Ingest(ctx context.Context, token string, headers http.Header, body []byte) (*domain.Event, error) {
	start := time.Now()

	sess, err := i.sessions.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	hdrs := flatten(headers)
	provider := detectProvider(hdrs)
	verified := verify(provider, hdrs, body, sess.Secret)
	key := deliveryKey(provider, hdrs, body)

	ev := domain.Event{
		ID:        uuid.NewString(),
		SessionID: sess.Token,
		Kind:      domain.EventKindWebhook,
		Timestamp: time.Now().UTC(),
		Webhook: &domain.WebhookEvent{
			Provider:    provider,
			Headers:     hdrs,
			Body:        string(body),
			Verified:    verified,
			DeliveryKey: key,
		},
	}

	orig, err := i.events.FindWebhookByKey(ctx, sess.Token, key)
	if err != nil {
		return nil, err
	}
	if orig != nil {
		ev.Webhook.Duplicate = true
		ev.Webhook.DuplicateOf = orig.ID
	}

	if _, err := i.events.Append(ctx, &ev); err != nil {
		return nil, err
	}

	i.metrics.EventAppended(domain.EventKindWebhook)
	i.metrics.Verification(provider, verified)
	i.metrics.ObserveIngest(time.Since(start).Seconds())
	if ev.Webhook.Duplicate {
		i.metrics.DuplicateDelivery()
	}
	if i.notify != nil {
		i.notify.Publish(ev)
	}

	i.log.Debug().
		Str("session", shortToken(sess.Token)).
		Str("provider", provider).
		Str("verified", verified).
		Bool("duplicate", ev.Webhook.Duplicate).
		Int64("seq", ev.Seq).
		Msg("webhook recorded")
	return &ev, nil
}

// flatten keeps the first value of each header under its canonical name.
func flatten(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if len(values) > 0 {
			out[textproto.CanonicalMIMEHeaderKey(name)] = values[0]
		}
	}
	return out
}

func shortToken(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
