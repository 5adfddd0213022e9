package hits

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/time/rate"
)

// Alert is the outbound notification for a confirmed hit. It never carries
// secret material.
type Alert struct {
	Host    string    `json:"host"`
	RunID   uuid.UUID `json:"run_id"`
	Address string    `json:"address"`
	Balance *int64    `json:"balance,omitempty"`
	FoundAt time.Time `json:"found_at"`
}

// NewAlert builds the alert for rec.
func NewAlert(runID uuid.UUID, rec HitRecord) Alert {
	host, _ := os.Hostname()
	a := Alert{
		Host:    host,
		RunID:   runID,
		Address: rec.Address,
		FoundAt: rec.FoundAt,
	}
	if rec.Balance.Valid {
		b := rec.Balance.Int64
		a.Balance = &b
	}
	if a.FoundAt.IsZero() {
		a.FoundAt = time.Now().UTC()
	}
	return a
}

// Notifier delivers alerts to an external channel.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// NopNotifier drops every alert.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Alert) error { return nil }

// WebhookNotifier POSTs alerts as JSON.
type WebhookNotifier struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewWebhookNotifier creates a notifier for url. A non-empty token is sent as
// a bearer credential.
func NewWebhookNotifier(url, token string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:   url,
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (w *WebhookNotifier) Notify(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// KafkaNotifier produces alerts to a Kafka topic keyed by address.
type KafkaNotifier struct {
	client *kgo.Client
	topic  string
}

// NewKafkaNotifier connects a producer to brokers.
func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	return &KafkaNotifier{client: client, topic: topic}, nil
}

func (k *KafkaNotifier) Notify(ctx context.Context, alert Alert) error {
	value, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(alert.Address),
		Value: value,
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce alert: %w", err)
	}
	return nil
}

// Close flushes and closes the producer.
func (k *KafkaNotifier) Close() error {
	k.client.Close()
	return nil
}

// AsyncNotifier delivers alerts in the background so the worker that found
// the hit never waits on the network. Failures are logged and discarded, and
// alerts above the configured rate are dropped.
type AsyncNotifier struct {
	next    Notifier
	limiter *rate.Limiter
	timeout time.Duration
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

// NewAsyncNotifier wraps next. perMinute <= 0 disables rate limiting.
func NewAsyncNotifier(next Notifier, perMinute int, timeout time.Duration, logger zerolog.Logger) *AsyncNotifier {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
	return &AsyncNotifier{
		next:    next,
		limiter: limiter,
		timeout: timeout,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// Notify schedules delivery and returns immediately. It always returns nil.
func (a *AsyncNotifier) Notify(_ context.Context, alert Alert) error {
	if !a.limiter.Allow() {
		a.logger.Warn().Str("address", alert.Address).Msg("alert rate exceeded, dropping notification")
		return nil
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		// Delivery outlives the caller's context so shutdown does not cancel an alert in flight.
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.next.Notify(ctx, alert); err != nil {
			a.logger.Warn().Err(err).Str("address", alert.Address).Msg("failed to deliver notification")
			return
		}
		a.logger.Debug().Str("address", alert.Address).Msg("notification delivered")
	}()
	return nil
}

// Wait blocks until every scheduled delivery has finished or timed out.
func (a *AsyncNotifier) Wait() {
	a.wg.Wait()
}

// Close waits for pending deliveries and closes the wrapped notifier when it
// holds resources.
func (a *AsyncNotifier) Close() error {
	a.Wait()
	if c, ok := a.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
