package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/sydlexius/plexrenamer/internal/event"
)

const (
	maxAttempts    = 3
	requestTimeout = 10 * time.Second
)

// Webhook formats.
const (
	TypeGeneric = "generic"
	TypeDiscord = "discord"
	TypeSlack   = "slack"
	TypeGotify  = "gotify"
)

// DefaultEvents are delivered to targets that do not list their own.
var DefaultEvents = []event.Type{event.ScanCompleted, event.ApplyCompleted}

// Target is one webhook endpoint.
type Target struct {
	Name   string
	URL    string
	Type   string
	Events []string
}

func (t Target) wants(typ event.Type) bool {
	if len(t.Events) == 0 {
		return slices.Contains(DefaultEvents, typ)
	}
	return slices.Contains(t.Events, string(typ))
}

// Dispatcher posts session events to webhook targets. Delivery failures
// are retried with exponential backoff and then logged; they never reach
// the caller.
type Dispatcher struct {
	targets    []Target
	httpClient *http.Client
	logger     *slog.Logger
	backoff    time.Duration
	wg         sync.WaitGroup
}

// NewDispatcher creates a webhook dispatcher.
func NewDispatcher(targets []Target, logger *slog.Logger) *Dispatcher {
	return NewDispatcherWithHTTPClient(targets, &http.Client{Timeout: requestTimeout}, logger)
}

// NewDispatcherWithHTTPClient creates a dispatcher with a custom HTTP client (for testing).
func NewDispatcherWithHTTPClient(targets []Target, httpClient *http.Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		targets:    targets,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "webhook-dispatcher")),
		backoff:    time.Second,
	}
}

// HandleEvent is an event.Handler that delivers e to every target
// subscribed to its type.
func (d *Dispatcher) HandleEvent(e event.Event) {
	for _, t := range d.targets {
		if !t.wants(e.Type) {
			continue
		}
		d.wg.Add(1)
		go func(t Target) {
			defer d.wg.Done()
			d.deliver(t, e)
		}(t)
	}
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(t Target, e event.Event) {
	body := formatPayload(t.Type, e)

	var lastErr error
	for attempt := range maxAttempts {
		if attempt > 0 {
			time.Sleep(d.backoff << uint(attempt-1))
		}

		lastErr = d.send(t.URL, body)
		if lastErr == nil {
			d.logger.Debug("webhook delivered",
				"webhook", t.Name,
				"event", string(e.Type),
				"attempt", attempt+1,
			)
			return
		}

		d.logger.Warn("webhook delivery failed",
			"webhook", t.Name,
			"event", string(e.Type),
			"attempt", attempt+1,
			"error", lastErr,
		)
	}

	d.logger.Error("webhook delivery exhausted retries",
		"webhook", t.Name,
		"event", string(e.Type),
		"error", lastErr,
	)
}

func (d *Dispatcher) send(url string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "plexrenamer-webhook/1.0")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()        //nolint:errcheck
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
