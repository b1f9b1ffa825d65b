package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sydlexius/plexrenamer/internal/event"
)

const (
	colorBlue   = 3447003
	colorGreen  = 3066993
	colorOrange = 15105570
)

// payload is the body of generic webhooks and NATS messages.
type payload struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Summary   string         `json:"summary"`
	Data      map[string]any `json:"data,omitempty"`
}

func newPayload(e event.Event) payload {
	return payload{
		Event:     string(e.Type),
		Timestamp: e.Timestamp,
		Summary:   describe(e),
		Data:      e.Data,
	}
}

func formatPayload(typ string, e event.Event) []byte {
	var v any
	switch typ {
	case TypeDiscord:
		v = map[string]any{
			"embeds": []map[string]any{{
				"title":       title(e),
				"description": describe(e),
				"color":       color(e),
				"timestamp":   e.Timestamp.UTC().Format(time.RFC3339),
			}},
		}
	case TypeSlack:
		v = map[string]any{"text": fmt.Sprintf("*%s*\n%s", title(e), describe(e))}
	case TypeGotify:
		v = map[string]any{"title": title(e), "message": describe(e)}
	default:
		v = newPayload(e)
	}
	body, _ := json.Marshal(v)
	return body
}

func title(e event.Event) string {
	switch e.Type {
	case event.ScanCompleted:
		return "Plex Renamer: scan completed"
	case event.ApplyCompleted:
		if e.Bool("dry_run") {
			return "Plex Renamer: dry run completed"
		}
		return "Plex Renamer: rename completed"
	default:
		return fmt.Sprintf("Plex Renamer: %s", e.Type)
	}
}

// describe builds the human-readable line sent to chat services.
func describe(e event.Event) string {
	switch e.Type {
	case event.ScanCompleted:
		return fmt.Sprintf("%d files scanned, %d renames planned",
			e.Int("files_count"), e.Int("operations_count"))
	}
	if msg := e.String("message"); msg != "" {
		return msg
	}
	if e.Data == nil {
		return string(e.Type)
	}
	b, _ := json.Marshal(e.Data)
	return string(b)
}

func color(e event.Event) int {
	if e.Type == event.ApplyCompleted {
		if e.Int("failed") > 0 {
			return colorOrange
		}
		return colorGreen
	}
	return colorBlue
}
