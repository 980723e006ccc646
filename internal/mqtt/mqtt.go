// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/stride-sync/internal/cadence"
)

// Topic is the MQTT topic for cadence/sync updates.
const Topic = "fitness/stride/sync/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "fitness/stride/sync/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishUpdate sends one cadence tick to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishUpdate(u cadence.Update) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (STARTUP, HEARTBEAT, SHUTDOWN).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // signal name, SHUTDOWN only
	SessionID  string
	RawPayload []byte // pre-formatted JSON; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload is the MQTT message for one cadence tick.
type Payload struct {
	Sync SyncPayload `json:"sync"`
}

// SyncPayload contains the tick details. Tempo and Score are null when unknown.
type SyncPayload struct {
	Timestamp  string   `json:"timestamp"`
	Frame      string   `json:"frame"`
	Steps      int      `json:"steps"`
	RawCadence float64  `json:"raw_cadence"`
	Cadence    float64  `json:"cadence"`
	Tempo      *float64 `json:"tempo"`
	Score      *float64 `json:"score"`
	Visual     string   `json:"visual"`
}

// FormatPayload creates the JSON payload for a cadence update.
func FormatPayload(u cadence.Update) ([]byte, error) {
	payload := Payload{
		Sync: SyncPayload{
			Timestamp:  u.Timestamp.UTC().Format(time.RFC3339),
			Frame:      string(u.Frame.Class),
			Steps:      u.Frame.Steps,
			RawCadence: u.Frame.Cadence,
			Cadence:    u.Cadence,
			Tempo:      u.Sync.Tempo,
			Score:      u.Sync.Score,
			Visual:     string(u.Visual),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the MQTT message for simple system events (LWT, RECONNECTED)
// that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			SessionID: event.SessionID,
		},
	}
	return json.Marshal(payload)
}

// NopPublisher discards everything. Used when no broker is configured.
type NopPublisher struct{}

// PublishUpdate discards the update.
func (NopPublisher) PublishUpdate(cadence.Update) error { return nil }

// PublishSystem discards the event.
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }

// Close does nothing.
func (NopPublisher) Close() error { return nil }

// IsConnected always reports false.
func (NopPublisher) IsConnected() bool { return false }
