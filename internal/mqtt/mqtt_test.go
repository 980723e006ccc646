package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sweeney/stride-sync/internal/cadence"
)

func ptr(v float64) *float64 { return &v }

func activeUpdate() cadence.Update {
	return cadence.Update{
		Timestamp: time.Date(2026, 5, 4, 7, 30, 0, 0, time.UTC),
		Frame: cadence.FrameStats{
			Class:   cadence.FrameActive,
			Steps:   10,
			Cadence: 150,
		},
		Cadence: 148,
		Sync:    cadence.SyncState{Cadence: 148, Tempo: ptr(150), Score: ptr(98)},
		Visual:  cadence.VisualHighSync,
	}
}

func TestFormatPayloadExactJSON(t *testing.T) {
	payload, err := FormatPayload(activeUpdate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"sync":{"timestamp":"2026-05-04T07:30:00Z","frame":"ACTIVE","steps":10,"raw_cadence":150,"cadence":148,"tempo":150,"score":98,"visual":"HIGH_SYNC"}}`
	if diff := cmp.Diff(want, string(payload)); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatPayloadUnknownTempo(t *testing.T) {
	u := cadence.Update{
		Timestamp: time.Date(2026, 5, 4, 7, 30, 0, 0, time.UTC),
		Frame:     cadence.FrameStats{Class: cadence.FrameStationary},
		Sync:      cadence.SyncState{},
		Visual:    cadence.VisualNormal,
	}

	payload, err := FormatPayload(u)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed map[string]map[string]any
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	sync := parsed["sync"]
	for _, key := range []string{"tempo", "score"} {
		v, ok := sync[key]
		if !ok {
			t.Errorf("%s should be present as null", key)
		}
		if v != nil {
			t.Errorf("%s: got %v, want null", key, v)
		}
	}
	if sync["frame"] != "STATIONARY" {
		t.Errorf("frame: got %v, want STATIONARY", sync["frame"])
	}
	if sync["cadence"] != 0.0 {
		t.Errorf("cadence: got %v, want 0", sync["cadence"])
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
		SessionID: "3f1c",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"system":{"timestamp":"2026-05-04T08:00:00Z","event":"SHUTDOWN","reason":"SIGTERM","session_id":"3f1c"}}`
	if diff := cmp.Diff(want, string(payload)); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatSystemPayloadOmitsEmpty(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC),
		Event:     "OFFLINE",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"system":{"timestamp":"2026-05-04T08:00:00Z","event":"OFFLINE"}}`
	if string(payload) != want {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, want)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"HEARTBEAT"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("got %s, want raw payload passed through", payload)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.PublishUpdate(activeUpdate()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(f.Updates))
	}
	if f.Updates[0].Cadence != 148 {
		t.Errorf("cadence: got %v, want 148", f.Updates[0].Cadence)
	}
	if len(f.Payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(f.Payloads))
	}

	if err := f.PublishSystem(SystemEvent{Event: "STARTUP"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.SystemEvents) != 1 || len(f.SystemPayloads) != 1 {
		t.Errorf("expected 1 system event and payload, got %d/%d", len(f.SystemEvents), len(f.SystemPayloads))
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")
	f.PublishSystemError = errors.New("simulated error")

	if err := f.PublishUpdate(activeUpdate()); err == nil {
		t.Error("expected error")
	}
	if err := f.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); err == nil {
		t.Error("expected error")
	}
	if len(f.Updates) != 0 || len(f.SystemEvents) != 0 {
		t.Error("nothing should be recorded on error")
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.PublishUpdate(activeUpdate())
	f.Close()
	f.Connected = true
	f.PublishError = errors.New("error")

	f.Reset()

	if len(f.Updates) != 0 || len(f.Payloads) != 0 {
		t.Error("updates should be cleared")
	}
	if f.Closed || f.Connected {
		t.Error("flags should be reset")
	}
	if f.PublishError != nil {
		t.Error("error should be cleared")
	}
}

func TestFakePublisherImplementsInterfaces(t *testing.T) {
	var _ Publisher = NewFakePublisher()
	var _ ConnectionStatus = NewFakePublisher()
	var _ Publisher = (*RealPublisher)(nil)
	var _ ConnectionStatus = (*RealPublisher)(nil)
	var _ Publisher = NopPublisher{}
	var _ ConnectionStatus = NopPublisher{}
}

func TestTopics(t *testing.T) {
	if Topic != "fitness/stride/sync/events" {
		t.Errorf("unexpected topic: %s", Topic)
	}
	if TopicSystem != "fitness/stride/sync/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
}
