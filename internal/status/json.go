package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details. Tempo and score are null when unknown.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	SessionID     string     `json:"session_id,omitempty"`
	Cadence       float64    `json:"cadence"`
	Tempo         *float64   `json:"tempo"`
	Score         *float64   `json:"score"`
	HighSync      bool       `json:"high_sync"`
	LastFrame     string     `json:"last_frame"`
	LastUpdate    string     `json:"last_update,omitempty"`
	History       []float64  `json:"history"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	TempoPoll     TempoJSON  `json:"tempo_poll"`
	Source        SourceJSON `json:"source"`
	Counts        CountsJSON `json:"frame_counts"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// TempoJSON reports tempo polling health.
type TempoJSON struct {
	URL         string   `json:"url"`
	LastBPM     *float64 `json:"last_bpm"`
	OK          uint64   `json:"ok"`
	Failed      uint64   `json:"failed"`
	LastFetched string   `json:"last_fetched,omitempty"`
}

// SourceJSON reports motion input health.
type SourceJSON struct {
	Kind      string `json:"kind"`
	Produced  uint64 `json:"produced"`
	Malformed uint64 `json:"malformed"`
	Exhausted bool   `json:"exhausted"`
}

// CountsJSON is the JSON representation of frame counts.
type CountsJSON struct {
	Samples    int `json:"samples"`
	Frames     int `json:"frames"`
	Active     int `json:"active"`
	Stationary int `json:"stationary"`
	Undefined  int `json:"undefined"`
	HighSync   int `json:"high_sync"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	FrameSize       int    `json:"frame_size"`
	SmoothingWindow int    `json:"smoothing_window"`
	PollMs          int64  `json:"poll_ms"`
	HeartbeatMs     int64  `json:"heartbeat_ms"`
	Broker          string `json:"broker"`
	HTTPAddr        string `json:"http_addr"`
	WSBroker        string `json:"ws_broker,omitempty"`
	DB              string `json:"db,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	lastFrame := string(snap.LastFrame)
	if lastFrame == "" {
		lastFrame = "NONE"
	}
	history := snap.History
	if history == nil {
		history = []float64{}
	}

	return StatusInner{
		SessionID:     snap.SessionID,
		Cadence:       snap.Cadence,
		Tempo:         snap.Tempo,
		Score:         snap.Score,
		HighSync:      snap.HighSync(),
		LastFrame:     lastFrame,
		LastUpdate:    formatTime(snap.LastUpdate),
		History:       history,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		TempoPoll: TempoJSON{
			URL:         snap.Config.TempoURL,
			LastBPM:     snap.TempoPoll.LastBPM,
			OK:          snap.TempoPoll.OK,
			Failed:      snap.TempoPoll.Failed,
			LastFetched: formatTime(snap.TempoPoll.LastFetched),
		},
		Source: SourceJSON{
			Kind:      snap.Config.Source,
			Produced:  snap.Source.Produced,
			Malformed: snap.Source.Malformed,
			Exhausted: snap.Source.Exhausted,
		},
		Counts: CountsJSON{
			Samples:    snap.Counts.Samples,
			Frames:     snap.Counts.Frames,
			Active:     snap.Counts.Active,
			Stationary: snap.Counts.Stationary,
			Undefined:  snap.Counts.Undefined,
			HighSync:   snap.Counts.HighSync,
		},
		Config: ConfigJSON{
			FrameSize:       snap.Config.FrameSize,
			SmoothingWindow: snap.Config.SmoothingWindow,
			PollMs:          snap.Config.PollMs,
			HeartbeatMs:     snap.Config.HeartbeatMs,
			Broker:          snap.Config.Broker,
			HTTPAddr:        snap.Config.HTTPAddr,
			WSBroker:        snap.Config.WSBroker,
			DB:              snap.Config.DB,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
