package web

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/stride-sync/internal/mqtt"
	"github.com/sweeney/stride-sync/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	// orDash renders an optional number, "--" when unknown.
	"orDash": func(v *float64) string {
		if v == nil {
			return "--"
		}
		return fmt.Sprintf("%.0f", *v)
	},
	"timeOrNever": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format(time.RFC3339)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Stride Sync</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.big { font-size: 1.6em; }
.high { color: green; font-weight: bold; }
.normal { color: #333; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Stride Sync{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Sync</h2>
<table>
<tr><th>Cadence</th><td id="cadence" class="big">{{printf "%.0f" .Cadence}} spm</td></tr>
<tr><th>Tempo</th><td id="tempo" class="{{if .Tempo}}normal{{else}}unknown{{end}}">{{orDash .Tempo}} bpm</td></tr>
<tr><th>Sync</th><td id="score" class="{{if .HighSync}}high{{else if .Score}}normal{{else}}unknown{{end}}">{{orDash .Score}}%</td></tr>
<tr><th>Last frame</th><td id="frame">{{if .LastFrame}}{{.LastFrame}}{{else}}NONE{{end}}</td></tr>
<tr><th>History</th><td>{{range $i, $v := .History}}{{if $i}}, {{end}}{{printf "%.0f" $v}}{{end}}</td></tr>
</table>

<h2>Inputs</h2>
<table>
<tr><th>Source</th><td>{{.Config.Source}}{{if .Source.Exhausted}} (exhausted){{end}}</td></tr>
<tr><th>Readings</th><td>{{.Source.Produced}} ({{.Source.Malformed}} malformed)</td></tr>
<tr><th>Tempo URL</th><td>{{if .Config.TempoURL}}{{.Config.TempoURL}}{{else}}disabled{{end}}</td></tr>
<tr><th>Tempo fetches</th><td>{{.TempoPoll.OK}} ok, {{.TempoPoll.Failed}} failed, last {{orDash .TempoPoll.LastBPM}} bpm at {{timeOrNever .TempoPoll.LastFetched}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>Frame Counts</h2>
<table>
<tr><th>Samples</th><td>{{.Counts.Samples}}</td></tr>
<tr><th>Frames</th><td>{{.Counts.Frames}}</td></tr>
<tr><th>Active</th><td>{{.Counts.Active}}</td></tr>
<tr><th>Stationary</th><td>{{.Counts.Stationary}}</td></tr>
<tr><th>Undefined</th><td>{{.Counts.Undefined}}</td></tr>
<tr><th>High sync</th><td>{{.Counts.HighSync}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{if .SessionID}}<tr><th>Session</th><td>{{.SessionID}}</td></tr>{{end}}
<tr><th>Frame size</th><td>{{.Config.FrameSize}} samples</td></tr>
<tr><th>Smoothing</th><td>{{.Config.SmoothingWindow}} frames</td></tr>
<tr><th>Tempo poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
{{if .Config.WSBroker}}
<script src="https://unpkg.com/mqtt@5/dist/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "{{.Topic}}";
  var dot = document.getElementById("live-dot");

  function fmt(v) { return v === null || v === undefined ? "--" : Math.round(v); }

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
  });
  client.on("reconnect", function() { setDot("pending", "reconnecting"); });
  client.on("offline", function() { setDot("err", "offline"); });
  client.on("error", function() { setDot("err", "error"); });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString());
      if (!msg.sync) return;
      document.getElementById("cadence").textContent = fmt(msg.sync.cadence) + " spm";
      document.getElementById("tempo").textContent = fmt(msg.sync.tempo) + " bpm";
      var score = document.getElementById("score");
      score.textContent = fmt(msg.sync.score) + "%";
      score.className = msg.sync.visual === "HIGH_SYNC" ? "high" : msg.sync.score === null ? "unknown" : "normal";
      document.getElementById("frame").textContent = msg.sync.frame;
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime()/HighSync() methods; the template also needs the live topic.
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		HighSync bool
		Topic    string
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		HighSync: snap.HighSync(),
		Topic:    mqtt.Topic,
	}

	var buf bytes.Buffer
	if err := indexTmpl.Execute(&buf, data); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}
