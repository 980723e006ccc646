// Command stride-sync estimates walking cadence from an accelerometer, compares it
// with the tempo of the playing track and publishes the sync score.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/stride-sync/internal/cadence"
	"github.com/sweeney/stride-sync/internal/config"
	"github.com/sweeney/stride-sync/internal/dashboard"
	"github.com/sweeney/stride-sync/internal/gpio"
	"github.com/sweeney/stride-sync/internal/motion"
	"github.com/sweeney/stride-sync/internal/mqtt"
	"github.com/sweeney/stride-sync/internal/status"
	"github.com/sweeney/stride-sync/internal/store"
	"github.com/sweeney/stride-sync/internal/tempo"
	"github.com/sweeney/stride-sync/internal/web"
)

// statusRefresh is how often the loop pushes counters and connectivity to the tracker.
const statusRefresh = time.Second

// options are the flags that are not part of config.Config.
type options struct {
	configPath   string
	replay       string
	wsBroker     string
	tui          bool
	logFile      string
	listSessions bool
}

func main() {
	cfg, opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("fatal: %v", err)
	}

	if opts.listSessions {
		if err := listSessions(os.Stdout, cfg.DB); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		return
	}

	if err := run(cfg, opts); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// parseFlags builds the configuration: defaults, then the --config file, then
// every flag the user set explicitly.
func parseFlags(args []string) (config.Config, options, error) {
	def := config.Default()
	fs := flag.NewFlagSet("stride-sync", flag.ContinueOnError)

	var opts options
	fs.StringVar(&opts.configPath, "config", "", "YAML config file (explicit flags override it)")
	fs.StringVar(&opts.replay, "replay", "", `replay recorded "x,y,z[,interval_ms]" lines from a file ("-" for stdin)`)
	fs.StringVar(&opts.wsBroker, "ws-broker", "=broker", `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)
	fs.BoolVar(&opts.tui, "tui", false, "Show the terminal dashboard")
	fs.StringVar(&opts.logFile, "log", "", "Append logs to this file (with --tui, logs are discarded when empty)")
	fs.BoolVar(&opts.listSessions, "list-sessions", false, "Print recorded sessions and exit")

	source := fs.String("source", def.Source.Kind, "Motion source: serial, sim, stdin or none")
	device := fs.String("device", def.Source.Device, "Serial device for the accelerometer")
	baud := fs.Int("baud", def.Source.Serial.BaudRate, "Serial baud rate (0 for 115200)")
	simSPM := fs.Float64("sim-spm", def.Source.SimStepsPerMin, "Step rate of the simulated walker")
	simInterval := fs.Duration("sim-interval", def.Source.SimInterval, "Sample interval of the simulated walker")
	frameSize := fs.Int("frame-size", def.Cadence.FrameSize, "Samples per analysis frame")
	window := fs.Int("window", def.Cadence.SmoothingWindow, "Cadence smoothing window (frames)")
	highSync := fs.Float64("high-sync", def.Cadence.HighSyncScore, "Score above which the visual state is HIGH_SYNC")
	tempoURL := fs.String("tempo-url", def.Tempo.URL, "Player backend base URL (empty to disable)")
	tempoAuth := fs.Bool("tempo-auth", def.Tempo.Auth, "Authenticate tempo requests with a token from {tempo-url}/token")
	poll := fs.Duration("poll", def.Tempo.PollInterval, "Tempo polling interval")
	broker := fs.String("broker", def.MQTT.Broker, "MQTT broker address (empty to disable)")
	heartbeat := fs.Duration("heartbeat", def.Heartbeat, "Heartbeat interval (0 to disable)")
	httpAddr := fs.String("http", def.HTTPAddr, "HTTP status address (empty to disable)")
	db := fs.String("db", def.DB, "SQLite session database (empty to disable)")
	ledPin := fs.Int("led-pin", def.LEDPin, fmt.Sprintf("BCM pin for the high-sync LED (-1 to disable, boards are wired to %d)", gpio.DefaultPinLED))

	if err := fs.Parse(args); err != nil {
		return config.Config{}, options{}, err
	}

	cfg := def
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return config.Config{}, options{}, err
		}
		cfg = loaded
	}

	overrides := map[string]func(){
		"source":       func() { cfg.Source.Kind = *source },
		"device":       func() { cfg.Source.Device = *device },
		"baud":         func() { cfg.Source.Serial.BaudRate = *baud },
		"sim-spm":      func() { cfg.Source.SimStepsPerMin = *simSPM },
		"sim-interval": func() { cfg.Source.SimInterval = *simInterval },
		"frame-size":   func() { cfg.Cadence.FrameSize = *frameSize },
		"window":       func() { cfg.Cadence.SmoothingWindow = *window },
		"high-sync":    func() { cfg.Cadence.HighSyncScore = *highSync },
		"tempo-url":    func() { cfg.Tempo.URL = *tempoURL },
		"tempo-auth":   func() { cfg.Tempo.Auth = *tempoAuth },
		"poll":         func() { cfg.Tempo.PollInterval = *poll },
		"broker":       func() { cfg.MQTT.Broker = *broker },
		"heartbeat":    func() { cfg.Heartbeat = *heartbeat },
		"http":         func() { cfg.HTTPAddr = *httpAddr },
		"db":           func() { cfg.DB = *db },
		"led-pin":      func() { cfg.LEDPin = *ledPin },
	}
	fs.Visit(func(f *flag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply()
		}
	})
	if opts.replay != "" {
		cfg.Source.Kind = config.SourceStdin
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, options{}, err
	}
	return cfg, opts, nil
}

func run(cfg config.Config, opts options) error {
	closeLog, err := setupLogging(opts)
	if err != nil {
		return err
	}
	defer closeLog()

	ws := ""
	if cfg.MQTT.Broker != "" {
		ws = resolveWSBroker(opts.wsBroker, cfg.MQTT.Broker)
	}

	// Open the motion source first: a missing sensor is a startup failure
	reader, err := openSource(cfg, opts.replay)
	if err != nil {
		return err
	}
	if reader != nil {
		defer reader.Close()
	}

	startTime := time.Now()
	sessionID := store.NewSessionID()

	var recorder store.Recorder
	var sessions web.SessionLister
	if cfg.DB != "" {
		rec, err := store.NewSQLiteRecorder(cfg.DB, store.SessionInfo{
			ID:        sessionID,
			StartedAt: startTime,
			Source:    cfg.Source.Kind,
			Cadence:   cfg.Cadence,
		})
		if err != nil {
			return fmt.Errorf("init recorder: %w", err)
		}
		defer rec.Close()
		recorder = rec
		sessions = rec
	}

	var led *gpio.Latch
	if cfg.LEDPin >= 0 {
		ind, err := gpio.NewRealIndicator(cfg.LEDPin)
		if err != nil {
			return fmt.Errorf("init led: %w", err)
		}
		defer ind.Close()
		led = gpio.NewLatch(ind)
	}

	// Initialize MQTT
	var publisher mqtt.Publisher = mqtt.NopPublisher{}
	var mqttStatus mqtt.ConnectionStatus = mqtt.NopPublisher{}
	if cfg.MQTT.Broker != "" {
		p := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.BufferSize)
		publisher, mqttStatus = p, p
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(startTime, status.Config{
		FrameSize:       cfg.Cadence.FrameSize,
		SmoothingWindow: cfg.Cadence.SmoothingWindow,
		PollMs:          cfg.Tempo.PollInterval.Milliseconds(),
		HeartbeatMs:     cfg.Heartbeat.Milliseconds(),
		Source:          cfg.Source.Kind,
		TempoURL:        cfg.Tempo.URL,
		Broker:          cfg.MQTT.Broker,
		HTTPAddr:        cfg.HTTPAddr,
		WSBroker:        ws,
		DB:              cfg.DB,
	})
	tracker.SetSession(sessionID)

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		SessionID:  sessionID,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := &loop{
		engine:     cadence.NewEngine(cfg.Cadence, startTime),
		publisher:  publisher,
		mqttStatus: mqttStatus,
		led:        led,
		recorder:   recorder,
		tracker:    tracker,
		heartbeat:  cfg.Heartbeat,
		sessionID:  sessionID,
		now:        time.Now,
	}

	var readings <-chan motion.Reading
	if reader != nil {
		pump := motion.NewPump(reader, cfg.Source.Buffer)
		go pump.Run(ctx)
		readings = pump.Out
		l.sourceStats = pump.Stats
	} else {
		log.Printf("motion: no source configured, sync stays undefined")
	}

	var tempos <-chan tempo.Result
	if cfg.Tempo.URL != "" {
		poller := tempo.NewPoller(newTempoClient(ctx, cfg.Tempo), cfg.Tempo.PollInterval)
		go poller.Run(ctx)
		tempos = poller.Out
		l.tempoStats = poller.Stats
	}

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		if sessions != nil {
			srv.WithSessions(sessions)
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if opts.tui {
		go func() {
			if err := dashboard.Run(ctx, tracker, dashboard.DefaultRefresh); err != nil {
				log.Printf("dashboard error: %v", err)
			}
			// Quitting the dashboard stops the daemon.
			select {
			case sigCh <- syscall.SIGINT:
			default:
			}
		}()
	}

	log.Printf("started: session=%s source=%s tempo=%s poll=%v broker=%s heartbeat=%v",
		sessionID, cfg.Source.Kind, cfg.Tempo.URL, cfg.Tempo.PollInterval, cfg.MQTT.Broker, cfg.Heartbeat)

	ticker := time.NewTicker(statusRefresh)
	defer ticker.Stop()

	return l.run(readings, tempos, ticker.C, sigCh)
}

// loop is the single consumer of motion readings and tempo results. It owns the
// engine; everything else it touches is either safe for concurrent use or only
// used here.
type loop struct {
	engine     *cadence.Engine
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	led        *gpio.Latch
	recorder   store.Recorder
	tracker    *status.Tracker
	heartbeat  time.Duration
	sessionID  string
	now        func() time.Time

	sourceStats func() (produced, malformed uint64)
	tempoStats  func() (ok, failed uint64)
	exhausted   bool
}

func (l *loop) run(readings <-chan motion.Reading, tempos <-chan tempo.Result, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			l.shutdown(s)
			return nil

		case r, ok := <-readings:
			if !ok {
				// Nil channels block forever, so the select stops picking this case.
				readings = nil
				l.exhausted = true
				log.Printf("motion: input closed, holding last cadence")
				l.refreshStatus()
				continue
			}
			u, ok := l.engine.Ingest(r.Sample(), l.now())
			if !ok {
				continue
			}
			l.handleUpdate(u)

		case res, ok := <-tempos:
			if !ok {
				tempos = nil
				continue
			}
			l.handleTempo(res)

		case <-tick:
			l.refreshStatus()
			l.checkHeartbeat(l.now())
		}
	}
}

func (l *loop) handleUpdate(u cadence.Update) {
	log.Printf("tick: frame=%s steps=%d cadence=%.0f tempo=%s score=%s visual=%s",
		u.Frame.Class, u.Frame.Steps, u.Cadence, formatOpt(u.Sync.Tempo), formatOpt(u.Sync.Score), u.Visual)

	if err := l.publisher.PublishUpdate(u); err != nil {
		log.Printf("publish error: %v", err)
		// Don't crash on publish failure
	}
	if l.led != nil {
		if err := l.led.Apply(u.Visual == cadence.VisualHighSync); err != nil {
			log.Printf("led error: %v", err)
		}
	}
	if l.recorder != nil {
		if err := l.recorder.RecordUpdate(u); err != nil {
			log.Printf("recorder error: %v", err)
		}
	}
	if l.tracker != nil {
		l.tracker.Update(u, l.engine.History(), l.engine.CountsSnapshot())
	}
}

func (l *loop) handleTempo(res tempo.Result) {
	prev := l.engine.Tempo()
	l.engine.SetTempo(res.BPM)
	if prev == nil || *prev != res.BPM {
		log.Printf("tempo: now %.1f bpm", res.BPM)
	}
	if l.tracker != nil {
		l.tracker.SetTempo(res.BPM, res.FetchedAt)
	}
	if l.recorder != nil {
		if err := l.recorder.RecordTempo(res.BPM, res.FetchedAt); err != nil {
			log.Printf("recorder error: %v", err)
		}
	}
}

// refreshStatus copies counters that change between updates into the tracker.
func (l *loop) refreshStatus() {
	if l.tracker == nil {
		return
	}
	l.tracker.SetCounts(l.engine.CountsSnapshot())
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
	src := status.SourceStats{Exhausted: l.exhausted}
	if l.sourceStats != nil {
		src.Produced, src.Malformed = l.sourceStats()
	}
	l.tracker.SetSourceStats(src)
	if l.tempoStats != nil {
		l.tracker.SetTempoStats(l.tempoStats())
	}
}

func (l *loop) checkHeartbeat(t time.Time) {
	hbData := l.engine.CheckHeartbeat(t, l.heartbeat)
	if hbData == nil {
		return
	}
	log.Printf("heartbeat: uptime=%v frames=%d active=%d stationary=%d undefined=%d high_sync=%d",
		hbData.Uptime, hbData.Counts.Frames, hbData.Counts.Active, hbData.Counts.Stationary,
		hbData.Counts.Undefined, hbData.Counts.HighSync)

	hbEvent := mqtt.SystemEvent{
		Timestamp: hbData.Timestamp,
		Event:     "HEARTBEAT",
		SessionID: l.sessionID,
	}
	if l.tracker != nil {
		snap := l.tracker.Snapshot()
		hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
	}
	if err := l.publisher.PublishSystem(hbEvent); err != nil {
		log.Printf("heartbeat publish error: %v", err)
	}
}

func (l *loop) shutdown(s os.Signal) {
	log.Printf("received %v, shutting down", s)
	signalName := "UNKNOWN"
	if s == syscall.SIGINT {
		signalName = "SIGINT"
	} else if s == syscall.SIGTERM {
		signalName = "SIGTERM"
	}

	t := l.now()
	if l.led != nil {
		if err := l.led.Apply(false); err != nil {
			log.Printf("led error: %v", err)
		}
	}
	if l.recorder != nil {
		if err := l.recorder.EndSession(t, l.engine.CountsSnapshot()); err != nil {
			log.Printf("recorder error: %v", err)
		}
	}

	event := mqtt.SystemEvent{
		Timestamp: t,
		Event:     "SHUTDOWN",
		Reason:    signalName,
		SessionID: l.sessionID,
		Retained:  true,
	}
	if l.tracker != nil {
		l.refreshStatus()
		snap := l.tracker.Snapshot()
		event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
}

// openSource opens the configured motion reader. It returns nil for the "none" source.
func openSource(cfg config.Config, replay string) (motion.Reader, error) {
	switch cfg.Source.Kind {
	case config.SourceSerial:
		r, err := motion.NewSerialReader(cfg.Source.Device, cfg.Source.Serial)
		if err != nil {
			return nil, fmt.Errorf("init motion: %w", err)
		}
		return r, nil
	case config.SourceSim:
		return motion.NewSimReader(cfg.Source.SimStepsPerMin, cfg.Source.SimInterval, time.Now().UnixNano()), nil
	case config.SourceStdin:
		if replay == "" || replay == "-" {
			return motion.NewLineReader(os.Stdin), nil
		}
		f, err := os.Open(replay)
		if err != nil {
			return nil, fmt.Errorf("open replay: %w", err)
		}
		return motion.NewLineReader(f), nil
	case config.SourceNone:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown source %q", cfg.Source.Kind)
}

func newTempoClient(ctx context.Context, cfg config.TempoConfig) *tempo.Client {
	var hc *http.Client
	if cfg.Auth {
		hc = tempo.AuthenticatedHTTPClient(ctx, cfg.URL, cfg.Timeout)
	} else {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return tempo.NewClient(hc, cfg.URL).WithRetry(cfg.MaxRetries, tempo.DefaultBackoff)
}

// setupLogging routes the standard logger. The dashboard owns the terminal, so
// with --tui logs go to --log or nowhere. The returned func restores stderr and
// closes the log file.
func setupLogging(opts options) (func() error, error) {
	var out io.Writer = os.Stderr
	closeLog := func() error { return nil }
	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		if !opts.tui {
			out = io.MultiWriter(os.Stderr, f)
		}
		closeLog = func() error {
			log.SetOutput(os.Stderr)
			return f.Close()
		}
	} else if opts.tui {
		out = io.Discard
	}
	log.SetOutput(out)
	return closeLog, nil
}

// listSessions prints recorded sessions, newest first.
func listSessions(w io.Writer, path string) error {
	if path == "" {
		return errors.New("--list-sessions needs --db")
	}
	db, err := store.OpenDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := store.ListSessions(db, 50)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no sessions recorded")
		return nil
	}
	for _, s := range sessions {
		ended := "running"
		if s.EndedAt != nil {
			ended = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s  %s  %-6s  %-8s  ticks=%d active=%d high_sync=%d\n",
			s.ID, s.StartedAt.Local().Format("2006-01-02 15:04:05"), s.Source, ended,
			s.Ticks, s.Counts.Active, s.Counts.HighSync)
	}
	return nil
}

func formatOpt(v *float64) string {
	if v == nil {
		return "--"
	}
	return fmt.Sprintf("%.0f", *v)
}

// resolveWSBroker converts the --ws-broker flag value into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; empty disables.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil {
		log.Printf("ws-broker: cannot parse --broker %q: %v", broker, err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
