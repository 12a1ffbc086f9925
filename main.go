// tanksafed is the motion-safety daemon for the tracked robot. It polls the
// ranging sensor, arbitrates every motion intent against obstacle distance
// and the emergency override, drives the tracks at a fixed rate, and exposes
// an HTTP API for producers and operators.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/api"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/command"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/config"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/control"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/drive"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/rangefinder"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/safety"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/serialport"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/telemetry"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/version"
)

var (
	devMode    = flag.Bool("dev", false, "Run with a simulated ranging sensor instead of real hardware")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	configPath = flag.String("config", "", "Path to safety config JSON (falls back to "+config.DefaultConfigPath+" when present)")
	noDB       = flag.Bool("no-telemetry", false, "Disable the telemetry database")
)

// simMinDistanceCm relaxes the reader's validity floor in dev mode so the
// simulated obstacle's closest approach (5 cm, inside the stop zone) is not
// rejected as out-of-range the way it would be against the real sensor's
// 10 cm floor.
const simMinDistanceCm = 1

// simPort fabricates sensor frames for dev mode: an obstacle that drifts
// in and out between 5 cm and 200 cm so every arbitration zone gets
// exercised without hardware.
type simPort struct {
	start  time.Time
	closed bool
	mu     sync.Mutex
}

func (p *simPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, serialport.ErrPortClosed
	}
	p.mu.Unlock()

	// Pace reads like the real sensor's frame rate.
	time.Sleep(10 * time.Millisecond)

	elapsed := time.Since(p.start).Seconds()
	distance := 102.5 + 97.5*math.Sin(elapsed/5)
	frame := rangefinder.EncodeFrame(uint16(distance), 1200)
	return copy(buf, frame), nil
}

func (p *simPort) Write(data []byte) (int, error) { return len(data), nil }

func (p *simPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func openSimPort(path string, opts serialport.Options) (serialport.Porter, error) {
	return &simPort{start: time.Now()}, nil
}

func main() {
	flag.Parse()

	log.Printf("tanksafed %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	// .env is optional; TANKSAFE_* variables override the config file.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("skipping .env: %v", err)
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("failed to apply environment overrides: %v", err)
	}
	listenAddr := cfg.GetListenAddr()
	if *listen != "" {
		listenAddr = *listen
	}

	var store *telemetry.Store
	if !*noDB {
		var err error
		store, err = telemetry.NewStore(cfg.GetTelemetryPath())
		if err != nil {
			log.Fatalf("failed to open telemetry store: %v", err)
		}
		defer store.Close()
		log.Printf("telemetry session %s -> %s", store.SessionID(), cfg.GetTelemetryPath())
	}

	readerCfg := rangefinder.ReaderConfig{
		PortPath: cfg.GetPortPath(),
		PortOptions: serialport.Options{
			BaudRate: cfg.GetBaudRate(),
		},
		PollInterval:  cfg.GetPollInterval(),
		MinDistanceCm: float64(cfg.GetMinDistanceCm()),
		MaxDistanceCm: float64(cfg.GetMaxDistanceCm()),
	}
	if *devMode {
		readerCfg.Open = openSimPort
		readerCfg.MinDistanceCm = simMinDistanceCm
		log.Print("dev mode: using simulated ranging sensor")
	}
	reader := rangefinder.NewReader(readerCfg)
	monitor := rangefinder.NewStaleMonitor(reader, nil, cfg.GetStaleThreshold())

	mailbox := command.NewMailbox()
	override := safety.NewOverride()
	gateway := command.NewGateway(mailbox, override, nil)
	hub := api.NewHub(gateway.HandleText)

	var sink drive.Sink = drive.NewLogSink()

	loop, err := control.NewLoop(control.LoopConfig{
		States:   monitor,
		Intents:  mailbox,
		Override: override,
		Sink:     sink,
		Thresholds: safety.Thresholds{
			StopCm: float64(cfg.GetStopThresholdCm()),
			SlowCm: float64(cfg.GetSlowThresholdCm()),
		},
		Interval:   cfg.GetControlInterval(),
		MaxSpeed:   cfg.GetMaxSpeed(),
		OnDecision: decisionObserver(store, hub),
	})
	if err != nil {
		log.Fatalf("failed to build control loop: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := reader.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("sensor reader stopped: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		loop.Run(ctx)
	}()

	if store != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recordSamples(ctx, reader, store)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(gateway, override, loop, decisionLog(store), hub).ServeMux()
		server := &http.Server{
			Addr:    listenAddr,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("HTTP API listening on %s", listenAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()
	log.Print("graceful shutdown complete")
}

// recordSamples logs the published distance once a second, deduplicated by
// capture time so sensor outages do not repeat the last sample.
func recordSamples(ctx context.Context, reader *rangefinder.Reader, store *telemetry.Store) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastCaptured time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample, ok := reader.Latest()
			if !ok || sample.CapturedAt.Equal(lastCaptured) {
				continue
			}
			lastCaptured = sample.CapturedAt
			if err := store.RecordSample(sample.DistanceCm, sample.CapturedAt); err != nil {
				log.Printf("failed to record sample: %v", err)
			}
		}
	}
}

// decisionObserver fans each completed tick out to telemetry and the
// websocket relay. Telemetry only records transitions so a steady state does
// not grow the database at the control rate.
func decisionObserver(store *telemetry.Store, hub *api.Hub) func(control.Snapshot) {
	var mu sync.Mutex
	var lastReason safety.Reason
	var seen bool
	return func(snap control.Snapshot) {
		hub.Broadcast(snap)

		if store == nil {
			return
		}
		mu.Lock()
		changed := !seen || lastReason != snap.Decision.Reason
		lastReason, seen = snap.Decision.Reason, true
		mu.Unlock()
		if !changed {
			return
		}
		err := store.RecordDecision(telemetry.DecisionRecord{
			RequestedLeft:  snap.Intent.Left,
			RequestedRight: snap.Intent.Right,
			AppliedLeft:    snap.Decision.Left,
			AppliedRight:   snap.Decision.Right,
			Reason:         string(snap.Decision.Reason),
			DistanceCm:     snap.State.DistanceCm,
			Absent:         snap.State.Absent,
			Stale:          snap.State.Stale,
			At:             snap.At,
		})
		if err != nil {
			log.Printf("failed to record decision: %v", err)
		}
	}
}

// decisionLog adapts the optional store to the API's interface without
// handing it a typed nil.
func decisionLog(store *telemetry.Store) api.DecisionLog {
	if store == nil {
		return nil
	}
	return store
}
