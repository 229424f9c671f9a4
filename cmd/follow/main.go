// Command follow runs the target-following engine against the live
// detector link and serves the operator API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/skyfollow/internal/config"
	"github.com/banshee-data/skyfollow/internal/cvframe"
	"github.com/banshee-data/skyfollow/internal/detlink"
	"github.com/banshee-data/skyfollow/internal/eventlog"
	"github.com/banshee-data/skyfollow/internal/monitor"
	"github.com/banshee-data/skyfollow/internal/pipeline"
	"github.com/banshee-data/skyfollow/internal/tracking"
	"github.com/banshee-data/skyfollow/internal/version"
)

var (
	configPath  = flag.String("config", "", "Tuning config JSON (defaults built in)")
	port        = flag.String("port", "/dev/ttyTHS1", "Detector co-processor serial port")
	baud        = flag.Int("baud", detlink.DefaultBaudRate, "Detector link baud rate")
	parity      = flag.String("parity", "N", "Detector link parity (N, E, O)")
	eventsDB    = flag.String("events", "skyfollow_events.db", "Event log database path (empty disables)")
	listen      = flag.String("listen", ":8080", "Operator API listen address")
	video       = flag.String("video", "", "Camera device index or stream URL for appearance features")
	targetsOut  = flag.String("targets", "", "Append committed targets as JSON lines to this file")
	diag        = flag.Bool("diag", false, "Enable diagnostic logging")
	trace       = flag.Bool("trace", false, "Enable per-frame trace logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("follow"))
		return
	}
	if *port == "" {
		log.Fatal("Serial port is required")
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	writers := tracking.LogWriters{Ops: os.Stderr}
	if *diag {
		writers.Diag = os.Stderr
	}
	if *trace {
		writers.Trace = os.Stderr
	}
	tracking.SetLogWriters(writers)
	pipeline.SetLogWriters(writers)

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	mgr, err := tracking.NewManager(tracking.ConfigFromTuning(tuning))
	if err != nil {
		log.Fatalf("invalid tracking config: %v", err)
	}

	link, err := detlink.NewSerialLink(*port, detlink.PortOptions{BaudRate: *baud, Parity: *parity})
	if err != nil {
		log.Fatalf("failed to open detector link: %v", err)
	}

	var (
		store    *eventlog.Store
		recorder *eventlog.AsyncRecorder
	)
	if *eventsDB != "" {
		if store, err = eventlog.Open(*eventsDB); err != nil {
			log.Fatalf("failed to open event log: %v", err)
		}
		defer store.Close()
		recorder = eventlog.NewAsyncRecorder(store, 256)
		mgr.SetEventSink(recorder)
	}

	var images pipeline.ImageProvider
	if *video != "" {
		v, err := cvframe.OpenVideo(*video)
		switch {
		case errors.Is(err, cvframe.ErrUnavailable):
			log.Printf("video ignored: %v", err)
		case err != nil:
			log.Fatalf("failed to open video: %v", err)
		default:
			defer v.Close()
			images = v
		}
	}

	var sink pipeline.TargetSink
	if *targetsOut != "" {
		f, err := os.OpenFile(*targetsOut, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("failed to open targets file: %v", err)
		}
		defer f.Close()
		sink = pipeline.NewJSONLSink(f)
	}

	history := monitor.NewRecorder(0)
	rt, err := pipeline.New(pipeline.Config{
		Manager:     mgr,
		Recorder:    history,
		Sink:        sink,
		Images:      images,
		StampFrames: true,
	})
	if err != nil {
		log.Fatalf("failed to create runtime: %v", err)
	}

	ws := monitor.NewWebServer(monitor.WebServerConfig{Address: *listen, Recorder: history, Controller: rt})
	link.AttachAdminRoutes(ws.Mux())
	if store != nil {
		if err := store.AttachAdminRoutes(ws.Mux()); err != nil {
			log.Fatalf("failed to attach event log routes: %v", err)
		}
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := link.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("detector link stopped: %v", err)
		}
		log.Print("link monitor routine terminated")
	}()

	frames := link.Frames()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := rt.Run(ctx, frames); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("tracking runtime stopped: %v", err)
		}
		log.Print("tracking routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ws.Start(ctx); err != nil {
			log.Printf("HTTP server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	frames.Close()
	if err := link.Close(); err != nil && !errors.Is(err, detlink.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
		log.Printf("failed to close detector link: %v", err)
	}
	wg.Wait()

	if recorder != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := recorder.Close(closeCtx); err != nil {
			log.Printf("event log flush incomplete: %v", err)
		}
		written, failed, dropped := recorder.Stats()
		log.Printf("event log: %d written, %d failed, %d dropped", written, failed, dropped)
	}
	log.Printf("Graceful shutdown complete")
}
