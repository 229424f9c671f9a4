// Command replay runs a recorded detection log (JSON lines or a UDP packet
// capture) through the tracking engine offline, writing the committed
// targets and plots for tuning.
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
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/skyfollow/internal/config"
	"github.com/banshee-data/skyfollow/internal/cvframe"
	"github.com/banshee-data/skyfollow/internal/detlink"
	"github.com/banshee-data/skyfollow/internal/eventlog"
	"github.com/banshee-data/skyfollow/internal/monitor"
	"github.com/banshee-data/skyfollow/internal/pipeline"
	"github.com/banshee-data/skyfollow/internal/timeutil"
	"github.com/banshee-data/skyfollow/internal/tracking"
	"github.com/banshee-data/skyfollow/internal/version"
)

var (
	configPath  = flag.String("config", "", "Tuning config JSON (defaults built in)")
	input       = flag.String("input", "", "Detection log: .jsonl or .pcap/.pcapng capture")
	udpPort     = flag.Int("udp-port", 7070, "UDP destination port carrying detections in a capture")
	video       = flag.String("video", "", "Video file aligned with the detector frames")
	framesDir   = flag.String("frames-dir", "", "Directory of per-frame JPEGs named frame_000123.jpg")
	selectID    = flag.Int64("select", -1, "Ephemeral id to follow from the first frame it appears (-1 = none)")
	outPath     = flag.String("out", "targets.jsonl", "Output JSON lines of committed targets")
	plotsDir    = flag.String("plots", "", "Write trajectory and confidence plots to this directory")
	eventsDB    = flag.String("events", "", "Record lifecycle events to this database")
	realtime    = flag.Bool("realtime", false, "Pace the replay at the nominal frame rate")
	diag        = flag.Bool("diag", false, "Enable diagnostic logging")
	trace       = flag.Bool("trace", false, "Enable per-frame trace logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// frameSource is a pipeline.FrameSource that must be closed.
type frameSource interface {
	pipeline.FrameSource
	io.Closer
}

func openInput(path string) (frameSource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pcap", ".pcapng":
		if *udpPort <= 0 || *udpPort > 65535 {
			return nil, fmt.Errorf("invalid udp port %d", *udpPort)
		}
		return detlink.OpenPCAP(path, uint16(*udpPort))
	default:
		return detlink.OpenLineSource(path)
	}
}

type imageSource interface {
	pipeline.ImageProvider
	io.Closer
}

func openImages() (imageSource, error) {
	switch {
	case *video != "" && *framesDir != "":
		return nil, errors.New("-video and -frames-dir are mutually exclusive")
	case *video != "":
		return cvframe.OpenVideo(*video)
	case *framesDir != "":
		return cvframe.OpenDir(*framesDir)
	}
	return nil, nil
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("replay"))
		return
	}
	if *input == "" {
		log.Fatal("-input is required")
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

	src, err := openInput(*input)
	if err != nil {
		log.Fatalf("failed to open input: %v", err)
	}
	defer src.Close()

	images, err := openImages()
	switch {
	case errors.Is(err, cvframe.ErrUnavailable):
		log.Printf("images ignored: %v", err)
		images = nil
	case err != nil:
		log.Fatalf("failed to open images: %v", err)
	case images != nil:
		defer images.Close()
	}

	var store *eventlog.Store
	if *eventsDB != "" {
		if store, err = eventlog.Open(*eventsDB); err != nil {
			log.Fatalf("failed to open event log: %v", err)
		}
		defer store.Close()
		// Replays are offline, so events are written synchronously.
		mgr.SetEventSink(tracking.EventSinkFunc(func(ev tracking.Event) {
			if err := store.RecordEvent(context.Background(), ev); err != nil {
				log.Printf("failed to record %s: %v", ev.Kind, err)
			}
		}))
	}

	out, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("failed to create output: %v", err)
	}
	defer out.Close()
	sink := pipeline.NewJSONLSink(out)

	var plotter *monitor.TrackPlotter
	if *plotsDir != "" {
		plotter = monitor.NewTrackPlotter(filepath.Base(*input))
	}

	rc := pipeline.Config{Manager: mgr, Sink: sink, Plotter: plotter}
	if images != nil {
		rc.Images = images
	}
	if *selectID >= 0 {
		rc.AutoSelect = selectID
	}
	rt, err := pipeline.New(rc)
	if err != nil {
		log.Fatalf("failed to create runtime: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var frames pipeline.FrameSource = src
	if *realtime {
		paced, stopPacing := pipeline.Paced(src, timeutil.RealClock{}, tuning.GetNominalFPS())
		defer stopPacing()
		frames = paced
	}

	start := time.Now()
	if err := rt.Run(ctx, frames); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("replay failed: %v", err)
	}
	log.Printf("replayed %d frames in %s, %d output lines written to %s", rt.Frames(), time.Since(start).Round(time.Millisecond), sink.Lines(), *outPath)

	if plotter != nil && plotter.Len() > 0 {
		files, err := plotter.GeneratePlots(*plotsDir)
		if err != nil {
			log.Fatalf("failed to generate plots: %v", err)
		}
		log.Printf("plots: %s", strings.Join(files, ", "))
	}

	if store != nil {
		sessions, err := store.ListSessions(context.Background(), 0)
		if err != nil {
			log.Fatalf("failed to list sessions: %v", err)
		}
		for _, s := range sessions {
			log.Printf("session %s stable=%d id_switches=%d reids=%d events=%d end=%q",
				s.ID, s.StableTrackID, s.IDSwitches, s.Reidentifications, s.Events, s.EndReason)
		}
	}
}
