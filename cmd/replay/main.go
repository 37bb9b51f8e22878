// Command replay feeds a recorded GPS track through the alert engine and
// prints the announcements it would have made. It runs on a fixed clock so
// the output is reproducible.
//
// The track is JSON Lines, one fix per line:
//
//	{"lat":38.7390,"lng":-9.1602}
//
// Usage:
//
//	go run ./cmd/replay -track testdata/a1_southbound.jsonl -lang en
package main

import (
	"bufio"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hazard-alert-service/internal/dispatch"
	"github.com/couchcryptid/hazard-alert-service/internal/domain"
	"github.com/couchcryptid/hazard-alert-service/internal/engine"
	"github.com/couchcryptid/hazard-alert-service/internal/locationstream"
	"github.com/couchcryptid/hazard-alert-service/internal/observability"
	"github.com/couchcryptid/hazard-alert-service/internal/registry"
)

var replayStart = time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC)

// fixInterval is the simulated time between consecutive track points.
const fixInterval = time.Second

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	trackPath := fs.String("track", "", "JSON Lines file of fixes")
	hazardsPath := fs.String("hazards", "", "hazards JSON file (default: built-in set)")
	lang := fs.String("lang", domain.DefaultLanguage, "announcement language")
	enter := fs.Float64("enter", domain.DefaultEnterThresholdMeters, "enter threshold in meters")
	exit := fs.Float64("exit", domain.DefaultExitThresholdMeters, "exit threshold in meters")
	muted := fs.Bool("muted", false, "evaluate with alerts disabled")
	verbose := fs.Bool("v", false, "log engine activity to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *trackPath == "" {
		fs.Usage()
		return errors.New("missing required flag: -track")
	}

	fixes, err := readTrack(*trackPath)
	if err != nil {
		return err
	}

	reg, err := loadRegistry(*hazardsPath)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	metrics := observability.NewMetricsForTesting()

	// Set a fixed clock for reproducible announcement timestamps.
	clock := clockwork.NewFakeClockAt(replayStart)
	domain.SetClock(clock)
	defer domain.SetClock(nil)

	rec := &recorder{next: dispatch.NewLogNotifier(logger)}
	dispatcher := dispatch.New(rec, logger, metrics)

	cfg := domain.EngineConfig{
		Enabled:              !*muted,
		Language:             dispatch.ResolveLanguage(*lang),
		EnterThresholdMeters: *enter,
		ExitThresholdMeters:  *exit,
	}
	eng, err := engine.New(reg, cfg, dispatcher, logger, metrics)
	if err != nil {
		return err
	}

	if err := replay(eng, clock, fixes, logger, metrics); err != nil {
		return err
	}
	if err := dispatcher.Wait(context.Background()); err != nil {
		return err
	}

	return printSummary(stdout, len(fixes), rec.sorted(), eng.States())
}

// replay streams fixes through a location adapter, one fixInterval apart.
func replay(eng *engine.Engine, clock *clockwork.FakeClock, fixes []domain.Location, logger *slog.Logger, metrics *observability.Metrics) error {
	ch := make(chan domain.Location)
	opts := locationstream.DefaultWatchOptions()
	opts.Timeout = 0
	adapter := locationstream.New(locationstream.NewChannelSource(ch, nil), opts, logger, metrics)

	sub, err := adapter.Subscribe(func(loc domain.Location) {
		clock.Advance(fixInterval)
		eng.OnLocation(loc)
	}, nil)
	if err != nil {
		return err
	}

	for _, f := range fixes {
		ch <- f
	}
	close(ch)
	<-sub.Done()
	return sub.Err()
}

func readTrack(path string) ([]domain.Location, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open track: %w", err)
	}
	defer f.Close()

	var fixes []domain.Location
	scan := bufio.NewScanner(f)
	for n := 1; scan.Scan(); n++ {
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			continue
		}
		var loc domain.Location
		if err := json.Unmarshal([]byte(line), &loc); err != nil {
			return nil, fmt.Errorf("track line %d: %w", n, err)
		}
		if err := loc.Validate(); err != nil {
			return nil, fmt.Errorf("track line %d: %w", n, err)
		}
		fixes = append(fixes, loc)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("read track: %w", err)
	}
	return fixes, nil
}

func loadRegistry(path string) (*registry.Registry, error) {
	if path == "" {
		return registry.Load(registry.Builtin())
	}
	return registry.LoadFile(path)
}

// recorder keeps every announcement and passes it on.
type recorder struct {
	next dispatch.Notifier

	mu  sync.Mutex
	got []domain.Announcement
}

func (r *recorder) Announce(ctx context.Context, a domain.Announcement) error {
	r.mu.Lock()
	r.got = append(r.got, a)
	r.mu.Unlock()
	return r.next.Announce(ctx, a)
}

// sorted returns announcements by trigger time. Dispatch goroutines can
// finish in any order.
func (r *recorder) sorted() []domain.Announcement {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := slices.Clone(r.got)
	slices.SortStableFunc(out, func(a, b domain.Announcement) int {
		if c := a.TriggeredAt.Compare(b.TriggeredAt); c != 0 {
			return c
		}
		return cmp.Compare(a.HazardID, b.HazardID)
	})
	return out
}

func printSummary(w io.Writer, fixes int, announcements []domain.Announcement, states []domain.AlertState) error {
	alerted := 0
	for _, s := range states {
		if s.Phase == domain.PhaseAlerted {
			alerted++
		}
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "fixes: %d\tannouncements: %d\talerted at end: %d\n", fixes, len(announcements), alerted)
	for _, a := range announcements {
		fix := int(a.TriggeredAt.Sub(replayStart) / fixInterval)
		fmt.Fprintf(tw, "#%d\t%s\t%s\t%d km/h\t%s\n", fix, a.HazardID, a.RoadName, a.SpeedLimit, a.Message)
	}
	return tw.Flush()
}
