// Command rank annotates and ranks a saved event batch offline, the same way
// the service orders its display. The input is either a bare JSON array of
// events or a snapshot document of the form {"count": n, "events": [...]}.
//
// Usage:
//
//	go run ./cmd/rank -file data/events.json -lat 35.68 -lon 139.69 -radius 2500
//	go run ./cmd/rank -file data/events.json -json
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/quake-watch/internal/display"
	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/couchcryptid/quake-watch/internal/engine"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	file     string
	observer *domain.Point
	radiusKm float64
	asJSON   bool
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, "error:", err)
		return 2
	}

	raw, err := os.ReadFile(opts.file)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	events, err := decodeInput(raw)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	ranked := domain.Rank(domain.Annotate(events, opts.observer), opts.observer, opts.radiusKm)

	if opts.asJSON {
		err = writeJSON(stdout, ranked, opts)
	} else {
		err = writeTable(stdout, ranked, opts)
	}
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("rank", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("file", "", "path to a JSON event batch or snapshot document")
	lat := fs.Float64("lat", math.NaN(), "observer latitude in degrees")
	lon := fs.Float64("lon", math.NaN(), "observer longitude in degrees")
	radius := fs.Float64("radius", domain.DefaultRadiusKm, "nearby radius in kilometres")
	asJSON := fs.Bool("json", false, "print the ranked view as JSON")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if *file == "" {
		return options{}, errors.New("-file is required")
	}
	if *radius < domain.MinRadiusKm || *radius > domain.MaxRadiusKm {
		return options{}, fmt.Errorf("%w: %v", domain.ErrRadiusOutOfRange, *radius)
	}

	opts := options{file: *file, radiusKm: *radius, asJSON: *asJSON}
	latSet, lonSet := !math.IsNaN(*lat), !math.IsNaN(*lon)
	switch {
	case latSet && lonSet:
		p := domain.Point{Lat: *lat, Lon: *lon}
		if !p.Valid() {
			return options{}, fmt.Errorf("%w: %v,%v", domain.ErrInvalidCoordinates, *lat, *lon)
		}
		opts.observer = &p
	case latSet || lonSet:
		return options{}, errors.New("-lat and -lon must be given together")
	}
	return opts, nil
}

// decodeInput accepts a bare event array or a {"count", "events"} document.
func decodeInput(raw []byte) ([]domain.Event, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var doc struct {
			Events json.RawMessage `json:"events"`
		}
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("decode snapshot document: %w", err)
		}
		return domain.DecodeEvents(doc.Events)
	}
	return domain.ParseEvents(trimmed)
}

func writeTable(w io.Writer, ranked []domain.AnnotatedEvent, opts options) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tRISK\tMAG\tTIME\tDISTANCE_KM\tNEARBY\tPLACE")
	for i, e := range ranked {
		distance, nearby := "-", "-"
		if e.DistanceKm != nil {
			distance = display.FormatDistance(*e.DistanceKm)
		}
		if opts.observer != nil {
			nearby = fmt.Sprint(domain.InRadius(e, opts.radiusKm))
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f\t%s\t%s\t%s\t%s\n",
			i+1, e.ID, e.Risk, e.Magnitude,
			time.UnixMilli(e.Time).UTC().Format(time.RFC3339),
			distance, nearby, e.Place)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	summary := fmt.Sprintf("%d events", len(ranked))
	if opts.observer != nil {
		summary += fmt.Sprintf(", %d within %.0f km of %.4f,%.4f",
			domain.CountInRadius(ranked, opts.radiusKm), opts.radiusKm, opts.observer.Lat, opts.observer.Lon)
	}
	_, err := fmt.Fprintln(w, summary)
	return err
}

func writeJSON(w io.Writer, ranked []domain.AnnotatedEvent, opts options) error {
	v := engine.View{
		Events:     ranked,
		Observer:   opts.observer,
		RadiusKm:   opts.radiusKm,
		RiskCounts: domain.CountByRisk(ranked),
		UpdatedAt:  time.Now(),
	}
	if opts.observer != nil {
		v.InRadius = domain.CountInRadius(ranked, opts.radiusKm)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(display.NewViewResponse(v))
}
