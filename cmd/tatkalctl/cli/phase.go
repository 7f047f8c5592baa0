package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/tatkal-desk/tatkal/internal/clock"
)

// PhaseOptions are the flags of the phase command.
type PhaseOptions struct {
	At         string
	Date       string
	Timezone   string
	JSONOutput bool
}

func runPhase(ctx context.Context, env Env, args []string) int {
	var opts PhaseOptions
	fs := pflag.NewFlagSet("phase", pflag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	fs.StringVar(&opts.At, "at", "", "wall-clock time to classify (HH:MM), defaults to now")
	fs.StringVar(&opts.Date, "date", "", "calendar date (YYYY-MM-DD), defaults to today")
	fs.StringVar(&opts.Timezone, "tz", "Asia/Kolkata", "station time zone")
	fs.BoolVar(&opts.JSONOutput, "json", false, "output as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	at, err := opts.instant(time.Now())
	if err != nil {
		_, _ = fmt.Fprintf(env.Stderr, "phase: %v\n", err)
		return 1
	}
	snap := clock.SnapshotAt(at)
	if opts.JSONOutput {
		if err := json.NewEncoder(env.Stdout).Encode(snap); err != nil {
			_, _ = fmt.Fprintf(env.Stderr, "phase: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(env.Stdout, "%s  %s (%s)\n", snap.Display, snap.PhaseLabel, snap.Phase)
	if snap.PreOpenGap {
		_, _ = fmt.Fprintln(env.Stdout, "note: before the 00:30 opening, registration is not accepted")
	}
	_, _ = fmt.Fprintf(env.Stdout, "next: %s at %s\n", snap.NextPhase, snap.NextTransition.Format("2006-01-02 15:04"))
	return 0
}

func (o PhaseOptions) instant(now time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("unknown time zone %q", o.Timezone)
	}
	now = now.In(loc)
	day := now
	if strings.TrimSpace(o.Date) != "" {
		day, err = time.ParseInLocation("2006-01-02", strings.TrimSpace(o.Date), loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", o.Date)
		}
	}
	if strings.TrimSpace(o.At) == "" {
		if o.Date == "" {
			return now, nil
		}
		return time.Date(day.Year(), day.Month(), day.Day(), now.Hour(), now.Minute(), now.Second(), 0, loc), nil
	}
	hm, err := time.Parse("15:04", strings.TrimSpace(o.At))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (expected HH:MM)", o.At)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hm.Hour(), hm.Minute(), 0, 0, loc), nil
}
