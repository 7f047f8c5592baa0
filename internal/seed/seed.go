// Package seed loads the demo fixtures the desk starts with.
package seed

import (
	"fmt"
	"io/fs"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tatkal-desk/tatkal/internal/access"
	"github.com/tatkal-desk/tatkal/internal/activity"
	"github.com/tatkal-desk/tatkal/internal/auth"
	"github.com/tatkal-desk/tatkal/internal/reports"
	"github.com/tatkal-desk/tatkal/internal/tokens"
)

const timestampLayout = "2006-01-02 15:04:05"

// Data is everything the fixtures describe.
type Data struct {
	Admins    []auth.AdminSeed
	Tokens    []tokens.Token
	Cancelled []tokens.Token
	Activity  []activity.Entry
	Reports   map[reports.Period]reports.Summary
}

type adminsFile struct {
	Admins []auth.AdminSeed `yaml:"admins"`
}

type tokensFile struct {
	Tokens []tokens.Token `yaml:"tokens"`
}

type cancelledFile struct {
	Cancelled []tokens.Token `yaml:"cancelled"`
}

type activityRecord struct {
	Admin     string `yaml:"admin"`
	Role      string `yaml:"role"`
	Action    string `yaml:"action"`
	Timestamp string `yaml:"timestamp"`
	Details   string `yaml:"details"`
	Status    string `yaml:"status"`
}

type activityFile struct {
	Activity []activityRecord `yaml:"activity"`
}

type reportsFile struct {
	Reports map[reports.Period]reports.Summary `yaml:"reports"`
}

// Load reads every fixture from fsys. Activity timestamps are interpreted
// in loc.
func Load(fsys fs.FS, loc *time.Location) (Data, error) {
	if loc == nil {
		loc = time.UTC
	}
	var (
		data      Data
		admins    adminsFile
		live      tokensFile
		cancelled cancelledFile
		feed      activityFile
		summaries reportsFile
	)
	files := []struct {
		name string
		dst  any
	}{
		{"seed/admins.yaml", &admins},
		{"seed/tokens.yaml", &live},
		{"seed/cancelled.yaml", &cancelled},
		{"seed/activity.yaml", &feed},
		{"seed/reports.yaml", &summaries},
	}
	for _, f := range files {
		if err := decode(fsys, f.name, f.dst); err != nil {
			return Data{}, err
		}
	}

	data.Admins = admins.Admins
	data.Tokens = live.Tokens
	for i := range data.Tokens {
		if data.Tokens[i].Status == "" {
			data.Tokens[i].Status = tokens.StatusActive
		}
	}
	data.Cancelled = cancelled.Cancelled
	for i := range data.Cancelled {
		data.Cancelled[i].Status = tokens.StatusCancelled
	}
	data.Reports = summaries.Reports

	for _, rec := range feed.Activity {
		ts, err := time.ParseInLocation(timestampLayout, rec.Timestamp, loc)
		if err != nil {
			return Data{}, fmt.Errorf("seed: activity timestamp %q: %w", rec.Timestamp, err)
		}
		role, ok := access.ParseRole(rec.Role)
		if !ok {
			return Data{}, fmt.Errorf("seed: activity role %q unknown", rec.Role)
		}
		data.Activity = append(data.Activity, activity.Entry{
			Admin:     rec.Admin,
			Role:      role,
			Action:    rec.Action,
			Timestamp: ts,
			Details:   rec.Details,
			Status:    activity.Status(rec.Status),
		})
	}
	return data, nil
}

func decode(fsys fs.FS, name string, dst any) error {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("seed: read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("seed: decode %s: %w", name, err)
	}
	return nil
}
