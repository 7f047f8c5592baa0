// Package reports serves the daily, weekly and monthly token summaries.
package reports

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/tatkal-desk/tatkal/internal/platform/httpx"
)

// Period selects a report.
type Period string

// Report periods.
const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

// Periods lists report periods in display order.
var Periods = []Period{Daily, Weekly, Monthly}

// ErrUnknownPeriod is returned for periods with no report.
var ErrUnknownPeriod = fmt.Errorf("reports: unknown report period: %w", httpx.ErrNotFound)

// PeakLabel names what the peak value measures for the period.
func (p Period) PeakLabel() string {
	switch p {
	case Weekly:
		return "Peak Day"
	case Monthly:
		return "Peak Week"
	}
	return "Peak Hour"
}

// Summary is one period's token counts.
type Summary struct {
	Total          int    `json:"total" yaml:"total"`
	AC             int    `json:"ac" yaml:"ac"`
	Sleeper        int    `json:"sleeper" yaml:"sleeper"`
	Self           int    `json:"self" yaml:"self"`
	Representative int    `json:"representative" yaml:"representative"`
	Manual         int    `json:"manual" yaml:"manual"`
	Served         int    `json:"served" yaml:"served"`
	Pending        int    `json:"pending" yaml:"pending"`
	AverageWait    string `json:"average_wait" yaml:"average_wait"`
	Peak           string `json:"peak" yaml:"peak"`
}

// Shares are percentages of the total, unrounded.
type Shares struct {
	AC             float64 `json:"ac"`
	Sleeper        float64 `json:"sleeper"`
	Self           float64 `json:"self"`
	Representative float64 `json:"representative"`
	Manual         float64 `json:"manual"`
}

// Insights are the derived figures shown under a report.
type Insights struct {
	ServiceRate    int    `json:"service_rate"`
	PreferredClass string `json:"preferred_class"`
	PreferredCount int    `json:"preferred_count"`
	ManualShare    int    `json:"manual_share"`
	PeakLabel      string `json:"peak_label"`
	Peak           string `json:"peak"`
	Shares         Shares `json:"shares"`
}

// Catalog holds the summaries per period.
type Catalog struct {
	summaries map[Period]Summary
}

// NewCatalog constructs a Catalog.
func NewCatalog(summaries map[Period]Summary) *Catalog {
	copied := make(map[Period]Summary, len(summaries))
	for p, s := range summaries {
		copied[p] = s
	}
	return &Catalog{summaries: copied}
}

// Get returns the summary for p.
func (c *Catalog) Get(p Period) (Summary, error) {
	s, ok := c.summaries[p]
	if !ok {
		return Summary{}, ErrUnknownPeriod
	}
	return s, nil
}

// Derive computes the insights for s.
func Derive(p Period, s Summary) Insights {
	preferred, count := "Sleeper class", s.Sleeper
	if s.AC > s.Sleeper {
		preferred, count = "AC class", s.AC
	}
	return Insights{
		ServiceRate:    roundPercent(s.Served, s.Total),
		PreferredClass: preferred,
		PreferredCount: count,
		ManualShare:    roundPercent(s.Manual, s.Total),
		PeakLabel:      p.PeakLabel(),
		Peak:           s.Peak,
		Shares: Shares{
			AC:             percent(s.AC, s.Total),
			Sleeper:        percent(s.Sleeper, s.Total),
			Self:           percent(s.Self, s.Total),
			Representative: percent(s.Representative, s.Total),
			Manual:         percent(s.Manual, s.Total),
		},
	}
}

// WriteCSV writes the report download.
func WriteCSV(w io.Writer, p Period, date string, s Summary) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	records := [][]string{
		{"Report Type", string(p)},
		{"Date", date},
		{"Total Tokens", strconv.Itoa(s.Total)},
		{"AC Tokens", strconv.Itoa(s.AC)},
		{"Sleeper Tokens", strconv.Itoa(s.Sleeper)},
		{"Self Tokens", strconv.Itoa(s.Self)},
		{"Representative Tokens", strconv.Itoa(s.Representative)},
		{"Manual Tokens", strconv.Itoa(s.Manual)},
		{"Served Tokens", strconv.Itoa(s.Served)},
		{"Pending Tokens", strconv.Itoa(s.Pending)},
		{"Average Wait Time", s.AverageWait},
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) * 100 / float64(total)
}

func roundPercent(part, total int) int {
	return int(math.Round(percent(part, total)))
}
