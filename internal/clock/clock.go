package clock

import "time"

// Clock reads the current time in the station time zone.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// New returns a Clock bound to loc. A nil loc means UTC.
func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc, now: time.Now}
}

// WithNow overrides the time source. Intended for tests.
func (c *Clock) WithNow(now func() time.Time) *Clock {
	if now != nil {
		c.now = now
	}
	return c
}

// Location returns the station time zone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// Now returns the current time in the station time zone.
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Phase returns the phase at the current instant.
func (c *Clock) Phase() Phase {
	return PhaseAt(c.Now())
}

// Snapshot describes the clock at one instant, as served to clients.
type Snapshot struct {
	Time           time.Time `json:"time"`
	Display        string    `json:"display"`
	Phase          Phase     `json:"phase"`
	PhaseLabel     string    `json:"phase_label"`
	PreOpenGap     bool      `json:"pre_open_gap"`
	CutoffPassed   bool      `json:"cutoff_passed"`
	NextTransition time.Time `json:"next_transition"`
	NextPhase      Phase     `json:"next_phase"`
}

// Snapshot computes the Snapshot for the current instant.
func (c *Clock) Snapshot() Snapshot {
	return SnapshotAt(c.Now())
}

// SnapshotAt computes the Snapshot for t.
func SnapshotAt(t time.Time) Snapshot {
	next, nextPhase := NextTransition(t)
	phase := PhaseAt(t)
	return Snapshot{
		Time:           t,
		Display:        t.Format("03:04:05 PM"),
		Phase:          phase,
		PhaseLabel:     phase.Label(),
		PreOpenGap:     InPreOpenGap(t),
		CutoffPassed:   CutoffPassed(t),
		NextTransition: next,
		NextPhase:      nextPhase,
	}
}
