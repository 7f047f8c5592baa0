// Package tokens holds token records, passenger registrations and the
// monitoring actions admins take on them.
package tokens

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tatkal-desk/tatkal/internal/access"
	"github.com/tatkal-desk/tatkal/internal/platform/httpx"
)

// Class is the travel class.
type Class string

// Travel classes.
const (
	ClassAC      Class = "AC"
	ClassSleeper Class = "Sleeper"
)

// Kind is how a token was obtained. It is rendered as "Type".
type Kind string

// Token kinds.
const (
	KindSelf           Kind = "Self"
	KindRepresentative Kind = "Representative"
	KindManual         Kind = "Manual"
)

// Status is the lifecycle state of a token.
type Status string

// Token statuses.
const (
	StatusActive    Status = "Active"
	StatusServed    Status = "Served"
	StatusCancelled Status = "Cancelled"
)

// ReasonOther requires a free-text reason alongside it.
const ReasonOther = "Other"

// ManualReasons are accepted justifications for a manual token.
var ManualReasons = []string{"No Aadhaar", "OTP Failed", "Elderly", "No Phone", ReasonOther}

// CancellationReasons are accepted justifications for a cancellation.
var CancellationReasons = []string{
	"Passenger Request",
	"Duplicate Entry",
	"Invalid Documents",
	"System Error",
	"No Show",
	"Administrative",
	ReasonOther,
}

var (
	// ErrTokenNotFound is returned for unknown token numbers.
	ErrTokenNotFound = fmt.Errorf("tokens: token not found: %w", httpx.ErrNotFound)
	// ErrRegistrationNotFound is returned for unknown references.
	ErrRegistrationNotFound = fmt.Errorf("tokens: registration not found: %w", httpx.ErrNotFound)
	// ErrTokenNotActive blocks serving or cancelling a token twice.
	ErrTokenNotActive = fmt.Errorf("tokens: token is not active: %w", httpx.ErrConflict)
	// ErrManualAfterCutoff blocks manual issue after 09:00.
	ErrManualAfterCutoff = fmt.Errorf("tokens: manual tokens cannot be issued after 9:00 AM: %w", httpx.ErrConflict)
	// ErrUnknownReason rejects reasons outside the accepted lists.
	ErrUnknownReason = fmt.Errorf("tokens: unknown reason: %w", httpx.ErrValidation)
	// ErrCustomReasonRequired is returned for "Other" without text.
	ErrCustomReasonRequired = fmt.Errorf("tokens: custom reason required: %w", httpx.ErrValidation)
	// ErrOTPMismatch rejects a wrong registration OTP.
	ErrOTPMismatch = fmt.Errorf("tokens: otp verification failed: %w", httpx.ErrValidation)
	// ErrDuplicateRegistration rejects a second registration for the same Aadhaar on one day.
	ErrDuplicateRegistration = fmt.Errorf("tokens: aadhaar already registered today: %w", httpx.ErrConflict)
)

var errNilService = errors.New("tokens: service not initialised")

// Cancellation records who cancelled a token and why.
type Cancellation struct {
	By           string      `json:"by" yaml:"by"`
	ByRole       access.Role `json:"by_role" yaml:"by_role"`
	ByRoleLabel  string      `json:"by_role_label" yaml:"-"`
	Reason       string      `json:"reason" yaml:"reason"`
	CustomReason string      `json:"custom_reason,omitempty" yaml:"custom_reason"`
	Time         string      `json:"time" yaml:"time"`
	Date         string      `json:"date" yaml:"date"`
}

// EffectiveReason returns the custom reason for "Other", else the reason.
func (c Cancellation) EffectiveReason() string {
	if c.Reason == ReasonOther && c.CustomReason != "" {
		return c.CustomReason
	}
	return c.Reason
}

// Token is an issued token on today's list.
type Token struct {
	Number        string        `json:"number" yaml:"number"`
	Class         Class         `json:"class" yaml:"class"`
	Type          Kind          `json:"type" yaml:"type"`
	Passengers    int           `json:"passengers" yaml:"passengers"`
	Status        Status        `json:"status" yaml:"status"`
	Time          string        `json:"time" yaml:"time"`
	Name          string        `json:"name,omitempty" yaml:"name"`
	PassengerName string        `json:"passenger_name,omitempty" yaml:"passenger_name"`
	RepName       string        `json:"rep_name,omitempty" yaml:"rep_name"`
	Aadhaar       string        `json:"aadhaar,omitempty" yaml:"aadhaar"`
	Reason        string        `json:"reason,omitempty" yaml:"reason"`
	Cancellation  *Cancellation `json:"cancellation,omitempty" yaml:"cancellation"`
}

// DisplayName is the name shown for the token holder.
func (t Token) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.PassengerName
}

// AadhaarOrReason is the admin CSV's last column.
func (t Token) AadhaarOrReason() string {
	switch {
	case t.Aadhaar != "":
		return t.Aadhaar
	case t.Reason != "":
		return t.Reason
	}
	return "N/A"
}

// Registration is a pending entry made before the 09:00 cutoff. Numbers
// are not assigned; the reference identifies it.
type Registration struct {
	Reference     string    `json:"reference"`
	Class         Class     `json:"class"`
	Type          Kind      `json:"type"`
	Passengers    int       `json:"passengers"`
	Mobile        string    `json:"mobile,omitempty"`
	Name          string    `json:"name,omitempty"`
	PassengerName string    `json:"passenger_name,omitempty"`
	RepName       string    `json:"rep_name,omitempty"`
	Aadhaar       string    `json:"aadhaar,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	IssuedBy      string    `json:"issued_by,omitempty"`
	RegisteredAt  time.Time `json:"registered_at"`
}

// ListFilter narrows token listings. Empty fields match everything.
type ListFilter struct {
	Search string
	Class  Class
	Type   Kind
	Status Status
}

// CancelledFilter narrows the cancelled monitor.
type CancelledFilter struct {
	Search string
	Class  Class
	Type   Kind
	ByRole access.Role
	Reason string
	Date   string
}

// Stats summarises a token listing.
type Stats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Served    int `json:"served"`
	Cancelled int `json:"cancelled"`
	AC        int `json:"ac"`
	Sleeper   int `json:"sleeper"`
	Manual    int `json:"manual"`
}

// CancelledStats summarises the cancelled monitor.
type CancelledStats struct {
	Total          int `json:"total"`
	Today          int `json:"today"`
	Yesterday      int `json:"yesterday"`
	BySuperAdmin   int `json:"by_super_admin"`
	ByStationAdmin int `json:"by_station_admin"`
	ByClerk        int `json:"by_clerk"`
}

// MaskAadhaar renders a 12-digit Aadhaar as ****-****-NNNN.
func MaskAadhaar(aadhaar string) string {
	digits := strings.TrimSpace(aadhaar)
	if len(digits) < 4 {
		return "****-****-****"
	}
	return "****-****-" + digits[len(digits)-4:]
}

func validReason(reason string, allowed []string) bool {
	for _, r := range allowed {
		if r == reason {
			return true
		}
	}
	return false
}

func checkReason(reason, custom string, allowed []string) error {
	if !validReason(reason, allowed) {
		return ErrUnknownReason
	}
	if reason == ReasonOther && strings.TrimSpace(custom) == "" {
		return ErrCustomReasonRequired
	}
	return nil
}
