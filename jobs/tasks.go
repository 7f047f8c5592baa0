package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOTPDispatch sends a one-time password to a passenger mobile.
	TaskOTPDispatch = "otp:dispatch"
	// TaskTokenConfirmation delivers the registration confirmation slip.
	TaskTokenConfirmation = "token:confirmation"
	// TaskPhaseAnnouncement announces the start of a daily phase.
	TaskPhaseAnnouncement = "clock:phase"
)

// OTPDispatchPayload describes an OTP delivery.
type OTPDispatchPayload struct {
	Mobile  string `json:"mobile"`
	Purpose string `json:"purpose"`
}

// ConfirmationPayload carries a rendered confirmation slip.
type ConfirmationPayload struct {
	Reference string `json:"reference"`
	Mobile    string `json:"mobile"`
	Slip      string `json:"slip"`
}

// PhaseAnnouncementPayload names the phase a cron entry announces.
type PhaseAnnouncementPayload struct {
	Phase string `json:"phase"`
}

// NewOTPDispatchTask constructs an Asynq task.
func NewOTPDispatchTask(payload OTPDispatchPayload) (*asynq.Task, error) {
	return newTask(TaskOTPDispatch, payload)
}

// NewConfirmationTask constructs an Asynq task.
func NewConfirmationTask(payload ConfirmationPayload) (*asynq.Task, error) {
	return newTask(TaskTokenConfirmation, payload)
}

// NewPhaseAnnouncementTask constructs an Asynq task.
func NewPhaseAnnouncementTask(payload PhaseAnnouncementPayload) (*asynq.Task, error) {
	return newTask(TaskPhaseAnnouncement, payload)
}

func newTask(kind string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(kind, data), nil
}

// MaskMobile hides all but the last four digits.
func MaskMobile(mobile string) string {
	if len(mobile) <= 4 {
		return mobile
	}
	masked := make([]byte, len(mobile))
	for i := range masked {
		if i < len(mobile)-4 {
			masked[i] = '*'
		} else {
			masked[i] = mobile[i]
		}
	}
	return string(masked)
}
