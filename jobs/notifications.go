package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tatkal-desk/tatkal/internal/jobs"
)

// NotificationJob delivers passenger notifications. Delivery is a log line;
// there is no SMS gateway behind the demo desk.
type NotificationJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// HandleOTPDispatch processes TaskOTPDispatch tasks.
func (j *NotificationJob) HandleOTPDispatch(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("otp dispatch: handler not configured")
	}
	var payload OTPDispatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Mobile == "" {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskOTPDispatch)
	j.logger().Info("otp dispatched",
		slog.String("mobile", MaskMobile(payload.Mobile)),
		slog.String("purpose", payload.Purpose),
	)
	j.Metrics.AddNotification("sms")
	return tracker.End(nil)
}

// HandleConfirmation processes TaskTokenConfirmation tasks.
func (j *NotificationJob) HandleConfirmation(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("confirmation: handler not configured")
	}
	var payload ConfirmationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Reference == "" {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskTokenConfirmation)
	j.logger().Info("confirmation slip sent",
		slog.String("reference", payload.Reference),
		slog.String("mobile", MaskMobile(payload.Mobile)),
		slog.Int("slip_bytes", len(payload.Slip)),
	)
	j.Metrics.AddNotification("slip")
	return tracker.End(nil)
}

func (j *NotificationJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// PhaseAnnouncementJob logs the start of a daily phase.
type PhaseAnnouncementJob struct {
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	Location *time.Location
	clock    func() time.Time
}

// Handle processes TaskPhaseAnnouncement tasks.
func (j *PhaseAnnouncementJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("phase announcement: handler not configured")
	}
	var payload PhaseAnnouncementPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Phase == "" {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskPhaseAnnouncement)
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("phase started",
		slog.String("phase", payload.Phase),
		slog.Time("at", j.now()),
	)
	return tracker.End(nil)
}

func (j *PhaseAnnouncementJob) now() time.Time {
	now := time.Now
	if j.clock != nil {
		now = j.clock
	}
	loc := j.Location
	if loc == nil {
		loc = time.UTC
	}
	return now().In(loc)
}
