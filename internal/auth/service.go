package auth

import (
	"context"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/tatkal-desk/tatkal/internal/access"
	"github.com/tatkal-desk/tatkal/internal/activity"
	"github.com/tatkal-desk/tatkal/internal/shared"
)

// OTPSender delivers login OTPs.
type OTPSender interface {
	SendOTP(ctx context.Context, mobile, purpose string) error
}

// ActivityRecorder appends admin activity.
type ActivityRecorder interface {
	Record(ctx context.Context, e activity.Entry) activity.Entry
}

// Metrics counts login attempts.
type Metrics interface {
	RecordLogin(role, outcome string)
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	demoOTP  string
	sender   OTPSender
	activity ActivityRecorder
	metrics  Metrics
}

// NewService constructs a new Service. sender, recorder and metrics may be nil.
func NewService(repo Repository, demoOTP string, sender OTPSender, recorder ActivityRecorder, metrics Metrics) *Service {
	return &Service{
		repo:     repo,
		demoOTP:  demoOTP,
		sender:   sender,
		activity: recorder,
		metrics:  metrics,
	}
}

// AuthenticateAdmin validates username/password credentials. Every attempt
// lands in the activity feed.
func (s *Service) AuthenticateAdmin(ctx context.Context, username, password string) (Admin, error) {
	admin, err := s.repo.FindAdmin(ctx, username)
	if err == nil {
		err = bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password))
	}
	if err != nil {
		s.recordLogin(string(admin.Role), OutcomeFailure)
		s.record(ctx, activity.Entry{
			Admin:   username,
			Role:    admin.Role,
			Action:  activity.ActionFailedLogin,
			Details: "Invalid credentials entered",
			Status:  activity.StatusWarning,
		})
		return Admin{}, shared.ErrInvalidCredentials
	}
	s.recordLogin(string(admin.Role), OutcomeSuccess)
	s.record(ctx, activity.Entry{
		Admin:   admin.Username,
		Role:    admin.Role,
		Action:  activity.ActionLogin,
		Details: fmt.Sprintf("%s logged in", admin.Role.DisplayName()),
		Status:  activity.StatusSuccess,
	})
	return admin, nil
}

// RequestPassengerOTP sends a login OTP to mobile.
func (s *Service) RequestPassengerOTP(ctx context.Context, mobile string) error {
	if s.sender == nil {
		return nil
	}
	return s.sender.SendOTP(ctx, mobile, PurposeLogin)
}

// AuthenticatePassenger checks the OTP entered for mobile.
func (s *Service) AuthenticatePassenger(_ context.Context, mobile, otp string) error {
	if !s.VerifyOTP(otp) {
		s.recordLogin(string(access.RolePassenger), OutcomeFailure)
		return shared.ErrInvalidCredentials
	}
	s.recordLogin(string(access.RolePassenger), OutcomeSuccess)
	return nil
}

// VerifyOTP compares code against the demo OTP in constant time.
func (s *Service) VerifyOTP(code string) bool {
	if s.demoOTP == "" || code == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(code), []byte(s.demoOTP)) == 1
}

// RecordLogout logs an admin sign-out. Passengers are not tracked.
func (s *Service) RecordLogout(ctx context.Context, p shared.Principal) {
	role := access.Role(p.Role)
	if !role.IsAdmin() {
		return
	}
	s.record(ctx, activity.Entry{
		Admin:   p.Identity,
		Role:    role,
		Action:  activity.ActionLogout,
		Details: fmt.Sprintf("%s logged out", role.DisplayName()),
		Status:  activity.StatusInfo,
	})
}

func (s *Service) record(ctx context.Context, e activity.Entry) {
	if s.activity != nil {
		s.activity.Record(ctx, e)
	}
}

func (s *Service) recordLogin(role, outcome string) {
	if s.metrics == nil {
		return
	}
	if role == "" {
		role = "unknown"
	}
	s.metrics.RecordLogin(role, outcome)
}
