package auth

import "github.com/tatkal-desk/tatkal/internal/access"

// Admin is a station staff account.
type Admin struct {
	Username     string
	Name         string
	Role         access.Role
	PasswordHash string
}

// AdminSeed is a demo account as it appears in the fixtures, before hashing.
type AdminSeed struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Role     string `yaml:"role"`
}

// Login outcomes recorded in metrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// OTP purposes.
const PurposeLogin = "login"

// Session keys owned by this package.
const (
	otpMobileKey = "otp_mobile"
)
