package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatkal-desk/tatkal/internal/access"
	"github.com/tatkal-desk/tatkal/internal/clock"
	"github.com/tatkal-desk/tatkal/jobs"
)

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	code := Run(context.Background(), Env{Stdout: stdout, Stderr: stderr, RedisAddr: "127.0.0.1:0"}, args)
	return code, stdout.String(), stderr.String()
}

func TestRunUsage(t *testing.T) {
	code, _, stderr := run(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "usage: tatkalctl")

	code, _, stderr = run(t, "reboot")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, `unknown command "reboot"`)

	code, _, _ = run(t, "help")
	assert.Equal(t, 0, code)
}

func TestPhaseCommand(t *testing.T) {
	cases := []struct {
		at    string
		phase clock.Phase
		gap   bool
	}{
		{"00:10", clock.PendingListGeneration, true},
		{"00:30", clock.RegistrationOpen, false},
		{"08:59", clock.RegistrationOpen, false},
		{"09:00", clock.PendingListGeneration, false},
		{"09:14", clock.PendingListGeneration, false},
		{"09:15", clock.ListAvailable, false},
		{"23:59", clock.ListAvailable, false},
	}
	for _, tc := range cases {
		t.Run(tc.at, func(t *testing.T) {
			code, stdout, stderr := run(t, "phase", "--at", tc.at, "--date", "2024-01-15", "--tz", "UTC", "--json")
			require.Equal(t, 0, code, stderr)
			var snap clock.Snapshot
			require.NoError(t, json.Unmarshal([]byte(stdout), &snap))
			assert.Equal(t, tc.phase, snap.Phase)
			assert.Equal(t, tc.gap, snap.PreOpenGap)
		})
	}
}

func TestPhaseCommandHuman(t *testing.T) {
	code, stdout, _ := run(t, "phase", "--at", "00:10", "--date", "2024-01-15", "--tz", "UTC")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "12:10:00 AM")
	assert.Contains(t, stdout, "before the 00:30 opening")
	assert.Contains(t, stdout, "next: registration_open at 2024-01-15 00:30")
}

func TestPhaseCommandRejectsBadInput(t *testing.T) {
	code, _, stderr := run(t, "phase", "--at", "9am")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "expected HH:MM")

	code, _, stderr = run(t, "phase", "--date", "15/01/2024")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "expected YYYY-MM-DD")

	code, _, stderr = run(t, "phase", "--tz", "Mars/Olympus")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown time zone")

	code, _, _ = run(t, "phase", "--bogus")
	assert.Equal(t, 2, code)
}

func TestPhaseOptionsInstant(t *testing.T) {
	now := time.Date(2024, time.March, 3, 7, 45, 12, 0, time.UTC)

	got, err := PhaseOptions{Timezone: "UTC"}.instant(now)
	require.NoError(t, err)
	assert.Equal(t, now, got)

	got, err = PhaseOptions{Timezone: "UTC", Date: "2024-01-15"}.instant(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.January, 15, 7, 45, 12, 0, time.UTC), got)

	got, err = PhaseOptions{Timezone: "Asia/Kolkata", At: "09:15"}.instant(now)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Hour())
	assert.Equal(t, 15, got.Minute())
	assert.Equal(t, "Asia/Kolkata", got.Location().String())
}

func TestCapsCommand(t *testing.T) {
	code, stdout, stderr := run(t, "caps", "--role", "clerk", "--json")
	require.Equal(t, 0, code, stderr)
	var report capsReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, access.RoleClerk, report.Role)
	assert.Equal(t, "Clerk", report.Label)
	assert.Equal(t, []access.Capability{
		access.ViewLiveMonitoring,
		access.GenerateTokenList,
		access.IssueManualTokens,
	}, report.Capabilities)

	code, stdout, _ = run(t, "caps", "--role", "SuperAdmin")
	require.Equal(t, 0, code)
	for _, c := range access.AllCapabilities {
		assert.Contains(t, stdout, string(c))
	}

	code, stdout, _ = run(t, "caps", "--role", "passenger")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Passenger: no capabilities")

	code, stdout, _ = run(t, "caps")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "anonymous: no capabilities")

	code, _, stderr = run(t, "caps", "--role", "porter")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, `unknown role "porter"`)
}

func TestBuildTask(t *testing.T) {
	task, err := BuildTask(jobs.TaskPhaseAnnouncement, TriggerParams{Phase: string(clock.ListAvailable)})
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskPhaseAnnouncement, task.Type())
	assert.JSONEq(t, `{"phase":"list_available"}`, string(task.Payload()))

	task, err = BuildTask(jobs.TaskOTPDispatch, TriggerParams{Mobile: "9876543210"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"mobile":"9876543210","purpose":"manual"}`, string(task.Payload()))

	_, err = BuildTask(jobs.TaskPhaseAnnouncement, TriggerParams{Phase: "lunch"})
	assert.Error(t, err)
	_, err = BuildTask(jobs.TaskOTPDispatch, TriggerParams{})
	assert.Error(t, err)
	_, err = BuildTask("ledger:close", TriggerParams{})
	assert.EqualError(t, err, "jobs cli: unsupported job ledger:close")
}

func TestJobsCommandValidatesBeforeConnecting(t *testing.T) {
	code, _, stderr := run(t, "jobs")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "usage: tatkalctl jobs")

	code, _, stderr = run(t, "jobs", "purge")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, `unknown subcommand "purge"`)

	code, _, _ = run(t, "jobs", "trigger")
	assert.Equal(t, 2, code)

	code, _, stderr = run(t, "jobs", "trigger", "ledger:close")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unsupported job")
}

func TestNilJobsCLI(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(context.Background(), jobs.TaskPhaseAnnouncement, TriggerParams{Phase: "registration_open"})
	assert.Error(t, err)
	_, err = c.InspectQueue(context.Background())
	assert.Error(t, err)
}
