package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/pflag"

	"github.com/tatkal-desk/tatkal/internal/clock"
	"github.com/tatkal-desk/tatkal/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsCLI connects the helpers to the given Redis address.
func NewJobsCLI(redisAddr string) *JobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// TriggerParams select the task built by Trigger.
type TriggerParams struct {
	Phase  string
	Mobile string
}

// BuildTask constructs a supported task by type name.
func BuildTask(name string, params TriggerParams) (*asynq.Task, error) {
	switch name {
	case jobs.TaskPhaseAnnouncement:
		switch clock.Phase(params.Phase) {
		case clock.RegistrationOpen, clock.PendingListGeneration, clock.ListAvailable:
		default:
			return nil, fmt.Errorf("jobs cli: unknown phase %q", params.Phase)
		}
		return jobs.NewPhaseAnnouncementTask(jobs.PhaseAnnouncementPayload{Phase: params.Phase})
	case jobs.TaskOTPDispatch:
		if params.Mobile == "" {
			return nil, errors.New("jobs cli: --mobile is required for otp dispatch")
		}
		return jobs.NewOTPDispatchTask(jobs.OTPDispatchPayload{Mobile: params.Mobile, Purpose: "manual"})
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, params TriggerParams) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := BuildTask(name, params)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

func runJobs(ctx context.Context, env Env, args []string) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(env.Stderr, "usage: tatkalctl jobs trigger <type> [--phase P] [--mobile M] | jobs stats [--json]")
		return 2
	}
	switch args[0] {
	case "trigger":
		return runJobsTrigger(ctx, env, args[1:])
	case "stats":
		return runJobsStats(ctx, env, args[1:])
	}
	_, _ = fmt.Fprintf(env.Stderr, "jobs: unknown subcommand %q\n", args[0])
	return 2
}

func runJobsTrigger(ctx context.Context, env Env, args []string) int {
	var params TriggerParams
	fs := pflag.NewFlagSet("jobs trigger", pflag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	fs.StringVar(&params.Phase, "phase", string(clock.RegistrationOpen), "phase to announce for "+jobs.TaskPhaseAnnouncement)
	fs.StringVar(&params.Mobile, "mobile", "", "passenger mobile for "+jobs.TaskOTPDispatch)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprintf(env.Stderr, "jobs trigger: expected one task type (%s or %s)\n", jobs.TaskPhaseAnnouncement, jobs.TaskOTPDispatch)
		return 2
	}
	name := fs.Arg(0)
	if _, err := BuildTask(name, params); err != nil {
		_, _ = fmt.Fprintf(env.Stderr, "jobs trigger: %v\n", err)
		return 1
	}

	c := NewJobsCLI(env.RedisAddr)
	defer c.Close()
	info, err := c.Trigger(ctx, name, params)
	if err != nil {
		_, _ = fmt.Fprintf(env.Stderr, "jobs trigger: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(env.Stdout, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	return 0
}

func runJobsStats(ctx context.Context, env Env, args []string) int {
	var asJSON bool
	fs := pflag.NewFlagSet("jobs stats", pflag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	fs.BoolVar(&asJSON, "json", false, "output as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c := NewJobsCLI(env.RedisAddr)
	defer c.Close()
	stats, err := c.InspectQueue(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(env.Stderr, "jobs stats: %v\n", err)
		return 1
	}
	if asJSON {
		if err := json.NewEncoder(env.Stdout).Encode(stats); err != nil {
			_, _ = fmt.Fprintf(env.Stderr, "jobs stats: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(env.Stdout, "queue %s: pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	return 0
}
