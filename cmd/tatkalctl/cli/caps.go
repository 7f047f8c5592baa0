package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/tatkal-desk/tatkal/internal/access"
)

type capsReport struct {
	Role         access.Role         `json:"role"`
	Label        string              `json:"label"`
	Capabilities []access.Capability `json:"capabilities"`
}

func runCaps(ctx context.Context, env Env, args []string) int {
	var raw string
	var asJSON bool
	fs := pflag.NewFlagSet("caps", pflag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	fs.StringVar(&raw, "role", "", "role to inspect (superadmin, stationadmin, clerk, passenger)")
	fs.BoolVar(&asJSON, "json", false, "output as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	role, ok := access.ParseRole(raw)
	if !ok {
		_, _ = fmt.Fprintf(env.Stderr, "caps: unknown role %q\n", raw)
		return 1
	}

	report := capsReport{
		Role:         role,
		Label:        role.DisplayName(),
		Capabilities: access.CapabilitiesFor(role).Sorted(),
	}
	if asJSON {
		if err := json.NewEncoder(env.Stdout).Encode(report); err != nil {
			_, _ = fmt.Fprintf(env.Stderr, "caps: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	if len(report.Capabilities) == 0 {
		_, _ = fmt.Fprintf(env.Stdout, "%s: no capabilities\n", displayRole(report))
		return 0
	}
	_, _ = fmt.Fprintf(env.Stdout, "%s:\n", displayRole(report))
	for _, c := range report.Capabilities {
		_, _ = fmt.Fprintf(env.Stdout, "  %s\n", c)
	}
	return 0
}

func displayRole(r capsReport) string {
	if r.Label != "" {
		return r.Label
	}
	return "anonymous"
}
