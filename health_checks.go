package appshell

import (
	"context"
	"fmt"
	"time"

	"github.com/GoCodeAlone/appshell/health"
)

// appsChecker reports quarantined applications as critical and an empty
// mounted set after start as a warning.
type appsChecker struct {
	shell *Shell
}

// NewAppsChecker returns a general health check over the shell's applications.
func NewAppsChecker(shell *Shell) health.HealthChecker {
	return &appsChecker{shell: shell}
}

func (c *appsChecker) Name() string { return "applications" }

func (c *appsChecker) Description() string {
	return "Reports quarantined applications and an empty mounted set"
}

func (c *appsChecker) Check(context.Context) (*health.CheckResult, error) {
	apps := c.shell.Apps()
	var broken, mounted []string
	for _, a := range apps {
		switch {
		case a.Status.Quarantined():
			broken = append(broken, a.Name)
		case a.Status == StatusMounted:
			mounted = append(mounted, a.Name)
		}
	}

	result := &health.CheckResult{
		Status:    health.StatusHealthy,
		Timestamp: time.Now(),
		Details: map[string]any{
			"registered":  len(apps),
			"mounted":     mounted,
			"quarantined": broken,
		},
	}
	switch {
	case len(broken) > 0:
		result.Status = health.StatusCritical
		result.Message = fmt.Sprintf("%d application(s) quarantined: %v", len(broken), broken)
	case c.shell.Started() && len(apps) > 0 && len(mounted) == 0:
		result.Status = health.StatusWarning
		result.Message = "no application mounted"
	default:
		result.Message = fmt.Sprintf("%d of %d application(s) mounted", len(mounted), len(apps))
	}
	return result, nil
}

// NewStartedChecker returns a readiness check that passes once the shell has
// started.
func NewStartedChecker(shell *Shell) health.HealthChecker {
	return &health.Check{
		CheckName:        "started",
		CheckDescription: "Shell has been started",
		Kind:             health.CheckTypeReadiness,
		Func: func(context.Context) (*health.CheckResult, error) {
			if shell.Started() {
				return &health.CheckResult{Status: health.StatusHealthy, Message: "started"}, nil
			}
			return &health.CheckResult{Status: health.StatusCritical, Message: "not started"}, nil
		},
	}
}
