// Package depchecker checks reachability of backing services.
package depchecker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/omnidesk/omnidesk/internal/healthcheck"
)

const (
	checkTypeDependency = "dependency.reachable"
	defaultTimeout      = 2 * time.Second
)

// PingFunc checks one dependency.
type PingFunc func(ctx context.Context) error

// Checker pings a named dependency with a bounded timeout.
type Checker struct {
	name     string
	ping     PingFunc
	timeout  time.Duration
	optional bool
	logger   *slog.Logger
}

// NewChecker creates a dependency checker. Optional dependencies report a
// warning instead of an error when unreachable.
func NewChecker(log *slog.Logger, name string, ping PingFunc, optional bool) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		name:     name,
		ping:     ping,
		timeout:  defaultTimeout,
		optional: optional,
		logger:   log.With(slog.String("checker", "healthcheck_"+name)),
	}
}

// ListChecks pings the dependency once.
func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	item := healthcheck.CheckResult{
		ID:     c.name,
		Type:   checkTypeDependency,
		Status: healthcheck.StatusOK,
	}
	if c.ping == nil {
		item.Status = healthcheck.StatusUnknown
		item.Summary = fmt.Sprintf("%s is not configured.", c.name)
		return []healthcheck.CheckResult{item}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	err := c.ping(ctx)
	item.Metadata = map[string]any{"latency_ms": time.Since(start).Milliseconds()}
	if err != nil {
		c.logger.Warn("dependency unreachable", slog.Any("error", err))
		item.Status = healthcheck.StatusError
		if c.optional {
			item.Status = healthcheck.StatusWarn
		}
		item.Summary = fmt.Sprintf("%s is unreachable.", c.name)
		item.Detail = err.Error()
		return []healthcheck.CheckResult{item}
	}
	item.Summary = fmt.Sprintf("%s is reachable.", c.name)
	return []healthcheck.CheckResult{item}
}
