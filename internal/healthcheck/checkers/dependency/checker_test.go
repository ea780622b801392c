package depchecker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/omnidesk/omnidesk/internal/healthcheck"
)

func TestListChecks(t *testing.T) {
	t.Parallel()

	failing := func(context.Context) error { return errors.New("connection refused") }
	cases := []struct {
		name     string
		ping     PingFunc
		optional bool
		want     string
	}{
		{name: "reachable", ping: func(context.Context) error { return nil }, want: healthcheck.StatusOK},
		{name: "unreachable", ping: failing, want: healthcheck.StatusError},
		{name: "optional unreachable", ping: failing, optional: true, want: healthcheck.StatusWarn},
		{name: "not configured", want: healthcheck.StatusUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			items := NewChecker(nil, "postgres", tc.ping, tc.optional).ListChecks(context.Background())
			if len(items) != 1 {
				t.Fatalf("expected 1 item, got %d", len(items))
			}
			if items[0].Status != tc.want {
				t.Fatalf("status = %q, want %q", items[0].Status, tc.want)
			}
			if items[0].ID != "postgres" {
				t.Fatalf("unexpected id: %s", items[0].ID)
			}
		})
	}
}

func TestPingHonorsTimeout(t *testing.T) {
	t.Parallel()
	c := NewChecker(nil, "redis", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, false)
	c.timeout = 10 * time.Millisecond
	items := c.ListChecks(context.Background())
	if items[0].Status != healthcheck.StatusError {
		t.Fatalf("expected timeout to fail the check, got %q", items[0].Status)
	}
}
