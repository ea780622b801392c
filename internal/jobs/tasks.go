package jobs

import (
	"context"
	"log/slog"

	"github.com/omnidesk/omnidesk/internal/conversation"
)

// FieldRefresher reloads the cached profile field configuration.
type FieldRefresher interface {
	Refresh(ctx context.Context) error
}

// DashboardSource computes traffic totals.
type DashboardSource interface {
	Dashboard(ctx context.Context) (conversation.Dashboard, error)
}

// ConnectionCounter reports live staff sockets.
type ConnectionCounter interface {
	StaffCount() int
}

// FieldRefreshJob keeps the field cache warm so turns never hit a cold load.
func FieldRefreshJob(spec string, fields FieldRefresher) Job {
	return Job{
		Name: "field_refresh",
		Spec: spec,
		Run:  fields.Refresh,
	}
}

// DashboardLogJob logs a traffic snapshot.
func DashboardLogJob(log *slog.Logger, spec string, src DashboardSource, conns ConnectionCounter) Job {
	return Job{
		Name: "dashboard_log",
		Spec: spec,
		Run: func(ctx context.Context) error {
			d, err := src.Dashboard(ctx)
			if err != nil {
				return err
			}
			attrs := []any{
				slog.Int64("sessions", d.TotalSessions),
				slog.Int64("messages", d.TotalMessages),
			}
			for _, c := range d.Sessions {
				attrs = append(attrs, slog.Int64("sessions_"+c.Channel, c.Total))
			}
			if conns != nil {
				attrs = append(attrs, slog.Int("staff_online", conns.StaffCount()))
			}
			log.Info("dashboard snapshot", attrs...)
			return nil
		},
	}
}
