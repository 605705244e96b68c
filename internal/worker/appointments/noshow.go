package appointmentworker

import (
	"context"
	"time"

	"github.com/waylio/waylio-platform/internal/appointments"
	"github.com/waylio/waylio-platform/internal/identity"
	"github.com/waylio/waylio-platform/pkg/logging"
)

// DefaultNoShowGrace is how long past its slot a SCHEDULED appointment may sit.
const DefaultNoShowGrace = 2 * time.Hour

// systemCaller is the actor recorded on sweeper transitions.
var systemCaller = identity.Caller{Email: "system@waylio", Role: identity.RoleAdmin}

type noShowMarker interface {
	ListScheduledBetween(ctx context.Context, from, to time.Time) ([]*appointments.Appointment, error)
	MarkNoShow(ctx context.Context, actor identity.Caller, id string) (*appointments.Appointment, error)
}

// NoShowSweeper marks stale SCHEDULED appointments NO_SHOW.
type NoShowSweeper struct {
	source noShowMarker
	grace  time.Duration
	logger *logging.Logger
	now    func() time.Time
}

func NewNoShowSweeper(source noShowMarker, logger *logging.Logger) *NoShowSweeper {
	if logger == nil {
		logger = logging.Default()
	}
	return &NoShowSweeper{
		source: source,
		grace:  DefaultNoShowGrace,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *NoShowSweeper) WithGrace(d time.Duration) *NoShowSweeper {
	if d > 0 {
		s.grace = d
	}
	return s
}

func (s *NoShowSweeper) Name() string { return "no_show_sweep" }

// RunOnce returns how many appointments were moved to NO_SHOW.
func (s *NoShowSweeper) RunOnce(ctx context.Context) int {
	if s.source == nil {
		return 0
	}
	cutoff := s.now().Add(-s.grace)
	stale, err := s.source.ListScheduledBetween(ctx, time.Time{}, cutoff)
	if err != nil {
		s.logger.Error("no-show fetch failed", "error", err)
		return 0
	}
	marked := 0
	for _, a := range stale {
		if _, err := s.source.MarkNoShow(ctx, systemCaller, a.ID); err != nil {
			s.logger.Warn("no-show transition failed", "error", err, "appointment_id", a.ID)
			continue
		}
		marked++
	}
	if marked > 0 {
		s.logger.Info("appointments marked no-show", "count", marked, "cutoff", cutoff)
	}
	return marked
}
