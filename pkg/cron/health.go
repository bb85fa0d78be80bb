package cron

import (
	"context"

	"github.com/rs/zerolog"

	"gshvpn_backend/internal/model"
)

type Fleet interface {
	List(ctx context.Context) ([]model.VPNServer, error)
	MarkHealthy(ctx context.Context, id uint) error
}

type Pinger interface {
	Ping(ctx context.Context, s *model.VPNServer) error
}

// HealthCheck pings every active server panel and stamps the ones that
// answer. Unreachable servers keep their last timestamp.
type HealthCheck struct {
	fleet  Fleet
	pinger Pinger
	log    zerolog.Logger
}

func NewHealthCheck(fleet Fleet, pinger Pinger, log zerolog.Logger) *HealthCheck {
	return &HealthCheck{fleet: fleet, pinger: pinger, log: log.With().Str("component", "health_check").Logger()}
}

func (j *HealthCheck) Name() string { return "server_health" }

func (j *HealthCheck) Run(ctx context.Context) error {
	servers, err := j.fleet.List(ctx)
	if err != nil {
		return err
	}

	healthy := 0
	for i := range servers {
		s := &servers[i]
		if !s.IsActive || s.ManagementURL == "" {
			continue
		}
		if err := j.pinger.Ping(ctx, s); err != nil {
			j.log.Warn().Err(err).Uint("server_id", s.ID).Str("name", s.Name).Msg("server unreachable")
			continue
		}
		if err := j.fleet.MarkHealthy(ctx, s.ID); err != nil {
			return err
		}
		healthy++
	}
	j.log.Debug().Int("servers", len(servers)).Int("healthy", healthy).Msg("health check done")
	return nil
}
