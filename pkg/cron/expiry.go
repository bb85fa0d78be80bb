package cron

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"gshvpn_backend/internal/model"
	"gshvpn_backend/internal/service"
)

type ExpiryReleaser interface {
	ReleaseExpired(ctx context.Context, now time.Time) ([]service.Expiry, error)
}

type ExpiredNotifier interface {
	Expired(ctx context.Context, user *model.User, sub *model.Subscription, releasedKeys int) error
}

type Deprovisioner interface {
	DetachAll(ctx context.Context, keys []model.VPNKey) error
}

// ExpirySweep frees capacity held by expired subscriptions, then removes
// their keys from the VPN panel and tells the owner.
type ExpirySweep struct {
	lifecycle ExpiryReleaser
	notifier  ExpiredNotifier
	panel     Deprovisioner
	now       func() time.Time
	log       zerolog.Logger
}

func NewExpirySweep(lifecycle ExpiryReleaser, notifier ExpiredNotifier, panel Deprovisioner, now func() time.Time, log zerolog.Logger) *ExpirySweep {
	return &ExpirySweep{
		lifecycle: lifecycle,
		notifier:  notifier,
		panel:     panel,
		now:       now,
		log:       log.With().Str("component", "expiry_sweep").Logger(),
	}
}

func (j *ExpirySweep) Name() string { return "expiry_sweep" }

func (j *ExpirySweep) Run(ctx context.Context) error {
	expired, sweepErr := j.lifecycle.ReleaseExpired(ctx, j.now().UTC())

	var errs []error
	if sweepErr != nil {
		errs = append(errs, sweepErr)
	}
	for i := range expired {
		e := &expired[i]
		if err := j.panel.DetachAll(ctx, e.Keys); err != nil {
			j.log.Warn().Err(err).Uint("subscription_id", e.Subscription.ID).Msg("could not remove expired keys from panel")
		}
		if err := j.notifier.Expired(ctx, &e.Subscription.User, &e.Subscription, len(e.Keys)); err != nil {
			errs = append(errs, err)
		}
	}

	j.log.Info().Int("subscriptions", len(expired)).Msg("expiry sweep done")
	return errors.Join(errs...)
}
