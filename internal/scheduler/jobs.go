package scheduler

import (
	"context"
	"time"

	"github.com/tunerdesk/calsync/internal/domain"
	"github.com/tunerdesk/calsync/internal/provider"
	"github.com/tunerdesk/calsync/internal/update"

	"github.com/rs/zerolog"
)

type CheckUpdatesJob struct {
	Name          string
	Log           zerolog.Logger
	Version       string
	updateService *update.Service

	lastCheckVersion string
}

func (j *CheckUpdatesJob) Run() {
	newRelease, err := j.updateService.CheckUpdateAvailable(context.TODO())
	if err != nil {
		j.Log.Error().Err(err).Msg("could not check for new release")
		return
	}

	if newRelease != nil {
		// this is not persisted so this can trigger more than once
		// lets check if we have different versions between runs
		if newRelease.TagName != j.lastCheckVersion {
			j.Log.Info().Msgf("a new release has been found: %v Consider updating.", newRelease.TagName)
		}

		j.lastCheckVersion = newRelease.TagName
	}
}

// WebhookRenewalJob sweeps for push subscriptions nearing expiry and renews
// them. One failing connection never stops the sweep.
type WebhookRenewalJob struct {
	Name      string
	Log       zerolog.Logger
	Repo      domain.ConnectionRepo
	Adapters  *provider.Registry
	Lookahead time.Duration
}

func (j *WebhookRenewalJob) Run() {
	ctx := context.Background()
	cutoff := time.Now().Add(j.Lookahead)

	connections, err := j.Repo.FindWebhooksExpiringBefore(ctx, cutoff)
	if err != nil {
		j.Log.Error().Err(err).Msg("Failed to find expiring webhook subscriptions")
		return
	}

	if len(connections) == 0 {
		j.Log.Debug().Msg("No webhook subscriptions close to expiry")
		return
	}

	j.Log.Info().Msgf("Found %d webhook subscription(s) to renew.", len(connections))

	successCount := 0
	failCount := 0
	for i := range connections {
		conn := &connections[i]

		adapter, err := j.Adapters.For(conn.Provider)
		if err != nil {
			j.Log.Error().Err(err).Str("connectionID", conn.ID).Msg("No adapter for connection provider")
			failCount++
			continue
		}

		sub, err := adapter.RenewWebhookSubscription(ctx, conn)
		if err != nil {
			j.Log.Error().Err(err).Str("connectionID", conn.ID).Msg("Failed to renew webhook subscription")
			failCount++
			continue
		}

		if err := j.Repo.UpdateWebhook(ctx, conn.ID, sub); err != nil {
			j.Log.Error().Err(err).Str("connectionID", conn.ID).Msg("Failed to persist renewed webhook subscription")
			failCount++
			continue
		}

		j.Log.Info().Str("connectionID", conn.ID).Time("expiration", sub.Expiration).Msg("Webhook subscription renewed")
		successCount++
	}

	j.Log.Info().Msgf("Webhook renewal sweep finished. Success: %d, Failed: %d", successCount, failCount)
}
