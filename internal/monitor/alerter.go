package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/imertz/greek-sites-monitor/internal/notify"
	"github.com/imertz/greek-sites-monitor/internal/store"
)

type AlerterConfig struct {
	AlertOnRecovery bool
	Cooldown        time.Duration
	PollInterval    time.Duration
}

// Alerter scans the latest per-site status and notifies on up/down
// transitions. Repeated DOWN notifications for the same site are
// suppressed inside the cooldown window; recovery notifications bypass
// it.
type Alerter struct {
	logger   *zap.Logger
	results  store.ResultStore
	states   store.AlertStore
	notifier notify.Notifier
	cfg      AlerterConfig
}

func NewAlerter(logger *zap.Logger, results store.ResultStore, states store.AlertStore, notifier notify.Notifier, cfg AlerterConfig) *Alerter {
	return &Alerter{
		logger:   logger,
		results:  results,
		states:   states,
		notifier: notifier,
		cfg:      cfg,
	}
}

func (a *Alerter) Run(ctx context.Context) error {
	t := time.NewTicker(a.cfg.PollInterval)
	defer t.Stop()

	_ = a.ScanOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			_ = a.ScanOnce(ctx)
		}
	}
}

func (a *Alerter) ScanOnce(ctx context.Context) error {
	rows, err := a.results.LatestStatus(ctx)
	if err != nil {
		a.logger.Warn("alerter_scan_error", zap.Error(err))
		return err
	}

	now := time.Now().UTC()

	for _, r := range rows {
		rec, err := a.states.AlertState(ctx, r.SiteName)
		if err != nil {
			a.logger.Warn("alert_state_error", zap.String("site", r.SiteName), zap.Error(err))
			continue
		}

		stateChanged := rec == nil || rec.LastUp != r.Up

		cooled := true
		if rec != nil && rec.LastSentAt != nil {
			cooled = now.Sub(*rec.LastSentAt) >= a.cfg.Cooldown
		}

		downAlert := stateChanged && !r.Up && cooled
		recoveryAlert := stateChanged && r.Up && a.cfg.AlertOnRecovery

		if downAlert || recoveryAlert {
			title := "🔴 Site DOWN"
			if r.Up {
				title = "🟢 Site RECOVERED"
			}

			statusTxt := "n/a"
			if r.StatusCode != nil {
				statusTxt = fmt.Sprintf("%d", *r.StatusCode)
			}
			reason := ""
			if r.ErrorMessage != nil {
				reason = *r.ErrorMessage
			}
			text := fmt.Sprintf(
				"Site: %s\nURL: %s\nHTTP: %s\nReason: %s\nChecked: %s",
				r.SiteName, r.URL, statusTxt, reason, r.Timestamp.Format(time.RFC3339),
			)

			if err := a.notifier.Send(ctx, title, text); err != nil {
				a.logger.Warn("alert_send_error", zap.String("site", r.SiteName), zap.Error(err))
			}
			_ = a.states.SetAlertState(ctx, r.SiteName, r.Up, now)
			continue
		}

		// State changed but nothing was sent (cooldown, or recovery alerts
		// disabled): still record the new state without a send time.
		if stateChanged {
			_ = a.states.SetAlertState(ctx, r.SiteName, r.Up, time.Time{})
		}
	}

	return nil
}
