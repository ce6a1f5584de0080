package watcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"shifttrack/config"
	"shifttrack/model"
	"shifttrack/repository"
	"shifttrack/shift"
	"shifttrack/utils"

	"github.com/robfig/cron/v3"
)

// DailyReport summarizes one run of the daily closer.
type DailyReport struct {
	ForceClosed int   `json:"force_closed"`
	Deduped     int   `json:"deduped"`
	Archived    int   `json:"archived"`
	Purged      int64 `json:"purged"`
}

// DailyCloser closes stragglers from earlier days, removes duplicate live sessions,
// archives old sessions and purges old archive entries. Each step runs even if an
// earlier one failed, and each is safe to repeat.
type DailyCloser struct {
	sessions repository.SessionStore
	users    repository.UserStore
	archive  repository.ArchiveStore
	policy   *shift.Policy
	clock    utils.Clock
	cfg      config.WatcherConfig

	cron *cron.Cron
}

func NewDailyCloser(
	sessions repository.SessionStore,
	users repository.UserStore,
	archive repository.ArchiveStore,
	policy *shift.Policy,
	clock utils.Clock,
	cfg config.WatcherConfig,
) *DailyCloser {
	return &DailyCloser{
		sessions: sessions,
		users:    users,
		archive:  archive,
		policy:   policy,
		clock:    clock,
		cfg:      cfg,
	}
}

// Schedule registers RunOnce on the configured cron spec in the organization's zone.
// Overlapping runs are skipped.
func (d *DailyCloser) Schedule(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(d.policy.Location()),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	_, err := c.AddFunc(d.cfg.DailyCloseSpec, func() {
		runCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
		defer cancel()
		if _, err := d.RunOnce(runCtx); err != nil {
			log.Printf("Daily close finished with errors: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid daily close schedule %q: %w", d.cfg.DailyCloseSpec, err)
	}
	d.cron = c
	c.Start()
	log.Printf("Daily close scheduled at %q (%s)", d.cfg.DailyCloseSpec, d.policy.Location())
	return nil
}

// Stop halts the schedule and waits for a running job to finish.
func (d *DailyCloser) Stop() {
	if d.cron == nil {
		return
	}
	<-d.cron.Stop().Done()
}

func (d *DailyCloser) RunOnce(ctx context.Context) (*DailyReport, error) {
	now := d.clock.Now()
	today := d.policy.StartOfDay(now)
	report := &DailyReport{}

	var errs []error
	step := func(name string, run func() (int, error)) {
		n, err := run()
		utils.TrackSweep("daily_"+name, n, err)
		if err != nil {
			log.Printf("Daily close step %s failed: %v", name, err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		log.Printf("Daily close step %s: %d sessions", name, n)
	}

	step("force_close", func() (n int, err error) {
		report.ForceClosed, err = d.forceClose(ctx, today)
		return report.ForceClosed, err
	})
	step("dedupe", func() (n int, err error) {
		report.Deduped, err = d.dedupe(ctx)
		return report.Deduped, err
	})
	step("archive", func() (n int, err error) {
		report.Archived, err = d.archiveOld(ctx, today)
		return report.Archived, err
	})
	step("purge", func() (n int, err error) {
		report.Purged, err = d.purgeOld(ctx, today)
		return int(report.Purged), err
	})

	return report, errors.Join(errs...)
}

// forceClose ends every live session created before today at its last activity.
func (d *DailyCloser) forceClose(ctx context.Context, today time.Time) (int, error) {
	stale, err := d.sessions.Find(ctx, model.SessionQuery{
		Statuses:      model.LiveStatuses,
		CreatedBefore: today,
		SortAsc:       true,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to find stale sessions: %w", err)
	}

	closed, err := applyEach(ctx, d.sessions, "force_close", stale, func(s *model.Session) {
		d.policy.AddActiveSeconds(s, s.LastActivity, s.LastActivity)
		s.LogoutTime = model.TimePtr(s.LastActivity)
		s.IsIdle = false
		s.SetStatus(model.StatusOffline)
	})
	for _, s := range closed {
		releaseUser(ctx, d.sessions, d.users, s.UserID)
	}
	return len(closed), err
}

// dedupe keeps only the newest live session of each user; older ones are closed
// at their last activity without adding time.
func (d *DailyCloser) dedupe(ctx context.Context) (int, error) {
	live, err := d.sessions.Find(ctx, model.SessionQuery{Statuses: model.LiveStatuses})
	if err != nil {
		return 0, fmt.Errorf("failed to find live sessions: %w", err)
	}

	seen := make(map[string]bool, len(live))
	var extra []*model.Session
	for _, s := range live {
		if seen[s.UserID] {
			extra = append(extra, s)
			continue
		}
		seen[s.UserID] = true
	}
	if len(extra) == 0 {
		return 0, nil
	}

	closed, err := applyEach(ctx, d.sessions, "dedupe", extra, func(s *model.Session) {
		s.LogoutTime = model.TimePtr(s.LastActivity)
		s.IsIdle = false
		s.SetStatus(model.StatusOffline)
	})
	return len(closed), err
}

// archiveOld moves sessions older than the archive retention in chunks.
func (d *DailyCloser) archiveOld(ctx context.Context, today time.Time) (int, error) {
	if d.cfg.ArchiveRetention <= 0 {
		return 0, nil
	}
	cutoff := today.AddDate(0, 0, -d.cfg.ArchiveRetention)
	chunk := d.cfg.ArchiveChunk
	if chunk <= 0 {
		chunk = 1000
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := d.archive.ArchiveBefore(ctx, cutoff, chunk)
		total += n
		if err != nil {
			return total, err
		}
		if n < chunk {
			return total, nil
		}
	}
}

func (d *DailyCloser) purgeOld(ctx context.Context, today time.Time) (int64, error) {
	if d.cfg.DeleteRetention <= 0 {
		return 0, nil
	}
	cutoff := today.AddDate(0, 0, -d.cfg.DeleteRetention)
	return d.archive.PurgeBefore(ctx, cutoff)
}
