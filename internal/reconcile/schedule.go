package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs audits periodically on a cron spec. A scheduled audit is
// just another on-demand caller of Run.
type Scheduler struct {
	r       *Reconciler
	cron    *cron.Cron
	timeout time.Duration
}

// Schedule registers periodic audits. spec accepts the standard
// five-field format and descriptors such as "@daily" or "@every 6h".
func (r *Reconciler) Schedule(spec string, timeout time.Duration) (*Scheduler, error) {
	c := cron.New()
	s := &Scheduler{r: r, cron: c, timeout: timeout}
	if _, err := c.AddFunc(spec, s.runOnce); err != nil {
		return nil, fmt.Errorf("invalid audit schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) runOnce() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if _, err := s.r.Run(ctx); err != nil {
		s.r.log.Warn().Err(err).Msg("scheduled audit failed")
	}
}

// Start begins the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.r.log.Info().Int("entries", len(s.cron.Entries())).Msg("audit schedule started")
}

// Stop halts the schedule and waits for a running audit to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
