// Package housekeeping runs a purely observational background reporter:
// a periodic snapshot of every device queue's depth, logged for
// operators. It never touches scheduling state.
package housekeeping

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Snapshotter reports the current depth of every device queue it knows
// about. *registry.Registry satisfies this.
type Snapshotter interface {
	Snapshot() map[string]int
}

// Reporter logs a queue-depth snapshot on a cron schedule.
type Reporter struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// New builds a Reporter that logs reg's queue depths according to
// schedule, a six-field cron expression with a seconds column (e.g.
// "*/30 * * * * *" for every 30s), so sub-minute reporting intervals
// work.
func New(reg Snapshotter, logger *slog.Logger, schedule string) (*Reporter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
	)))
	r := &Reporter{cron: c, logger: logger}
	_, err := c.AddFunc(schedule, func() {
		r.report(reg)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reporter) report(reg Snapshotter) {
	depths := reg.Snapshot()
	if len(depths) == 0 {
		r.logger.Debug("queue depth snapshot", "devices", 0)
		return
	}
	for device, depth := range depths {
		r.logger.Info("queue depth snapshot", "device", device, "depth", depth)
	}
}

// Start begins running the reporter in the background.
func (r *Reporter) Start() {
	r.cron.Start()
}

// Stop halts the reporter and waits for any in-flight report to finish.
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
}
