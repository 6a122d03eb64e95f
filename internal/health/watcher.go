package health

import (
	"context"
	"time"

	"github.com/PentesterFlow/OpenExplorer/internal/logger"
	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// DefaultInterval is the pause between watcher sweeps.
const DefaultInterval = time.Minute

// Watcher runs TestAll on a fixed interval.
type Watcher struct {
	tester   *Tester
	interval time.Duration
	log      *logger.Logger

	// OnSweep, when set, receives the results of every sweep.
	OnSweep func(results map[string]model.ConnectionTestResult)
}

// NewWatcher creates a watcher. A non-positive interval uses DefaultInterval.
func NewWatcher(tester *Tester, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{tester: tester, interval: interval, log: tester.log.WithComponent("watcher")}
}

// Run sweeps immediately and then every interval until ctx is done. It
// returns the number of completed sweeps.
func (w *Watcher) Run(ctx context.Context) int {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	sweeps := 0
	for {
		results, err := w.tester.TestAll(ctx)
		if err != nil {
			return sweeps
		}
		sweeps++

		healthy := 0
		for _, r := range results {
			if r.Success {
				healthy++
			}
		}
		w.log.WithField("endpoints", len(results)).
			WithField("healthy", healthy).
			Info("Health sweep complete")

		if w.OnSweep != nil {
			w.OnSweep(results)
		}

		select {
		case <-ctx.Done():
			return sweeps
		case <-ticker.C:
		}
	}
}
