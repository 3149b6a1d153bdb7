package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"

	"photodedup/internal/progress"
)

// barReporter renders engine progress as a terminal bar, one bar per
// phase. Safe for concurrent use; worker pools report from many
// goroutines.
type barReporter struct {
	mu    sync.Mutex
	phase progress.Phase
	bar   *progressbar.ProgressBar
}

func newBarReporter() *barReporter {
	return &barReporter{}
}

func (r *barReporter) Report(ev progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bar == nil || ev.Phase != r.phase {
		if r.bar != nil {
			_ = r.bar.Finish()
		}
		r.phase = ev.Phase
		r.bar = newPhaseBar(ev)
	}

	if ev.Total > 0 && ev.Total != r.bar.GetMax() {
		r.bar.ChangeMax(ev.Total)
	}
	_ = r.bar.Set(ev.Done)
}

// done finishes the current bar so summary output starts on a clean line.
func (r *barReporter) done() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		_ = r.bar.Finish()
		r.bar = nil
	}
}

func newPhaseBar(ev progress.Event) *progressbar.ProgressBar {
	max := ev.Total
	if max <= 0 {
		max = -1 // spinner until a total is known
	}
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(string(ev.Phase)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionThrottle(65*time.Millisecond),
	)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM, so a
// run stops between work units and reports partial results.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
