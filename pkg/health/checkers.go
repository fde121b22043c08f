package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck flags a goroutine leak: the check fails once the live
// goroutine count exceeds threshold. The API server wires it as a liveness
// check since a leaking handler eventually starves the process.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		n := runtime.NumGoroutine()
		if n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when any recorded stop-the-world pause exceeds
// threshold, signalling memory pressure before it turns into timeouts on the
// catalog endpoints.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(_ context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)

		for _, pause := range stats.Pause {
			if pause > threshold {
				return errors.Errorf("GC pause %s exceeds threshold %s", pause, threshold)
			}
		}
		return nil
	}
}
