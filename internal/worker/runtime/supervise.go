package runtime

import (
	"context"
	"time"
)

// Supervise waits for h for at most timeout. When the timeout expires or ctx is
// cancelled the process is interrupted, given grace to flush partial output,
// then killed. timedOut reports whether the timeout, not ctx, ended the run.
func Supervise(ctx context.Context, h Handle, timeout, grace time.Duration) (res ExitResult, timedOut bool, err error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	res, err = h.Wait(waitCtx)
	cancel()
	if err == nil {
		return res, false, nil
	}

	timedOut = ctx.Err() == nil

	// The parent context may be gone; escalation must still run.
	bg := context.WithoutCancel(ctx)

	_ = h.Interrupt(bg)
	graceCtx, cancel := context.WithTimeout(bg, grace)
	res, err = h.Wait(graceCtx)
	cancel()
	if err != nil {
		killCtx, cancel := context.WithTimeout(bg, 10*time.Second)
		defer cancel()
		if stopErr := h.Stop(killCtx); stopErr != nil {
			return ExitResult{ExitCode: -1, Error: stopErr}, timedOut, stopErr
		}
		res, _ = h.Wait(killCtx)
	}

	if !timedOut {
		return res, false, ctx.Err()
	}
	return res, true, nil
}
