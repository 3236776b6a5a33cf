package window

import (
	"context"
	"time"
)

const idleWait = 50 * time.Millisecond

// Run drives the window until it is closed or ctx is done. Each iteration
// polls events, applies the input bindings, runs the queued frame callbacks
// and presents the frame.
func Run(ctx context.Context, w *Window, sched *Scheduler, bindings *Bindings) {
	for !w.ShouldClose() {
		if ctx.Err() != nil {
			return
		}
		w.PollEvents()
		if bindings != nil {
			bindings.Apply(ctx)
		}
		if sched.RunFrame() > 0 {
			w.SwapBuffers()
			continue
		}
		// Nothing animating: sleep until input arrives.
		w.WaitEvents(idleWait)
	}
}
