package metrics

import (
	"log/slog"
	"runtime"
)

// Go runs fn on its own goroutine under supervision: the in-flight gauge
// tracks it, a panic is recovered and logged with a stack trace instead of
// killing the process. Detached pollers and orchestration tasks must not
// take down the update loop.
func Go(logger *slog.Logger, task string, fn func()) {
	BackgroundInFlight.WithLabelValues(task).Inc()
	go func() {
		outcome := "ok"
		defer func() {
			if r := recover(); r != nil {
				outcome = "panic"
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				logger.Error("background task panicked",
					"task", task,
					"panic", r,
					"stack", string(buf[:n]))
			}
			BackgroundInFlight.WithLabelValues(task).Dec()
			BackgroundTasks.WithLabelValues(task, outcome).Inc()
		}()
		fn()
	}()
}
