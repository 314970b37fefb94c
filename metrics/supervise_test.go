package metrics

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGoRunsFunction(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var wg sync.WaitGroup
	wg.Add(1)
	ran := false
	Go(logger, "test", func() {
		ran = true
		wg.Done()
	})
	wg.Wait()

	assert.True(t, ran)
}

// signalWriter closes its channel on the first write, letting the test wait
// for the supervisor's recover path to log.
type signalWriter struct {
	once sync.Once
	ch   chan struct{}
}

func (w *signalWriter) Write(p []byte) (int, error) {
	w.once.Do(func() { close(w.ch) })
	return len(p), nil
}

func TestGoRecoversPanic(t *testing.T) {
	w := &signalWriter{ch: make(chan struct{})}
	logger := slog.New(slog.NewTextHandler(w, nil))

	Go(logger, "panicky", func() {
		panic("boom")
	})

	// The panic must be recovered and logged instead of killing the process.
	<-w.ch
}
