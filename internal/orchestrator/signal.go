package orchestrator

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"github.com/randomizedcoder/stream-ripper/internal/supervisor"
)

// watchSignals clears flag on the first shutdown signal. The returned
// function stops watching and waits for the watcher goroutine to exit.
func watchSignals(flag *supervisor.RunningFlag, logger *slog.Logger) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals...)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case sig := <-sigCh:
			logger.Info("received_signal", "signal", sig.String())
			flag.Stop()
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(done)
			wg.Wait()
		})
	}
}
