package async

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Runner starts panic-safe background tasks and can wait for them to drain
// at shutdown. The zero value is not usable; call NewRunner.
type Runner struct {
	logger *logrus.Logger
	wg     sync.WaitGroup
}

// NewRunner returns a runner logging failures to logger
func NewRunner(logger *logrus.Logger) *Runner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Runner{logger: logger}
}

// Go executes fn in a goroutine with a timeout, panic recovery and error
// logging. The task context is detached from parent cancellation so work
// started by a request outlives the response, but keeps parent values.
//
// Example:
//
//	runner.Go(r.Context(), 10*time.Second, "send confirm mail", func(ctx context.Context) error {
//	    return mailer.SendConfirm(ctx, user)
//	})
func (r *Runner) Go(parent context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), timeout)
		defer cancel()

		defer func() {
			if rec := recover(); rec != nil {
				r.logger.WithFields(logrus.Fields{
					"task":  taskName,
					"panic": rec,
					"stack": string(debug.Stack()),
				}).Error("panic in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			r.logger.WithError(err).WithField("task", taskName).Warn("background task failed")
		}
	}()
}

// Wait blocks until all started tasks finish or timeout elapses. It
// reports whether every task finished.
func (r *Runner) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
