// Package async runs side effects that must not block or crash a request:
// mail delivery and event fan-out after a write has committed.
//
// # Overview
//
// Runner.Go executes a task in its own goroutine with:
//
//   - a timeout, detached from the caller's cancellation
//
//   - panic recovery with the stack logged through logrus
//
//   - error logging instead of propagation
//
//     runner := async.NewRunner(logger)
//     runner.Go(r.Context(), 10*time.Second, "deliver event", func(ctx context.Context) error {
//     return subscriber.Handle(ctx, evt)
//     })
//
// At shutdown, Runner.Wait drains in-flight tasks up to a deadline.
package async
