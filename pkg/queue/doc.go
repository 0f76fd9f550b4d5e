// Package queue provides a repository-agnostic task queue with immediate and
// delayed execution, used to host webhook delivery jobs between attempts.
//
// The package is organised around two main components:
//
//   - Enqueuer: adds tasks to the queue
//   - Worker: claims due tasks and dispatches them to a Handler
//
// Components interact only through small repository interfaces, keeping the
// processing logic decoupled from persistence. Two storages are provided:
// MemoryStorage for tests and single-process deployments, and RedisStorage
// backed by sorted sets and a Lua claim script.
//
// # Task lifecycle
//
// A task is created pending with Attempt 1. A worker claims it under a lock and
// passes an Execution to the handler, which may:
//
//   - return nil: the task is completed and removed;
//   - call Execution.Release: the task becomes pending again after a delay with
//     Attempt incremented and, optionally, a new payload;
//   - call Execution.Discard: the task moves to the dead letter queue,
//     optionally with a final payload;
//   - return an error without deciding: the task moves to the dead letter queue.
//
// A lock that expires (crashed worker, handler overrunning the lock timeout)
// makes the task claimable again with the same Attempt, so handlers must
// tolerate at-least-once execution. A worker that lost its lock can no longer
// complete, release or discard the task: storages reject it with ErrTaskLockLost.
//
// # Usage
//
//	storage := queue.NewMemoryStorage()
//	defer storage.Close()
//
//	enqueuer, _ := queue.NewEnqueuer(storage, queue.WithDefaultQueue("webhooks"))
//	_, _ = enqueuer.Enqueue(ctx, payload,
//	    queue.WithTaskName("webhook.delivery"),
//	    queue.WithDelay(time.Minute),
//	)
//
//	worker, _ := queue.NewWorker(storage, queue.WithQueues("webhooks"))
//	_ = worker.RegisterHandler(queue.NewHandler("webhook.delivery",
//	    func(ctx context.Context, exec *queue.Execution) error {
//	        if exec.Attempt() < 3 {
//	            return exec.Release(ctx, time.Second, nil)
//	        }
//	        return nil
//	    }))
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(worker.Run(ctx))
//
// # Error Handling
//
// Package-level sentinel errors (e.g. ErrNoHandlers, ErrTaskNotProcessing)
// can be checked with errors.Is.
package queue
