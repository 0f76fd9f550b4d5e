// Package delivery runs webhook delivery jobs on the task queue.
//
// Dispatcher enqueues a webhook.Job as a task named TaskName. The handler
// returned by NewHandler decodes the job from the task payload and hands it to
// a webhook.Deliverer, with the running queue.Execution acting as the
// webhook.Scheduler:
//
//   - CurrentAttempt is the task attempt number.
//   - Schedule releases the task with the updated job and the backoff delay.
//   - Discard moves the task to the dead letter queue.
//
// Wiring:
//
//	storage := queue.NewMemoryStorage()
//	enqueuer, _ := queue.NewEnqueuer(storage, queue.WithDefaultQueue("webhooks"))
//	dispatcher := delivery.NewDispatcher(enqueuer)
//
//	worker, _ := queue.NewWorker(storage, queue.WithQueues("webhooks"))
//	_ = worker.RegisterHandler(delivery.NewHandler(webhook.NewDeliverer()))
//
//	job, _ := webhook.NewJob(webhook.Request{Method: "POST", URL: "https://example.com/hook"})
//	_, _ = dispatcher.Dispatch(ctx, job)
package delivery
