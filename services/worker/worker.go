package worker

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"sjsage522/pricemonitor/internal/monitor"
	"sjsage522/pricemonitor/logger"
	"sjsage522/pricemonitor/pkg/errors"
	"sjsage522/pricemonitor/services/publisher"
)

// Runner runs one monitoring cycle
type Runner interface {
	RunCycle(ctx context.Context) (*monitor.CycleResult, error)
}

// Worker runs monitoring cycles on a schedule and publishes the changes they find
type Worker struct {
	runner    Runner
	publisher publisher.Publisher
	schedule  string
}

// NewWorker creates a new worker. pub may be nil, in which case changes are only logged.
func NewWorker(runner Runner, pub publisher.Publisher, schedule string) *Worker {
	return &Worker{
		runner:    runner,
		publisher: pub,
		schedule:  schedule,
	}
}

// Start runs one cycle right away and then one per schedule tick until ctx
// is cancelled. It returns once the running cycle, if any, has finished.
func (w *Worker) Start(ctx context.Context) error {
	c := cron.New(
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
	)
	if _, err := c.AddFunc(w.schedule, func() { _, _ = w.RunOnce(ctx) }); err != nil {
		return errors.NewConfiguration(fmt.Sprintf("invalid schedule %q", w.schedule), err)
	}

	logger.ForWorker().Info().Str("schedule", w.schedule).Msg("Worker started")
	c.Start()

	_, _ = w.RunOnce(ctx)

	<-ctx.Done()
	<-c.Stop().Done()

	logger.ForWorker().Info().Msg("Worker stopped")
	return nil
}

// RunOnce runs a cycle and publishes its changes. Changes of a cycle that
// did not complete are not published: the baseline was not saved, so the
// next cycle reports them again.
func (w *Worker) RunOnce(ctx context.Context) (*monitor.CycleResult, error) {
	log := logger.ForWorker()

	result, err := w.runner.RunCycle(ctx)
	if stderrors.Is(err, monitor.ErrBusy) {
		log.Info().Msg("Cycle skipped, another one is still running")
		return nil, err
	}
	if err != nil {
		log.Error().Err(err).Msg("Cycle did not complete")
		return result, err
	}

	for _, se := range result.Errors {
		log.Warn().Str("source", se.Source).Err(se.Err).Msg("Source failed during cycle")
	}
	if len(result.Records) == 0 {
		log.Warn().Str("cycle", result.ID).Msg("Cycle produced no data")
		return result, nil
	}

	w.publishChanges(ctx, result.Changes)
	return result, nil
}

func (w *Worker) publishChanges(ctx context.Context, changes []monitor.PriceChangeEvent) {
	if len(changes) == 0 {
		return
	}

	log := logger.ForWorker()
	for _, change := range changes {
		log.Info().
			Str("key", change.Key).
			Str("name", change.Name).
			Str("previous", change.PreviousPrice.String()).
			Str("current", change.CurrentPrice.String()).
			Str("percent", change.ChangePercent.StringFixed(2)).
			Msg("Price changed")

		if w.publisher == nil {
			continue
		}

		data, err := json.Marshal(change)
		if err != nil {
			logger.LogError("worker", err, "failed to encode change for %s", change.Key)
			continue
		}
		if err := w.publisher.Publish(ctx, change.Key, data); err != nil {
			logger.LogError("worker", err, "failed to publish change for %s", change.Key)
		}
	}

	if w.publisher != nil {
		if err := w.publisher.TrimStreams(ctx); err != nil {
			logger.LogError("worker", err, "failed to trim streams")
		}
	}
}

// cronLogger routes cron's scheduler messages into the worker logger
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.ForWorker().Debug().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.ForWorker().Error().Err(err).Fields(keysAndValues).Msg(msg)
}
