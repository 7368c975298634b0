package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/crewline/crewline/internal/summary"
)

// SummaryWarmupJob pre-computes period summaries so the first operator of the
// day hits a warm cache.
type SummaryWarmupJob struct {
	Summary *summary.Service
	Logger  *slog.Logger
	clock   func() time.Time
}

// NewSummaryWarmupJob wires dependencies for the warmup handler.
func NewSummaryWarmupJob(summarySvc *summary.Service, logger *slog.Logger) *SummaryWarmupJob {
	return &SummaryWarmupJob{
		Summary: summarySvc,
		Logger:  logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes summary warmup tasks.
func (j *SummaryWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Summary == nil {
		return errors.New("summary warmup: handler not configured")
	}
	var payload SummaryWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Months < 0 {
		payload.Months = 0
	}

	start := j.now()
	logger := j.logger().With(slog.Int("months", payload.Months))
	logger.Info("starting summary warmup")

	warmed := 0
	for back := 0; back <= payload.Months; back++ {
		from, to := monthWindow(start, back)
		windowCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		_, err := j.Summary.Summary(windowCtx, from, to)
		cancel()
		if err != nil {
			logger.Error("warm window",
				slog.Time("from", from),
				slog.Time("to", to),
				slog.Any("error", err),
			)
			return err
		}
		warmed++
	}

	logger.Info("completed summary warmup",
		slog.Int("windows", warmed),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// monthWindow returns the calendar month `back` months before now; back 0 is
// month-to-date.
func monthWindow(now time.Time, back int) (time.Time, time.Time) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -back, 0)
	if back == 0 {
		return first, time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	return first, first.AddDate(0, 1, -1)
}

func (j *SummaryWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSummaryWarmup))
	}
	return slog.Default().With(slog.String("job", TaskSummaryWarmup))
}

func (j *SummaryWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
