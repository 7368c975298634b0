package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/crewline/crewline/internal/billing"
)

// IntegrityScanJob audits the billing ledger invariants. The database schema
// already enforces them going forward; the scan exists to catch rows imported
// from the legacy system and any manual surgery done around the constraints.
type IntegrityScanJob struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
	clock  func() time.Time
}

// NewIntegrityScanJob initialises the integrity scan handler.
func NewIntegrityScanJob(pool *pgxpool.Pool, logger *slog.Logger) *IntegrityScanJob {
	return &IntegrityScanJob{
		Pool:   pool,
		Logger: logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the integrity scan logic.
func (j *IntegrityScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("integrity scan: handler not configured")
	}
	var payload IntegrityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	logger := j.logger()
	logger.Info("starting billing integrity scan", slog.Bool("check_snapshots", payload.CheckSnapshots))

	claims, err := j.scanDoubleClaims(ctx)
	if err != nil {
		logger.Error("scan double claims", slog.Any("error", err))
		return err
	}
	for _, c := range claims {
		logger.Warn("job assignment billed more than once",
			slog.Int64("job_assignment_id", c.AssignmentID),
			slog.Int64("claims", c.Claims),
		)
	}

	drifted := 0
	if payload.CheckSnapshots {
		drifted, err = j.scanSnapshotDrift(ctx, logger)
		if err != nil {
			logger.Error("scan snapshot drift", slog.Any("error", err))
			return err
		}
	}

	logger.Info("completed billing integrity scan",
		slog.Int("double_claims", len(claims)),
		slog.Int("drifted_snapshots", drifted),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

type claimViolation struct {
	AssignmentID int64
	Claims       int64
}

func (j *IntegrityScanJob) scanDoubleClaims(ctx context.Context) ([]claimViolation, error) {
	if j.Pool == nil {
		return nil, errors.New("integrity scan: pool not configured")
	}
	const query = `
		SELECT job_assignment_id, COUNT(*)
		FROM invoice_line_items
		WHERE NOT voided
		GROUP BY job_assignment_id
		HAVING COUNT(*) > 1
		ORDER BY job_assignment_id`
	rows, err := j.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	violations := make([]claimViolation, 0)
	for rows.Next() {
		var v claimViolation
		if err := rows.Scan(&v.AssignmentID, &v.Claims); err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}

// scanSnapshotDrift recomputes each locked job's revenue from its live inputs
// and reports where the frozen figures diverge. Drift is information, not a
// defect: the snapshot is authoritative by definition.
func (j *IntegrityScanJob) scanSnapshotDrift(ctx context.Context, logger *slog.Logger) (int, error) {
	const query = `
		SELECT job_id, hourly_rate_net, first_hour_rate_net, notice_fee_net, vat_rate,
		       billable_hours_calculated, billable_hours_override, first_hour_units,
		       revenue_net_snapshot
		FROM billing_configs
		WHERE revenue_net_snapshot IS NOT NULL`
	rows, err := j.Pool.Query(ctx, query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	drifted := 0
	for rows.Next() {
		var (
			cfg                          billing.BillingConfig
			firstHourRate, hoursOverride decimal.NullDecimal
			snapNet                      decimal.Decimal
		)
		err := rows.Scan(
			&cfg.JobID,
			&cfg.HourlyRateNet,
			&firstHourRate,
			&cfg.NoticeFeeNet,
			&cfg.VATRate,
			&cfg.BillableHoursCalculated,
			&hoursOverride,
			&cfg.FirstHourUnits,
			&snapNet,
		)
		if err != nil {
			return 0, err
		}
		if firstHourRate.Valid {
			cfg.FirstHourRateNet = &firstHourRate.Decimal
		}
		if hoursOverride.Valid {
			cfg.BillableHoursOverride = &hoursOverride.Decimal
		}

		live := billing.CalculateRevenue(cfg)
		if !live.Net.Equal(snapNet) {
			drifted++
			logger.Warn("locked revenue differs from live inputs",
				slog.Int64("job_id", cfg.JobID),
				slog.String("snapshot_net", snapNet.String()),
				slog.String("live_net", live.Net.String()),
			)
		}
	}
	return drifted, rows.Err()
}

func (j *IntegrityScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBillingIntegrityScan))
	}
	return slog.Default().With(slog.String("job", TaskBillingIntegrityScan))
}

func (j *IntegrityScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
