package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerops/bridgewatch/internal/core/domain"
	"github.com/ledgerops/bridgewatch/internal/infra/storage"
)

// StatusRepo implements storage.StatusRepository using PostgreSQL.
type StatusRepo struct {
	db *DB
}

// NewStatusRepo creates a new PostgreSQL status repository.
func NewStatusRepo(db *DB) *StatusRepo {
	return &StatusRepo{db: db}
}

// statusRow mirrors the watchdog_status table. The per-severity alert stamps
// are flattened into one column each.
type statusRow struct {
	TargetID             string       `db:"target_id"`
	State                string       `db:"state"`
	ConsecutiveFailures  int          `db:"consecutive_failures"`
	HealingAttemptsTotal int64        `db:"healing_attempts_total"`
	LastProbeAt          sql.NullTime `db:"last_probe_at"`
	LastHealthyAt        sql.NullTime `db:"last_healthy_at"`
	LastHealingAttemptAt sql.NullTime `db:"last_healing_attempt_at"`
	LastInfoAlertAt      sql.NullTime `db:"last_info_alert_at"`
	LastCriticalAlertAt  sql.NullTime `db:"last_critical_alert_at"`
	UpdatedAt            time.Time    `db:"updated_at"`
}

func (row statusRow) toDomain() *domain.WatchdogStatus {
	s := domain.NewWatchdogStatus(row.TargetID)
	s.State = domain.State(row.State)
	s.ConsecutiveFailures = row.ConsecutiveFailures
	s.HealingAttemptsTotal = row.HealingAttemptsTotal
	s.LastProbeAt = row.LastProbeAt.Time
	s.LastHealthyAt = row.LastHealthyAt.Time
	s.LastHealingAttemptAt = row.LastHealingAttemptAt.Time
	s.UpdatedAt = row.UpdatedAt
	if row.LastInfoAlertAt.Valid {
		s.MarkAlerted(domain.SeverityInfo, row.LastInfoAlertAt.Time)
	}
	if row.LastCriticalAlertAt.Valid {
		s.MarkAlerted(domain.SeverityCritical, row.LastCriticalAlertAt.Time)
	}
	return s
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func alertStamp(s *domain.WatchdogStatus, sev domain.Severity) sql.NullTime {
	if at, ok := s.LastAlert(sev); ok {
		return sql.NullTime{Time: at, Valid: true}
	}
	return sql.NullTime{}
}

// Get retrieves the status record for a target.
func (r *StatusRepo) Get(ctx context.Context, targetID string) (*domain.WatchdogStatus, error) {
	query := `
		SELECT target_id, state, consecutive_failures, healing_attempts_total,
		       last_probe_at, last_healthy_at, last_healing_attempt_at,
		       last_info_alert_at, last_critical_alert_at, updated_at
		FROM watchdog_status
		WHERE target_id = $1
	`
	var row statusRow
	err := r.db.GetContext(ctx, &row, query, targetID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrStatusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get watchdog status: %w", err)
	}
	return row.toDomain(), nil
}

// Save inserts or replaces the status record.
func (r *StatusRepo) Save(ctx context.Context, status *domain.WatchdogStatus) error {
	query := `
		INSERT INTO watchdog_status (
			target_id, state, consecutive_failures, healing_attempts_total,
			last_probe_at, last_healthy_at, last_healing_attempt_at,
			last_info_alert_at, last_critical_alert_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (target_id) DO UPDATE SET
			state = EXCLUDED.state,
			consecutive_failures = EXCLUDED.consecutive_failures,
			healing_attempts_total = EXCLUDED.healing_attempts_total,
			last_probe_at = EXCLUDED.last_probe_at,
			last_healthy_at = EXCLUDED.last_healthy_at,
			last_healing_attempt_at = EXCLUDED.last_healing_attempt_at,
			last_info_alert_at = EXCLUDED.last_info_alert_at,
			last_critical_alert_at = EXCLUDED.last_critical_alert_at,
			updated_at = EXCLUDED.updated_at
	`
	updatedAt := status.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, query,
		status.TargetID,
		string(status.State),
		status.ConsecutiveFailures,
		status.HealingAttemptsTotal,
		nullTime(status.LastProbeAt),
		nullTime(status.LastHealthyAt),
		nullTime(status.LastHealingAttemptAt),
		alertStamp(status, domain.SeverityInfo),
		alertStamp(status, domain.SeverityCritical),
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save watchdog status: %w", err)
	}
	return nil
}

// List retrieves all status records ordered by target id.
func (r *StatusRepo) List(ctx context.Context) ([]*domain.WatchdogStatus, error) {
	query := `
		SELECT target_id, state, consecutive_failures, healing_attempts_total,
		       last_probe_at, last_healthy_at, last_healing_attempt_at,
		       last_info_alert_at, last_critical_alert_at, updated_at
		FROM watchdog_status
		ORDER BY target_id
	`
	var rows []statusRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list watchdog statuses: %w", err)
	}

	out := make([]*domain.WatchdogStatus, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
