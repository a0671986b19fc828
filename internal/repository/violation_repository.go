package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizhive/proctor-backend/internal/model"
)

// ViolationRepository handles recorded violation data access.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// ListBySession retrieves the recorded violations for one session in the
// order they were observed. The ordinal is the 1-based position within its
// kind, matching the counter values the controller reported.
func (r *ViolationRepository) ListBySession(ctx context.Context, sessionID string) ([]model.Violation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, kind, payload, recorded_at,
		        ROW_NUMBER() OVER (PARTITION BY kind ORDER BY recorded_at) AS ordinal
		 FROM session_violations
		 WHERE session_id = $1
		 ORDER BY recorded_at`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var violations []model.Violation
	for rows.Next() {
		var v model.Violation
		if err := rows.Scan(&v.ID, &v.SessionID, &v.Kind, &v.Payload, &v.RecordedAt, &v.Ordinal); err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}

// CountBySession returns per-kind violation totals for one session.
func (r *ViolationRepository) CountBySession(ctx context.Context, sessionID string) (map[model.ViolationKind]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT kind, COUNT(*)
		 FROM session_violations
		 WHERE session_id = $1
		 GROUP BY kind`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.ViolationKind]int)
	for rows.Next() {
		var kind model.ViolationKind
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}
