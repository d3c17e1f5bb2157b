package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Easy-Rad/wally/internal/domain"
	"github.com/Easy-Rad/wally/internal/metrics"
)

// UserRepo implements domain.UserRepository backed by PostgreSQL.
type UserRepo struct {
	pool *pgxpool.Pool
}

// NewUserRepo creates a UserRepo from the shared pool.
func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) GetByPACS(ctx context.Context, pacs string) (*domain.User, error) {
	var user domain.User
	var physch, pacsName *string
	var ps360 *int64
	err := r.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, pacs, physch, ps360
		FROM users
		WHERE pacs = $1
	`, pacs).Scan(&user.ID, &user.FirstName, &user.LastName, &pacsName, &physch, &ps360)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user by pacs: %w", err)
	}
	if pacsName != nil {
		user.PACS = *pacsName
	}
	if physch != nil {
		user.PhySch = *physch
	}
	if ps360 != nil {
		user.PS360 = *ps360
	}
	return &user, nil
}

func (r *UserRepo) ResetPresence(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET pacs_presence = $1`, domain.PresenceOffline)
	if err != nil {
		metrics.DBWriteErrors.WithLabelValues("reset_presence").Inc()
		return fmt.Errorf("failed to reset presence: %w", err)
	}
	return nil
}

func (r *UserRepo) UpdatePresence(ctx context.Context, pacs string, presence domain.Presence) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET pacs_presence = $1, pacs_last_updated = NOW()
		WHERE pacs = $2 AND pacs_presence <> $1
	`, presence, pacs)
	if err != nil {
		metrics.DBWriteErrors.WithLabelValues("update_presence").Inc()
		return false, fmt.Errorf("failed to update presence: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *UserRepo) UpdateLastEvents(ctx context.Context, events map[int64]domain.LastEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for accountID, event := range events {
		batch.Queue(`
			UPDATE users
			SET ps360_last_event_type = $1,
			    ps360_last_event_timestamp = $2,
			    ps360_last_event_workstation = $3
			WHERE ps360 = $4
		`, event.Type, event.Timestamp, event.Workstation, accountID)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range events {
		if _, err := results.Exec(); err != nil {
			metrics.DBWriteErrors.WithLabelValues("update_last_events").Inc()
			return fmt.Errorf("failed to update last events: %w", err)
		}
	}
	return nil
}

func (r *UserRepo) ListPresence(ctx context.Context) ([]domain.PresenceRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT pacs, first_name, last_name, pacs_presence, COALESCE(pacs_last_updated, 'epoch'::timestamptz)
		FROM users
		WHERE pacs IS NOT NULL
		ORDER BY last_name, first_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list presence: %w", err)
	}
	defer rows.Close()

	var records []domain.PresenceRecord
	for rows.Next() {
		var rec domain.PresenceRecord
		if err := rows.Scan(&rec.PACS, &rec.FirstName, &rec.LastName, &rec.Presence, &rec.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan presence row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read presence rows: %w", err)
	}
	return records, nil
}
