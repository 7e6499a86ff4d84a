package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/camwatch/internal/domain/liveness"
	"github.com/oshokin/camwatch/internal/repository/state"
)

// StateRepository persists the monitor state in the device_records table.
type StateRepository struct {
	db  *DB
	now func() time.Time
}

var _ state.Repository = (*StateRepository)(nil)

// NewStateRepository creates a state repository backed by db.
func NewStateRepository(db *DB) *StateRepository {
	return &StateRepository{
		db:  db,
		now: time.Now,
	}
}

// Load reads every record. It returns state.ErrNotFound if the state was never saved.
func (r *StateRepository) Load(ctx context.Context) (liveness.MonitorState, error) {
	var savedAt int64

	err := r.db.QueryRowContext(ctx, `SELECT saved_at FROM state_meta WHERE id = 1`).Scan(&savedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, state.ErrNotFound
		}

		return nil, fmt.Errorf("read state metadata: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT device_id, status, consecutive_failures, consecutive_successes, last_changed_at, last_checked_at
		FROM device_records`)
	if err != nil {
		return nil, fmt.Errorf("query device records: %w", err)
	}
	defer rows.Close()

	loaded := make(liveness.MonitorState)

	for rows.Next() {
		var (
			record         liveness.Record
			status         string
			changed, check int64
		)

		if err = rows.Scan(
			&record.DeviceID,
			&status,
			&record.ConsecutiveFailures,
			&record.ConsecutiveSuccesses,
			&changed,
			&check,
		); err != nil {
			return nil, fmt.Errorf("%w: scan device record: %w", state.ErrCorrupt, err)
		}

		if record.Status, err = liveness.ParseStatus(status); err != nil {
			return nil, fmt.Errorf("%w: device %q: %w", state.ErrCorrupt, record.DeviceID, err)
		}

		record.LastChangedAt = fromUnixNano(changed)
		record.LastCheckedAt = fromUnixNano(check)
		loaded[record.DeviceID] = record
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate device records: %w", err)
	}

	return loaded, nil
}

// Save replaces every record in one transaction.
func (r *StateRepository) Save(ctx context.Context, current liveness.MonitorState) error {
	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM device_records`); err != nil {
			return fmt.Errorf("clear device records: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO device_records
				(device_id, status, consecutive_failures, consecutive_successes, last_changed_at, last_checked_at)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for id, record := range current {
			if _, err = stmt.ExecContext(ctx,
				id,
				string(record.Status),
				record.ConsecutiveFailures,
				record.ConsecutiveSuccesses,
				toUnixNano(record.LastChangedAt),
				toUnixNano(record.LastCheckedAt),
			); err != nil {
				return fmt.Errorf("insert device %q: %w", id, err)
			}
		}

		if _, err = tx.ExecContext(ctx, `
			INSERT INTO state_meta (id, saved_at) VALUES (1, ?)
			ON CONFLICT (id) DO UPDATE SET saved_at = excluded.saved_at`,
			r.now().UnixNano(),
		); err != nil {
			return fmt.Errorf("update state metadata: %w", err)
		}

		return nil
	})
}
