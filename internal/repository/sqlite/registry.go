package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oshokin/camwatch/internal/domain/liveness"
	"github.com/oshokin/camwatch/internal/repository/subscriber"
)

// Registry stores subscribers and pending requests. Each mutation is one transaction.
type Registry struct {
	db  *DB
	now func() time.Time
}

var _ subscriber.Registry = (*Registry)(nil)

// NewRegistry creates a subscriber registry backed by db.
func NewRegistry(db *DB) *Registry {
	return &Registry{
		db:  db,
		now: time.Now,
	}
}

// List returns the subscribers sorted by chat ID.
func (r *Registry) List(ctx context.Context) ([]liveness.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT chat_id, added_at FROM subscribers ORDER BY chat_id`)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	var result []liveness.Subscriber

	for rows.Next() {
		var (
			s       liveness.Subscriber
			addedAt int64
		)

		if err = rows.Scan(&s.ChatID, &addedAt); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}

		s.AddedAt = fromUnixNano(addedAt)
		result = append(result, s)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}

	return result, nil
}

// Pending returns the pending requests sorted by chat ID.
func (r *Registry) Pending(ctx context.Context) ([]liveness.PendingRequest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT chat_id, display_name, requested_at FROM pending_requests ORDER BY chat_id`)
	if err != nil {
		return nil, fmt.Errorf("query pending requests: %w", err)
	}
	defer rows.Close()

	var result []liveness.PendingRequest

	for rows.Next() {
		var (
			p           liveness.PendingRequest
			requestedAt int64
		)

		if err = rows.Scan(&p.ChatID, &p.DisplayName, &requestedAt); err != nil {
			return nil, fmt.Errorf("scan pending request: %w", err)
		}

		p.RequestedAt = fromUnixNano(requestedAt)
		result = append(result, p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending requests: %w", err)
	}

	return result, nil
}

// Add subscribes the chat.
func (r *Registry) Add(ctx context.Context, chatID int64) (subscriber.AddResult, error) {
	if chatID == 0 {
		return "", subscriber.ErrInvalidChatID
	}

	var result subscriber.AddResult

	err := r.db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO subscribers (chat_id, added_at) VALUES (?, ?) ON CONFLICT (chat_id) DO NOTHING`,
			chatID, r.now().UnixNano())
		if err != nil {
			return fmt.Errorf("insert subscriber: %w", err)
		}

		if !affected(res) {
			result = subscriber.AlreadyPresent
			return nil
		}

		if _, err = tx.ExecContext(ctx, `DELETE FROM pending_requests WHERE chat_id = ?`, chatID); err != nil {
			return fmt.Errorf("delete pending request: %w", err)
		}

		result = subscriber.Added

		return nil
	})
	if err != nil {
		return "", err
	}

	return result, nil
}

// Remove unsubscribes the chat and drops its pending request.
func (r *Registry) Remove(ctx context.Context, chatID int64) (subscriber.RemoveResult, error) {
	result := subscriber.NotPresent

	err := r.db.inTx(ctx, func(tx *sql.Tx) error {
		for _, query := range []string{
			`DELETE FROM subscribers WHERE chat_id = ?`,
			`DELETE FROM pending_requests WHERE chat_id = ?`,
		} {
			res, err := tx.ExecContext(ctx, query, chatID)
			if err != nil {
				return fmt.Errorf("remove chat: %w", err)
			}

			if affected(res) {
				result = subscriber.Removed
			}
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	return result, nil
}

// Request records an access request from the chat.
func (r *Registry) Request(ctx context.Context, chatID int64, displayName string) (subscriber.RequestResult, error) {
	if chatID == 0 {
		return "", subscriber.ErrInvalidChatID
	}

	var result subscriber.RequestResult

	err := r.db.inTx(ctx, func(tx *sql.Tx) error {
		var exists int

		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscribers WHERE chat_id = ?`, chatID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check subscriber: %w", err)
		}

		if exists > 0 {
			result = subscriber.AlreadySubscribed
			return nil
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO pending_requests (chat_id, display_name, requested_at) VALUES (?, ?, ?)
			ON CONFLICT (chat_id) DO NOTHING`,
			chatID, displayName, r.now().UnixNano())
		if err != nil {
			return fmt.Errorf("insert pending request: %w", err)
		}

		if affected(res) {
			result = subscriber.RequestCreated
		} else {
			result = subscriber.AlreadyPending
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	return result, nil
}

// Approve moves a pending request to the subscribers.
func (r *Registry) Approve(ctx context.Context, chatID int64) (bool, error) {
	var found bool

	err := r.db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM pending_requests WHERE chat_id = ?`, chatID)
		if err != nil {
			return fmt.Errorf("delete pending request: %w", err)
		}

		if found = affected(res); !found {
			return nil
		}

		if _, err = tx.ExecContext(ctx,
			`INSERT INTO subscribers (chat_id, added_at) VALUES (?, ?) ON CONFLICT (chat_id) DO NOTHING`,
			chatID, r.now().UnixNano(),
		); err != nil {
			return fmt.Errorf("insert subscriber: %w", err)
		}

		return nil
	})
	if err != nil {
		return false, err
	}

	return found, nil
}

// Deny drops a pending request.
func (r *Registry) Deny(ctx context.Context, chatID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_requests WHERE chat_id = ?`, chatID)
	if err != nil {
		return false, fmt.Errorf("delete pending request: %w", err)
	}

	return affected(res), nil
}

func affected(res sql.Result) bool {
	n, err := res.RowsAffected()
	return err == nil && n > 0
}
