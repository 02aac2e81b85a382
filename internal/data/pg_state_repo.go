package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/target/mailrelay/internal/data/pgxutil"
	"github.com/target/mailrelay/internal/domain/model"
	apperrors "github.com/target/mailrelay/internal/errors"
)

// PGStateRepo implements core.StateStore as one row of the dispatch_state table.
type PGStateRepo struct {
	DB           *sql.DB
	key          string
	timeProvider TimeProvider
}

// NewPGStateRepo creates a PGStateRepo. An empty key falls back to DefaultStateKey.
func NewPGStateRepo(db *sql.DB, key string) *PGStateRepo {
	key = strings.TrimSpace(key)
	if key == "" {
		key = DefaultStateKey
	}
	return &PGStateRepo{DB: db, key: key, timeProvider: &RealTimeProvider{}}
}

// Load returns the stored state, or a zero state when the row does not exist.
func (r *PGStateRepo) Load(ctx context.Context) (*model.DispatchState, error) {
	var raw []byte
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx,
			`SELECT state FROM dispatch_state WHERE state_key = $1`,
			r.key,
		).Scan(&raw)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.NewDispatchState(), nil
		}
		return nil, fmt.Errorf("load dispatch state: %w", apperrors.MapDBError(err))
	}
	return decodeState(raw)
}

// Save upserts the state row.
func (r *PGStateRepo) Save(ctx context.Context, state *model.DispatchState) error {
	raw, err := encodeState(state)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO dispatch_state (state_key, state, is_running, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (state_key) DO UPDATE
		SET state = EXCLUDED.state,
			is_running = EXCLUDED.is_running,
			updated_at = EXCLUDED.updated_at
	`, r.key, raw, state.IsRunning, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("save dispatch state: %w", apperrors.MapDBError(err))
	}
	return nil
}

// Clear deletes the state row.
func (r *PGStateRepo) Clear(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM dispatch_state WHERE state_key = $1`, r.key); err != nil {
		return fmt.Errorf("clear dispatch state: %w", apperrors.MapDBError(err))
	}
	return nil
}
