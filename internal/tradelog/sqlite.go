// internal/tradelog/sqlite.go
package tradelog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists trades to a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the database at path and runs migrations.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger.Named("tradelog_sqlite")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.logger.Info("SQLite trade log opened", zap.String("path", path))
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			signature   TEXT NOT NULL,
			post_id     INTEGER NOT NULL,
			pool        TEXT NOT NULL,
			holder      TEXT NOT NULL,
			event_type  TEXT NOT NULL,
			amount      TEXT NOT NULL,
			price       TEXT NOT NULL,
			total_value TEXT NOT NULL,
			fee         TEXT NOT NULL,
			timestamp   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_post_ts ON trades(post_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_pool_ts ON trades(pool, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_holder_pool ON trades(holder, pool)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, t Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO trades
		(signature, post_id, pool, holder, event_type, amount, price, total_value, fee, timestamp)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.Signature, int64(t.PostID), t.Pool, t.Holder, string(t.Type), t.Amount,
		t.Price.String(), t.TotalValue.String(), t.Fee.String(), t.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Find(ctx context.Context, q Query) ([]Trade, error) {
	var (
		where []string
		args  []interface{}
	)
	if q.Pool != "" {
		where = append(where, "pool = ?")
		args = append(args, q.Pool)
	}
	if q.PostID != nil {
		where = append(where, "post_id = ?")
		args = append(args, int64(*q.PostID))
	}
	if q.Holder != "" {
		where = append(where, "holder = ?")
		args = append(args, q.Holder)
	}
	if q.Type != "" {
		where = append(where, "event_type = ?")
		args = append(args, string(q.Type))
	}

	query := `SELECT signature, post_id, pool, holder, event_type, amount, price, total_value, fee, timestamp FROM trades`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var (
			t                 Trade
			postID, ts        int64
			typ               string
			price, total, fee string
		)
		if err := rows.Scan(&t.Signature, &postID, &t.Pool, &t.Holder, &typ, &t.Amount, &price, &total, &fee, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.PostID = uint64(postID)
		t.Type = TradeType(typ)
		t.Timestamp = time.Unix(0, ts).UTC()
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("invalid stored price %q: %w", price, err)
		}
		if t.TotalValue, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("invalid stored total %q: %w", total, err)
		}
		if t.Fee, err = decimal.NewFromString(fee); err != nil {
			return nil, fmt.Errorf("invalid stored fee %q: %w", fee, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
