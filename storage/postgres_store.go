package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"hotel-price-tracker/utils"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const postgresNotifyChannel = "kv_store_changes"

// PostgresStore keeps the key-value data in a single kv_store table and uses
// LISTEN/NOTIFY to propagate changes between processes.
type PostgresStore struct {
	db        *sql.DB
	logger    *utils.Logger
	origin    string
	listeners *listenerSet

	listener *pq.Listener
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewPostgresStore opens the DB, pings it, ensures the schema and starts the
// change listener
func NewPostgresStore(connStr string, logger *utils.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Minute * 5)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	logger.Info("Connected to PostgreSQL successfully")

	s := NewPostgresStoreFromDB(db, logger)
	if err := s.CreateTable(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.startListener(connStr); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromDB wraps an existing handle without starting a listener.
// Changes from other processes are then not observed.
func NewPostgresStoreFromDB(db *sql.DB, logger *utils.Logger) *PostgresStore {
	return &PostgresStore{
		db:        db,
		logger:    logger,
		origin:    uuid.NewString(),
		listeners: newListenerSet(),
		done:      make(chan struct{}),
	}
}

// CreateTable creates the kv_store table if it doesn't exist
func (s *PostgresStore) CreateTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS kv_store (
		key        TEXT PRIMARY KEY,
		value      BYTEA       NOT NULL,
		updated_at TIMESTAMP   NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_kv_store_updated_at ON kv_store (updated_at);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	s.logger.Info("Table 'kv_store' is ready")
	return nil
}

func (s *PostgresStore) startListener(connStr string) error {
	s.listener = pq.NewListener(connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			s.logger.Warn("Postgres listener event %d: %v", ev, err)
		}
	})
	if err := s.listener.Listen(postgresNotifyChannel); err != nil {
		_ = s.listener.Close()
		return fmt.Errorf("failed to listen on %s: %w", postgresNotifyChannel, err)
	}

	s.wg.Add(1)
	go s.listen()
	return nil
}

func (s *PostgresStore) listen() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			// nil notification means the connection was re-established
			if n == nil {
				continue
			}
			s.handleNotification(n.Extra)
		case <-time.After(90 * time.Second):
			go func() { _ = s.listener.Ping() }()
		}
	}
}

func (s *PostgresStore) handleNotification(payload string) {
	var notice changeNotice
	if err := json.Unmarshal([]byte(payload), &notice); err != nil {
		s.logger.Warn("Ignoring malformed change notice: %v", err)
		return
	}
	if notice.Origin == s.origin {
		return
	}
	s.listeners.notify(notice.Keys)
}

func (s *PostgresStore) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv_store WHERE key = ANY($1)`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("failed to query keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return out, nil
}

// Set upserts all values in one transaction and notifies other processes
func (s *PostgresStore) Set(ctx context.Context, values map[string][]byte) (err error) {
	if len(values) == 0 {
		return nil
	}
	keys := sortedKeys(values)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err = stmt.ExecContext(ctx, k, values[k]); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", k, err)
		}
	}

	if err = s.notifyTx(ctx, tx, keys); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.listeners.notify(keys)
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, keys ...string) (err error) {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ANY($1)`, pq.Array(keys)); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	if err = s.notifyTx(ctx, tx, keys); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.listeners.notify(keys)
	return nil
}

func (s *PostgresStore) notifyTx(ctx context.Context, tx *sql.Tx, keys []string) error {
	payload, err := json.Marshal(changeNotice{Origin: s.origin, Keys: keys})
	if err != nil {
		return fmt.Errorf("failed to encode change notice: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, postgresNotifyChannel, string(payload)); err != nil {
		return fmt.Errorf("failed to notify: %w", err)
	}
	return nil
}

func (s *PostgresStore) OnChange(listener ChangeListener) func() {
	return s.listeners.add(listener)
}

// Close stops the listener and closes the database connection
func (s *PostgresStore) Close() error {
	close(s.done)
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	return s.db.Close()
}
