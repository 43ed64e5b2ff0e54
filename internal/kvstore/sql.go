package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"paykit/pkg/platform/sentinel"
	"paykit/pkg/platform/tx"
)

// SQL is a database/sql Backend. Rows are partitioned by namespace so several
// SDK instances can share one database.
type SQL struct {
	db        *sql.DB
	dialect   dialect
	namespace string
}

// OpenSQL opens driver ("sqlite" or "postgres") at dsn and prepares the schema.
func OpenSQL(ctx context.Context, driver, dsn, namespace string) (*SQL, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d.DriverName() == "sqlite" {
		// One writer avoids SQLITE_BUSY between pooled connections.
		db.SetMaxOpenConns(1)
	}
	s, err := NewSQL(ctx, db, d, namespace)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQL wraps an open database. The caller's db is closed by Close.
func NewSQL(ctx context.Context, db *sql.DB, d dialect, namespace string) (*SQL, error) {
	for _, stmt := range d.PragmaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("apply %q: %w", stmt, err)
		}
	}
	s := &SQL{db: db, dialect: d, namespace: namespace}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQL) initSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS paykit_kv (
		namespace TEXT NOT NULL,
		item_key TEXT NOT NULL,
		item_value %s NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (namespace, item_key)
	)`, s.dialect.BlobType())
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *SQL) Get(ctx context.Context, key string) ([]byte, error) {
	query := s.dialect.Rebind(`SELECT item_value FROM paykit_kv WHERE namespace = ? AND item_key = ?`)
	var value []byte
	err := tx.Use(ctx, s.db).QueryRowContext(ctx, query, s.namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *SQL) Put(ctx context.Context, key string, value []byte) error {
	query := s.dialect.Rebind(`INSERT INTO paykit_kv (namespace, item_key, item_value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, item_key) DO UPDATE SET item_value = excluded.item_value, updated_at = excluded.updated_at`)
	if value == nil {
		value = []byte{}
	}
	_, err := tx.Use(ctx, s.db).ExecContext(ctx, query, s.namespace, key, value, time.Now().UnixMilli())
	return err
}

// PutMany upserts every item in one transaction.
func (s *SQL) PutMany(ctx context.Context, items map[string][]byte) error {
	return tx.Run(ctx, s.db, func(ctx context.Context) error {
		for key, value := range items {
			if err := s.Put(ctx, key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQL) Clear(ctx context.Context) error {
	query := s.dialect.Rebind(`DELETE FROM paykit_kv WHERE namespace = ?`)
	_, err := tx.Use(ctx, s.db).ExecContext(ctx, query, s.namespace)
	return err
}

func (s *SQL) Close() error {
	return s.db.Close()
}
