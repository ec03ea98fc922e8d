// Package sqlite provides a SQLite-based config.Store implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"coldpack/internal/config"
	"coldpack/internal/digest"
	"coldpack/internal/model"
)

// Store is a SQLite-based config.Store implementation.
type Store struct {
	db   *sql.DB
	path string
}

var _ config.Store = (*Store)(nil)

// NewStore opens a SQLite database at path and runs migrations.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create config directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set foreign_keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads the full configuration. Returns nil if no datasets or stores exist.
func (s *Store) Load(ctx context.Context) (*config.Config, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT count(*) FROM datasets) + (SELECT count(*) FROM stores)
	`).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("count entities: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	datasets, err := s.ListDatasets(ctx)
	if err != nil {
		return nil, err
	}
	stores, err := s.ListStores(ctx)
	if err != nil {
		return nil, err
	}

	return &config.Config{Datasets: datasets, Stores: stores}, nil
}

// Save replaces the entire configuration with cfg.
func (s *Store) Save(ctx context.Context, cfg *config.Config) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM datasets"); err != nil {
		return fmt.Errorf("clear datasets: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM stores"); err != nil {
		return fmt.Errorf("clear stores: %w", err)
	}

	for _, st := range cfg.Stores {
		if err := putStoreTx(ctx, tx, st); err != nil {
			return err
		}
	}
	for _, ds := range cfg.Datasets {
		if err := putDatasetTx(ctx, tx, ds); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Datasets

func (s *Store) GetDataset(ctx context.Context, id string) (*model.Dataset, error) {
	row := s.db.QueryRowContext(ctx, datasetColumns+" FROM datasets WHERE dataset_id = ?", id)
	ds, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset %q: %w", id, err)
	}
	return ds, nil
}

func (s *Store) ListDatasets(ctx context.Context) ([]model.Dataset, error) {
	rows, err := s.db.QueryContext(ctx, datasetColumns+" FROM datasets ORDER BY dataset_id")
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var result []model.Dataset
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		result = append(result, *ds)
	}
	return result, rows.Err()
}

func (s *Store) PutDataset(ctx context.Context, ds model.Dataset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put dataset tx: %w", err)
	}
	defer tx.Rollback()
	if err := putDatasetTx(ctx, tx, ds); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) DeleteDataset(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM datasets WHERE dataset_id = ?", id)
	if err != nil {
		return fmt.Errorf("delete dataset %q: %w", id, err)
	}
	return nil
}

const datasetColumns = `SELECT dataset_id, name, base_path, store_id, excludes, schedules,
	pack_size_target, algorithm, chunker_seed, latest_snapshot`

func scanDataset(row interface{ Scan(...any) error }) (*model.Dataset, error) {
	var ds model.Dataset
	var excludesJSON, schedulesJSON, latest sql.NullString
	var algo string
	err := row.Scan(&ds.ID, &ds.Name, &ds.BasePath, &ds.StoreID, &excludesJSON, &schedulesJSON,
		&ds.PackSizeTarget, &algo, &ds.ChunkerSeed, &latest)
	if err != nil {
		return nil, err
	}
	ds.Algorithm = digest.Algorithm(algo)
	if latest.Valid {
		ds.LatestSnapshot = latest.String
	}
	if excludesJSON.Valid {
		if err := json.Unmarshal([]byte(excludesJSON.String), &ds.Excludes); err != nil {
			return nil, fmt.Errorf("unmarshal excludes: %w", err)
		}
	}
	if schedulesJSON.Valid {
		if err := json.Unmarshal([]byte(schedulesJSON.String), &ds.Schedules); err != nil {
			return nil, fmt.Errorf("unmarshal schedules: %w", err)
		}
	}
	return &ds, nil
}

func putDatasetTx(ctx context.Context, tx *sql.Tx, ds model.Dataset) error {
	var excludesJSON, schedulesJSON *string
	if ds.Excludes != nil {
		data, err := json.Marshal(ds.Excludes)
		if err != nil {
			return fmt.Errorf("marshal dataset %q excludes: %w", ds.ID, err)
		}
		v := string(data)
		excludesJSON = &v
	}
	if ds.Schedules != nil {
		data, err := json.Marshal(ds.Schedules)
		if err != nil {
			return fmt.Errorf("marshal dataset %q schedules: %w", ds.ID, err)
		}
		v := string(data)
		schedulesJSON = &v
	}
	var latest *string
	if ds.LatestSnapshot != "" {
		latest = &ds.LatestSnapshot
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO datasets (dataset_id, name, base_path, store_id, excludes, schedules,
			pack_size_target, algorithm, chunker_seed, latest_snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dataset_id) DO UPDATE SET
			name = excluded.name,
			base_path = excluded.base_path,
			store_id = excluded.store_id,
			excludes = excluded.excludes,
			schedules = excluded.schedules,
			pack_size_target = excluded.pack_size_target,
			algorithm = excluded.algorithm,
			chunker_seed = excluded.chunker_seed,
			latest_snapshot = excluded.latest_snapshot
	`, ds.ID, ds.Name, ds.BasePath, ds.StoreID, excludesJSON, schedulesJSON,
		ds.PackSizeTarget, string(ds.Algorithm), ds.ChunkerSeed, latest)
	if err != nil {
		return fmt.Errorf("put dataset %q: %w", ds.ID, err)
	}
	return nil
}

// Stores

func (s *Store) GetStore(ctx context.Context, id string) (*model.Store, error) {
	row := s.db.QueryRowContext(ctx, storeColumns+" FROM stores WHERE store_id = ?", id)
	st, err := scanStore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get store %q: %w", id, err)
	}
	return st, nil
}

func (s *Store) ListStores(ctx context.Context) ([]model.Store, error) {
	rows, err := s.db.QueryContext(ctx, storeColumns+" FROM stores ORDER BY store_id")
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()

	var result []model.Store
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		result = append(result, *st)
	}
	return result, rows.Err()
}

func (s *Store) PutStore(ctx context.Context, st model.Store) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put store tx: %w", err)
	}
	defer tx.Rollback()
	if err := putStoreTx(ctx, tx, st); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) DeleteStore(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM stores WHERE store_id = ?", id)
	if err != nil {
		return fmt.Errorf("delete store %q: %w", id, err)
	}
	return nil
}

const storeColumns = "SELECT store_id, label, type, properties"

func scanStore(row interface{ Scan(...any) error }) (*model.Store, error) {
	var st model.Store
	var typ string
	var propsJSON sql.NullString
	if err := row.Scan(&st.ID, &st.Label, &typ, &propsJSON); err != nil {
		return nil, err
	}
	st.Type = model.StoreType(typ)
	if propsJSON.Valid {
		if err := json.Unmarshal([]byte(propsJSON.String), &st.Properties); err != nil {
			return nil, fmt.Errorf("unmarshal properties: %w", err)
		}
	}
	return &st, nil
}

func putStoreTx(ctx context.Context, tx *sql.Tx, st model.Store) error {
	var propsJSON *string
	if st.Properties != nil {
		data, err := json.Marshal(st.Properties)
		if err != nil {
			return fmt.Errorf("marshal store %q properties: %w", st.ID, err)
		}
		v := string(data)
		propsJSON = &v
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO stores (store_id, label, type, properties)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(store_id) DO UPDATE SET
			label = excluded.label,
			type = excluded.type,
			properties = excluded.properties
	`, st.ID, st.Label, string(st.Type), propsJSON)
	if err != nil {
		return fmt.Errorf("put store %q: %w", st.ID, err)
	}
	return nil
}
