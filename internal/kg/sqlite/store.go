// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package sqlite is a local triple store gateway backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/srtk/internal/kg"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

const backendName = "sqlite"

// defaultBatchSize keeps IN lists well under SQLite's bound parameter limit.
const defaultBatchSize = 400

func init() {
	kg.RegisterBackend(backendName, func(_ context.Context, cfg kg.BackendConfig) (kg.Backend, error) {
		if cfg.Path == "" {
			return nil, sigilerr.New(sigilerr.CodeConfigValidateInvalidValue,
				"sqlite: graph.path is required", sigilerr.FieldBackend(backendName))
		}
		s, err := Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		if cfg.BatchSize > 0 {
			s.batchSize = cfg.BatchSize
		}
		return s, nil
	})
}

// Compile-time interface checks.
var (
	_ kg.Backend     = (*Store)(nil)
	_ kg.LabelSource = (*Store)(nil)
)

// Store keeps triples in a single table with SPO, POS and OSP indexes, and
// relation labels in a side table.
type Store struct {
	db        *sql.DB
	logger    *slog.Logger
	batchSize int
}

// Open opens (or creates) the database at dbPath and migrates it.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeGraphStoreDatabaseFailure, "opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, sigilerr.Errorf(sigilerr.CodeGraphStoreDatabaseFailure, "pinging sqlite db: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, sigilerr.Errorf(sigilerr.CodeGraphStoreDatabaseFailure, "migrating triple tables: %w", err)
	}

	return &Store{db: db, logger: slog.Default(), batchSize: defaultBatchSize}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS triples (
	subject   TEXT NOT NULL,
	predicate TEXT NOT NULL,
	object    TEXT NOT NULL,
	UNIQUE(subject, predicate, object)
);

CREATE INDEX IF NOT EXISTS idx_spo ON triples(subject, predicate, object);
CREATE INDEX IF NOT EXISTS idx_pos ON triples(predicate, object, subject);
CREATE INDEX IF NOT EXISTS idx_osp ON triples(object, subject, predicate);

CREATE TABLE IF NOT EXISTS relation_labels (
	id    TEXT PRIMARY KEY,
	label TEXT NOT NULL
);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Neighbors implements kg.Gateway. Large entity sets are split into batches.
func (s *Store) Neighbors(ctx context.Context, entities []kg.Entity, dir kg.Direction) ([]kg.Edge, error) {
	set := kg.NewEntitySet(entities...)
	var out []kg.Edge
	for start := 0; start < len(set); start += s.batchSize {
		end := min(start+s.batchSize, len(set))
		batch := set[start:end]

		if dir.Includes(kg.Forward) {
			edges, err := s.query(ctx, "t.subject", batch)
			if err != nil {
				return nil, err
			}
			out = append(out, edges...)
		}
		if dir.Includes(kg.Backward) {
			edges, err := s.query(ctx, "t.object", batch)
			if err != nil {
				return nil, err
			}
			out = append(out, edges...)
		}
	}
	return kg.UniqueEdges(out), nil
}

func (s *Store) query(ctx context.Context, column string, batch []kg.Entity) ([]kg.Edge, error) {
	var b strings.Builder
	b.WriteString(`SELECT t.subject, t.predicate, t.object, COALESCE(l.label, '')
FROM triples t LEFT JOIN relation_labels l ON l.id = t.predicate
WHERE `)
	b.WriteString(column)
	b.WriteString(" IN (")
	b.WriteString(strings.Repeat("?,", len(batch))[:len(batch)*2-1])
	b.WriteString(")")

	args := make([]any, len(batch))
	for i, e := range batch {
		args[i] = string(e)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, kg.QueryError(err, backendName, "querying triples")
	}
	defer func() { _ = rows.Close() }()

	var edges []kg.Edge
	for rows.Next() {
		var subj, pred, obj, label string
		if err := rows.Scan(&subj, &pred, &obj, &label); err != nil {
			return nil, sigilerr.Wrap(err, sigilerr.CodeGraphQueryResponseInvalid, "scanning triple",
				sigilerr.FieldBackend(backendName))
		}
		edges = append(edges, kg.Edge{
			Source:   kg.Entity(subj),
			Relation: kg.Relation{ID: pred, Label: label},
			Target:   kg.Entity(obj),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, kg.QueryError(err, backendName, "iterating triples")
	}
	return edges, nil
}

// PutEdges stores edges in one transaction. Existing triples are kept.
// Labels carried on edges are upserted into the label table.
func (s *Store) PutEdges(ctx context.Context, edges []kg.Edge) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, sigilerr.Errorf(sigilerr.CodeGraphStoreDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insert, err := tx.PrepareContext(ctx, `INSERT INTO triples (subject, predicate, object)
VALUES (?, ?, ?) ON CONFLICT(subject, predicate, object) DO NOTHING`)
	if err != nil {
		return 0, sigilerr.Errorf(sigilerr.CodeGraphStoreDatabaseFailure, "preparing insert: %w", err)
	}
	defer func() { _ = insert.Close() }()

	added := 0
	labels := make(map[string]string)
	for _, e := range edges {
		if e.Source == "" || e.Relation.ID == "" || e.Target == "" {
			return 0, sigilerr.New(sigilerr.CodeGraphRequestInvalid, "sqlite: edge with empty field",
				sigilerr.FieldEntity(string(e.Source)), sigilerr.FieldRelation(e.Relation.ID))
		}
		res, err := insert.ExecContext(ctx, string(e.Source), e.Relation.ID, string(e.Target))
		if err != nil {
			return 0, sigilerr.Errorf(sigilerr.CodeGraphStoreDatabaseFailure, "inserting triple: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			added += int(n)
		}
		if e.Relation.Label != "" {
			labels[e.Relation.ID] = e.Relation.Label
		}
	}

	if err := putLabels(ctx, tx, labels); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, sigilerr.Errorf(sigilerr.CodeGraphStoreDatabaseFailure, "committing triples: %w", err)
	}
	return added, nil
}

// PutLabels upserts relation labels.
func (s *Store) PutLabels(ctx context.Context, labels map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeGraphStoreDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := putLabels(ctx, tx, labels); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return sigilerr.Errorf(sigilerr.CodeGraphStoreDatabaseFailure, "committing labels: %w", err)
	}
	return nil
}

func putLabels(ctx context.Context, tx *sql.Tx, labels map[string]string) error {
	const q = `INSERT INTO relation_labels (id, label) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET label = excluded.label`
	for id, label := range labels {
		if _, err := tx.ExecContext(ctx, q, id, label); err != nil {
			return sigilerr.Errorf(sigilerr.CodeGraphStoreDatabaseFailure, "putting label %s: %w", id, err)
		}
	}
	return nil
}

// RelationLabels implements kg.LabelSource.
func (s *Store) RelationLabels(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	for start := 0; start < len(ids); start += s.batchSize {
		batch := ids[start:min(start+s.batchSize, len(ids))]

		q := "SELECT id, label FROM relation_labels WHERE id IN (" +
			strings.Repeat("?,", len(batch))[:len(batch)*2-1] + ")"
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}

		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeGraphStoreDatabaseFailure, "querying labels: %w", err)
		}
		for rows.Next() {
			var id, label string
			if err := rows.Scan(&id, &label); err != nil {
				s.logger.Warn("skipping unreadable label row", slog.String("error", err.Error()))
				continue
			}
			out[id] = label
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeGraphStoreDatabaseFailure, "iterating labels: %w", err)
		}
	}
	return out, nil
}

// Count returns the number of stored triples.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM triples").Scan(&n); err != nil {
		return 0, sigilerr.Errorf(sigilerr.CodeGraphStoreDatabaseFailure, "counting triples: %w", err)
	}
	return n, nil
}
