package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// maxCommitAttempts bounds compare-and-set retries for a single row.
const maxCommitAttempts = 5

// SQLiteStore keeps one database row per survey record. Commits update a single row
// guarded by its version, so concurrent calls on different rows never lose each
// other's answers.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}
var _ Importer = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite dataset store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite dataset store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS survey_columns (
			ordinal INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS survey_rows (
			ordinal INTEGER PRIMARY KEY,
			fields_json TEXT NOT NULL DEFAULT '{}',
			answer TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL DEFAULT 0,
			updated_at_ms INTEGER NOT NULL DEFAULT 0
		);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite dataset store: migrate")
		}
	}
	return nil
}

// Import replaces the stored dataset with t.
func (s *SQLiteStore) Import(ctx context.Context, t *Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite dataset store: begin")
	}
	defer func() { _ = tx.Rollback() }()

	for _, st := range []string{`DELETE FROM survey_columns`, `DELETE FROM survey_rows`} {
		if _, err := tx.ExecContext(ctx, st); err != nil {
			return errors.Wrap(err, "sqlite dataset store: clear")
		}
	}

	header := append([]string(nil), t.Header...)
	for _, col := range []string{ColumnAnswer, ColumnStatus} {
		if t.Column(col) < 0 {
			header = append(header, col)
		}
	}
	for i, h := range header {
		if _, err := tx.ExecContext(ctx, `INSERT INTO survey_columns(ordinal, name) VALUES(?, ?)`, i, h); err != nil {
			return errors.Wrapf(err, "sqlite dataset store: insert column %q", h)
		}
	}

	answerCol, statusCol := t.Column(ColumnAnswer), t.Column(ColumnStatus)
	for i, row := range t.Rows {
		fields := map[string]string{}
		var answer, status string
		for c, v := range row {
			switch c {
			case answerCol:
				answer = v
			case statusCol:
				status = v
			default:
				fields[t.Header[c]] = v
			}
		}
		b, err := json.Marshal(fields)
		if err != nil {
			return errors.Wrap(err, "sqlite dataset store: marshal fields")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO survey_rows(ordinal, fields_json, answer, status, version, updated_at_ms) VALUES(?, ?, ?, ?, 0, ?)`,
			i, string(b), answer, status, time.Now().UnixMilli(),
		); err != nil {
			return errors.Wrapf(err, "sqlite dataset store: insert row %d", i+1)
		}
	}
	return errors.Wrap(tx.Commit(), "sqlite dataset store: commit import")
}

func (s *SQLiteStore) Load(ctx context.Context) (*Table, error) {
	header, err := s.columns(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT fields_json, answer, status FROM survey_rows ORDER BY ordinal ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite dataset store: query rows")
	}
	defer func() { _ = rows.Close() }()

	t := NewTable(header, nil)
	for rows.Next() {
		var fieldsJSON, answer, status string
		if err := rows.Scan(&fieldsJSON, &answer, &status); err != nil {
			return nil, errors.Wrap(err, "sqlite dataset store: scan row")
		}
		fields := map[string]string{}
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			return nil, errors.Wrap(err, "sqlite dataset store: decode fields")
		}
		row := make([]string, len(header))
		for c, h := range header {
			switch h {
			case ColumnAnswer:
				row[c] = answer
			case ColumnStatus:
				row[c] = status
			default:
				row[c] = fields[h]
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, errors.Wrap(rows.Err(), "sqlite dataset store: iterate rows")
}

func (s *SQLiteStore) columns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM survey_columns ORDER BY ordinal ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite dataset store: query columns")
	}
	defer func() { _ = rows.Close() }()
	var header []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "sqlite dataset store: scan column")
		}
		header = append(header, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite dataset store: iterate columns")
	}
	if len(header) == 0 {
		header = []string{ColumnAnswer, ColumnStatus}
	}
	return header, nil
}

// CommitAnswer updates exactly one row with a version compare-and-set.
func (s *SQLiteStore) CommitAnswer(ctx context.Context, rowIndex int, answer string) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM survey_rows`).Scan(&count); err != nil {
		return errors.Wrap(err, "sqlite dataset store: count rows")
	}
	if rowIndex-1 < 0 || rowIndex-1 >= count {
		return errors.Wrapf(ErrRowOutOfRange, "row %d (rows: %d)", rowIndex, count)
	}

	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		var version int64
		err := s.db.QueryRowContext(ctx, `SELECT version FROM survey_rows WHERE ordinal = ?`, rowIndex-1).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(ErrRowOutOfRange, "row %d", rowIndex)
		}
		if err != nil {
			return errors.Wrap(err, "sqlite dataset store: read version")
		}
		res, err := s.db.ExecContext(ctx,
			`UPDATE survey_rows SET answer = ?, status = ?, version = version + 1, updated_at_ms = ? WHERE ordinal = ? AND version = ?`,
			answer, StatusCompleted, time.Now().UnixMilli(), rowIndex-1, version,
		)
		if err != nil {
			return errors.Wrap(err, "sqlite dataset store: update row")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "sqlite dataset store: rows affected")
		}
		if n == 1 {
			return nil
		}
		log.Debug().Int("row_index", rowIndex).Int("attempt", attempt).Msg("sqlite dataset store: version conflict, retrying")
	}
	return errors.Errorf("sqlite dataset store: row %d kept changing, gave up after %d attempts", rowIndex, maxCommitAttempts)
}

// Version returns the compare-and-set version of a row; it grows by one per commit.
func (s *SQLiteStore) Version(ctx context.Context, rowIndex int) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM survey_rows WHERE ordinal = ?`, rowIndex-1).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.Wrapf(ErrRowOutOfRange, "row %d", rowIndex)
	}
	return v, errors.Wrap(err, "sqlite dataset store: read version")
}
