package dataset

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// CSVStore keeps the dataset in a single CSV file with a header row. Every commit
// reads the file fresh and rewrites it in full. The mutex only orders commits made
// through this value; other processes writing the same file are not detected.
type CSVStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = &CSVStore{}
var _ Importer = &CSVStore{}

func NewCSVStore(path string) (*CSVStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("csv store: empty path")
	}
	return &CSVStore{path: path}, nil
}

func (s *CSVStore) Path() string { return s.path }

func (s *CSVStore) Load(ctx context.Context) (*Table, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, errors.Wrap(err, "csv store: open")
	}
	defer func() { _ = f.Close() }()
	return ReadCSV(f)
}

func (s *CSVStore) CommitAnswer(ctx context.Context, rowIndex int, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if err := t.MarkCompleted(rowIndex, answer); err != nil {
		return err
	}
	if err := s.write(t); err != nil {
		return err
	}
	log.Debug().Str("path", s.path).Int("row_index", rowIndex).Msg("csv dataset rewritten")
	return nil
}

func (s *CSVStore) Import(ctx context.Context, t *Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(t)
}

func (s *CSVStore) write(t *Table) error {
	return replaceFile(s.path, func(tmpPath string) error {
		f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return errors.Wrap(err, "csv store: open temp")
		}
		if err := WriteCSV(f, t); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return errors.Wrap(err, "csv store: sync")
		}
		return errors.Wrap(f.Close(), "csv store: close")
	})
}

func (s *CSVStore) Close() error { return nil }

// ReadCSV parses a CSV document whose first record is the header.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "csv store: parse")
	}
	if len(records) == 0 {
		return nil, errors.New("csv store: missing header row")
	}
	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	if err := CheckWidth(header, records[1:]); err != nil {
		return nil, errors.Wrap(err, "csv store")
	}
	return NewTable(header, records[1:]), nil
}

func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return errors.Wrap(err, "csv store: write header")
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return errors.Wrap(err, "csv store: write rows")
	}
	return nil
}
