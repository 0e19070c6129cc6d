package dataset

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

// XLSXStore keeps the dataset in one sheet of a workbook. Like the CSV store it
// loads the sheet fresh for every commit and replaces the whole file.
type XLSXStore struct {
	path  string
	sheet string
	mu    sync.Mutex
}

var _ Store = &XLSXStore{}
var _ Importer = &XLSXStore{}

// NewXLSXStore opens path lazily. An empty sheet selects the first sheet.
func NewXLSXStore(path string, sheet string) (*XLSXStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("xlsx store: empty path")
	}
	return &XLSXStore{path: path, sheet: sheet}, nil
}

func (s *XLSXStore) Load(ctx context.Context) (*Table, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, errors.Wrap(err, "xlsx store: open")
	}
	defer func() { _ = f.Close() }()
	_, t, err := s.readSheet(f)
	return t, err
}

func (s *XLSXStore) readSheet(f *excelize.File) (string, *Table, error) {
	sheet := s.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return "", nil, errors.New("xlsx store: workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return "", nil, errors.Wrapf(err, "xlsx store: read sheet %q", sheet)
	}
	if len(rows) == 0 {
		return "", nil, errors.New("xlsx store: missing header row")
	}
	if err := CheckWidth(rows[0], rows[1:]); err != nil {
		return "", nil, errors.Wrapf(err, "xlsx store: sheet %q", sheet)
	}
	return sheet, NewTable(rows[0], rows[1:]), nil
}

func (s *XLSXStore) CommitAnswer(ctx context.Context, rowIndex int, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return errors.Wrap(err, "xlsx store: open")
	}
	defer func() { _ = f.Close() }()

	sheet, t, err := s.readSheet(f)
	if err != nil {
		return err
	}
	if err := t.MarkCompleted(rowIndex, answer); err != nil {
		return err
	}
	// Only the touched cells (and a possibly new header cell) change; the rest of the
	// workbook, styles included, is written back as it was read.
	for _, col := range []string{ColumnAnswer, ColumnStatus} {
		c := t.Column(col)
		if err := setCell(f, sheet, c, 0, col); err != nil {
			return err
		}
		if err := setCell(f, sheet, c, rowIndex, t.Rows[rowIndex-1][c]); err != nil {
			return err
		}
	}
	if err := replaceFile(s.path, func(tmpPath string) error {
		return errors.Wrap(f.SaveAs(tmpPath), "xlsx store: save")
	}); err != nil {
		return err
	}
	log.Debug().Str("path", s.path).Str("sheet", sheet).Int("row_index", rowIndex).Msg("xlsx dataset rewritten")
	return nil
}

func (s *XLSXStore) Import(ctx context.Context, t *Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := s.sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	} else if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return errors.Wrap(err, "xlsx store: name sheet")
	}
	for c, h := range t.Header {
		if err := setCell(f, sheet, c, 0, h); err != nil {
			return err
		}
	}
	for r, row := range t.Rows {
		for c, v := range row {
			if err := setCell(f, sheet, c, r+1, v); err != nil {
				return err
			}
		}
	}
	return replaceFile(s.path, func(tmpPath string) error {
		return errors.Wrap(f.SaveAs(tmpPath), "xlsx store: save")
	})
}

// setCell writes a text cell at 0-based column and 0-based sheet row (row 0 is the header).
func setCell(f *excelize.File, sheet string, col, row int, value string) error {
	cell, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return errors.Wrap(err, "xlsx store: cell name")
	}
	return errors.Wrapf(f.SetCellStr(sheet, cell, value), "xlsx store: set %s", cell)
}

func (s *XLSXStore) Close() error { return nil }
