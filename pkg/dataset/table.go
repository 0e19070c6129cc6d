package dataset

import (
	"github.com/pkg/errors"
)

const (
	ColumnAnswer = "Answer"
	ColumnStatus = "Status"

	StatusPending   = "Pending"
	StatusCompleted = "Completed"
)

// ErrRowOutOfRange is returned when a 1-based row index does not address an
// existing record.
var ErrRowOutOfRange = errors.New("row index out of range")

// ErrRowTooWide is returned when a record has more fields than the header.
var ErrRowTooWide = errors.New("row has more fields than the header")

// Table is an in-memory copy of the survey dataset. Every cell is text.
type Table struct {
	Header []string
	Rows   [][]string
}

// CheckWidth fails when a row holds a non-empty cell past the last header column.
// Such cells would be dropped by NewTable and lost on the next full rewrite.
func CheckWidth(header []string, rows [][]string) error {
	for i, r := range rows {
		for j := len(header); j < len(r); j++ {
			if r[j] != "" {
				return errors.Wrapf(ErrRowTooWide, "row %d has %d fields, header has %d", i+1, len(r), len(header))
			}
		}
	}
	return nil
}

// NewTable builds a table and pads ragged rows to the header width. Callers
// reading files run CheckWidth first.
func NewTable(header []string, rows [][]string) *Table {
	t := &Table{Header: append([]string(nil), header...)}
	t.Rows = make([][]string, 0, len(rows))
	for _, r := range rows {
		row := make([]string, len(header))
		copy(row, r)
		t.Rows = append(t.Rows, row)
	}
	return t
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Column returns the position of name in the header, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// EnsureColumn appends name to the header if missing and returns its position.
func (t *Table) EnsureColumn(name string) int {
	if i := t.Column(name); i >= 0 {
		return i
	}
	t.Header = append(t.Header, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], "")
	}
	return len(t.Header) - 1
}

// CheckRow validates a 1-based row index against the current row count.
func (t *Table) CheckRow(rowIndex int) error {
	if rowIndex-1 < 0 || rowIndex-1 >= t.Len() {
		return errors.Wrapf(ErrRowOutOfRange, "row %d (rows: %d)", rowIndex, t.Len())
	}
	return nil
}

// Get returns the cell at the 1-based row index and column name.
func (t *Table) Get(rowIndex int, column string) (string, error) {
	if err := t.CheckRow(rowIndex); err != nil {
		return "", err
	}
	c := t.Column(column)
	if c < 0 {
		return "", errors.Errorf("unknown column %q", column)
	}
	return t.Rows[rowIndex-1][c], nil
}

// Set writes the cell at the 1-based row index, adding the column if needed.
func (t *Table) Set(rowIndex int, column string, value string) error {
	if err := t.CheckRow(rowIndex); err != nil {
		return err
	}
	c := t.EnsureColumn(column)
	t.Rows[rowIndex-1][c] = value
	return nil
}

// MarkCompleted stores the answer and flips the row status to Completed.
func (t *Table) MarkCompleted(rowIndex int, answer string) error {
	if err := t.CheckRow(rowIndex); err != nil {
		return err
	}
	if err := t.Set(rowIndex, ColumnAnswer, answer); err != nil {
		return err
	}
	return t.Set(rowIndex, ColumnStatus, StatusCompleted)
}

func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	return NewTable(t.Header, t.Rows)
}

func (t *Table) Equal(o *Table) bool {
	if t.Len() != o.Len() || len(t.Header) != len(o.Header) {
		return false
	}
	for i := range t.Header {
		if t.Header[i] != o.Header[i] {
			return false
		}
	}
	for i := range t.Rows {
		for j := range t.Rows[i] {
			if t.Rows[i][j] != o.Rows[i][j] {
				return false
			}
		}
	}
	return true
}
