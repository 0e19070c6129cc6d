package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestSettings_ResolveBackend(t *testing.T) {
	cases := []struct {
		settings Settings
		want     string
		wantErr  bool
	}{
		{Settings{Path: "survey_data.csv"}, BackendCSV, false},
		{Settings{Path: "survey_data.XLSX"}, BackendXLSX, false},
		{Settings{Path: "survey.db"}, BackendSQLite, false},
		{Settings{Path: "survey.sqlite3", Backend: "auto"}, BackendSQLite, false},
		{Settings{Backend: "redis"}, BackendRedis, false},
		{Settings{Backend: "csv", Path: "whatever.db"}, BackendCSV, false},
		{Settings{Path: "survey.json"}, "", true},
		{Settings{Backend: "mongo"}, "", true},
	}
	for _, tc := range cases {
		got, err := tc.settings.ResolveBackend()
		if tc.wantErr {
			require.Error(t, err, "%+v", tc.settings)
			continue
		}
		require.NoError(t, err, "%+v", tc.settings)
		require.Equal(t, tc.want, got)
	}
}

func TestOpen_CSVAndSQLite(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	csvPath := filepath.Join(dir, "survey_data.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(threePendingRows), 0o644))
	s, err := Open(ctx, Settings{Path: csvPath})
	require.NoError(t, err)
	require.IsType(t, &CSVStore{}, s)
	src, err := s.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, Settings{Path: filepath.Join(dir, "survey.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.(Importer).Import(ctx, src))
	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, src.Equal(loaded))
}

func TestCheckWidth(t *testing.T) {
	header := []string{"Phone", "Answer"}
	require.NoError(t, CheckWidth(header, [][]string{{"010"}, {"010", "커피"}, {"010", "", "", ""}}))

	err := CheckWidth(header, [][]string{{"010", ""}, {"010", "", "note"}})
	require.True(t, errors.Is(err, ErrRowTooWide))
	require.Contains(t, err.Error(), "row 2")
}

func TestTable_SetAndCheckRow(t *testing.T) {
	tbl := NewTable([]string{"A"}, [][]string{{"1", "extra"}, {}})
	require.Equal(t, [][]string{{"1"}, {""}}, tbl.Rows)

	require.Error(t, tbl.CheckRow(0))
	require.Error(t, tbl.CheckRow(3))
	require.NoError(t, tbl.CheckRow(2))

	require.NoError(t, tbl.Set(2, "B", "x"))
	require.Equal(t, []string{"A", "B"}, tbl.Header)
	require.Equal(t, []string{"1", ""}, tbl.Rows[0])
	require.Equal(t, []string{"", "x"}, tbl.Rows[1])

	_, err := tbl.Get(1, "missing")
	require.Error(t, err)
}
