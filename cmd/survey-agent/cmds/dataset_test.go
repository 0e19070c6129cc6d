package cmds

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-go-golems/survey-caller/pkg/dataset"
	"github.com/go-go-golems/survey-caller/pkg/settings"
	"github.com/stretchr/testify/require"
)

const sampleDataset = "Phone,Name,Answer,Status\n" +
	"010-1111-1111,Kim,커피,Completed\n" +
	"010-2222-2222,Lee,,Pending\n" +
	"010-3333-3333,Park,,Pending\n"

func TestImportDataset_CSVToSQLite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "survey_data.csv")
	require.NoError(t, os.WriteFile(src, []byte(sampleDataset), 0o644))
	dst := filepath.Join(dir, "survey.db")
	ctx := context.Background()

	n, err := importDataset(ctx, dataset.Settings{Path: src}, dataset.Settings{Path: dst})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	store, err := dataset.Open(ctx, dataset.Settings{Path: dst})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	tbl, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Phone", "Name", "Answer", "Status"}, tbl.Header)
	require.Equal(t, []string{"010-1111-1111", "Kim", "커피", "Completed"}, tbl.Rows[0])
}

func TestImportDataset_UnknownSource(t *testing.T) {
	_, err := importDataset(context.Background(),
		dataset.Settings{Path: filepath.Join(t.TempDir(), "survey.json")},
		dataset.Settings{Path: filepath.Join(t.TempDir(), "survey.db")})
	require.Error(t, err)
}

func TestImportTargets_ResolveLikeDatasetPath(t *testing.T) {
	base := t.TempDir()
	a := &app{baseDir: base, cfg: &settings.Config{
		Dataset: dataset.Settings{Path: filepath.Join(base, "survey_data.csv"), Backend: dataset.BackendAuto},
	}}

	from, to := a.importTargets(&DatasetImportSettings{Source: "export.xlsx"})
	require.Equal(t, filepath.Join(base, "export.xlsx"), from.Path)
	require.Equal(t, filepath.Join(base, "survey_data.csv"), to.Path)

	from, to = a.importTargets(&DatasetImportSettings{Source: "/srv/in.csv", To: "survey.db", Backend: dataset.BackendSQLite})
	require.Equal(t, "/srv/in.csv", from.Path)
	require.Equal(t, filepath.Join(base, "survey.db"), to.Path)
	require.Equal(t, dataset.BackendSQLite, to.Backend)
}

func TestImportCommand_RelativePathsUseBaseDir(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "in.csv"), []byte(sampleDataset), 0o644))
	a := &app{baseDir: base, cfg: &settings.Config{}}

	from, to := a.importTargets(&DatasetImportSettings{Source: "in.csv", To: "out.db"})
	n, err := importDataset(context.Background(), from, to)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.FileExists(t, filepath.Join(base, "out.db"))
}

func TestDatasetRows(t *testing.T) {
	tbl, err := dataset.ReadCSV(bytes.NewBufferString(sampleDataset))
	require.NoError(t, err)

	rows := datasetRows(tbl, &DatasetShowSettings{})
	require.Len(t, rows, 3)
	n, ok := rows[1].Get("row")
	require.True(t, ok)
	require.Equal(t, 2, n)
	phone, _ := rows[1].Get("Phone")
	require.Equal(t, "010-2222-2222", phone)
	answer, _ := rows[0].Get("Answer")
	require.Equal(t, "커피", answer)

	pending := datasetRows(tbl, &DatasetShowSettings{Status: "Pending", Limit: 1})
	require.Len(t, pending, 1)
	n, _ = pending[0].Get("row")
	require.Equal(t, 2, n)

	require.Empty(t, datasetRows(tbl, &DatasetShowSettings{Status: "Failed"}))
}
