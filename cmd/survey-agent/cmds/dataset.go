package cmds

import (
	"context"
	"fmt"
	"io"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	glazed_settings "github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/go-go-golems/survey-caller/pkg/dataset"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newDatasetCommand(a *app) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Inspect and convert the survey dataset",
	}

	showCmd, err := NewDatasetShowCommand(a)
	if err != nil {
		return nil, err
	}
	importCmd, err := NewDatasetImportCommand(a)
	if err != nil {
		return nil, err
	}
	cobraShowCmd, err := cli.BuildCobraCommand(showCmd, cli.WithCobraMiddlewaresFunc(getMiddlewares))
	if err != nil {
		return nil, err
	}
	cobraImportCmd, err := cli.BuildCobraCommand(importCmd, cli.WithCobraMiddlewaresFunc(getMiddlewares))
	if err != nil {
		return nil, err
	}
	cmd.AddCommand(cobraShowCmd, cobraImportCmd)
	return cmd, nil
}

type DatasetShowCommand struct {
	*cmds.CommandDescription
	app *app
}

type DatasetShowSettings struct {
	Status string `glazed:"status"`
	Limit  int    `glazed:"limit"`
}

func NewDatasetShowCommand(a *app) (*DatasetShowCommand, error) {
	glazedSection, err := glazed_settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	commandSettingsSection, err := cli.NewCommandSettingsSection()
	if err != nil {
		return nil, err
	}

	desc := cmds.NewCommandDescription(
		"show",
		cmds.WithShort("Print the dataset rows with their answers"),
		cmds.WithLong("Print every dataset row with its 1-based row number, the index a call job uses."),
		cmds.WithFlags(
			fields.New(
				"status",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Only rows whose Status column equals this value"),
			),
			fields.New(
				"limit",
				fields.TypeInteger,
				fields.WithDefault(0),
				fields.WithHelp("Limit number of rows (0 = no limit)"),
			),
		),
		cmds.WithSections(glazedSection, commandSettingsSection),
	)
	return &DatasetShowCommand{CommandDescription: desc, app: a}, nil
}

func (c *DatasetShowCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *values.Values,
	gp middlewares.Processor,
) error {
	s := &DatasetShowSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}

	store, err := dataset.Open(ctx, c.app.cfg.Dataset)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	t, err := store.Load(ctx)
	if err != nil {
		return err
	}

	for _, row := range datasetRows(t, s) {
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// datasetRows turns a table into output rows keyed by header, prefixed with the
// 1-based row number.
func datasetRows(t *dataset.Table, s *DatasetShowSettings) []types.Row {
	statusCol := t.Column(dataset.ColumnStatus)
	var rows []types.Row
	for i, r := range t.Rows {
		if s.Status != "" && (statusCol < 0 || r[statusCol] != s.Status) {
			continue
		}
		row := types.NewRow(types.MRP("row", i+1))
		for j, name := range t.Header {
			row.Set(name, r[j])
		}
		rows = append(rows, row)
		if s.Limit > 0 && len(rows) == s.Limit {
			break
		}
	}
	return rows
}

var _ cmds.GlazeCommand = &DatasetShowCommand{}

type DatasetImportCommand struct {
	*cmds.CommandDescription
	app *app
}

type DatasetImportSettings struct {
	Source  string `glazed:"source"`
	To      string `glazed:"to"`
	Backend string `glazed:"backend"`
}

func NewDatasetImportCommand(a *app) (*DatasetImportCommand, error) {
	return &DatasetImportCommand{
		CommandDescription: cmds.NewCommandDescription(
			"import",
			cmds.WithShort("Copy a dataset file into the configured (or --to) store"),
			cmds.WithLong("Copy a dataset file into the configured (or --to) store. "+
				"Relative paths resolve against the executable directory, like dataset.path."),
			cmds.WithFlags(
				fields.New(
					"to",
					fields.TypeString,
					fields.WithDefault(""),
					fields.WithHelp("Target dataset path (defaults to dataset.path)"),
				),
				fields.New(
					"backend",
					fields.TypeString,
					fields.WithDefault(""),
					fields.WithHelp("Target backend: csv, xlsx, sqlite, redis"),
				),
			),
			cmds.WithArguments(
				fields.New(
					"source",
					fields.TypeString,
					fields.WithHelp("Dataset file to copy"),
					fields.WithRequired(true),
				),
			),
		),
		app: a,
	}, nil
}

var _ cmds.WriterCommand = (*DatasetImportCommand)(nil)

func (c *DatasetImportCommand) RunIntoWriter(
	ctx context.Context,
	parsedLayers *values.Values,
	w io.Writer,
) error {
	s := &DatasetImportSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	from, to := c.app.importTargets(s)
	n, err := importDataset(ctx, from, to)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "imported %d rows into %s\n", n, to.Path)
	return err
}

// importTargets resolves the source and target of an import against the same
// base directory as dataset.path.
func (a *app) importTargets(s *DatasetImportSettings) (dataset.Settings, dataset.Settings) {
	target := a.cfg.Dataset
	if s.To != "" {
		target.Path = a.resolve(s.To)
		target.Backend = dataset.BackendAuto
	}
	if s.Backend != "" {
		target.Backend = s.Backend
	}
	return dataset.Settings{Path: a.resolve(s.Source)}, target
}

func importDataset(ctx context.Context, from dataset.Settings, to dataset.Settings) (int, error) {
	src, err := dataset.Open(ctx, from)
	if err != nil {
		return 0, errors.Wrap(err, "open source dataset")
	}
	defer func() { _ = src.Close() }()
	t, err := src.Load(ctx)
	if err != nil {
		return 0, err
	}

	dst, err := dataset.Open(ctx, to)
	if err != nil {
		return 0, errors.Wrap(err, "open target dataset")
	}
	defer func() { _ = dst.Close() }()
	imp, ok := dst.(dataset.Importer)
	if !ok {
		return 0, errors.Errorf("dataset backend of %s cannot import", to.Path)
	}
	if err := imp.Import(ctx, t); err != nil {
		return 0, err
	}
	return t.Len(), nil
}
