package cmds

import (
	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/sources"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/survey-caller/pkg/settings"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// AppName names the config directory (~/.survey) and, upper-cased, the
// environment prefix (SURVEY_).
const AppName = "survey"

// app carries the configuration shared by every subcommand.
type app struct {
	baseDir string
	cfg     *settings.Config
}

func NewRootCommand() (*cobra.Command, error) {
	baseDir, err := settings.ExecutableDir()
	if err != nil {
		return nil, err
	}
	a := &app{baseDir: baseDir}

	rootCmd := &cobra.Command{
		Use:          "survey-agent",
		Short:        "survey-agent places one-question phone surveys and records the answers",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// reinitialize the logger now that --log-level and co are parsed
			if err := clay.InitLogger(); err != nil {
				return errors.Wrap(err, "init logger")
			}
			return a.load()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.String("dataset.path", "", "Survey dataset file (.csv, .xlsx, .db), relative to the executable directory")
	pf.String("dataset.backend", "", "Dataset backend: auto, csv, xlsx, sqlite, redis")
	pf.String("dataset.redis-addr", "", "Redis address for the redis dataset backend")
	pf.Bool("jobs.redis-enabled", false, "Carry call jobs over Redis Streams")
	pf.String("jobs.redis-addr", "", "Redis address for the job transport")
	pf.String("agent.name", "", "Agent name; jobs are read from agent-jobs.<name>")

	datasetCmd, err := newDatasetCommand(a)
	if err != nil {
		return nil, err
	}
	instructionsCmd, err := newInstructionsCobraCommand(a)
	if err != nil {
		return nil, err
	}
	rootCmd.AddCommand(
		newWorkerCommand(a),
		newDispatchCommand(a),
		datasetCmd,
		instructionsCmd,
	)

	// clay adds --config and the logging flags, then binds the persistent flags
	// to the global viper.
	if err := clay.InitViper(AppName, rootCmd); err != nil {
		return nil, errors.Wrap(err, "init viper")
	}
	settings.Register(viper.GetViper(), baseDir)
	if err := clay.InitLogger(); err != nil {
		return nil, errors.Wrap(err, "init logger")
	}
	return rootCmd, nil
}

func (a *app) load() error {
	if err := settings.LoadDotEnv(a.baseDir); err != nil {
		return err
	}
	cfg, err := settings.Load(viper.GetViper(), a.baseDir)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// resolve anchors a dataset path from the command line the same way dataset.path
// is anchored.
func (a *app) resolve(p string) string {
	return settings.ResolvePath(a.baseDir, p)
}

func getMiddlewares(
	_ *values.Values,
	cmd *cobra.Command,
	args []string,
) ([]sources.Middleware, error) {
	return []sources.Middleware{
		sources.FromCobra(cmd),
		sources.FromArgs(args),
		sources.FromEnv(settings.EnvPrefix,
			fields.WithSource("env"),
		),
		sources.FromDefaults(),
	}, nil
}
