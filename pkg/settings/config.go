// Package settings decodes the survey agent configuration. Flags, the config file
// and the environment are merged by viper; a .env file next to the executable is
// loaded into the environment first.
package settings

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-go-golems/survey-caller/pkg/dataset"
	"github.com/go-go-golems/survey-caller/pkg/jobs"
	"github.com/go-go-golems/survey-caller/pkg/realtime"
	"github.com/go-go-golems/survey-caller/pkg/room"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	EnvPrefix          = "SURVEY"
	DefaultDatasetFile = "survey_data.csv"
)

type AgentSettings struct {
	Name                 string        `mapstructure:"name"`
	GracePeriod          time.Duration `mapstructure:"grace-period"`
	TeardownTimeout      time.Duration `mapstructure:"teardown-timeout"`
	Profile              string        `mapstructure:"profile"`
	DoubleCommit         string        `mapstructure:"double-commit"`
	MaxInstructionTokens int           `mapstructure:"max-instruction-tokens"`
}

type Config struct {
	Dataset  dataset.Settings  `mapstructure:"dataset"`
	Realtime realtime.Settings `mapstructure:"realtime"`
	Room     room.Settings     `mapstructure:"room"`
	Jobs     jobs.Settings     `mapstructure:"jobs"`
	Agent    AgentSettings     `mapstructure:"agent"`
}

// ExecutableDir is the directory holding the running binary. Relative defaults
// such as the dataset path and the .env file resolve against it.
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", errors.Wrap(err, "locate executable")
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

// Register sets a default for every key on v and maps SURVEY_DATASET_PATH style
// variables onto dotted keys. The root command calls it on the viper instance
// clay has initialized.
func Register(v *viper.Viper, baseDir string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	js := jobs.DefaultSettings()

	v.SetDefault("dataset.backend", dataset.BackendAuto)
	v.SetDefault("dataset.path", filepath.Join(baseDir, DefaultDatasetFile))
	v.SetDefault("dataset.redis-addr", "localhost:6379")
	v.SetDefault("dataset.redis-prefix", "survey")
	v.SetDefault("realtime.url", "ws://localhost:8081/v1/realtime")
	v.SetDefault("realtime.api-key", "")
	v.SetDefault("realtime.model", "")
	v.SetDefault("realtime.voice", "")
	v.SetDefault("realtime.handshake-timeout", 15*time.Second)
	v.SetDefault("room.url", "")
	v.SetDefault("room.api-key", "")
	v.SetDefault("room.api-secret", "")
	v.SetDefault("room.retry-max", 2)
	v.SetDefault("jobs.redis-enabled", js.RedisEnabled)
	v.SetDefault("jobs.redis-addr", js.RedisAddr)
	v.SetDefault("jobs.group", js.Group)
	v.SetDefault("jobs.consumer", js.Consumer)
	v.SetDefault("jobs.max-concurrent", js.MaxConcurrent)
	v.SetDefault("agent.name", jobs.DefaultAgentName)
	v.SetDefault("agent.grace-period", 3*time.Second)
	v.SetDefault("agent.teardown-timeout", 10*time.Second)
	v.SetDefault("agent.profile", "")
	v.SetDefault("agent.double-commit", "overwrite")
	v.SetDefault("agent.max-instruction-tokens", 0)
}

// ResolvePath anchors a relative dataset path at baseDir. Every dataset path the
// agent accepts, from config or from the command line, goes through it.
func ResolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}

// Load decodes the merged configuration.
func Load(v *viper.Viper, baseDir string) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.Dataset.Path = ResolvePath(baseDir, cfg.Dataset.Path)
	return &cfg, nil
}
