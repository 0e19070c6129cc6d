package jobs

// Settings holds the job transport configuration.
type Settings struct {
	RedisEnabled bool   `mapstructure:"redis-enabled"`
	RedisAddr    string `mapstructure:"redis-addr"`
	Group        string `mapstructure:"group"`
	Consumer     string `mapstructure:"consumer"`
	// MaxConcurrent bounds the calls one worker serves at the same time.
	MaxConcurrent int `mapstructure:"max-concurrent"`
}

func DefaultSettings() Settings {
	return Settings{
		RedisAddr:     "localhost:6379",
		Group:         "survey-agents",
		Consumer:      "worker-1",
		MaxConcurrent: 4,
	}
}
