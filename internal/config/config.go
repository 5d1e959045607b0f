package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Lifecycle    LifecycleConfig    `mapstructure:"lifecycle"`
	Observer     ObserverConfig     `mapstructure:"observer"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type StorageConfig struct {
	Driver string       `mapstructure:"driver"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type QueueConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

type LifecycleConfig struct {
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

type ObserverConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type ConnectivityConfig struct {
	ProbeTarget   string        `mapstructure:"probe_target"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("formsync")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/formsync")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("FORMSYNC")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8787)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	viper.SetDefault("storage.driver", "sqlite")
	viper.SetDefault("storage.sqlite.path", "./data/formsync.db")

	viper.SetDefault("queue.max_attempts", 5)
	viper.SetDefault("queue.base_delay", 1*time.Second)
	viper.SetDefault("queue.max_delay", 30*time.Second)
	viper.SetDefault("queue.send_timeout", 30*time.Second)

	viper.SetDefault("lifecycle.flush_interval", 5*time.Minute)

	viper.SetDefault("observer.poll_interval", 2*time.Second)

	viper.SetDefault("connectivity.probe_target", "1.1.1.1:443")
	viper.SetDefault("connectivity.probe_interval", 15*time.Second)
	viper.SetDefault("connectivity.probe_timeout", 3*time.Second)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}
