package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"github.com/semmidev/dbbackup/internal/domain"
)

type Config struct {
	App          AppConfig                    `mapstructure:"app"`
	Server       ServerConfig                 `mapstructure:"server"`
	Store        StoreConfig                  `mapstructure:"store"`
	Environments map[string]EnvironmentConfig `mapstructure:"environments"`
	Backup       BackupConfig                 `mapstructure:"backup"`
	Scheduler    SchedulerConfig              `mapstructure:"scheduler"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
	// Timezone in which schedule times and dump filenames are evaluated.
	Timezone string `mapstructure:"timezone"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// EnvironmentConfig is the connection and dump directory of one deployment target.
type EnvironmentConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Database  string `mapstructure:"database"`
	SSLMode   string `mapstructure:"ssl_mode"`
	BackupDir string `mapstructure:"backup_dir"`
}

type BackupConfig struct {
	PgDumpPath    string         `mapstructure:"pg_dump_path"`
	PsqlPath      string         `mapstructure:"psql_path"`
	Timeout       time.Duration  `mapstructure:"timeout"`
	PollInterval  time.Duration  `mapstructure:"poll_interval"`
	ProgressStep  int            `mapstructure:"progress_step"`
	Workers       int            `mapstructure:"workers"`
	RetentionDays int            `mapstructure:"retention_days"`
	Compress      bool           `mapstructure:"compress"`
	CompressLevel int            `mapstructure:"compress_level"`
	UploadTargets []UploadTarget `mapstructure:"upload_targets"`
}

type UploadTarget struct {
	Type    string `mapstructure:"type"`
	Enabled bool   `mapstructure:"enabled"`

	// Endpoint overrides the service's API base URL (S3 compatible stores, emulators).
	Endpoint string `mapstructure:"endpoint"`

	// Local mirror directory
	Path string `mapstructure:"path"`

	// Google Drive
	CredentialsFile string `mapstructure:"credentials_file"`
	FolderID        string `mapstructure:"folder_id"`

	// AWS S3 or any S3 compatible endpoint
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`

	// Telegram
	BotToken   string `mapstructure:"bot_token"`
	ChatID     string `mapstructure:"chat_id"`
	SendFile   bool   `mapstructure:"send_file"`
	NotifyOnly bool   `mapstructure:"notify_only"`
}

type SchedulerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Tick    string `mapstructure:"tick"`
	Cleanup string `mapstructure:"cleanup"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("DBBACKUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return decode(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "dbbackup")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.timezone", "Asia/Bangkok")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("store.path", "data/dbbackup.db")
	v.SetDefault("backup.pg_dump_path", "pg_dump")
	v.SetDefault("backup.psql_path", "psql")
	v.SetDefault("backup.timeout", 2*time.Hour)
	v.SetDefault("backup.poll_interval", time.Second)
	v.SetDefault("backup.progress_step", 10)
	v.SetDefault("backup.workers", 2)
	v.SetDefault("backup.retention_days", 30)
	v.SetDefault("backup.compress", true)
	v.SetDefault("backup.compress_level", 9)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.tick", "0 * * * * *")
	v.SetDefault("scheduler.cleanup", "0 0 3 * * *")
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// AutomaticEnv does not reach nested map keys during Unmarshal, so secrets are pulled explicitly.
	for name, env := range cfg.Environments {
		if pw := v.GetString("environments." + name + ".password"); pw != "" {
			env.Password = pw
			cfg.Environments[name] = env
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Environments) == 0 {
		return fmt.Errorf("at least one environment is required")
	}

	for name, env := range c.Environments {
		if _, err := domain.ParseEnvironment(name); err != nil {
			return fmt.Errorf("environments.%s: %w", name, err)
		}
		if env.Host == "" {
			return fmt.Errorf("environments.%s: host is required", name)
		}
		if env.Database == "" {
			return fmt.Errorf("environments.%s: database is required", name)
		}
		if env.BackupDir == "" {
			return fmt.Errorf("environments.%s: backup_dir is required", name)
		}
	}

	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("app.timezone: %w", err)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Backup.Workers < 1 {
		return fmt.Errorf("backup.workers must be at least 1")
	}
	if c.Backup.PollInterval <= 0 {
		return fmt.Errorf("backup.poll_interval must be positive")
	}
	if c.Backup.CompressLevel < 1 || c.Backup.CompressLevel > 9 {
		return fmt.Errorf("backup.compress_level must be between 1 and 9")
	}
	if c.Backup.RetentionDays < 0 {
		return fmt.Errorf("backup.retention_days must not be negative")
	}

	return nil
}

// Location returns the fixed scheduler timezone. Validate has already checked it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) Environment(env domain.Environment) (EnvironmentConfig, bool) {
	e, ok := c.Environments[string(env)]
	return e, ok
}

func (e EnvironmentConfig) Connection() domain.ConnectionDescriptor {
	port := e.Port
	if port == 0 {
		port = 5432
	}
	return domain.ConnectionDescriptor{
		Host:     e.Host,
		Port:     port,
		Username: e.Username,
		Password: e.Password,
		Database: e.Database,
		SSLMode:  e.SSLMode,
	}
}

func (c *Config) GetEnabledUploadTargets() []UploadTarget {
	var enabled []UploadTarget
	for _, target := range c.Backup.UploadTargets {
		if target.Enabled {
			enabled = append(enabled, target)
		}
	}
	return enabled
}
