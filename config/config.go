// Package config loads tellname settings from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig points at the MySQL instance holding the users table.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	// MaxRetries bounds the ping retries on Open.
	MaxRetries      uint64        `yaml:"max_retries"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            "127.0.0.1",
			Port:            3306,
			Name:            "mysql",
			User:            "root",
			MaxRetries:      5,
			ConnMaxLifetime: time.Minute,
			MaxOpenConns:    10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults. An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return errors.Errorf("database.port out of range: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return errors.New("database.name is required")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	return nil
}

func (d DatabaseConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.DBName = d.Name
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", d.Host, d.Port)
	cfg.ParseTime = true
	return cfg.FormatDSN()
}
