// Package store maps users onto the MySQL users table.
package store

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sugawani/tellname/config"
	"github.com/sugawani/tellname/models"
)

// UserRow is the persisted form of models.User.
type UserRow struct {
	ID   models.ID `gorm:"primaryKey;autoIncrement"`
	Name string    `gorm:"size:255;not null"`
}

func (UserRow) TableName() string {
	return "users"
}

func NewUserRow(u *models.User) UserRow {
	return UserRow{ID: u.ID(), Name: u.Name()}
}

func (r UserRow) User() *models.User {
	return models.NewUser(r.ID, r.Name)
}

// Open connects to MySQL and retries until the server answers a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig, log logrus.FieldLogger) (*gorm.DB, error) {
	log = log.WithFields(logrus.Fields{
		"host":     cfg.Host,
		"port":     cfg.Port,
		"database": cfg.Name,
	})

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.MaxRetries),
		ctx,
	)

	var db *gorm.DB
	err := backoff.Retry(func() error {
		var err error
		db, err = gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{Logger: logger.Discard})
		if err != nil {
			log.WithError(err).Warn("open mysql failed")
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return backoff.Permanent(err)
		}
		if err = sqlDB.PingContext(ctx); err != nil {
			log.WithError(err).Warn("ping mysql failed")
			return err
		}
		return nil
	}, policy)
	if err != nil {
		return nil, errors.Wrap(err, "connect mysql")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "connect mysql")
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	log.Debug("connected to mysql")
	return db, nil
}
