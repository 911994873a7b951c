package util

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"github.com/sugawani/tellname/config"
	"github.com/sugawani/tellname/store"
)

// Util starts throwaway MySQL databases for integration tests. N tags its log lines.
type Util struct {
	N string
}

// logConsumer forwards container output to logrus.
type logConsumer struct {
	log logrus.FieldLogger
}

func (lc *logConsumer) Accept(l testcontainers.Log) {
	lc.log.WithField("stream", l.LogType).Debug(strings.TrimSpace(string(l.Content)))
}

var (
	dbContainerName = "mysqldb"
	dbName          = "mysql"
	dbPortNat       = nat.Port("3306/tcp")
	mysqlImage      = "mysql:8.0"
	flywayImage     = "flyway/flyway:10.17.1"
	migrationsDir   = "../migrations"
)

// mysqlHostConfig keeps the data directory in memory.
func mysqlHostConfig(hc *container.HostConfig) {
	if hc.Tmpfs == nil {
		hc.Tmpfs = map[string]string{}
	}
	hc.Tmpfs["/var/lib/mysql"] = "rw"
}

func (u Util) logger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.DebugLevel)
	if os.Getenv("TELLNAME_TEST_VERBOSE") == "" {
		l.SetOutput(io.Discard)
	}
	return l.WithField("name", u.N)
}

// NewTestDB returns a migrated database and the func that tears it down.
func (u Util) NewTestDB(ctx context.Context) (*gorm.DB, func()) {
	log := u.logger()

	var (
		containerNetwork *testcontainers.DockerNetwork
		err              error
	)
	err = backoff.Retry(func() error {
		containerNetwork, err = network.New(ctx)
		return err
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), 10))
	if err != nil {
		panic(err)
	}

	mysqlC, cleanupFunc, err := u.createMySQLContainer(ctx, log, containerNetwork.Name)
	if err != nil {
		panic(err)
	}

	if err = u.execFlywayContainer(ctx, log, containerNetwork.Name); err != nil {
		cleanupFunc()
		panic(err)
	}

	db, err := u.createDBConnection(ctx, log, mysqlC)
	if err != nil {
		cleanupFunc()
		panic(err)
	}

	cleanupF := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		cleanupFunc()
		if err := containerNetwork.Remove(ctx); err != nil {
			log.WithError(err).Error("failed to remove network")
		}
	}
	return db, cleanupF
}

func (u Util) createMySQLContainer(ctx context.Context, log *logrus.Entry, networkName string) (testcontainers.Container, func(), error) {
	mysqlC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: mysqlImage,
			Env: map[string]string{
				"MYSQL_DATABASE":             dbName,
				"MYSQL_ALLOW_EMPTY_PASSWORD": "yes",
			},
			ExposedPorts:       []string{string(dbPortNat)},
			HostConfigModifier: mysqlHostConfig,
			Networks:           []string{networkName},
			NetworkAliases: map[string][]string{
				networkName: {dbContainerName},
			},
			WaitingFor: wait.ForLog("port: 3306  MySQL Community Server"),
		},
		Started: true,
		Logger:  log,
	})
	if err != nil {
		return nil, nil, err
	}

	cleanupFunc := func() {
		if mysqlC.IsRunning() {
			if err := mysqlC.Terminate(ctx); err != nil {
				log.WithError(err).Error("failed to terminate mysql container")
			}
		}
	}
	return mysqlC, cleanupFunc, nil
}

func (u Util) execFlywayContainer(ctx context.Context, log *logrus.Entry, networkName string) error {
	mysqlDBUrl := "-url=jdbc:mysql://" + dbContainerName + ":" + dbPortNat.Port() + "/" + dbName + "?allowPublicKeyRetrieval=true"
	flywayC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: flywayImage,
			Cmd: []string{
				mysqlDBUrl, "-user=root",
				"baseline", "-baselineVersion=0.0",
				"-locations=filesystem:/flyway", "-validateOnMigrate=false", "migrate"},
			Networks: []string{networkName},
			Files: []testcontainers.ContainerFile{
				{
					HostFilePath:      migrationsDir,
					ContainerFilePath: "/flyway/sql",
					FileMode:          0o644,
				},
			},
			WaitingFor: wait.ForLog("Successfully applied|No migration necessary").AsRegexp(),
			LogConsumerCfg: &testcontainers.LogConsumerConfig{
				Opts:      []testcontainers.LogProductionOption{testcontainers.WithLogProductionTimeout(10 * time.Second)},
				Consumers: []testcontainers.LogConsumer{&logConsumer{log: log.WithField("container", "flyway")}},
			},
		},
		Started: true,
		Logger:  log,
	})
	if err != nil {
		log.WithError(err).Error("flyway failed")
		return err
	}

	if err := flywayC.Terminate(ctx); err != nil {
		log.WithError(err).Error("failed to terminate flyway container")
	}
	return nil
}

func (u Util) createDBConnection(ctx context.Context, log *logrus.Entry, mysqlC testcontainers.Container) (*gorm.DB, error) {
	host, err := mysqlC.Host(ctx)
	if err != nil {
		log.WithError(err).Error("failed to get mysql host")
		return nil, err
	}
	port, err := mysqlC.MappedPort(ctx, dbPortNat)
	if err != nil {
		log.WithError(err).Error("failed to get mysql port")
		return nil, err
	}

	cfg := config.DefaultConfig().Database
	cfg.Host = host
	cfg.Port = port.Int()
	cfg.Name = dbName
	cfg.ConnMaxLifetime = time.Second
	return store.Open(ctx, cfg, log)
}
