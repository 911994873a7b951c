package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/sugawani/tellname/config"
	"github.com/sugawani/tellname/greeting"
	"github.com/sugawani/tellname/models"
	"github.com/sugawani/tellname/mutate"
	"github.com/sugawani/tellname/query"
	"github.com/sugawani/tellname/store"
)

type options struct {
	configPath string
	logLevel   string
	// openFinder returns the user lookup for greet and a func releasing it.
	openFinder func(ctx context.Context, opts *options) (greeting.Finder, func(), error)
}

func rootCmd() *cobra.Command {
	return newRootCmd(&options{openFinder: openQuery})
}

func newRootCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Store users and have them tell their name",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config")

	cmd.AddCommand(
		sayCmd(),
		createCmd(opts),
		greetCmd(opts),
		versionCmd(),
	)
	return cmd
}

func sayCmd() *cobra.Command {
	var id int64

	cmd := &cobra.Command{
		Use:   "say NAME",
		Short: "Print the greeting for a user without touching the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u := models.NewUser(models.ID(id), args[0])
			_, err := fmt.Fprintln(cmd.OutOrStdout(), u.TellName())
			return err
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "User id")
	return cmd
}

func createCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "create NAME",
		Short: "Store a new user and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, log, err := connect(ctx, opts)
			if err != nil {
				return err
			}
			defer closeDB(db, log)

			u, err := mutate.NewMutate(db).Execute(ctx, args[0])
			if err != nil {
				return err
			}
			log.WithField("id", u.ID()).Info("user created")
			_, err = fmt.Fprintln(cmd.OutOrStdout(), u.ID())
			return err
		},
	}
}

func greetCmd(opts *options) *cobra.Command {
	var metricsTextfile string

	cmd := &cobra.Command{
		Use:   "greet ID",
		Short: "Print the greeting of a stored user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			finder, release, err := opts.openFinder(ctx, opts)
			if err != nil {
				return err
			}
			defer release()

			reg := prometheus.NewRegistry()
			g := greeting.NewGreeter(finder, reg)
			msg, greetErr := g.Greet(ctx, id)

			if metricsTextfile != "" {
				if err := prometheus.WriteToTextfile(metricsTextfile, reg); err != nil {
					return errors.Wrap(err, "write metrics textfile")
				}
			}
			if greetErr != nil {
				return greetErr
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), msg)
			return err
		},
	}
	cmd.Flags().StringVar(&metricsTextfile, "metrics-textfile", "", "Write greeting metrics to this file in textfile-collector format")
	return cmd
}

func openQuery(ctx context.Context, opts *options) (greeting.Finder, func(), error) {
	db, log, err := connect(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	return query.NewQuery(db), func() { closeDB(db, log) }, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	}
}

func parseID(s string) (models.ID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid user id %q", s)
	}
	return models.ID(id), nil
}

func newLogger(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(lvl)
	return log, nil
}

func connect(ctx context.Context, opts *options) (*gorm.DB, logrus.FieldLogger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, "invalid configuration")
	}

	log, err := newLogger(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}

	db, err := store.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, nil, err
	}
	return db, log, nil
}

func closeDB(db *gorm.DB, log logrus.FieldLogger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.WithError(err).Warn("close mysql")
	}
}
