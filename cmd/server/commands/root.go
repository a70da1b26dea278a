package commands

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"discuss/internal/config"
	"discuss/internal/db"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Discussion forum server",
	Long: `A server-rendered discussion forum: categories, posts, comments and likes.

Configuration comes from defaults, an optional config file (--config),
a .env file and FORUM_* environment variables (FORUM_HTTP_ADDR,
FORUM_DATABASE_DRIVER, FORUM_DATABASE_DSN, ...).

Running the binary without a subcommand is the same as "server serve".`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (yaml, toml or json)")
}

func newLogger(c config.Log) (*zap.SugaredLogger, error) {
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if err := zc.Level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	l, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

type env struct {
	cfg   *config.Config
	log   *zap.SugaredLogger
	gdb   *gorm.DB
	sqlDB *sql.DB
}

func (e *env) Close() {
	e.sqlDB.Close()
	e.log.Sync()
}

// setup loads config, builds the logger and opens the database.
func setup() (*env, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	gdb, sqlDB, err := db.Open(cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &env{cfg: cfg, log: logger, gdb: gdb, sqlDB: sqlDB}, nil
}
