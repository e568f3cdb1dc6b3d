package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"os/user"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wahlandcase/appgit/internal/config"
	"github.com/wahlandcase/appgit/internal/credentials"
	"github.com/wahlandcase/appgit/internal/git"
	"github.com/wahlandcase/appgit/internal/logger"
	"github.com/wahlandcase/appgit/internal/models"
	"github.com/wahlandcase/appgit/internal/repository"
	"github.com/wahlandcase/appgit/internal/service"
	"github.com/wahlandcase/appgit/internal/storage"
	"github.com/wahlandcase/appgit/internal/ui"
)

var (
	configPath string
	userID     string
	userEmail  string
	debug      bool
	noColor    bool
)

// env is built once per invocation before any subcommand runs
type env struct {
	cfg   *config.Config
	log   *zap.Logger
	store *storage.SQLiteStorage
	svc   *service.GitService
	user  models.User
}

var app env

func main() {
	rootCmd := &cobra.Command{
		Use:           "appgit",
		Short:         "Version applications with git",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			teardown()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file (default: user config dir/appgit.toml)")
	flags.StringVar(&userID, "user", defaultUser(), "User ID whose git profile is used")
	flags.StringVar(&userEmail, "email", "", "Fallback author email when no profile is saved")
	flags.BoolVar(&debug, "debug", false, "Log to the console at debug level")
	flags.BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		appCmd(),
		initCmd(),
		connectCmd(),
		disconnectCmd(),
		commitCmd(),
		logCmd(),
		pushCmd(),
		pullCmd(),
		statusCmd(),
		discardCmd(),
		branchCmd(),
		checkoutCmd(),
		mergeCmd(),
		profileCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, ui.Error(err))
		teardown()
		stop()
		os.Exit(1)
	}
}

func setup() error {
	ui.ConfigureTerminal(noColor)

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var log *zap.Logger
	if debug {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.Log.Level)
	}
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath(), log)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	exec := git.New(git.Options{
		RemoteName:    cfg.Git.RemoteName,
		RemoteTimeout: cfg.RemoteTimeout(),
		FetchRetries:  cfg.Git.FetchRetries,
		PageSize:      cfg.Git.LogPageSize,
	}, log)

	app = env{
		cfg:   cfg,
		log:   log,
		store: store,
		svc: service.New(service.Options{
			Store:           store,
			Repos:           repository.NewManager(cfg.WorkingDir(), cfg.RemoteTimeout(), log),
			Exec:            exec,
			Credentials:     credentials.NewProvider(cfg.Credentials),
			DefaultBranch:   cfg.Git.DefaultBranch,
			BranchCacheSize: cfg.Git.BranchCacheSize,
			Logger:          log,
		}),
		user: models.User{ID: userID, Name: userID, Email: userEmail},
	}
	return nil
}

func teardown() {
	if app.store != nil {
		_ = app.store.Close()
		app.store = nil
	}
	if app.log != nil {
		_ = app.log.Sync()
	}
}

func defaultUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}
