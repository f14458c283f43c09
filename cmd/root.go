package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/catchsync/cmd/catches"
	"github.com/tphakala/catchsync/cmd/serve"
	"github.com/tphakala/catchsync/cmd/session"
	synccmd "github.com/tphakala/catchsync/cmd/sync"
	"github.com/tphakala/catchsync/internal/app"
	"github.com/tphakala/catchsync/internal/conf"
	"github.com/tphakala/catchsync/internal/errors"
	"github.com/tphakala/catchsync/internal/logger"
)

// Version is set at build time.
var Version = "dev"

type globalFlags struct {
	configFile string
}

// RootCommand creates the root command. The returned cleanup closes what
// the pre-run hook opened and must run after Execute, also on error, since
// cobra skips post-run hooks when a command fails.
func RootCommand() (*cobra.Command, func() error) {
	var (
		flags   globalFlags
		appCtx  *app.Context
		logRoot *logger.CentralLogger
	)
	current := app.Provider(func() *app.Context { return appCtx })

	rootCmd := &cobra.Command{
		Use:           "catchsync",
		Short:         "Local-first catch log with background sync",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, &flags); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		catches.CaptureCommand(current),
		catches.ListCommand(current),
		catches.RelabelCommand(current),
		catches.DeleteCommand(current),
		catches.UploadCommand(current),
		catches.CollectionCommand(current),
		synccmd.Command(current),
		session.LoginCommand(current),
		session.LogoutCommand(current),
		session.WhoamiCommand(current),
		serve.Command(current),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		settings, err := conf.LoadFrom(flags.configFile)
		if err != nil {
			return err
		}

		if logRoot, err = initLogging(settings); err != nil {
			return err
		}

		if settings.Telemetry.Enabled {
			if err := errors.InitSentry(settings.Telemetry.DSN, "catchsync@"+Version); err != nil {
				logger.Global().Module("main").Warn("telemetry disabled", logger.Error(err))
			}
		}

		appCtx, err = app.New(settings)
		return err
	}

	cleanup := func() error {
		var err error
		if appCtx != nil {
			err = appCtx.Close()
			appCtx = nil
		}
		if logRoot != nil {
			_ = logRoot.Close()
			logRoot = nil
		}
		return err
	}

	return rootCmd, cleanup
}

// initLogging installs the central logger configured in settings.
func initLogging(settings *conf.Settings) (*logger.CentralLogger, error) {
	cfg := settings.Logging
	if settings.Debug {
		cfg.DefaultLevel = string(logger.LogLevelDebug)
	}
	cl, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(cl)
	return cl, nil
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command, flags *globalFlags) error {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "Path to config.yaml (default: search standard locations)")
	pf.BoolP("debug", "d", false, "Enable debug output")
	pf.String("api-url", "", "Catch backend base URL")
	pf.String("data-dir", "", "Directory for local catches and images")
	pf.String("backend", "", "Local storage backend: file, sqlite, mysql or memory")
	pf.String("user", "", "Act as this user id instead of the stored session")

	bindings := map[string]string{
		"debug":           "debug",
		"api.url":         "api-url",
		"storage.datadir": "data-dir",
		"storage.backend": "backend",
		"identity.userid": "user",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, pf.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	root, cleanup := RootCommand()
	err := root.ExecuteContext(ctx)
	if cerr := cleanup(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}
