package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dorolabs/novelverse/backend/internal/auth"
	"github.com/dorolabs/novelverse/backend/internal/config"
	"github.com/dorolabs/novelverse/backend/internal/database"
	"github.com/dorolabs/novelverse/backend/internal/images"
	"github.com/dorolabs/novelverse/backend/internal/logging"
	"github.com/dorolabs/novelverse/backend/internal/novels"
	"github.com/dorolabs/novelverse/backend/internal/server"
	"github.com/dorolabs/novelverse/backend/internal/session"
	"github.com/dorolabs/novelverse/backend/internal/store"
	"github.com/dorolabs/novelverse/backend/internal/transfer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "novelverse-api",
		Short: "NovelVerse view synchronization backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("share-base-url", defaults.GetString("share.base_url"), "Base address for shareable links")
	cmd.PersistentFlags().String("images-dir", defaults.GetString("images.dir"), "Directory for uploaded images")
	cmd.PersistentFlags().String("assertion-issuer", defaults.GetString("assertion.issuer"), "Expected identity assertion issuer")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("signing-secret", "", "Session token signing secret (overrides env)")
	cmd.PersistentFlags().String("assertion-secret", "", "Identity assertion signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "share.base_url", "share-base-url")
	bindFlag(cmd, "images.dir", "images-dir")
	bindFlag(cmd, "assertion.issuer", "assertion-issuer")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "assertion.signing_secret", "assertion-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	collectionStore, err := store.New(store.Config{
		Database: db,
		Clock:    time.Now,
		Keys:     store.NewUUIDKeyProvider(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	assertionValidator, err := auth.NewAssertionValidator(auth.AssertionValidatorConfig{
		SigningSecret: []byte(appConfig.AssertionSigningSecret),
		Issuer:        appConfig.AssertionIssuer,
	})
	if err != nil {
		return err
	}

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "novelverse-api",
		Audience:      "novelverse-clients",
		TokenTTL:      appConfig.TokenTTL,
	})

	baseProjector := novels.NewProjector()
	baseSession, err := session.New(session.Config{
		Store:     collectionStore,
		Identity:  session.NewFixedIdentity(novels.Viewer{}),
		Projector: baseProjector,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	coordinator, err := session.NewCoordinator(session.CoordinatorConfig{
		Store:        collectionStore,
		Views:        baseProjector,
		ShareBaseURL: appConfig.ShareBaseURL,
		Clock:        time.Now,
		Logger:       logger,
		Notifier:     session.NewLogNotifier(logger),
	})
	if err != nil {
		return err
	}

	transferService, err := transfer.NewService(transfer.ServiceConfig{
		Store:  collectionStore,
		Clock:  time.Now,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	imageHost, err := images.NewDirHost(images.DirHostConfig{
		Dir:     appConfig.ImagesDir,
		BaseURL: appConfig.ShareBaseURL,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Verifier:      assertionValidator,
		Tokens:        tokenIssuer,
		Store:         collectionStore,
		Coordinator:   coordinator,
		BaseProjector: baseProjector,
		Transfer:      transferService,
		Images:        imageHost,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := baseSession.Run(signalCtx); err != nil {
			logger.Error("base session stopped", zap.Error(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
