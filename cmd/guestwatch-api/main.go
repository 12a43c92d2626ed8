package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/guestwatch/internal/accounts"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/auth"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/config"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/database"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/logging"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/registry"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/server"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/state"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "guestwatch-api",
		Short: "Guest registration and watchlist console backend",
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
	cmd.PersistentFlags().StringSlice("allowed-origins", defaults.GetStringSlice("http.allowed_origins"), "CORS allowed origins")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Session token signing secret (overrides env)")
	cmd.PersistentFlags().String("agency-name", defaults.GetString("console.agency_name"), "Sender name for police chat messages")
	cmd.PersistentFlags().String("reception-username", defaults.GetString("accounts.reception.username"), "Reception account username")
	cmd.PersistentFlags().String("reception-password", "", "Reception account password (overrides env)")
	cmd.PersistentFlags().String("police-username", defaults.GetString("accounts.police.username"), "Police account username")
	cmd.PersistentFlags().String("police-password", "", "Police account password (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "console.agency_name", "agency-name")
	bindFlag(cmd, "accounts.reception.username", "reception-username")
	bindFlag(cmd, "accounts.reception.password", "reception-password")
	bindFlag(cmd, "accounts.police.username", "police-username")
	bindFlag(cmd, "accounts.police.password", "police-password")
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

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
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

	stateStore, err := state.NewStore(state.StoreConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	profiles, err := accounts.NewService(accounts.ServiceConfig{
		Database: db,
		Clock:    time.Now,
	})
	if err != nil {
		return err
	}

	authenticator, err := accounts.NewAuthenticator([]accounts.Credential{
		{Username: appConfig.Reception.Username, Secret: appConfig.Reception.Password, Role: state.RoleReception},
		{Username: appConfig.Police.Username, Secret: appConfig.Police.Password, Role: state.RolePolice},
	}, accounts.DefaultArgon2idParams)
	if err != nil {
		return err
	}

	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "guestwatch-auth",
		Audience:      "guestwatch-api",
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	realtime := server.NewRealtimeDispatcher()

	registryService, err := registry.NewService(ctx, registry.ServiceConfig{
		Store:         stateStore,
		Authenticator: authenticator,
		Profiles:      profiles,
		IDProvider:    registry.NewUUIDProvider(),
		Notifier:      realtime,
		Clock:         time.Now,
		Logger:        logger,
		AgencyName:    appConfig.AgencyName,
	})
	if err != nil {
		logger.Error("failed to load application state", zap.Error(err))
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Registry:       registryService,
		TokenManager:   tokenManager,
		Realtime:       realtime,
		Logger:         logger,
		Clock:          time.Now,
		AllowedOrigins: appConfig.AllowedOrigins,
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
