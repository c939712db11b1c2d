package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campuslabs/ballotbox/backend/internal/auth"
	"github.com/campuslabs/ballotbox/backend/internal/ballot"
	"github.com/campuslabs/ballotbox/backend/internal/catalog"
	"github.com/campuslabs/ballotbox/backend/internal/config"
	"github.com/campuslabs/ballotbox/backend/internal/database"
	"github.com/campuslabs/ballotbox/backend/internal/logging"
	"github.com/campuslabs/ballotbox/backend/internal/server"
	"github.com/campuslabs/ballotbox/backend/internal/tally"
	"github.com/campuslabs/ballotbox/backend/internal/voters"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ballotbox-api",
		Short: "Campus election ballot engine",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newSeedCommand(), newIssueTokenCommand(), newResetVotesCommand())

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
	cmd.PersistentFlags().String("session-issuer", defaults.GetString("session.issuer"), "Expected issuer of voter session tokens")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("session.token_ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("signing-secret", "", "Session token signing secret (overrides env)")
	cmd.PersistentFlags().String("sealing-key", "", "Hex-encoded 32-byte receipt sealing key (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "session.issuer", "session-issuer")
	bindFlag(cmd, "session.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
	bindFlag(cmd, "receipt.sealing_key", "sealing-key")
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

// engine bundles the constructed services behind one handle for the server
// and the admin subcommands.
type engine struct {
	cfg     config.AppConfig
	logger  *zap.Logger
	db      *gorm.DB
	tokens  *auth.TokenManager
	catalog *catalog.Service
	voters  *voters.Service
	ballots *ballot.Service
	tallies *tally.Service
}

func (e *engine) Close() {
	if sqlDB, err := e.db.DB(); err == nil {
		sqlDB.Close()
	}
	e.logger.Sync() //nolint:errcheck
}

func buildEngine() (*engine, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	tokenManager, err := auth.NewTokenManager(auth.TokenManagerConfig{
		SigningSecret: []byte(appConfig.SessionSigningKey),
		Issuer:        appConfig.SessionIssuer,
		TokenTTL:      appConfig.SessionTokenTTL,
	})
	if err != nil {
		return nil, err
	}

	catalogService, err := catalog.NewService(catalog.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return nil, err
	}

	voterService, err := voters.NewService(voters.ServiceConfig{Database: db})
	if err != nil {
		return nil, err
	}

	gate, err := ballot.NewGate(ballot.GateConfig{Database: db})
	if err != nil {
		return nil, err
	}

	ballotService, err := ballot.NewService(ballot.ServiceConfig{
		Database:   db,
		Catalog:    catalogService,
		Gate:       gate,
		Sealer:     ballot.NewSecretBoxSealer(appConfig.ReceiptSealingKey),
		IDProvider: ballot.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	tallyService, err := tally.NewService(tally.ServiceConfig{
		Database: db,
		Catalog:  catalogService,
		Voters:   voterService,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	return &engine{
		cfg:     appConfig,
		logger:  logger,
		db:      db,
		tokens:  tokenManager,
		catalog: catalogService,
		voters:  voterService,
		ballots: ballotService,
		tallies: tallyService,
	}, nil
}

func runServer(ctx context.Context) error {
	app, err := buildEngine()
	if err != nil {
		return err
	}
	defer app.Close()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:  app.tokens,
		Catalog:       app.catalog,
		BallotService: app.ballots,
		TallyService:  app.tallies,
		Dispatcher:    server.NewResultsDispatcher(),
		Logger:        app.logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    app.cfg.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server starting", zap.String("address", app.cfg.HTTPAddress))
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

func newIssueTokenCommand() *cobra.Command {
	var voterID uint

	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Mint a voter session token for testing and operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildEngine()
			if err != nil {
				return err
			}
			defer app.Close()

			token, expiresIn, err := app.tokens.IssueVoterToken(voterID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", token)
			app.logger.Info("voter token issued",
				zap.Uint("voter_id", voterID),
				zap.Int64("expires_in_s", expiresIn))
			return nil
		},
	}
	cmd.Flags().UintVar(&voterID, "voter-id", 0, "Voter profile id to mint the token for")
	cmd.MarkFlagRequired("voter-id") //nolint:errcheck
	return cmd
}

func newResetVotesCommand() *cobra.Command {
	var electionID uint

	cmd := &cobra.Command{
		Use:   "reset-votes",
		Short: "Purge all votes and receipts for an election (refused while it is open)",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildEngine()
			if err != nil {
				return err
			}
			defer app.Close()

			votes, receipts, err := app.ballots.ResetElection(cmd.Context(), electionID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d votes and %d receipts for election %d\n", votes, receipts, electionID)
			return nil
		},
	}
	cmd.Flags().UintVar(&electionID, "election-id", 0, "Election id to purge")
	cmd.MarkFlagRequired("election-id") //nolint:errcheck
	return cmd
}
