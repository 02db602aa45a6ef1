package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/thereayou/classroom-rtc/internal/config"
	"github.com/thereayou/classroom-rtc/internal/database"
	"github.com/thereayou/classroom-rtc/pkg/auth"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "classroom-rtc",
	Short: "Real-time chat, presence and meeting signaling for the classroom",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// logging must exist before config.Load reports anything
		setupLogging(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
		return nil
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		s, err := NewServer(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		return s.Run(ctx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := database.Connect(cfg.DatabaseURL, true)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return err
		}
		log.Info().Str("module", "cli").Msg("schema up to date")
		return nil
	},
}

var (
	tokenUser string
	tokenRole string
)

// tokenCmd mints a token for local testing; accounts live elsewhere.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a signed access token for a user id",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		userID, err := uuid.Parse(tokenUser)
		if err != nil {
			return fmt.Errorf("invalid --user: %w", err)
		}
		token, err := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL).Generate(userID, tokenRole)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (yaml, toml or json)")

	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id (uuid)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "student", "role claim")
	_ = tokenCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd)
}

// Execute runs the command line. With no subcommand it serves.
func Execute() {
	if len(os.Args) == 1 {
		rootCmd.SetArgs([]string{"serve"})
	}
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
