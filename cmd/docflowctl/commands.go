package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kirillkom/deco-docflow/internal/bootstrap"
	"github.com/kirillkom/deco-docflow/internal/config"
	"github.com/kirillkom/deco-docflow/internal/core/domain"
	"github.com/kirillkom/deco-docflow/internal/core/usecase"
	"github.com/kirillkom/deco-docflow/internal/infrastructure/auth"
	"github.com/kirillkom/deco-docflow/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/deco-docflow/internal/observability/logging"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			db, err := bootstrap.OpenDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func createAdminCmd() *cobra.Command {
	var in domain.AdminInput

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			logger := logging.NewJSONLogger("docflowctl", cfg.LogLevel)

			db, err := bootstrap.OpenDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			accounts := newAdminAccounts(postgres.NewUserRepository(db), logger)
			admin, err := accounts.CreateAdmin(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s created with id %s\n", admin.Email, admin.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Email, "email", "", "Admin email address")
	cmd.Flags().StringVar(&in.Password, "password", "", "Admin password (at least 8 characters)")
	cmd.Flags().StringVar(&in.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "", "Last name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

// newAdminAccounts wires only what account seeding touches: no OTP store,
// token issuer or mail.
func newAdminAccounts(users *postgres.UserRepository, logger *slog.Logger) *usecase.AccountUseCase {
	return usecase.NewAccountUseCase(users, nil, nil, auth.NewArgon2Hasher(auth.DefaultArgon2Params), nil, logger)
}
