package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/psds-microservice/ticket-chat-service/internal/config"
	"github.com/psds-microservice/ticket-chat-service/internal/database"
	"github.com/psds-microservice/ticket-chat-service/internal/model"
	"github.com/psds-microservice/ticket-chat-service/internal/store"
	"github.com/spf13/cobra"
)

// The users table mirrors the auth service's directory; this command seeds
// it for local development.
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the local users directory",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a user and print its id",
	RunE:  runUserAdd,
}

var userAddFlags struct {
	id        string
	email     string
	firstName string
	lastName  string
	role      string
}

func init() {
	f := userAddCmd.Flags()
	f.StringVar(&userAddFlags.id, "id", "", "user id (uuid); generated when empty")
	f.StringVar(&userAddFlags.email, "email", "", "email (required)")
	f.StringVar(&userAddFlags.firstName, "first-name", "", "first name")
	f.StringVar(&userAddFlags.lastName, "last-name", "", "last name")
	f.StringVar(&userAddFlags.role, "role", string(model.UserRoleCustomer), "customer | agent | admin")
	_ = userAddCmd.MarkFlagRequired("email")

	userCmd.AddCommand(userAddCmd)
	rootCmd.AddCommand(userCmd)
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	role := model.UserRole(userAddFlags.role)
	switch role {
	case model.UserRoleCustomer, model.UserRoleAgent, model.UserRoleAdmin:
	default:
		return fmt.Errorf("invalid role %q", userAddFlags.role)
	}
	id := uuid.New()
	if userAddFlags.id != "" {
		var err error
		if id, err = uuid.Parse(userAddFlags.id); err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	conn, err := database.Open(cfg.DSN())
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer database.Close(conn)

	u := &model.User{
		ID:        id,
		Email:     userAddFlags.email,
		FirstName: userAddFlags.firstName,
		LastName:  userAddFlags.lastName,
		Role:      role,
	}
	if err := store.NewUserStore(conn).Create(cmd.Context(), u); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), u.ID.String())
	return nil
}
