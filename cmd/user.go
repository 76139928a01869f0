package cmd

import (
	"fmt"
	"strconv"

	"github.com/killallgit/annotation-api/internal/database"
	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/users"
	"github.com/spf13/cobra"
)

// userCmd groups account administration commands
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
	Long: `Manage user accounts from the command line.

Registration through the API always creates annotators, so the first
admin is created here.

Example:
  annotation-api user create --username root --email root@example.com --password '...' --role admin
  annotation-api user promote alice --role reviewer`,
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account with any role",
	RunE:  runUserCreate,
}

var userPromoteCmd = &cobra.Command{
	Use:   "promote <username>",
	Short: "Change the global role of an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserPromote,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE:  runUserList,
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd, userPromoteCmd, userListCmd)

	userCreateCmd.Flags().String("username", "", "account name")
	userCreateCmd.Flags().String("email", "", "email address")
	userCreateCmd.Flags().String("password", "", "initial password")
	userCreateCmd.Flags().String("role", string(models.RoleAnnotator), "admin, project_manager, reviewer or annotator")
	for _, name := range []string{"username", "email", "password"} {
		_ = userCreateCmd.MarkFlagRequired(name)
	}

	userPromoteCmd.Flags().String("role", "", "new role")
	_ = userPromoteCmd.MarkFlagRequired("role")

	userListCmd.Flags().Int("limit", 100, "maximum number of accounts")
}

func userRepository(cmd *cobra.Command) (users.Repository, users.Service, *database.DB, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := openDatabase(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	repo := users.NewRepository(db.DB)
	return repo, users.NewService(repo, logger), db, nil
}

func parseRoleFlag(cmd *cobra.Command) (models.Role, error) {
	raw, _ := cmd.Flags().GetString("role")
	role := models.Role(raw)
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return role, nil
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	role, err := parseRoleFlag(cmd)
	if err != nil {
		return err
	}
	username, _ := cmd.Flags().GetString("username")
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")

	_, svc, db, err := userRepository(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	user, err := svc.Create(cmd.Context(), users.CreateInput{
		Username: username,
		Email:    email,
		Password: password,
		Role:     role,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s (id %d) with role %s\n", user.Username, user.ID, user.Role)
	return nil
}

func runUserPromote(cmd *cobra.Command, args []string) error {
	role, err := parseRoleFlag(cmd)
	if err != nil {
		return err
	}

	repo, svc, db, err := userRepository(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	user, err := repo.GetUserByUsername(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	user, err = svc.SetRole(cmd.Context(), user.ID, role)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user.Username, user.Role)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	_, svc, db, err := userRepository(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	list, total, err := svc.List(cmd.Context(), 0, limit)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(list))
	for _, u := range list {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(u.ID), 10),
			u.Username,
			u.Email,
			string(u.Role),
			strconv.FormatBool(u.IsActive),
		})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable([]string{"ID", "Username", "Email", "Role", "Active"}, rows, 0))
	fmt.Fprintf(out, "%d of %d account(s)\n", len(list), total)
	return nil
}
