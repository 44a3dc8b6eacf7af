// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authority/internal/auth"
)

// operator is the actor behind user commands. Whoever can run the CLI
// against the database already holds every privilege.
var operator = &auth.User{Email: "operator@localhost", Role: auth.RoleAdmin, Active: true}

// userAdmin wraps the methods used from auth.UserService.
type userAdmin interface {
	Register(ctx context.Context, actor *auth.User, in auth.RegisterInput) (*auth.User, error)
	Search(ctx context.Context, actor *auth.User, q auth.UserQuery) (auth.Page[auth.PublicUser], error)
}

type userCreateConfig struct {
	email         string
	password      string
	passwordStdin bool
	firstName     string
	lastName      string
	role          string
}

type userListConfig struct {
	email string
	role  string
	page  int
	limit int
}

// NewUserCmd creates the user subcommand.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts directly in the database",
	}
	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserListCmd())
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	uc := &userCreateConfig{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		Long: `Create a user account. The first account in an empty database is
always an admin.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withUserService(cmd, func(users userAdmin) error {
				return runUserCreate(cmd, users, uc)
			})
		},
	}

	cmd.Flags().StringVar(&uc.email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&uc.password, "password", "", "password")
	cmd.Flags().BoolVar(&uc.passwordStdin, "password-stdin", false, "read the password from stdin")
	cmd.Flags().StringVar(&uc.firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&uc.lastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&uc.role, "role", string(auth.RoleAdmin), "role (admin or user)")
	_ = cmd.MarkFlagRequired("email")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")

	return cmd
}

func newUserListCmd() *cobra.Command {
	lc := &userListConfig{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withUserService(cmd, func(users userAdmin) error {
				return runUserList(cmd, users, lc)
			})
		},
	}

	cmd.Flags().StringVar(&lc.email, "email", "", "filter by email substring")
	cmd.Flags().StringVar(&lc.role, "role", "", "filter by role")
	cmd.Flags().IntVar(&lc.page, "page", 1, "page number")
	cmd.Flags().IntVar(&lc.limit, "limit", auth.DefaultPageSize, "page size")

	return cmd
}

// withUserService connects to the database and runs fn with a user service.
func withUserService(cmd *cobra.Command, fn func(userAdmin) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogging(cfg)

	pool, err := connect(cmd.Context(), cfg, logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}
	svc, err := newServices(cfg, pool, wiring{notifier: notifier, logger: logger})
	if err != nil {
		return err
	}
	return fn(svc.users)
}

func runUserCreate(cmd *cobra.Command, users userAdmin, uc *userCreateConfig) error {
	role := auth.Role(uc.role)
	if !role.Valid() {
		return oops.Code(auth.CodeUserInvalid).With("role", uc.role).Errorf("role must be admin or user")
	}

	password := uc.password
	if uc.passwordStdin {
		p, err := readPassword(cmd.InOrStdin())
		if err != nil {
			return err
		}
		password = p
	}
	if password == "" {
		return oops.Code(auth.CodeUserInvalid).Errorf("a password is required (--password or --password-stdin)")
	}

	in := auth.RegisterInput{Email: uc.email, Password: password, Role: role}
	if uc.firstName != "" {
		in.FirstName = &uc.firstName
	}
	if uc.lastName != "" {
		in.LastName = &uc.lastName
	}

	user, err := users.Register(cmd.Context(), operator, in)
	if err != nil {
		return err
	}
	cmd.Printf("Created %s %s (%s)\n", user.Role, user.Email, user.ID)
	return nil
}

// readPassword reads the first line of r.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runUserList(cmd *cobra.Command, users userAdmin, lc *userListConfig) error {
	page, err := users.Search(cmd.Context(), operator, auth.UserQuery{
		Email: lc.email,
		Role:  auth.Role(lc.role),
		Page:  lc.page,
		Limit: lc.limit,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tEMAIL\tROLE\tACTIVE\tVERIFIED")
	for _, u := range page.Items {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\n", u.ID, u.Email, u.Role, u.IsActive, u.IsEmailVerified)
	}
	_ = w.Flush()
	cmd.Printf("page %d of %d, %d user(s)\n", page.Page, page.PageCount, page.Total)
	return nil
}
