package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"crimesleuth/internal/auth"
	"crimesleuth/internal/model"
	"crimesleuth/internal/repository"
	"crimesleuth/internal/service"
)

func newCreateUserCmd(open func(*cobra.Command) (*app, error)) *cobra.Command {
	var flags struct {
		name     string
		email    string
		password string
		role     string
	}

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Register a user with the given role",
		RunE: func(cmd *cobra.Command, _ []string) error {
			role := model.Role(flags.role)
			if !role.Valid() {
				return fmt.Errorf("unknown role %q", flags.role)
			}

			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			users := repository.NewUserRepository(a.db)
			jwtService := auth.NewJWTService(a.cfg.JWTSecret, a.cfg.AccessTTL, a.cfg.RefreshTTL)
			authService := service.NewAuthService(users, jwtService, auth.NewTokenStore(nil), a.logger)

			user, err := authService.Register(ctx, flags.name, flags.email, flags.password)
			if err != nil {
				return err
			}
			if role != user.Role {
				if user, err = setRole(ctx, users, user.Email, role); err != nil {
					return err
				}
			}
			a.ok("created %s <%s> as %s (%s)", user.Name, user.Email, user.Role, user.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.name, "name", "", "Display name (required)")
	f.StringVar(&flags.email, "email", "", "Login email (required)")
	f.StringVar(&flags.password, "password", "", "Initial password, at least 6 characters (required)")
	f.StringVar(&flags.role, "role", string(model.RoleInvestigator), "Role: "+roleList())
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newSetRoleCmd(open func(*cobra.Command) (*app, error)) *cobra.Command {
	var email, role string

	cmd := &cobra.Command{
		Use:   "set-role",
		Short: "Change the role of an existing user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := model.Role(role)
			if !r.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}

			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			user, err := setRole(cmd.Context(), repository.NewUserRepository(a.db), email, r)
			if err != nil {
				return err
			}
			a.ok("%s is now %s", user.Email, user.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "User email (required)")
	cmd.Flags().StringVar(&role, "role", "", "Role: "+roleList()+" (required)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func setRole(ctx context.Context, users repository.UserRepository, email string, role model.Role) (*model.User, error) {
	user, err := users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", email, err)
	}
	user.Role = role
	if err := users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

func roleList() string {
	names := make([]string, 0, len(model.Roles()))
	for _, r := range model.Roles() {
		names = append(names, string(r))
	}
	return strings.Join(names, ", ")
}
