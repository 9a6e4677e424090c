package main

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/findosh/libran/internal/models"
	"github.com/findosh/libran/internal/services/library"
)

// readPassword securely reads a password with masking.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println()
	return strings.TrimSpace(string(bytePassword)), nil
}

func newLoginCmd(a *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the library service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			password, err := readPassword("Password: ")
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}

			sess, err := a.sessions.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Printf("Logged in as %s (%s)\n", sess.User.FullName, sess.User.UserType)
			if sess.Member != nil {
				fmt.Printf("Membership: %s\n", sess.Member.MembershipID)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.sessions.Logout(); err != nil {
				return err
			}
			fmt.Println("Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess := a.sessions.Current()
			if sess == nil {
				fmt.Println("Not logged in.")
				return nil
			}

			// Server-side check so a revoked session is reported honestly.
			user, err := a.library.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%s <%s>\n", user.FullName, user.Email)
			fmt.Printf("Type: %s\n", user.UserType)
			if len(user.Roles) > 0 {
				fmt.Printf("Roles: %s\n", strings.Join(user.Roles, ", "))
			}
			if sess.Member != nil {
				fmt.Printf("Membership: %s (%s)\n", sess.Member.MembershipID, sess.Member.Status)
			}
			return nil
		},
	}
}

func newRegisterCmd(a *app) *cobra.Command {
	var input library.RegisterInput

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input.Email == "" || input.FullName == "" {
				return fmt.Errorf("--email and --name are required")
			}
			password, err := readPassword("Password: ")
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			confirm, err := readPassword("Confirm password: ")
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			if password != confirm {
				return fmt.Errorf("passwords do not match")
			}
			input.Password = password

			if err := a.library.Register(cmd.Context(), input); err != nil {
				return err
			}
			fmt.Println("Registration successful. You can now log in.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&input.Email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&input.FullName, "name", "n", "", "full name")
	cmd.Flags().StringVar(&input.Role, "role", models.RoleLibraryMember, "account role")
	cmd.Flags().StringVar(&input.MembershipID, "membership-id", "", "membership ID (MEM prefix, members only)")
	return cmd
}

func newPasswdCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the current account's password",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(cmd.Context()); err != nil {
				return err
			}
			oldPassword, err := readPassword("Current password: ")
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			newPassword, err := readPassword("New password: ")
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			confirm, err := readPassword("Confirm new password: ")
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			if newPassword != confirm {
				return fmt.Errorf("passwords do not match")
			}

			if err := a.library.ChangePassword(cmd.Context(), oldPassword, newPassword); err != nil {
				return err
			}
			fmt.Println("Password changed.")
			return nil
		},
	}
}
