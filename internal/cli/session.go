package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/otiai10/doggyday/internal/identity"
	"github.com/otiai10/doggyday/internal/session"
)

// googleReadyTimeout bounds the wait for the OAuth request to be prepared
const googleReadyTimeout = 10 * time.Second

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	Long: `Sign in with an email and password account.

Examples:
  doggyday login --email rex@example.com --password secret`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")

		a, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		user, err := a.Session().Login(cmd.Context(), email, password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", user.Email, user.UID)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an email and password account",
	Long: `Create an account and sign in with it.

The password must be entered twice and be at least 6 characters long.

Examples:
  doggyday register --email rex@example.com --password secret --confirm secret`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		confirm, _ := cmd.Flags().GetString("confirm")
		if password != confirm {
			return errors.New("passwords do not match")
		}

		a, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		user, err := a.Session().Register(cmd.Context(), email, password)
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Registered and signed in as %s (%s)\n", user.Email, user.UID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out of the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Session().Logout(cmd.Context()); err != nil {
			return fmt.Errorf("logout failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
		return nil
	},
}

var googleCmd = &cobra.Command{
	Use:   "google",
	Short: "Sign in with Google",
	Long: `Sign in with Google in the system browser.

The consent screen opens in the browser and the redirect is captured on a
loopback port. Closing the browser tab leaves you signed out.

Examples:
  doggyday google
  DOGGYDAY_OAUTH_LOOPBACK_PORT=53682 doggyday google`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if d := a.Diagnose(); d.ClientID == "" {
			return fmt.Errorf("%w: %s", session.ErrGoogleAuthNotReady, d.Problem)
		}
		if err := awaitGoogleReady(cmd.Context(), a.Session(), googleReadyTimeout); err != nil {
			return fmt.Errorf("%w: %s", err, a.Diagnose().Problem)
		}

		user, err := a.Session().LoginWithGoogle(cmd.Context())
		if err != nil {
			return fmt.Errorf("google sign-in failed: %w", err)
		}
		if user == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Sign-in cancelled")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", user.Email, user.UID)
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		state := a.Session().State()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd, state)
		}
		if state.User == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
			return nil
		}
		printUser(cmd, state.User)
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the signed-in user's profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update display name or photo URL",
	Long: `Update the profile of the signed-in user. Flags that are not given are
left unchanged; an empty value clears the field.

Examples:
  doggyday profile set --name "Rex's Human"
  doggyday profile set --photo-url https://example.com/me.png`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var update identity.ProfileUpdate
		if cmd.Flags().Changed("name") {
			name, _ := cmd.Flags().GetString("name")
			update.DisplayName = &name
		}
		if cmd.Flags().Changed("photo-url") {
			photo, _ := cmd.Flags().GetString("photo-url")
			update.PhotoURL = &photo
		}
		if update.DisplayName == nil && update.PhotoURL == nil {
			return errors.New("nothing to update (use --name or --photo-url)")
		}

		a, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		user, err := a.Session().UpdateProfile(cmd.Context(), update)
		if err != nil {
			return fmt.Errorf("profile update failed: %w", err)
		}
		printUser(cmd, user)
		return nil
	},
}

func init() {
	loginCmd.Flags().String("email", "", "account email")
	loginCmd.Flags().String("password", "", "account password")

	registerCmd.Flags().String("email", "", "account email")
	registerCmd.Flags().String("password", "", "account password")
	registerCmd.Flags().String("confirm", "", "the password again")

	whoamiCmd.Flags().Bool("json", false, "print the session state as JSON")

	profileSetCmd.Flags().String("name", "", "display name")
	profileSetCmd.Flags().String("photo-url", "", "profile photo URL")
	profileCmd.AddCommand(profileSetCmd)

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(googleCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(profileCmd)
}

// awaitGoogleReady waits until the OAuth request is prepared or timeout passes
func awaitGoogleReady(ctx context.Context, m *session.Manager, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for !m.IsGoogleAuthReady() {
		select {
		case <-ctx.Done():
			return session.ErrGoogleAuthNotReady
		case <-ticker.C:
		}
	}
	return nil
}

func printUser(cmd *cobra.Command, user *identity.Session) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "UID:      %s\n", user.UID)
	fmt.Fprintf(out, "Email:    %s\n", user.Email)
	if user.DisplayName != "" {
		fmt.Fprintf(out, "Name:     %s\n", user.DisplayName)
	}
	if user.PhotoURL != "" {
		fmt.Fprintf(out, "Photo:    %s\n", user.PhotoURL)
	}
	for _, p := range user.ProviderData {
		fmt.Fprintf(out, "Provider: %s\n", p.ProviderID)
	}
}
