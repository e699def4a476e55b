package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	studo "github.com/Shmulls/Studo"
	"github.com/Shmulls/Studo/internal/logger"
)

// maxResetAttempts bounds how often the reset code prompt is repeated
const maxResetAttempts = 5

func newLoginCommand() *cobra.Command {
	var identifier, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long: `Sign in with email and password. Missing values are prompted for.

Examples:
  studo login --identifier dana@example.com
  studo login`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd)
			var err error
			if identifier == "" {
				if identifier, err = app.prompt("Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = app.promptSecret("Password: "); err != nil {
					return err
				}
			}

			attempt, err := app.Flow.SubmitSignIn(cmd.Context(), identifier, password).Await(cmd.Context())
			return app.renderAttempt(attempt, err, "Signed in.")
		},
	}

	cmd.Flags().StringVar(&identifier, "identifier", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")
	return cmd
}

func newOAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Sign in through an OAuth provider",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "start <provider>",
		Short: "Start an OAuth sign-in and print the URL to open",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd)
			handle, err := app.Flow.InitiateOAuth(cmd.Context(), args[0]).Await(cmd.Context())
			if err != nil {
				if msg := app.Flow.State().ErrorMessage(); msg != "" {
					return errors.New(msg)
				}
				return err
			}
			app.printf("Open this URL in your browser:\n\n  %s\n\n", handle.URL)
			app.printf("When the browser returns to %s, run:\n\n  studo oauth finish '<return-url>'\n", app.Config.ReturnURL)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "finish <return-url>",
		Short: "Finish an OAuth sign-in with the URL the browser returned to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd)
			if n, err := app.Store.PurgeExpiredFlows(cmd.Context(), time.Now()); err == nil && n > 0 {
				app.Logger.Debug("purged expired oauth flows", "count", n)
			}
			attempt, err := app.Flow.CompleteOAuth(cmd.Context(), args[0]).Await(cmd.Context())
			return app.renderAttempt(attempt, err, "Signed in.")
		},
	})
	return cmd
}

func newResetCommand() *cobra.Command {
	var identifier string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset your password with an emailed code",
		Long: `Request a reset code by email, then enter the code and a new password.
A rejected code or password can be retried without requesting a new code.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd)
			ctx := cmd.Context()
			var err error
			if identifier == "" {
				if identifier, err = app.prompt("Email: "); err != nil {
					return err
				}
			}

			attempt, err := app.Flow.RequestReset(ctx, identifier).Await(ctx)
			if err := app.renderAttempt(attempt, err, "We sent a reset code to "+identifier+"."); err != nil {
				return err
			}

			for i := 0; i < maxResetAttempts; i++ {
				code, err := app.prompt("Code: ")
				if err != nil {
					return err
				}
				password, err := app.promptSecret("New password: ")
				if err != nil {
					return err
				}

				attempt, err := app.Flow.CompleteReset(ctx, code, password).Await(ctx)
				if err == nil {
					app.printf("Password reset. Signed in.\n")
					return nil
				}
				if errors.Is(err, studo.ErrResetNotRequested) {
					return err
				}
				fmt.Fprintf(app.err, "%s\n", attempt.ErrorMessage())
			}
			return fmt.Errorf("password reset not completed after %d attempts", maxResetAttempts)
		},
	}

	cmd.Flags().StringVar(&identifier, "identifier", "", "Email address")
	return cmd
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the local session",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd)
			id := app.Sessions.SessionID()
			if id == "" {
				app.printf("Not signed in.\n")
				return nil
			}
			if err := app.Client.EndSession(cmd.Context(), id); err != nil {
				app.Logger.Warn("failed to end session on server", logger.Error(err))
			}
			if err := app.Sessions.SignOut(cmd.Context()); err != nil {
				return err
			}
			app.printf("Signed out.\n")
			return nil
		},
	}
}
