package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	studo "github.com/Shmulls/Studo"
	"github.com/Shmulls/Studo/client"
	"github.com/Shmulls/Studo/internal/logger"
)

func newProfileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or edit your profile",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show your profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd)
			fields, err := app.Profile.LoadCurrent(cmd.Context())
			if err != nil {
				return notSignedIn(err)
			}
			app.printf("%s\n\n", app.Profile.Greeting())
			app.printf("First name: %s\n", fields.FirstName)
			app.printf("Last name:  %s\n", fields.LastName)
			return nil
		},
	})

	var first, last string
	set := &cobra.Command{
		Use:   "set",
		Short: "Update your first and last name",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd)
			current, err := app.Profile.LoadCurrent(cmd.Context())
			if err != nil {
				return notSignedIn(err)
			}
			if !cmd.Flags().Changed("first") {
				first = current.FirstName
			}
			if !cmd.Flags().Changed("last") {
				last = current.LastName
			}

			if err := app.Profile.Save(cmd.Context(), first, last); err != nil {
				return errors.New(app.Profile.Status().Message)
			}
			app.printf("%s\n", app.Profile.Status().Message)
			return nil
		},
	}
	set.Flags().StringVar(&first, "first", "", "First name")
	set.Flags().StringVar(&last, "last", "", "Last name")
	cmd.AddCommand(set)

	return cmd
}

func newStatusCommand() *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the local session",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd)
			app.printf("Server: %s\n", app.Client.ServerURL())

			current, ok := app.Sessions.Current()
			if !ok {
				app.printf("Not signed in.\n")
				return nil
			}
			app.printf("Signed in: session %s since %s\n",
				logger.Redact(current.SessionID), current.ActivatedAt.Local().Format(time.RFC1123))

			if !verify {
				return nil
			}
			email, err := fetchEmail(cmd, app)
			if err != nil {
				app.printf("Session check failed: %v\n", err)
				return nil
			}
			app.printf("Account: %s\n", email)
			return nil
		},
	}

	cmd.Flags().BoolVar(&verify, "verify", false, "Check the session with the server")
	return cmd
}

// fetchEmail calls /v1/me through the session-carrying HTTP client
func fetchEmail(cmd *cobra.Command, app *App) (string, error) {
	httpClient := app.Client.AuthenticatedClient(app.Sessions)
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, app.Client.ServerURL()+client.MePath, nil)
	if err != nil {
		return "", err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned HTTP %d", resp.StatusCode)
	}

	var body struct {
		Response client.UserResource `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("invalid response from server: %w", err)
	}
	return body.Response.EmailAddress, nil
}

func notSignedIn(err error) error {
	if errors.Is(err, studo.ErrNotSignedIn) {
		return errors.New("not signed in, run 'studo login' first")
	}
	return err
}
