// Package cli is the studo command line presenter. It renders the flow
// controller's state as terminal output and feeds user input back to it.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	studo "github.com/Shmulls/Studo"
	"github.com/Shmulls/Studo/client"
	"github.com/Shmulls/Studo/client/stores/fs"
	"github.com/Shmulls/Studo/internal/config"
	"github.com/Shmulls/Studo/internal/logger"
)

type contextKey string

const appContextKey contextKey = "studoApp"

// App holds what every command needs, built once per invocation
type App struct {
	Config   config.ClientConfig
	Logger   *slog.Logger
	Client   *client.FrontendClient
	Store    *fs.FSStateStore
	Sessions *studo.SessionActivator
	Flow     *studo.FlowController
	Profile  *studo.ProfileEditor

	in  *bufio.Reader
	out io.Writer
	err io.Writer
	raw io.Reader
}

// Global flags
var (
	serverURL string
	logLevel  string
	logFormat string
)

// NewRootCommand creates the root cobra command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "studo",
		Short:         "Sign in to Studo from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appContextKey, app))
			return nil
		},
	}

	rootCmd.AddCommand(newLoginCommand())
	rootCmd.AddCommand(newOAuthCommand())
	rootCmd.AddCommand(newResetCommand())
	rootCmd.AddCommand(newProfileCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newLogoutCommand())

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"Identity service URL (overrides STUDO_FRONTEND_API)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format (text, json)")

	return rootCmd
}

func newApp(cmd *cobra.Command) (*App, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if serverURL != "" {
		cfg.FrontendAPI = serverURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	log := logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		Output: cmd.ErrOrStderr(),
	})
	log = logger.WithCommand(log, cmd.Name())

	store, err := fs.NewFSStateStore(cfg.StateDir, "studo", cfg.FrontendAPI)
	if err != nil {
		return nil, fmt.Errorf("failed to open state: %w", err)
	}

	key, err := cfg.ContinuationKeyBytes()
	if err != nil {
		return nil, err
	}
	if key == nil {
		if key, err = store.ContinuationKey(); err != nil {
			return nil, err
		}
	}

	fc := client.NewFrontendClient(cfg.FrontendAPI,
		client.WithTimeout(cfg.HTTPTimeout),
		client.WithLogger(log))

	sessions := studo.NewSessionActivator(
		studo.WithSessionStore(store),
		studo.WithActivatorLogger(log))
	if err := sessions.Restore(cmd.Context()); err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	flow := studo.NewFlowController(fc, sessions,
		studo.WithFlowStore(store),
		studo.WithContinuationKey(key),
		studo.WithCallbackURL(cfg.CallbackURL),
		studo.WithReturnURL(cfg.ReturnURL),
		studo.WithLogger(log))

	return &App{
		Config:   cfg,
		Logger:   log,
		Client:   fc,
		Store:    store,
		Sessions: sessions,
		Flow:     flow,
		Profile:  studo.NewProfileEditor(fc, sessions, studo.WithProfileLogger(log)),
		in:       bufio.NewReader(cmd.InOrStdin()),
		raw:      cmd.InOrStdin(),
		out:      cmd.OutOrStdout(),
		err:      cmd.ErrOrStderr(),
	}, nil
}

func getApp(cmd *cobra.Command) *App {
	return cmd.Context().Value(appContextKey).(*App)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// prompt reads one line of input after printing label to stderr
func (a *App) prompt(label string) (string, error) {
	fmt.Fprint(a.err, label)
	line, err := a.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// promptSecret reads without echo when input is a terminal
func (a *App) promptSecret(label string) (string, error) {
	if f, ok := a.raw.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.err, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.err)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	return a.prompt(label)
}

// renderAttempt prints the outcome of an attempt and turns a failure into
// the command's error
func (a *App) renderAttempt(attempt studo.AuthAttempt, err error, success string) error {
	if err != nil {
		if msg := attempt.ErrorMessage(); msg != "" {
			return errors.New(msg)
		}
		return err
	}
	a.printf("%s\n", success)
	return nil
}
