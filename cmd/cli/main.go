// Command plaze is a CLI client for the Plaze authentication API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// readPassword is swapped in tests to avoid touching the terminal.
var readPassword = term.ReadPassword

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "plaze",
		Usage:   "Plaze authentication client",
		Version: fmt.Sprintf("%s (%s)", version, buildDate),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   "http://localhost:8080",
				Usage:   "API base URL",
				Sources: cli.EnvVars("PLAZE_SERVER"),
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 30 * time.Second,
				Usage: "request timeout",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "register",
				Usage: "create an account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true},
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true},
					passwordFlag(),
				},
				Action: registerCmd,
			},
			{
				Name:  "login",
				Usage: "log in and save the access token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true},
					passwordFlag(),
				},
				Action: loginCmd,
			},
			{
				Name:   "logout",
				Usage:  "revoke the saved token",
				Action: logoutCmd,
			},
			{
				Name:   "whoami",
				Usage:  "show the claims of the saved token",
				Action: whoamiCmd,
			},
			{
				Name:      "recover",
				Usage:     "request a password recovery email",
				ArgsUsage: "EMAIL",
				Action:    recoverCmd,
			},
			{
				Name:      "reset",
				Usage:     "set a new password with a recovery token",
				ArgsUsage: "TOKEN",
				Flags:     []cli.Flag{passwordFlag()},
				Action:    resetCmd,
			},
			{
				Name:      "verify",
				Usage:     "confirm an email address",
				ArgsUsage: "TOKEN",
				Action:    verifyCmd,
			},
			{
				Name:   "health",
				Usage:  "check server health",
				Action: healthCmd,
			},
		},
	}
}

func passwordFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "password",
		Aliases: []string{"p"},
		Usage:   "password (prompted when omitted)",
		Sources: cli.EnvVars("PLAZE_PASSWORD"),
	}
}

// ---- helpers ----

func apiFrom(cmd *cli.Command) *client {
	root := cmd.Root()
	return newClient(root.String("server"), root.Duration("timeout"))
}

func out(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func password(cmd *cli.Command, prompt string) (string, error) {
	if p := cmd.String("password"); p != "" {
		return p, nil
	}
	errw := cmd.Root().ErrWriter
	if errw == nil {
		errw = os.Stderr
	}
	fmt.Fprint(errw, prompt)
	b, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(errw)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if len(b) == 0 {
		return "", errors.New("empty password")
	}
	return string(b), nil
}

func oneArg(cmd *cli.Command, what string) (string, error) {
	v := strings.TrimSpace(cmd.Args().First())
	if v == "" || cmd.Args().Len() > 1 {
		return "", fmt.Errorf("need exactly one %s argument", what)
	}
	return v, nil
}

// ---- commands ----

func registerCmd(ctx context.Context, cmd *cli.Command) error {
	pw, err := password(cmd, "Password: ")
	if err != nil {
		return err
	}
	var user map[string]any
	body := map[string]string{
		"name":     cmd.String("name"),
		"email":    cmd.String("email"),
		"password": pw,
	}
	if err := apiFrom(cmd).do(ctx, http.MethodPost, "/auth/register", "", body, &user); err != nil {
		return err
	}
	printJSON(out(cmd), user)
	return nil
}

func loginCmd(ctx context.Context, cmd *cli.Command) error {
	pw, err := password(cmd, "Password: ")
	if err != nil {
		return err
	}
	var resp loginResponse
	body := map[string]string{"email": cmd.String("email"), "password": pw}
	if err := apiFrom(cmd).do(ctx, http.MethodPost, "/auth/login", "", body, &resp); err != nil {
		return err
	}

	exp := resp.ExpiresAt
	if exp.IsZero() {
		if exp, err = tokenExpiry(resp.AccessToken); err != nil {
			return fmt.Errorf("read token expiry: %w", err)
		}
	}
	if err := saveToken(tokenFile{AccessToken: resp.AccessToken, Email: resp.Email, ExpiresAt: exp}); err != nil {
		return err
	}
	fmt.Fprintf(out(cmd), "logged in as %s (%s), token valid until %s\n",
		resp.Name, resp.Role, exp.Local().Format(time.RFC3339))
	return nil
}

func logoutCmd(ctx context.Context, cmd *cli.Command) error {
	tf, err := loadToken()
	if tf.AccessToken == "" {
		return err
	}
	err = apiFrom(cmd).do(ctx, http.MethodPost, "/auth/logout", tf.AccessToken, nil, nil)
	var ae *apiError
	// a token the server already forgot is as good as revoked
	if err != nil && !(errors.As(err, &ae) && ae.Code == "already_revoked") {
		return err
	}
	if err := clearToken(); err != nil {
		return err
	}
	fmt.Fprintln(out(cmd), "logged out")
	return nil
}

func whoamiCmd(ctx context.Context, cmd *cli.Command) error {
	tf, err := loadToken()
	if err != nil {
		return err
	}
	var claims map[string]any
	if err := apiFrom(cmd).do(ctx, http.MethodGet, "/auth/me", tf.AccessToken, nil, &claims); err != nil {
		return err
	}
	printJSON(out(cmd), claims)
	return nil
}

func recoverCmd(ctx context.Context, cmd *cli.Command) error {
	email, err := oneArg(cmd, "EMAIL")
	if err != nil {
		return err
	}
	var msg map[string]string
	if err := apiFrom(cmd).do(ctx, http.MethodPost, "/password/recover/"+url.PathEscape(email), "", nil, &msg); err != nil {
		return err
	}
	fmt.Fprintln(out(cmd), msg["message"])
	return nil
}

func resetCmd(ctx context.Context, cmd *cli.Command) error {
	tok, err := oneArg(cmd, "TOKEN")
	if err != nil {
		return err
	}
	pw, err := password(cmd, "New password: ")
	if err != nil {
		return err
	}
	var msg map[string]string
	body := map[string]string{"new_password": pw}
	if err := apiFrom(cmd).do(ctx, http.MethodPost, "/password/reset/"+url.PathEscape(tok), "", body, &msg); err != nil {
		return err
	}
	fmt.Fprintln(out(cmd), msg["message"])
	return nil
}

func verifyCmd(ctx context.Context, cmd *cli.Command) error {
	tok, err := oneArg(cmd, "TOKEN")
	if err != nil {
		return err
	}
	var msg map[string]string
	if err := apiFrom(cmd).do(ctx, http.MethodPost, "/auth/verify-email/"+url.PathEscape(tok), "", nil, &msg); err != nil {
		return err
	}
	fmt.Fprintln(out(cmd), msg["message"])
	return nil
}

func healthCmd(ctx context.Context, cmd *cli.Command) error {
	var st map[string]any
	if err := apiFrom(cmd).do(ctx, http.MethodGet, "/health", "", nil, &st); err != nil {
		return err
	}
	printJSON(out(cmd), st)
	return nil
}
