package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"ispl/internal/auth"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	authEmail    string
	authPassword string
	registerRole string
)

// loginCmd stores a session token for later commands
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session token",
	Long: `Log in with email and password. The token is stored in the session file
(session.token_file) so later commands and the interactive client reuse it.

The password is read from --password, then $ISPL_PASSWORD, then prompted.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		a.session.Logout()
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Verify the stored token and show who it belongs to",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	Args:  cobra.NoArgs,
	RunE:  runRegister,
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVarP(&authEmail, "email", "e", "", "Account email")
		c.Flags().StringVarP(&authPassword, "password", "p", "", "Account password (prefer the prompt)")
		_ = c.MarkFlagRequired("email")
	}
	registerCmd.Flags().StringVar(&registerRole, "role", auth.DefaultRole, "Account role")
}

func runLogin(cmd *cobra.Command, args []string) error {
	password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	sess, err := a.session.Login(ctx, authEmail, password)
	if err != nil {
		return describe(err)
	}
	who := authEmail
	if sess.Identity != nil && sess.Identity.Role != "" {
		who += " (" + sess.Identity.Role + ")"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", styles().Success.Render("Logged in as "+who+"."))
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	if err := a.session.Register(ctx, authEmail, password, registerRole); err != nil {
		return describe(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Account %s created. Run `ispl login -e %s` to continue.\n", authEmail, authEmail)
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	sess, err := a.session.Verify(ctx)
	if err != nil {
		return describe(err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "email:   %s\n", sess.Identity.Email)
	fmt.Fprintf(out, "role:    %s\n", sess.Identity.Role)
	fmt.Fprintf(out, "user id: %d\n", sess.Identity.UserID)
	return nil
}

// readPassword resolves the password from the flag, the environment, or a
// prompt. The prompt hides input on a terminal.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if authPassword != "" {
		return authPassword, nil
	}
	if p := os.Getenv("ISPL_PASSWORD"); p != "" {
		return p, nil
	}
	fmt.Fprint(prompt, "Password: ")
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
