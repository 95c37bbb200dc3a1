package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sakif/photo-gallery/internal/auth"
	"github.com/sakif/photo-gallery/internal/server"
	"github.com/sakif/photo-gallery/internal/service"
)

// user command
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <user_id>",
	Short: "Create an account",
	Long: "Create an account. This is the only way to create the first admin,\n" +
		"since registration through the web always creates regular users.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		isAdmin, _ := cmd.Flags().GetBool("admin")
		fromStdin, _ := cmd.Flags().GetBool("password-stdin")

		var password string
		var err error
		if fromStdin {
			password, err = readPasswordLine(cmd.InOrStdin())
		} else {
			password, err = promptPassword(cmd.ErrOrStderr())
		}
		if err != nil {
			return err
		}

		users, closeDB, err := newAuthService(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		user, err := users.CreateUser(cmd.Context(), args[0], password, isAdmin)
		if err != nil {
			return err
		}

		role := "user"
		if user.IsAdmin {
			role = "admin"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s\n", role, user.UserID)
		return nil
	},
}

var userPromoteCmd = &cobra.Command{
	Use:   "promote <user_id>",
	Short: "Grant (or with --revoke, remove) the admin flag",
	Long: "Change the admin flag of an existing account. Sessions that are\n" +
		"already open keep their old flag until the user logs in again.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		revoke, _ := cmd.Flags().GetBool("revoke")

		users, closeDB, err := newAuthService(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		if err := users.SetAdmin(cmd.Context(), args[0], !revoke); err != nil {
			return err
		}

		if revoke {
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked admin from %s\n", args[0])
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Granted admin to %s\n", args[0])
		}
		return nil
	},
}

// newAuthService opens only the credential store; the user commands need
// neither a session secret nor photo storage.
func newAuthService(cmd *cobra.Command) (*service.AuthService, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	db, err := server.OpenDatabase(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}

	users := service.NewAuthService(db, auth.NewPasswordService(), newLogger(cfg))
	return users, func() { db.Close() }, nil
}

// readPasswordLine reads the first line of r, without its line ending.
func readPasswordLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no password on stdin")
	}
	return line, nil
}

// promptPassword asks twice on the terminal without echo.
func promptPassword(prompt io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal; use --password-stdin")
	}

	fmt.Fprint(prompt, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	fmt.Fprint(prompt, "Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}
