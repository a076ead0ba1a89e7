// ABOUTME: "passwd" command that sets a user's password directly in the database
// ABOUTME: Revokes the user's sessions so every device has to log in again

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/2389/homie/internal/config"
	"github.com/2389/homie/internal/credential"
	"github.com/2389/homie/internal/session"
	"github.com/2389/homie/internal/store"
)

func runPasswd(ctx context.Context, args []string) error {
	if len(args) != 1 || strings.HasPrefix(args[0], "-") {
		return fmt.Errorf("usage: homie-server passwd USERNAME")
	}
	username := args[0]

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	password, err := readNewPassword(os.Stdin, os.Stdout)
	if err != nil {
		return err
	}

	revoked, err := setPassword(ctx, s, cfg, username, password)
	if err != nil {
		return err
	}

	fmt.Printf("Password updated for %s (%d session(s) revoked)\n", username, revoked)
	return nil
}

// setPassword validates and stores the password, then revokes sessions.
func setPassword(ctx context.Context, s *store.SQLiteStore, cfg *config.Config, username, password string) (int64, error) {
	user, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("looking up %s: %w", username, err)
	}

	verifier := credential.NewPassword(s, cfg.Auth.MinPasswordLength)
	if err := verifier.CheckPassword(password); err != nil {
		return 0, err
	}
	hash, err := verifier.Hash(password)
	if err != nil {
		return 0, err
	}
	if err := s.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return 0, fmt.Errorf("updating password: %w", err)
	}

	return session.NewManager(s, cfg.Auth.SessionTTL).RevokeUser(ctx, user.ID)
}

// readNewPassword prompts twice on a terminal, or reads one line otherwise.
func readNewPassword(in *os.File, out io.Writer) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(out, "New password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	fmt.Fprint(out, "Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}
