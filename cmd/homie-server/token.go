// ABOUTME: "token" command that mints an operator JWT for the admin API
// ABOUTME: The token is saved next to the config file where homie-admin looks for it

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/2389/homie/internal/auth"
	"github.com/2389/homie/internal/config"
)

type tokenArgs struct {
	name    string
	ttlDays int
}

// parseTokenArgs supports "--name value", "--name=value", and "-n".
func parseTokenArgs(args []string) (tokenArgs, error) {
	out := tokenArgs{ttlDays: 30}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--name" || arg == "-n":
			if i+1 >= len(args) {
				return out, fmt.Errorf("--name requires a value")
			}
			out.name = args[i+1]
			i++
		case strings.HasPrefix(arg, "--name="):
			out.name = strings.TrimPrefix(arg, "--name=")
		case arg == "--ttl" || arg == "-t":
			if i+1 >= len(args) {
				return out, fmt.Errorf("--ttl requires a value")
			}
			days, err := strconv.Atoi(args[i+1])
			if err != nil || days <= 0 {
				return out, fmt.Errorf("invalid ttl %q: must be a positive number of days", args[i+1])
			}
			out.ttlDays = days
			i++
		case strings.HasPrefix(arg, "-"):
			return out, fmt.Errorf("unknown flag: %s", arg)
		default:
			return out, fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	out.name = strings.TrimSpace(out.name)
	if out.name == "" {
		return out, fmt.Errorf("--name flag is required")
	}
	if len(out.name) > 100 {
		return out, fmt.Errorf("name exceeds maximum length of 100 characters")
	}
	return out, nil
}

func runToken(args []string) error {
	parsed, err := parseTokenArgs(args)
	if err != nil {
		return err
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret not configured in %s", configPath)
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}

	ttl := time.Duration(parsed.ttlDays) * 24 * time.Hour
	token, err := verifier.Generate(parsed.name, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	tokenPath := filepath.Join(filepath.Dir(configPath), "token")
	if err := os.WriteFile(tokenPath, []byte(token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	fmt.Println()
	green.Printf("  ✓ Saved token: %s\n", tokenPath)
	fmt.Println()
	cyan.Println("  Operator:  " + parsed.name)
	cyan.Println("  Expires:   " + time.Now().Add(ttl).UTC().Format("Jan 02, 2006"))
	fmt.Println()

	return nil
}
