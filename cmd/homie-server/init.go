// ABOUTME: Interactive "init" command that writes a starter homie-server config
// ABOUTME: Generates a random operator secret so homie-admin works out of the box

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// initAnswers are the values collected by runInit.
type initAnswers struct {
	HTTPAddr  string
	BaseURL   string
	Origins   []string
	DBPath    string
	AuthMode  string
	JWTSecret string

	TailscaleEnabled bool
	TSHostname       string
	TSAuthKey        string
	TSEphemeral      bool
	TSFunnel         bool

	ChallengeBackend string
	RedisURL         string

	LogLevel  string
	LogFormat string
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("homie-server configuration setup")
	fmt.Println("================================")
	fmt.Println()

	defaultDBPath := filepath.Join(getDataPath(), "homie.db")

	outputFile := prompt(reader, "Config file path", getConfigPath())
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var a initAnswers

	fmt.Println("\n--- Server Configuration ---")
	a.HTTPAddr = prompt(reader, "HTTP address", "localhost:3000")
	a.BaseURL = prompt(reader, "Public base URL", "http://"+a.HTTPAddr)
	origins := prompt(reader, "Allowed browser origins (comma separated)", "http://localhost:5173")
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			a.Origins = append(a.Origins, o)
		}
	}

	fmt.Println("\n--- Database Configuration ---")
	a.DBPath = prompt(reader, "SQLite database path", defaultDBPath)

	fmt.Println("\n--- Authentication ---")
	a.AuthMode = prompt(reader, "Auth mode (password/passkey)", "password")
	if a.AuthMode == "passkey" {
		a.ChallengeBackend = prompt(reader, "Challenge store (memory/redis)", "memory")
		if a.ChallengeBackend == "redis" {
			a.RedisURL = prompt(reader, "Redis URL", "redis://localhost:6379/0")
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}
	a.JWTSecret = secret

	fmt.Println("\n--- Tailscale Configuration ---")
	a.TailscaleEnabled = yes(prompt(reader, "Enable Tailscale?", "no"))
	if a.TailscaleEnabled {
		a.TSHostname = prompt(reader, "Tailscale hostname", "homie")
		a.TSAuthKey = prompt(reader, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		a.TSEphemeral = yes(prompt(reader, "Ephemeral node?", "no"))
		a.TSFunnel = yes(prompt(reader, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	a.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, "Log format (text/json)", "text")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file holds the operator secret.
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(a.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Println("  homie-server serve")
	fmt.Println("\nTo use homie-admin:")
	fmt.Println("  homie-server token --name you")

	return nil
}

// generateSecret returns 32 random bytes, base64 encoded.
func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# homie-server configuration\n")
	cfg.WriteString("# Generated by homie-server init\n\n")

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  http_addr: %q\n", a.HTTPAddr)
	fmt.Fprintf(&cfg, "  base_url: %q\n", a.BaseURL)
	if len(a.Origins) > 0 {
		cfg.WriteString("  origins:\n")
		for _, o := range a.Origins {
			fmt.Fprintf(&cfg, "    - %q\n", o)
		}
	}
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	fmt.Fprintf(&cfg, "  path: %q\n", a.DBPath)
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	fmt.Fprintf(&cfg, "  mode: %q\n", a.AuthMode)
	fmt.Fprintf(&cfg, "  jwt_secret: %q\n", a.JWTSecret)
	cfg.WriteString("  session_ttl: \"168h\"\n")
	cfg.WriteString("\n")

	if a.ChallengeBackend != "" {
		cfg.WriteString("challenges:\n")
		fmt.Fprintf(&cfg, "  backend: %q\n", a.ChallengeBackend)
		if a.RedisURL != "" {
			fmt.Fprintf(&cfg, "  redis_url: %q\n", a.RedisURL)
		}
		cfg.WriteString("\n")
	}

	cfg.WriteString("tailscale:\n")
	fmt.Fprintf(&cfg, "  enabled: %t\n", a.TailscaleEnabled)
	if a.TailscaleEnabled {
		fmt.Fprintf(&cfg, "  hostname: %q\n", a.TSHostname)
		if a.TSAuthKey != "" {
			fmt.Fprintf(&cfg, "  auth_key: %q\n", a.TSAuthKey)
		}
		fmt.Fprintf(&cfg, "  ephemeral: %t\n", a.TSEphemeral)
		fmt.Fprintf(&cfg, "  funnel: %t\n", a.TSFunnel)
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", a.LogLevel)
	fmt.Fprintf(&cfg, "  format: %q\n", a.LogFormat)

	return cfg.String()
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func yes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}
