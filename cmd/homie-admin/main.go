// ABOUTME: Admin CLI for homie-server operators
// ABOUTME: Talks to /admin/api over HTTP with a bearer token from homie-server token

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

const banner = `
  _                     _                 _           _
 | |__   ___  _ __ ___ (_) ___       __ _| |_ __ ___ (_)_ __
 | '_ \ / _ \| '_ ' _ \| |/ _ \____ / _' | | '_ ' _ \| | '_ \
 | | | | (_) | | | | | | |  __/____| (_| | | | | | | | | | | |
 |_| |_|\___/|_| |_| |_|_|\___|     \__,_|_|_| |_| |_|_|_| |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	c := &client{
		baseURL: strings.TrimRight(getEnv("HOMIE_URL", "http://localhost:3000"), "/"),
		token:   getToken(),
		http:    &http.Client{Timeout: 10 * time.Second},
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "users":
		err = cmdUsers(c, os.Stdout)
	case "inventories":
		err = cmdInventories(c, os.Stdout)
	case "revoke":
		err = cmdRevoke(c, os.Stdout, args)
	case "sweep":
		err = cmdSweep(c, os.Stdout)
	case "audit":
		err = cmdAudit(c, os.Stdout, args)
	case "status":
		err = cmdStatus(c, os.Stdout)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: homie-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  status                  Show server health")
	fmt.Println("  users                   List all users")
	fmt.Println("  inventories             List all inventories")
	fmt.Println("  revoke <user-id>        Log a user out everywhere")
	fmt.Println("  sweep                   Delete expired sessions now")
	fmt.Println("  audit [--limit N]       Show recent operator actions")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  HOMIE_URL               Server URL (default: http://localhost:3000)")
	fmt.Println("  HOMIE_TOKEN             Operator token (default: ~/.config/homie/token)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  homie-server token --name ops")
	fmt.Println("  homie-admin users")
	fmt.Println("  homie-admin revoke 6f1c...")
	fmt.Println()
}

// client calls the operator API.
type client struct {
	baseURL string
	token   string
	http    *http.Client
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &e)
		return &apiError{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *client) requireToken() error {
	if c.token == "" {
		return fmt.Errorf("HOMIE_TOKEN is not set and no token file was found (run: homie-server token --name <you>)")
	}
	return nil
}

type userRow struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Name        string    `json:"name"`
	HasPassword bool      `json:"hasPassword"`
	CreatedAt   time.Time `json:"createdAt"`
}

type inventoryRow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	MemberIDs []string  `json:"memberIds"`
	CreatedAt time.Time `json:"createdAt"`
}

func cmdUsers(c *client, out io.Writer) error {
	if err := c.requireToken(); err != nil {
		return err
	}
	var resp struct {
		Users []userRow `json:"users"`
	}
	if err := c.do(context.Background(), http.MethodGet, "/admin/api/users", &resp); err != nil {
		return err
	}

	if len(resp.Users) == 0 {
		fmt.Fprintln(out, "No users.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tNAME\tLOGIN\tCREATED")
	for _, u := range resp.Users {
		login := "passkey"
		if u.HasPassword {
			login = "password"
		}
		username := u.Username
		if username == "" {
			username = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", u.ID, username, truncate(u.Name, 30), login, u.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func cmdInventories(c *client, out io.Writer) error {
	if err := c.requireToken(); err != nil {
		return err
	}
	var resp struct {
		Inventories []inventoryRow `json:"inventories"`
	}
	if err := c.do(context.Background(), http.MethodGet, "/admin/api/inventories", &resp); err != nil {
		return err
	}

	if len(resp.Inventories) == 0 {
		fmt.Fprintln(out, "No inventories.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tOWNER\tMEMBERS\tCREATED")
	for _, inv := range resp.Inventories {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", inv.ID, truncate(inv.Name, 30), inv.OwnerID, len(inv.MemberIDs), inv.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func cmdRevoke(c *client, out io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: revoke <user-id>")
	}
	if err := c.requireToken(); err != nil {
		return err
	}
	var resp struct {
		Revoked int64 `json:"revoked"`
	}
	path := "/admin/api/users/" + url.PathEscape(args[0]) + "/sessions"
	if err := c.do(context.Background(), http.MethodDelete, path, &resp); err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(out, "  ✓ Revoked %d session(s)\n", resp.Revoked)
	return nil
}

func cmdSweep(c *client, out io.Writer) error {
	if err := c.requireToken(); err != nil {
		return err
	}
	var resp struct {
		Swept int64 `json:"swept"`
	}
	if err := c.do(context.Background(), http.MethodPost, "/admin/api/sessions/sweep", &resp); err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(out, "  ✓ Swept %d expired session(s)\n", resp.Swept)
	return nil
}

type auditRow struct {
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	TargetType string         `json:"targetType"`
	TargetID   string         `json:"targetId"`
	Timestamp  time.Time      `json:"timestamp"`
	Detail     map[string]any `json:"detail"`
}

func cmdAudit(c *client, out io.Writer, args []string) error {
	limit := 20
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--limit" || args[i] == "-n":
			if i+1 >= len(args) {
				return fmt.Errorf("--limit requires a value")
			}
			i++
			n, err := strconv.Atoi(args[i])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid limit: %s", args[i])
			}
			limit = n
		case strings.HasPrefix(args[i], "--limit="):
			n, err := strconv.Atoi(strings.TrimPrefix(args[i], "--limit="))
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid limit: %s", args[i])
			}
			limit = n
		default:
			return fmt.Errorf("unknown argument: %s", args[i])
		}
	}
	if err := c.requireToken(); err != nil {
		return err
	}

	var resp struct {
		Entries []auditRow `json:"entries"`
	}
	path := "/admin/api/audit?limit=" + strconv.Itoa(limit)
	if err := c.do(context.Background(), http.MethodGet, path, &resp); err != nil {
		return err
	}

	if len(resp.Entries) == 0 {
		fmt.Fprintln(out, "No operator actions recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tOPERATOR\tACTION\tTARGET\tCOUNT")
	for _, e := range resp.Entries {
		target := e.TargetType
		if e.TargetID != "" {
			target += "/" + e.TargetID
		}
		count := "-"
		if n, ok := e.Detail["count"].(float64); ok {
			count = strconv.FormatInt(int64(n), 10)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Timestamp.Local().Format("2006-01-02 15:04"), e.Actor, e.Action, target, count)
	}
	return w.Flush()
}

func cmdStatus(c *client, out io.Writer) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.do(context.Background(), http.MethodGet, "/health", &resp); err != nil {
		return err
	}
	fmt.Fprintf(out, "  Server:  %s\n", c.baseURL)
	fmt.Fprintf(out, "  Status:  %s\n", resp.Status)
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getToken returns the operator token from HOMIE_TOKEN or ~/.config/homie/token.
func getToken() string {
	if token := os.Getenv("HOMIE_TOKEN"); token != "" {
		return token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	data, err := os.ReadFile(filepath.Join(configDir, "homie", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
