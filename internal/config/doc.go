// Package config handles configuration loading for homie-server.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension)
// with environment variable expansion. A .env file in the same directory is
// loaded into the process environment first; variables already set win.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from HOMIE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/homie/server.yaml
//  3. ~/.config/homie/server.yaml
//
// # Environment Variable Expansion
//
//	auth:
//	  jwt_secret: "${HOMIE_JWT_SECRET}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  session_ttl: "168h"
//	  session_sweep_interval: "1h"
//	  passkey:
//	    challenge_ttl: "5m"
//	sync:
//	  ping_interval: "30s"
//	  write_timeout: "10s"
//
// # Defaults
//
// ApplyDefaults fills the password auth mode, the "session" cookie, a 7 day
// session TTL, 8 character minimum passwords, the in-memory challenge store,
// the /sync WebSocket path and the "Inventory" default inventory name.
//
// # Validation
//
// Load() validates:
//
//   - server.http_addr unless Tailscale is enabled
//   - database.path
//   - auth.mode and challenges.backend values
//   - JWT secret minimum length (32 bytes) when set
//   - Redis URL when the Redis challenge backend is selected
package config
