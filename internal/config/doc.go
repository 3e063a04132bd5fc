// Package config handles configuration loading for whatsapp-gateway.
//
// # Configuration File
//
// YAML, located via (in order):
//
//  1. Path from WHATSAPP_GATEWAY_CONFIG environment variable
//  2. ~/.config/whatsapp-gateway/config.yaml
//
// # Environment Variable Expansion
//
// Values can reference environment variables with ${VAR_NAME} syntax:
//
//	auth:
//	  jwt_secret: "${GATEWAY_JWT_SECRET}"
//
// # Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	database:
//	  path: "/var/lib/whatsapp-gateway/gateway.db"
//	auth:
//	  jwt_secret: "${GATEWAY_JWT_SECRET}"   # required, >= 32 bytes
//	bridge:
//	  base_url: "http://localhost:3000"     # required
//	  api_token: "${BRIDGE_API_TOKEN}"
//	  timeout: "15s"
//	webhook:
//	  secret: "${WEBHOOK_SECRET}"           # empty disables signature checks
//	  dedupe_size: 10000
//	  dedupe_ttl: "10m"
//	sync:
//	  interval: "1m"
//	  max_attempts: 5
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Durations use Go's time.ParseDuration syntax. Load() applies defaults
// and validates required fields.
package config
