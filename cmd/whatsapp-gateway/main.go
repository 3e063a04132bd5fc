// ABOUTME: Entry point for the whatsapp-gateway server
// ABOUTME: Subcommands: serve (run the gateway), init (write config), health (check a running server)

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/loomcrm/whatsapp-gateway/internal/auth"
	"github.com/loomcrm/whatsapp-gateway/internal/bridge"
	"github.com/loomcrm/whatsapp-gateway/internal/config"
	"github.com/loomcrm/whatsapp-gateway/internal/conversation"
	"github.com/loomcrm/whatsapp-gateway/internal/dedupe"
	"github.com/loomcrm/whatsapp-gateway/internal/gateway"
	"github.com/loomcrm/whatsapp-gateway/internal/session"
	"github.com/loomcrm/whatsapp-gateway/internal/store"
	syncworker "github.com/loomcrm/whatsapp-gateway/internal/sync"
	"github.com/loomcrm/whatsapp-gateway/internal/webhook"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
          _           _                                          _
 __      _| |__   __ _| |_ ___  __ _ _ __  _ __   __ _  __ _| |_ _____      ____ _ _   _
 \ \ /\ / / '_ \ / _' | __/ __|/ _' | '_ \| '_ \ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
  \ V  V /| | | | (_| | |_\__ \ (_| | |_) | |_) | (_| | (_| | ||  __/\ V  V / (_| | |_| |
   \_/\_/ |_| |_|\__,_|\__|___/\__,_| .__/| .__/ \__, |\__, |\__\___| \_/\_/ \__,_|\__, |
                                    |_|   |_|    |___/ |___/                       |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: WHATSAPP_GATEWAY_CONFIG env var > XDG_CONFIG_HOME > ~/.config.
func getConfigPath() string {
	if envPath := os.Getenv("WHATSAPP_GATEWAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "whatsapp-gateway", "gateway.yaml")
}

// getDataPath returns the path to the data directory.
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "whatsapp-gateway")
}

func main() {
	// Secrets referenced as ${VAR} in the config may live in a local .env.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: whatsapp-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the gateway server")
		fmt.Println("  init     Create a new config file interactively")
		fmt.Println("  health   Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:    %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Bridge:  %s\n", cfg.Bridge.BaseURL)
	fmt.Println()

	logger.Info("starting whatsapp-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"bridge", cfg.Bridge.BaseURL,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}
	defer st.Close()

	bridgeClient := bridge.NewClient(cfg.Bridge.BaseURL, cfg.Bridge.APIToken, cfg.Bridge.Timeout, logger)
	cache := dedupe.NewCache(cfg.Webhook.DedupeSize, cfg.Webhook.DedupeTTL)

	sessions := session.NewManager(st, bridgeClient, logger)
	conversations := conversation.NewService(st, bridgeClient, logger)

	// The contact auto-link automation lives outside this process; log the
	// trigger so a downstream consumer can be wired in.
	autoLink := func(ctx context.Context, tenantID, conversationID, remotePartyID string) {
		logger.Info("contact auto-link triggered",
			"tenant", tenantID,
			"conversation", conversationID,
			"remote_party", remotePartyID,
		)
	}
	pipeline := webhook.NewPipeline(st, sessions, cache, cfg.Webhook.AllowedEvents, autoLink, logger)

	worker := syncworker.NewWorker(st, bridgeClient, cfg.Sync.Interval, cfg.Sync.MaxAttempts, logger)
	go worker.Run(ctx)

	gw := gateway.New(gateway.Config{
		HTTPAddr:      cfg.Server.HTTPAddr,
		WebhookSecret: cfg.Webhook.Secret,
	}, sessions, conversations, pipeline, st, auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)), logger)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := gw.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutting down http server", "error", err)
		}
	}()

	return gw.Start()
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("whatsapp-gateway configuration setup")
	fmt.Println("====================================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "gateway.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "0.0.0.0:8080")

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	fmt.Println("\n--- Bridge Configuration ---")
	bridgeURL := prompt(reader, "Bridge base URL", "http://localhost:3000")
	bridgeToken := prompt(reader, "Bridge API token (leave empty for none)", "")

	fmt.Println("\n--- Webhook Configuration ---")
	webhookSecret := prompt(reader, "Webhook HMAC secret (leave empty to disable verification)", "")

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate a random JWT secret for actor tokens.
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

	var cfg strings.Builder
	cfg.WriteString("# whatsapp-gateway configuration\n")
	cfg.WriteString("# Generated by whatsapp-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n\n", httpAddr))

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n\n", dbPath))

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n\n", jwtSecret))

	cfg.WriteString("bridge:\n")
	cfg.WriteString(fmt.Sprintf("  base_url: \"%s\"\n", bridgeURL))
	if bridgeToken != "" {
		cfg.WriteString(fmt.Sprintf("  api_token: \"%s\"\n", bridgeToken))
	}
	cfg.WriteString("  timeout: \"15s\"\n\n")

	cfg.WriteString("webhook:\n")
	if webhookSecret != "" {
		cfg.WriteString(fmt.Sprintf("  secret: \"%s\"\n", webhookSecret))
	}
	cfg.WriteString("  dedupe_ttl: \"10m\"\n")
	cfg.WriteString("  dedupe_size: 10000\n\n")

	cfg.WriteString("sync:\n")
	cfg.WriteString("  interval: \"1m\"\n")
	cfg.WriteString("  max_attempts: 5\n\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  whatsapp-gateway serve\n")

	return nil
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
