package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/aleenlabs/aleen-agents/internal/agent"
	"github.com/aleenlabs/aleen-agents/internal/api"
	"github.com/aleenlabs/aleen-agents/internal/flow"
	"github.com/aleenlabs/aleen-agents/internal/genai"
	"github.com/aleenlabs/aleen-agents/internal/memory"
	"github.com/aleenlabs/aleen-agents/internal/messaging"
	"github.com/aleenlabs/aleen-agents/internal/store"
	"github.com/aleenlabs/aleen-agents/internal/tools"
	"github.com/aleenlabs/aleen-agents/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for aleen-agents state data
	DefaultStateDir = "/var/lib/aleen-agents"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "aleen.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	if err := run(config, flags); err != nil {
		slog.Error("aleen-agents failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("aleen-agents exited successfully")
}

// run wires the modules together and serves until interrupted.
func run(config Config, flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	mem, err := memory.NewRedisStore(buildMemoryOptions(config)...)
	if err != nil {
		return err
	}
	defer mem.Close()

	gc, err := genai.NewClient(buildGenAIOptions(config, flags)...)
	if err != nil {
		return err
	}

	messenger, err := buildMessenger(config)
	if err != nil {
		return err
	}

	agents := agent.NewRegistry(st)
	if err := agents.Load(ctx); err != nil {
		return err
	}
	slog.Info("Agent catalog loaded", "count", len(agents.List()))

	fl := flow.NewFlow(st, mem, gc, agents, tools.NewRegistry(st))

	server := api.NewServer(fl, st, mem, gc, agents, messenger, buildAPIOptions(flags)...)
	return server.Run(ctx)
}

// Config holds environment configuration
type Config struct {
	DatabaseURL       string
	StateDir          string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	OpenAIKey         string
	OpenAIModel       string
	APIAddr           string
	MessagingProvider string
	EvolutionURL      string
	EvolutionKey      string
	EvolutionInstance string
	TwilioSID         string
	TwilioToken       string
	TwilioFrom        string
}

// Flags holds command line flag values
type Flags struct {
	stateDir  *string
	dbDSN     *string
	redisAddr *string
	openaiKey *string
	model     *string
	apiAddr   *string
}

// initializeLogger sets up structured logging with the level taken from
// $LOG_LEVEL (debug, info, warn, error).
func initializeLogger() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	redisDB := 0
	if raw := os.Getenv("REDIS_DB"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			slog.Warn("invalid REDIS_DB value, using 0", "value", raw)
		} else {
			redisDB = parsed
		}
	}

	config := Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		StateDir:          os.Getenv("ALEEN_STATE_DIR"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           redisDB,
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       os.Getenv("OPENAI_MODEL"),
		APIAddr:           os.Getenv("API_ADDR"),
		MessagingProvider: strings.ToLower(util.GetEnv("MESSAGING_PROVIDER", "evolution")),
		EvolutionURL:      os.Getenv("EVOLUTION_API_URL"),
		EvolutionKey:      os.Getenv("EVOLUTION_API_KEY"),
		EvolutionInstance: os.Getenv("EVOLUTION_INSTANCE"),
		TwilioSID:         os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:       os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:        os.Getenv("TWILIO_FROM_WHATSAPP"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No ALEEN_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"ALEEN_STATE_DIR", config.StateDir,
		"REDIS_ADDR", config.RedisAddr,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"API_ADDR", config.APIAddr,
		"MESSAGING_PROVIDER", config.MessagingProvider)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for aleen-agents data (overrides $ALEEN_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN for the relational store (overrides $DATABASE_URL)"),
		redisAddr: flag.String("redis-addr", config.RedisAddr, "Redis address for conversation memory (overrides $REDIS_ADDR)"),
		openaiKey: flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		model:     flag.String("model", config.OpenAIModel, "chat model name (overrides $OPENAI_MODEL)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"redisAddr", *flags.redisAddr,
		"openaiKeySet", *flags.openaiKey != "",
		"model", *flags.model,
		"apiAddr", *flags.apiAddr)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return nil
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	return os.MkdirAll(stateDir, store.DefaultDirPermissions)
}

// buildStore constructs the relational store for the configured DSN.
func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Info("Using PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Info("Using SQLite store", "path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildMemoryOptions constructs Redis conversation memory options
func buildMemoryOptions(config Config) []memory.Option {
	var memOpts []memory.Option
	if config.RedisAddr != "" {
		memOpts = append(memOpts, memory.WithAddr(config.RedisAddr))
	}
	if config.RedisPassword != "" {
		memOpts = append(memOpts, memory.WithPassword(config.RedisPassword))
	}
	if config.RedisDB != 0 {
		memOpts = append(memOpts, memory.WithDB(config.RedisDB))
	}
	return memOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(config Config, flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.model != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.model))
	}
	return genaiOpts
}

// buildMessenger constructs the configured WhatsApp delivery provider.
// Provider "none" disables delivery; chat requests then only return the
// generated reply.
func buildMessenger(config Config) (messaging.Service, error) {
	switch config.MessagingProvider {
	case "evolution":
		if config.EvolutionURL == "" {
			slog.Warn("EVOLUTION_API_URL not set, WhatsApp delivery disabled")
			return nil, nil
		}
		return messaging.NewEvolutionService(
			messaging.WithBaseURL(config.EvolutionURL),
			messaging.WithAPIKey(config.EvolutionKey),
			messaging.WithInstance(config.EvolutionInstance),
		)
	case "twilio":
		return messaging.NewTwilioService(
			messaging.WithAccountSID(config.TwilioSID),
			messaging.WithAuthToken(config.TwilioToken),
			messaging.WithFromWhats(config.TwilioFrom),
		)
	case "none":
		slog.Info("WhatsApp delivery disabled by configuration")
		return nil, nil
	default:
		slog.Warn("Unknown messaging provider, WhatsApp delivery disabled", "provider", config.MessagingProvider)
		return nil, nil
	}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}
