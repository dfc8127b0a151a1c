package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/CareConcierge/internal/api"
	"github.com/BTreeMap/CareConcierge/internal/callscript"
	"github.com/BTreeMap/CareConcierge/internal/calling"
	"github.com/BTreeMap/CareConcierge/internal/care"
	"github.com/BTreeMap/CareConcierge/internal/citation"
	"github.com/BTreeMap/CareConcierge/internal/flow"
	"github.com/BTreeMap/CareConcierge/internal/genai"
	"github.com/BTreeMap/CareConcierge/internal/lockfile"
	"github.com/BTreeMap/CareConcierge/internal/models"
	"github.com/BTreeMap/CareConcierge/internal/places"
	"github.com/BTreeMap/CareConcierge/internal/store"
	"github.com/BTreeMap/CareConcierge/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for CareConcierge state data
	DefaultStateDir = "/var/lib/careconcierge"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "careconcierge.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	if err := run(flags); err != nil {
		slog.Error("CareConcierge failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("CareConcierge exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir             string
	DatabaseURL          string
	OpenAIKey            string
	OpenAIModel          string
	APIAddr              string
	EvidenceLock         bool
	CitationPolicy       string
	ShowUnverifiedPlaces bool
	PlacesURL            string
	PlacesKey            string
	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioFromNumber     string
	HandoffDelay         time.Duration
	TrustedDomainsFile   string
	DebugMode            bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir       *string
	dbDSN          *string
	openaiKey      *string
	openaiModel    *string
	apiAddr        *string
	evidenceLock   *bool
	citationPolicy *string
	showUnverified *bool
	placesURL      *string
	placesKey      *string
	domainsFile    *string
	handoffDelay   *time.Duration
	debug          *bool
	config         Config
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:             os.Getenv("CONCIERGE_STATE_DIR"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		OpenAIKey:            os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:          os.Getenv("OPENAI_MODEL"),
		APIAddr:              os.Getenv("API_ADDR"),
		EvidenceLock:         util.ParseBoolEnv("EVIDENCE_LOCK", true),
		CitationPolicy:       os.Getenv("CITATION_POLICY"),
		ShowUnverifiedPlaces: util.ParseBoolEnv("SHOW_UNVERIFIED_PLACES", false),
		PlacesURL:            os.Getenv("PLACES_API_URL"),
		PlacesKey:            os.Getenv("PLACES_API_KEY"),
		TwilioAccountSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:     os.Getenv("TWILIO_FROM_NUMBER"),
		HandoffDelay:         util.ParseDurationEnv("CALL_HANDOFF_DELAY", callscript.DefaultHandoffDelay),
		TrustedDomainsFile:   os.Getenv("TRUSTED_DOMAINS_FILE"),
		DebugMode:            util.ParseBoolEnv("GENAI_DEBUG", false),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CONCIERGE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	if config.CitationPolicy == "" {
		config.CitationPolicy = string(citation.PolicySoft)
	}

	slog.Debug("environment variables loaded",
		"CONCIERGE_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"API_ADDR", config.APIAddr,
		"EVIDENCE_LOCK", config.EvidenceLock,
		"CITATION_POLICY", config.CitationPolicy,
		"PLACES_API_URL_SET", config.PlacesURL != "",
		"TWILIO_SET", config.TwilioAccountSID != "" && config.TwilioAuthToken != "",
		"TRUSTED_DOMAINS_FILE", config.TrustedDomainsFile)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := newFlags(flag.CommandLine, config)
	flag.Parse()
	flags.resolve()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"openaiModel", *flags.openaiModel,
		"apiAddr", *flags.apiAddr,
		"evidenceLock", *flags.evidenceLock,
		"citationPolicy", *flags.citationPolicy,
		"handoffDelay", *flags.handoffDelay)
	return flags
}

// newFlags registers the flags on fs, using config for their defaults.
func newFlags(fs *flag.FlagSet, config Config) Flags {
	return Flags{
		stateDir:       fs.String("state-dir", config.StateDir, "state directory for CareConcierge data (overrides $CONCIERGE_STATE_DIR)"),
		dbDSN:          fs.String("db-dsn", config.DatabaseURL, "database DSN; postgres URL or SQLite path, empty for in-memory (overrides $DATABASE_URL)"),
		openaiKey:      fs.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:    fs.String("openai-model", config.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)"),
		apiAddr:        fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		evidenceLock:   fs.Bool("evidence-lock", config.EvidenceLock, "require trusted citations for declarative replies (overrides $EVIDENCE_LOCK)"),
		citationPolicy: fs.String("citation-policy", config.CitationPolicy, "soft or strict (overrides $CITATION_POLICY)"),
		showUnverified: fs.Bool("show-unverified-places", config.ShowUnverifiedPlaces, "show care options without verifiable reviews (overrides $SHOW_UNVERIFIED_PLACES)"),
		placesURL:      fs.String("places-url", config.PlacesURL, "nearby search endpoint (overrides $PLACES_API_URL)"),
		placesKey:      fs.String("places-api-key", config.PlacesKey, "nearby search API key (overrides $PLACES_API_KEY)"),
		domainsFile:    fs.String("trusted-domains-file", config.TrustedDomainsFile, "YAML file extending the domain allow-lists (overrides $TRUSTED_DOMAINS_FILE)"),
		handoffDelay:   fs.Duration("call-handoff-delay", config.HandoffDelay, "delay before an approved script is handed to the caller (overrides $CALL_HANDOFF_DELAY)"),
		debug:          fs.Bool("genai-debug", config.DebugMode, "write model requests and responses under the state directory (overrides $GENAI_DEBUG)"),
		config:         config,
	}
}

// resolve moves the default SQLite path along with an overridden state directory.
func (f Flags) resolve() {
	def := filepath.Join(f.config.StateDir, DefaultDBFileName)
	if *f.dbDSN == def && *f.stateDir != f.config.StateDir {
		*f.dbDSN = filepath.Join(*f.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", f.config.StateDir, "new_state_dir", *f.stateDir)
	}
}

// run wires every module and serves until SIGINT or SIGTERM.
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if dsnKind(*flags.dbDSN) == store.DSNTypeSQLite {
		lock, err := lockfile.Acquire(sqlitePath(*flags.dbDSN))
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	st, err := buildStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Failed to close store", "error", err)
		}
	}()

	trusted, review, err := loadDomains(*flags.domainsFile)
	if err != nil {
		return err
	}

	model, err := genai.NewClient(buildGenAIOptions(flags)...)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}

	gate := citation.NewGate(
		citation.WithDomains(trusted),
		citation.WithPolicy(citation.ParsePolicy(*flags.citationPolicy)),
		citation.WithBackfiller(model),
	)

	timer := flow.NewSimpleTimer()
	defer timer.Stop()

	opts := []flow.Option{
		flow.WithModel(model),
		flow.WithStore(st),
		flow.WithGate(gate),
		flow.WithReviewGate(care.ReviewGate{ReviewDomains: review, ShowUnverified: *flags.showUnverified}),
		flow.WithEvidenceLock(models.EvidenceLock{
			Enabled:         *flags.evidenceLock,
			ShowUnverified:  *flags.showUnverified,
			StrictCitations: citation.ParsePolicy(*flags.citationPolicy) == citation.PolicyStrict,
		}),
		flow.WithCompleter(callscript.NewCompleter(st, timer, buildCaller(st, flags.config), *flags.handoffDelay)),
	}
	if searcher := buildSearcher(flags); searcher != nil {
		opts = append(opts, flow.WithSearcher(searcher))
	}

	concierge, err := flow.NewConcierge(opts...)
	if err != nil {
		return fmt.Errorf("failed to create concierge: %w", err)
	}
	server, err := api.NewServer(concierge, buildAPIOptions(flags, timer)...)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	slog.Info("Bootstrapping CareConcierge with configured modules",
		"state_dir", *flags.stateDir, "dsn_type", dsnKind(*flags.dbDSN), "api_addr", *flags.apiAddr)
	return server.Run(ctx)
}

// dsnKind names the store a DSN selects.
func dsnKind(dsn string) string {
	if dsn == "" {
		return "memory"
	}
	return store.DetectDSNType(dsn)
}

// sqlitePath strips the file: scheme and query parameters from a SQLite DSN.
func sqlitePath(dsn string) string {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	return path
}

// buildStore opens the store selected by dsn. An empty DSN selects the in-memory store.
func buildStore(dsn string) (store.Store, error) {
	switch dsnKind(dsn) {
	case "memory":
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	case store.DSNTypePostgres:
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		st, err := store.NewPostgresStore(store.WithPostgresDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return st, nil
	default:
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
		st, err := store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return st, nil
	}
}

// loadDomains returns the trusted and review allow-lists, extended by the optional YAML file.
func loadDomains(path string) (trusted, review []string, err error) {
	trusted, review = citation.DefaultTrustedDomains, care.DefaultReviewDomains
	if path == "" {
		return trusted, review, nil
	}
	df, err := citation.LoadDomainFile(path)
	if err != nil {
		return nil, nil, err
	}
	return citation.MergeDomains(trusted, df.Trusted), citation.MergeDomains(review, df.Review), nil
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	if *flags.debug {
		genaiOpts = append(genaiOpts, genai.WithDebugMode(true), genai.WithStateDir(*flags.stateDir))
	}
	return genaiOpts
}

// buildSearcher returns the nearby search client, or nil when no endpoint is configured.
func buildSearcher(flags Flags) care.Searcher {
	if *flags.placesURL == "" {
		slog.Debug("No PLACES_API_URL set, care search disabled")
		return nil
	}
	opts := []places.Option{places.WithEndpoint(*flags.placesURL)}
	if *flags.placesKey != "" {
		opts = append(opts, places.WithAPIKey(*flags.placesKey))
	}
	c, err := places.NewClient(opts...)
	if err != nil {
		slog.Warn("Places client unavailable, care search disabled", "error", err)
		return nil
	}
	return c
}

// buildCaller returns the Twilio voice caller, or nil when credentials are missing so
// approved scripts are saved without an automatic call.
func buildCaller(scripts calling.ScriptSource, config Config) callscript.Caller {
	if config.TwilioAccountSID == "" || config.TwilioAuthToken == "" || config.TwilioFromNumber == "" {
		slog.Debug("Twilio credentials not set, outbound calls disabled")
		return nil
	}
	c, err := calling.NewClient(scripts,
		calling.WithAccountSID(config.TwilioAccountSID),
		calling.WithAuthToken(config.TwilioAuthToken),
		calling.WithFromNumber(config.TwilioFromNumber),
	)
	if err != nil {
		slog.Warn("Twilio caller unavailable, outbound calls disabled", "error", err)
		return nil
	}
	return c
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, timer *flow.SimpleTimer) []api.Option {
	apiOpts := []api.Option{api.WithTimer(timer)}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}
