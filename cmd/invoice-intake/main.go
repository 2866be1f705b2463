package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/qiwen-ledger/invoice-intake/internal/extraction"
	"github.com/qiwen-ledger/invoice-intake/internal/ledger"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// Known OpenAI-compatible endpoints; anything else needs --base-url.
var providerBaseURLs = map[string]string{
	"zhipu":       "https://open.bigmodel.cn/api/paas/v4",
	"siliconflow": "https://api.siliconflow.cn/v1",
	"openai":      "",
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("invoice-intake")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "invoice-intake.db", "Database file path")
		storagePath = fs.StringLong("storage", "./documents", "Document storage directory path")
		provider    = fs.StringLong("provider", "gemini", "Extraction provider: 'gemini', 'openai', 'zhipu' or 'siliconflow'")
		apiKey      = fs.StringLong("api-key", "", "Provider API key (or set INVOICE_INTAKE_API_KEY env var)")
		modelName   = fs.StringLong("model", "", "Model name (provider default when empty)")
		baseURL     = fs.StringLong("base-url", "", "Base URL for OpenAI-compatible providers (overrides the provider default)")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_INTAKE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := ledger.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	key := *apiKey
	if key == "" {
		key = os.Getenv("INVOICE_INTAKE_API_KEY")
	}

	// Initialize extraction provider
	var extractor extraction.Extractor
	switch *provider {
	case "gemini":
		if key == "" {
			slog.Error("Gemini API key is required. Set --api-key flag or INVOICE_INTAKE_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini extractor...", "model", *modelName)
		extractor, err = extraction.NewGemini(key, *modelName)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "openai", "zhipu", "siliconflow":
		url := *baseURL
		if url == "" {
			url = providerBaseURLs[*provider]
		}
		if *modelName == "" {
			slog.Error("Model name is required for OpenAI-compatible providers. Set --model")
			os.Exit(1)
		}
		slog.Info("Initializing OpenAI-compatible extractor...", "provider", *provider, "base_url", url, "model", *modelName)
		extractor, err = extraction.NewOpenAICompat(url, key, *modelName)
		if err != nil {
			slog.Error("Failed to initialize extractor", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid provider", "provider", *provider, "valid", "gemini, openai, zhipu or siliconflow")
		os.Exit(1)
	}
	defer extractor.Close()

	// Initialize document storage
	slog.Info("Initializing storage...")
	store, err := ledger.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize service
	service := ledger.NewService(db, extractor, store)

	// Initialize server
	basicAuth := ledger.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := ledger.NewServer(service, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
