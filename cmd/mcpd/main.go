// mcpd serves the tool, model, orchestrator, file and record surfaces over
// HTTP.
//
// Examples:
//
//	export OPENAI_API_KEY=...
//	go run ./cmd/mcpd -addr :8080
//
//	go run ./cmd/mcpd -store postgres -postgres-url postgres://localhost/mcp
//	go run ./cmd/mcpd -store mongo -mongo-url mongodb://localhost:27017
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/intellisync/go-mcp/pkg/files"
	"github.com/intellisync/go-mcp/pkg/models"
	"github.com/intellisync/go-mcp/pkg/orchestrator"
	"github.com/intellisync/go-mcp/pkg/server"
	"github.com/intellisync/go-mcp/pkg/store"
	"github.com/intellisync/go-mcp/pkg/tool"
	"github.com/intellisync/go-mcp/pkg/tools"
)

const version = "0.3.0"

var (
	flagAddr        = flag.String("addr", ":8080", "HTTP listen address")
	flagStore       = flag.String("store", "memory", "Record store backend: memory|postgres|mongo|neo4j")
	flagPostgresURL = flag.String("postgres-url", "", "Postgres connection string (or DATABASE_URL)")
	flagMongoURL    = flag.String("mongo-url", "", "MongoDB connection string (or MONGODB_URI)")
	flagMongoDB     = flag.String("mongo-db", "mcp", "MongoDB database name")
	flagNeo4jURL    = flag.String("neo4j-url", "", "Neo4j bolt URL (or NEO4J_URI)")
	flagNeo4jUser   = flag.String("neo4j-user", "neo4j", "Neo4j username")
	flagUploadDir   = flag.String("upload-dir", "./data/uploads", "Base directory for uploaded files")
	flagTemplateDir = flag.String("template-dir", "./data/templates", "Directory for template files")
	flagRetries     = flag.Int("retries", 3, "Max attempts per upstream model request")
	flagChatBackend = flag.String("chat-provider", "openai", "Default chat provider: openai|anthropic|gemini|ollama|dummy")
	flagLogLevel    = flag.String("log-level", "info", "Log level: debug|info|warn|error")
)

func main() {
	flag.Parse()

	log := logrus.New()
	level, err := logrus.ParseLevel(*flagLogLevel)
	if err != nil {
		fail(fmt.Errorf("parse log level: %w", err))
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1) Record store
	db, closeStore, err := openStore(ctx, log)
	if err != nil {
		fail(err)
	}
	defer closeStore()

	// 2) Model layer
	modelRegistry := models.NewRegistry(models.RegistryOptions{
		OpenAI: models.NewOpenAIClient(models.OpenAIOptions{
			Retry:  models.RetryOptions{MaxAttempts: *flagRetries},
			Logger: log,
		}),
		Logger: log,
	})
	modelManager := models.NewManager(modelRegistry, log)
	if backend := strings.ToLower(*flagChatBackend); backend != "" && backend != "openai" {
		if _, err := modelRegistry.ChatProvider(ctx, backend); err != nil {
			fail(fmt.Errorf("chat provider %q: %w", backend, err))
		}
		modelManager.SetDefaultChatProvider(backend)
	}

	// 3) Tools
	toolRegistry := tool.NewRegistry(log)
	register := func(name string, t tool.Tool) {
		if err := toolRegistry.Register(name, t); err != nil {
			fail(err)
		}
	}
	register("template_engine", tools.NewTemplateEngine(tools.TemplateEngineOptions{
		TemplateDir: *flagTemplateDir,
	}))
	register("text_analysis", tools.NewTextAnalysis(tools.TextAnalysisOptions{}))
	register("email_composer", tools.NewEmailComposer(tools.EmailComposerOptions{}))
	register("calendar_operations", tools.NewCalendar(tools.CalendarOptions{}))
	register("echo", &tools.Echo{})
	register("calculator", &tools.Calculator{})
	register("clock", &tools.Clock{})

	// 4) Orchestrator and file surface
	orch := orchestrator.New(orchestrator.Options{Store: db, Logger: log})
	defer orch.Shutdown()

	fileService := files.NewService(files.Options{
		BaseDir: *flagUploadDir,
		Store:   db,
		Logger:  log,
	})

	// 5) Serve
	srv := server.New(server.Options{
		Addr:         *flagAddr,
		Version:      version,
		Tools:        tool.NewManager(toolRegistry, log),
		Models:       modelManager,
		Registry:     modelRegistry,
		Orchestrator: orch,
		Files:        fileService,
		Store:        db,
		Logger:       log,
	})
	if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fail(err)
	}
}

// openStore builds the record store named by -store. Connection strings come
// from flags first, environment second.
func openStore(ctx context.Context, log *logrus.Logger) (store.Store, func(), error) {
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	switch strings.ToLower(*flagStore) {
	case "memory", "":
		return store.NewMemoryStore(), func() {}, nil

	case "postgres":
		url := firstOf(*flagPostgresURL, os.Getenv("DATABASE_URL"))
		if url == "" {
			return nil, nil, errors.New("postgres store requires -postgres-url or DATABASE_URL")
		}
		pg, err := store.NewPostgresStore(connectCtx, url)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return pg, pg.Close, nil

	case "mongo":
		url := firstOf(*flagMongoURL, os.Getenv("MONGODB_URI"))
		if url == "" {
			return nil, nil, errors.New("mongo store requires -mongo-url or MONGODB_URI")
		}
		mg, err := store.NewMongoStore(connectCtx, url, *flagMongoDB)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		return mg, func() {
			if err := mg.Close(); err != nil {
				log.WithError(err).Warn("mongo close failed")
			}
		}, nil

	case "neo4j":
		url := firstOf(*flagNeo4jURL, os.Getenv("NEO4J_URI"))
		if url == "" {
			return nil, nil, errors.New("neo4j store requires -neo4j-url or NEO4J_URI")
		}
		n4, err := store.NewNeo4jStore(connectCtx, url, *flagNeo4jUser, os.Getenv("NEO4J_PASSWORD"), "")
		if err != nil {
			return nil, nil, fmt.Errorf("connect neo4j: %w", err)
		}
		return n4, func() {
			if err := n4.Close(context.Background()); err != nil {
				log.WithError(err).Warn("neo4j close failed")
			}
		}, nil
	}

	return nil, nil, fmt.Errorf("unknown store backend %q", *flagStore)
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
