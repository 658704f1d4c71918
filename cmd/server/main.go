// Leadbot - marketing site chat assistant and lead qualification server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zentiam/leadbot/internal/analyze"
	"github.com/zentiam/leadbot/internal/api"
	"github.com/zentiam/leadbot/internal/chatbot"
	"github.com/zentiam/leadbot/internal/config"
	"github.com/zentiam/leadbot/internal/extract"
	"github.com/zentiam/leadbot/internal/identity"
	"github.com/zentiam/leadbot/internal/knowledge"
	"github.com/zentiam/leadbot/internal/leads"
	"github.com/zentiam/leadbot/internal/llm"
	"github.com/zentiam/leadbot/internal/metrics"
	"github.com/zentiam/leadbot/internal/middleware"
	"github.com/zentiam/leadbot/internal/rpc"
	"github.com/zentiam/leadbot/internal/store"
	"github.com/zentiam/leadbot/internal/taxonomy"
	"github.com/zentiam/leadbot/internal/transcript"
	"github.com/zentiam/leadbot/internal/ws"
	"github.com/zentiam/leadbot/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.Store.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.Open(cfg.Store)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	tx := taxonomy.Default()
	if cfg.Taxonomy != "" {
		tx, err = taxonomy.Load(cfg.Taxonomy)
		if err != nil {
			slog.Error("Failed to load taxonomy", "error", err, "path", cfg.Taxonomy)
			os.Exit(1)
		}
		slog.Info("Taxonomy loaded", "path", cfg.Taxonomy)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, reg)

	// Knowledge store.
	index := knowledge.NewIndex(tx, cfg.Knowledge.ChunkSize)
	crawler := knowledge.NewCrawler(knowledge.CrawlerConfig{
		MaxPages: cfg.Knowledge.CrawlMaxPages,
		Rate:     cfg.Knowledge.CrawlRate,
	}, logger)
	kb := knowledge.NewService(index, repo, crawler, logger)
	chunks, err := kb.Load(ctx)
	if err != nil {
		slog.Error("Failed to load knowledge chunks", "error", err)
		os.Exit(1)
	}
	m.Chunks(chunks)
	slog.Info("Knowledge index loaded", "chunks", chunks)

	gen := llm.NewOpenAI(llm.Config{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.Model,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: 2,
	})
	if cfg.LLM.APIKey == "" {
		slog.Warn("OPENAI_API_KEY not set, answers will fall back to the apology message")
	}

	// Session locking: Redis when configured so replicas share turns.
	var locker chatbot.Locker = chatbot.NewMemoryLocker()
	if cfg.RedisURL != "" {
		redisLocker, err := chatbot.NewRedisLocker(cfg.RedisURL)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := redisLocker.Close(); closeErr != nil {
				slog.Error("Failed to close Redis", "error", closeErr)
			}
		}()
		locker = redisLocker
		slog.Info("Using Redis session locks")
	}

	conversationLogger, err := transcript.New(transcript.Config{
		Enabled:       cfg.Transcript.Enabled,
		Dir:           cfg.Transcript.Dir,
		GlobalEnabled: cfg.Transcript.GlobalEnabled,
		GlobalPath:    cfg.Transcript.GlobalPath,
		QueueSize:     cfg.Transcript.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	// Lead sink and sync worker.
	var sink leads.Sink
	var syncer api.LeadSyncer
	var book api.LeadWorkbook
	if cfg.Leads.Enabled {
		workbook := leads.NewWorkbook(cfg.Leads.Workbook, leads.NewBuilder(tx))
		sink = workbook
		book = workbook
		leadSyncer := leads.NewSyncer(repo, workbook, cfg.Store.Retention, m, logger)
		leadSyncer.Start(ctx, cfg.Leads.SyncInterval)
		syncer = leadSyncer
		slog.Info("Lead sync worker started", "workbook", workbook.Path(), "interval", cfg.Leads.SyncInterval)
	} else {
		slog.Info("Lead sink disabled (LEADS_ENABLED=false)")
	}

	orch := chatbot.NewOrchestrator(tx, kb, gen, chatbot.Brand{
		Company:      cfg.Brand.Company,
		ContactEmail: cfg.Brand.ContactEmail,
	}, cfg.Knowledge.TopK, logger)
	chat := chatbot.NewService(chatbot.Deps{
		Store:        repo,
		Extractor:    extract.New(tx),
		Analyzer:     analyze.New(tx),
		Orchestrator: orch,
		Locker:       locker,
		Sink:         sink,
		Transcript:   conversationLogger,
		Metrics:      m,
		Logger:       logger,
	})

	// Initialize handlers.
	chatbotHandler := api.NewChatbotHandler(chat, kb, repo, api.ChatbotConfig{
		SiteURL:   cfg.Knowledge.SiteURL,
		UploadMax: cfg.UploadMax,
	}, m, logger)
	leadsHandler := api.NewLeadsHandler(syncer, book, repo, logger)
	healthHandler := api.NewHealthHandler(repo, index.Len)

	sm := ws.NewSessionManager()
	wsHandler := ws.NewHandler(chat, sm, cfg.AllowedOrigins(), cfg.IsDevelopment(), m, logger)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Requests > 0 {
		limiter = middleware.NewRateLimiter(ctx, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", m.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter, identity.RateLimitKey, m))
		chatbotHandler.RegisterRoutes(r)
		r.Get("/ws/chat", wsHandler.ServeHTTP)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.AdminToken))
		chatbotHandler.RegisterAdminRoutes(r)
		leadsHandler.RegisterRoutes(r)
	})
	if cfg.AdminToken == "" {
		slog.Warn("ADMIN_TOKEN not set, admin routes are unauthenticated")
	}

	// Embedded chat widget.
	r.Handle("/widget", http.RedirectHandler("/widget/", http.StatusMovedPermanently))
	r.Handle("/widget/*", http.StripPrefix("/widget", web.WidgetHandler()))

	// Create server.
	// WebSocket connections are long-lived, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	var healthServer *rpc.HealthServer
	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			slog.Error("Failed to listen for gRPC", "error", err, "port", cfg.GRPCPort)
			os.Exit(1)
		}
		healthServer = rpc.NewHealthServer(repo, rpc.Config{}, logger)
		go func() {
			if err := healthServer.Serve(ctx, lis); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sm.CloseAll()
	if healthServer != nil {
		healthServer.Shutdown(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
