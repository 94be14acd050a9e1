package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/bryanwahyu/quorum-comply/internal/application"
	appagents "github.com/bryanwahyu/quorum-comply/internal/application/agents"
	appassess "github.com/bryanwahyu/quorum-comply/internal/application/assessments"
	apppdca "github.com/bryanwahyu/quorum-comply/internal/application/pdca"
	"github.com/bryanwahyu/quorum-comply/internal/config"
	domagents "github.com/bryanwahyu/quorum-comply/internal/domain/agents"
	domassess "github.com/bryanwahyu/quorum-comply/internal/domain/assessments"
	"github.com/bryanwahyu/quorum-comply/internal/domain/frameworks"
	dompdca "github.com/bryanwahyu/quorum-comply/internal/domain/pdca"
	aiopenai "github.com/bryanwahyu/quorum-comply/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/quorum-comply/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/quorum-comply/internal/infra/db/postgres"
	"github.com/bryanwahyu/quorum-comply/internal/infra/events"
	"github.com/bryanwahyu/quorum-comply/internal/infra/httpserver"
	"github.com/bryanwahyu/quorum-comply/internal/infra/registry"
	minioStore "github.com/bryanwahyu/quorum-comply/internal/infra/storage"
	"github.com/bryanwahyu/quorum-comply/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	// connect database; mysql is the default deployment, postgres the alternative
	var (
		assessRepo domassess.Repository
		cycleRepo  dompdca.Repository
		sysRepo    frameworks.SystemRegistry
		healthDB   *middleware.DatabaseHealthChecker
	)
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		defer db.Close()
		assessRepo = postgresp.NewAssessmentRepository(db)
		cycleRepo = postgresp.NewCycleRepository(db)
		sysRepo = postgresp.NewSystemRepository(db)
		healthDB = &middleware.DatabaseHealthChecker{DB: db}
	default:
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatalf("mysql connect error: %v", err)
		}
		defer db.Close()
		assessRepo = mysqlp.NewAssessmentRepository(db)
		cycleRepo = mysqlp.NewCycleRepository(db)
		sysRepo = mysqlp.NewSystemRepository(db)
		healthDB = &middleware.DatabaseHealthChecker{DB: db}
	}

	// load framework catalogs (read-only registry data)
	catalogDir := cfg.Agents.CatalogDir
	if catalogDir == "" {
		catalogDir = "catalogs"
	}
	catalog, err := registry.LoadCatalog(catalogDir)
	if err != nil {
		log.Fatalf("framework catalog load error: %v", err)
	}

	// init minio report store
	store, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		log.Fatalf("minio init error: %v", err)
	}

	// one evaluator client per configured provider
	evaluators := make(map[string]domagents.Evaluator)
	for _, p := range cfg.Agents.Providers {
		key := p.APIKey
		if key == "" {
			key = cfg.OpenAI.APIKey
		}
		model := p.Model
		if model == "" {
			model = cfg.OpenAI.Model
		}
		evaluators[p.Name] = aiopenai.NewClientWithBaseURL(key, p.BaseURL, model, cfg.CallTimeout())
	}
	if len(evaluators) == 0 {
		log.Fatalf("no evaluator providers configured")
	}

	pool := appagents.NewPool(evaluators, appagents.PoolConfig{
		MaxConcurrent:        cfg.Agents.MaxConcurrent,
		CallTimeout:          cfg.CallTimeout(),
		PollTimeout:          cfg.PollTimeout(),
		MinReachableFraction: cfg.Agents.MinReachableFraction,
	})

	roster := domagents.Roster{Agents: cfg.Agents.Roster}
	policy := consensusPolicy(cfg, roster)

	// init services
	cycleSvc := &apppdca.Service{
		Repo:    cycleRepo,
		Clock:   application.SystemClock{},
		Cadence: cfg.PDCACadence(),
	}

	var publisher domassess.EventPublisher = events.LogPublisher{}
	if cfg.Events.WebhookURL != "" {
		publisher = events.Multi{events.LogPublisher{}, events.NewWebhookPublisher(cfg.Events.WebhookURL)}
	}

	assessSvc := &appassess.Service{
		Repo:     assessRepo,
		Registry: sysRepo,
		Catalog:  catalog,
		Roster:   roster,
		Pool:     pool,
		Reports:  store,
		Events:   publisher,
		Cycles:   cycleSvc,
		Clock:    application.SystemClock{},
		Cfg: appassess.Config{
			RunTimeout:           cfg.RunTimeout(),
			MaxParallelQuestions: cfg.Assessment.MaxParallelQuestions,
			Policy:               policy,
		},
	}

	// pdca scheduler re-triggers due assessments in the background
	schedCtx, stopSched := context.WithCancel(ctx)
	scheduler := &apppdca.Scheduler{
		Cycles:   cycleSvc,
		Runner:   reassessTrigger{svc: assessSvc},
		Interval: cfg.SchedulerInterval(),
	}
	go scheduler.Run(schedCtx)

	// init router
	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.RateLimitMiddleware(60, 2))
	if len(cfg.Auth.APIKeys) > 0 {
		mux.Use(middleware.APIKeyAuth(cfg.Auth.APIKeys))
	}
	mux.Get("/health", middleware.HealthHandler(map[string]middleware.HealthChecker{
		"database":     healthDB,
		"object_store": middleware.CheckerFunc(store.Check),
	}))
	mux.Get("/metrics", middleware.MetricsHandler)
	mux.Mount("/", httpserver.NewRouter(assessSvc, cycleSvc, catalog))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Minute, // sync runs can legitimately take minutes
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("server listening on %s (roster=%d agents, threshold=%d)",
			addr, len(roster.Active()), policy.QuorumThreshold())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")
	stopSched()

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
