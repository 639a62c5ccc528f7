// jobmate-autoapply-service
//
// Matching and humanized scheduling engine for auto-apply.
// Exposes a REST API and a gRPC API used by the Gateway to implement:
//   - keywords(jdText)                 : ranked job description keywords
//   - match(skills, jdText)            : skill/JD alignment score
//   - plan(resumeId, pace, matches)    : today's paced send schedule
//   - send / complete / retry / drop   : apply lifecycle transitions
//
// A cron dispatcher submits due items through the simulated board transport.
// Journals items to PostgreSQL (or a local SQLite file) and publishes EVENT_APPLY_STATE /
// EVENT_PLAN_CREATED to Redis when those are configured.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"

	"jobmate/autoapply-service/internal/apply"
	"jobmate/autoapply-service/internal/autoapply"
	"jobmate/autoapply-service/internal/config"
	"jobmate/autoapply-service/internal/db"
	"jobmate/autoapply-service/internal/dispatch"
	"jobmate/autoapply-service/internal/events"
	"jobmate/autoapply-service/internal/grpcserver"
	"jobmate/autoapply-service/internal/httpapi"
	"jobmate/autoapply-service/internal/pacing"
	"jobmate/autoapply-service/internal/store"
)

const version = "1.0.0"

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	if err := godotenv.Load(); err != nil {
		log.Println("[autoapply] No .env file found, using environment")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[autoapply] Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := []autoapply.Option{autoapply.WithLocation(cfg.Location), autoapply.WithPace(cfg.Pace)}

	// ── PostgreSQL (optional journal) ────────────────────────────────────────
	if cfg.DatabaseURL != "" {
		log.Println("[autoapply] Connecting to PostgreSQL…")
		pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("[autoapply] PostgreSQL: %v", err)
		}
		defer pool.Close()

		journal := store.NewJournal(pool)
		if err := journal.EnsureSchema(ctx); err != nil {
			log.Fatalf("[autoapply] PostgreSQL schema: %v", err)
		}
		opts = append(opts, autoapply.WithJournal(journal))
		log.Println("[autoapply] PostgreSQL connected ✓")
	} else if cfg.SQLitePath != "" {
		journal, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			log.Fatalf("[autoapply] SQLite journal: %v", err)
		}
		defer journal.Close()
		opts = append(opts, autoapply.WithJournal(journal))
		log.Printf("[autoapply] SQLite journal at %s ✓", cfg.SQLitePath)
	} else {
		log.Println("[autoapply] DATABASE_URL and JOURNAL_SQLITE_PATH not set, journal disabled")
	}

	// ── Redis (optional events) ──────────────────────────────────────────────
	if cfg.RedisURL != "" {
		log.Println("[autoapply] Connecting to Redis…")
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("[autoapply] Redis: %v", err)
		}
		defer rdb.Close()
		opts = append(opts, autoapply.WithPublisher(events.NewPublisher(rdb, cfg.UserID)))
		log.Println("[autoapply] Redis connected ✓")
	} else {
		log.Println("[autoapply] REDIS_URL not set, events disabled")
	}

	// ── Engine ───────────────────────────────────────────────────────────────
	gen := pacing.NewGenerator()
	if cfg.PlanSeed != nil {
		gen = pacing.NewSeededGenerator(*cfg.PlanSeed)
		log.Printf("[autoapply] Reproducible plans, seed %d", *cfg.PlanSeed)
	}
	svc := autoapply.NewService(gen, apply.NewTracker(), cfg.KeywordTopN, opts...)

	submitter := dispatch.NewSimulatedSubmitter(uint64(time.Now().UnixNano()), cfg.SubmitFailureRate, 2*time.Second)
	dispatcher := dispatch.New(svc, submitter, dispatch.Options{
		Interval:      cfg.DispatchInterval,
		Concurrency:   cfg.DispatchConcurrency,
		RatePerMinute: cfg.SubmitRatePerMinute,
		MaxAttempts:   cfg.SubmitMaxAttempts,
	})
	if err := dispatcher.Start(ctx); err != nil {
		log.Fatalf("[autoapply] Dispatcher: %v", err)
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)

	h := httpapi.NewHandler(svc, dispatcher, cfg.Pace, cfg.KeywordTopN)
	h.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("[autoapply] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[autoapply] HTTP server error: %v", err)
		}
	}()

	// ── gRPC server ──────────────────────────────────────────────────────────
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatalf("[autoapply] gRPC listen: %v", err)
	}
	gsrv := grpc.NewServer()
	grpcserver.Register(gsrv, grpcserver.NewServer(svc, cfg.Pace, cfg.KeywordTopN))

	go func() {
		log.Printf("[autoapply] gRPC listening on :%s", cfg.GRPCPort)
		if err := gsrv.Serve(lis); err != nil {
			log.Fatalf("[autoapply] gRPC server error: %v", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[autoapply] Shutting down…")
	cancel()
	dispatcher.Stop()
	gsrv.GracefulStop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[autoapply] Shutdown error: %v", err)
	}
	log.Println("[autoapply] Stopped.")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "autoapply-service",
		"version": version,
	})
}
