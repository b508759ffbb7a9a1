package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/config"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/handler"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/memcache"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/ratelimit"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/service/ai"
	chatService "github.com/Kelvinsaleh/Hope-backend-sub000/internal/service/chat"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/service/extractor"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/service/gatherer"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/service/queue"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/store/facts"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/store/session"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/store/wellness"
)

const sweepInterval = time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	sessions, err := newSessionStore(cfg.Store)
	if err != nil {
		log.Fatalf("failed to initialize session store: %v", err)
	}
	defer sessions.Close()

	factStore, err := facts.NewSQLiteStore(cfg.Store.FactsDBPath)
	if err != nil {
		log.Fatalf("failed to open facts database: %v", err)
	}
	defer factStore.Close()

	limiter := ratelimit.New(cfg.RateLimit.Window, cfg.RateLimit.PerIdentity,
		cfg.RateLimit.GlobalWindow, cfg.RateLimit.GlobalLimit)
	go limiter.Run(ctx, sweepInterval)

	cache := memcache.New(cfg.Cache.TTL, cfg.Cache.Capacity)
	go cache.Run(ctx, sweepInterval)

	wellnessStore := wellness.NewInMemory()
	gather := gatherer.New(wellnessStore, wellnessStore, wellnessStore, wellnessStore, sessions, factStore)

	var aiClient chatService.AIClient
	var sink chatService.FactSink
	if cfg.AI.Enabled() {
		aiSvc, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing with fallback responses only")
		} else {
			log.Println("AI service initialized successfully")
			q := queue.New(ctx, aiSvc, cfg.Queue)
			aiClient = q
			sink = extractor.New(ctx, q, factStore, cache, extractor.Config{
				SummaryEvery: cfg.Context.SummarySeedAge,
			})
		}
	} else {
		log.Println("Ark credentials not configured, serving fallback responses only")
	}

	chatSvc := chatService.New(cfg.Context, limiter, cache, sessions, factStore, gather, aiClient, sink)

	router := handler.NewRouter(chatSvc)
	startServer(ctx, cfg.Server, router)
}

func newSessionStore(cfg config.StoreConfig) (session.Store, error) {
	switch session.StoreType(cfg.SessionDriver) {
	case session.StoreTypeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		return session.NewStore(session.StoreTypeRedis,
			session.WithRedisClient(client),
			session.WithRedisTTL(cfg.RedisTTL))
	default:
		return session.NewStore(session.StoreTypeMemory)
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Hope backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
