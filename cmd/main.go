package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Jamolkhon5/aistudio/internal/ai/gateway"
	studiohandler "github.com/Jamolkhon5/aistudio/internal/ai/studio/handler"
	"github.com/Jamolkhon5/aistudio/internal/ai/studio/service"
	"github.com/Jamolkhon5/aistudio/internal/auth"
	"github.com/Jamolkhon5/aistudio/internal/cache"
	"github.com/Jamolkhon5/aistudio/internal/config"
	"github.com/Jamolkhon5/aistudio/internal/handler"
	"github.com/Jamolkhon5/aistudio/internal/health"
	"github.com/Jamolkhon5/aistudio/internal/repository"
	"github.com/Jamolkhon5/aistudio/internal/storage"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.NewConfig(".env")
	if err != nil {
		log.Fatal(err)
	}
	if cfg.SupabaseJWTSecret == "" {
		log.Fatal("missing required environment variable: SUPABASE_JWT_SECRET")
	}

	catalog, err := config.LoadCatalog(cfg.ToolsFile)
	if err != nil {
		log.Fatal(err)
	}

	// Подключение к базе данных
	db, err := sqlx.Connect("postgres", cfg.PostgresDSN())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	repo := repository.NewRepository(db)
	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	err = repo.Migrate(migrateCtx)
	cancelMigrate()
	if err != nil {
		log.Fatal(err)
	}

	// Хранилище файлов
	store := storage.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.StorageBucket, cfg.UploadTimeout)
	mirror := storage.NewMirror(store, cfg.DownloadTimeout).WithMaxSize(cfg.MaxDownloadSize)
	if cfg.MirrorPrivateHosts {
		log.Printf("WARN: [Main] mirror may download from private networks")
		mirror.WithPrivateHosts()
	}

	// Шлюз к приложениям Dify
	keys := gateway.EnvKeyResolver{Lookup: cfg.Lookup, KeyName: catalog.KeyName}
	gw := gateway.NewClient(cfg.DifyBaseURL, keys, cfg.GatewayTimeout)

	checks := map[string]health.Check{
		"postgres": repo.Ping,
		"storage": func(ctx context.Context) error {
			if !store.CheckBucketAccess(ctx) {
				return fmt.Errorf("bucket %s is not accessible", store.Bucket())
			}
			// постоянные ссылки работают только у публичного бакета
			info, err := store.BucketInfo(ctx)
			if err != nil {
				return err
			}
			if !info.Public {
				return fmt.Errorf("bucket %s is not public", store.Bucket())
			}
			return nil
		},
	}

	deps := service.Deps{
		Gateway:     gw,
		Store:       repo,
		Mirror:      mirror,
		Objects:     store,
		Catalog:     catalog,
		Concurrency: cfg.MirrorConcurrency,
	}

	// Кеш параметров необязателен
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		params := cache.NewParametersStorage(rdb, cfg.ParametersTTL)
		deps.Cache = params
		checks["redis"] = params.Ping
	} else {
		log.Printf("WARN: [Main] REDIS_ADDR is empty, parameters are not cached")
	}

	for _, t := range catalog.All() {
		if !gw.CheckConfig(t.ID) {
			log.Printf("WARN: [Main] tool %s has no API key configured", t.ID)
		}
	}

	studio := service.NewStudio(deps)
	studioHandler := studiohandler.NewStudioHandler(studio)
	dataHandler := handler.NewHandler(repo, mirror)
	verifier := auth.NewVerifier(cfg.SupabaseJWTSecret)
	checker := health.NewChecker(checks)

	// Настройка роутера
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/healthz", checker)

	r.Route("/v1", func(r chi.Router) {
		r.Use(verifier.Middleware)

		// Поток чата живет дольше обычного таймаута запроса
		studioHandler.RegisterStreamRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
			studioHandler.RegisterRoutes(r)
			dataHandler.RegisterRoutes(r)
		})

		// Вызов шлюза плюс перенос изображений
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.GatewayTimeout + service.MirrorTimeout))
			studioHandler.RegisterGatewayRoutes(r)
			dataHandler.RegisterStorageRoutes(r)
		})
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go checker.Run(ctx, 30*time.Second)

	// gRPC health для оркестратора
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, checker.Server())
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal(err)
	}
	go func() {
		log.Printf("INFO: [Main] gRPC health listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("ERROR: [Main] grpc serve: %v", err)
		}
	}()

	// Настройка и запуск сервера
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("INFO: [Main] HTTP listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutdown Server ...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: [Main] server shutdown: %v", err)
	}
	grpcServer.GracefulStop()
	log.Println("Server exiting")
}
