package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/xenking/wheelhouse/internal/domain/order"
	"github.com/xenking/wheelhouse/internal/domain/product"
	"github.com/xenking/wheelhouse/internal/handler"
	"github.com/xenking/wheelhouse/internal/payment"
	storagemongo "github.com/xenking/wheelhouse/internal/storage/mongo"
	storageredis "github.com/xenking/wheelhouse/internal/storage/redis"
	"github.com/xenking/wheelhouse/pkg/health"
	"github.com/xenking/wheelhouse/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// MongoDB connection + index bootstrap.
	db, err := storagemongo.Connect(ctx, cfg.MongoURL, cfg.MongoDatabase)
	if err != nil {
		return errors.Wrap(err, "connect mongo")
	}
	defer func() {
		if err := db.Client().Disconnect(context.Background()); err != nil {
			lg.Warn("Mongo disconnect error", zap.Error(err))
		}
	}()

	if err := storagemongo.EnsureIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "ensure indexes")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("mongo", 5*time.Second, func(ctx context.Context) error {
		return db.Client().Ping(ctx, readpref.Primary())
	})
	healthSvc.AddLivenessCheck("goroutines", health.GoroutineCountCheck(10000))

	// Repositories.
	var productRepo product.Repository = storagemongo.NewProductRepository(db)
	userRepo := storagemongo.NewUserRepository(db)
	orderRepo := storagemongo.NewOrderRepository(db)

	// Optional Redis catalog cache.
	if cfg.RedisAddr != "" {
		rdb, err := storageredis.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()

		healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		productRepo = storageredis.NewProductCache(productRepo, rdb, cfg.CacheTTL)
		lg.Info("Catalog cache enabled", zap.String("redis", cfg.RedisAddr))
	}

	// Payment gateway client.
	gateway := payment.NewClient(payment.Config{
		BaseURL:  cfg.Payment.BaseURL,
		Username: cfg.Payment.Username,
		Password: cfg.Payment.Password,
		Timeout:  cfg.Payment.Timeout,
		Retries:  cfg.Payment.Retries,
	})

	// Domain services.
	orderService := order.NewService(productRepo, userRepo, orderRepo, gateway, cfg.Currency)

	// HTTP handlers: health endpoints + API routes on one server.
	h := handler.NewHandler(productRepo, orderService)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Routes())

	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-User-Email"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("wheelhouse-api", m),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
