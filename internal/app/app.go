package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/delivergo/pricing/internal/domain/order"
	"github.com/delivergo/pricing/internal/domain/promotion"
	"github.com/delivergo/pricing/internal/handler"
	"github.com/delivergo/pricing/internal/repository"
	"github.com/delivergo/pricing/pkg/health"
	"github.com/delivergo/pricing/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	deliveryFee, err := cfg.ParsedDeliveryFee()
	if err != nil {
		return err
	}

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	menuRepo := repository.NewMenuItemRepository(pool)
	promoRepo := repository.NewPromotionRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	keyRepo := repository.NewServiceKeyRepository(pool)

	// Domain services.
	evaluator := promotion.NewEvaluator(promoRepo)
	orderService := order.NewService(menuRepo, evaluator, orderRepo, deliveryFee)

	// HTTP surface: health probes stay outside API key auth.
	h := handler.NewHandler(menuRepo, orderService, evaluator)
	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Route("/api", func(r chi.Router) {
		r.Use(handler.APIKeyAuth(keyRepo, []byte(cfg.APIKeyPepper)))
		h.Routes(r)
	})

	routeFinder := makeRouteFinder(router)
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "X-API-Key", "X-User-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Requests: cfg.RateLimit.Max,
				Window:   cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("pricing-api", routeFinder, m.MeterProvider()),
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
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// makeRouteFinder resolves requests to chi route patterns without serving
// them, so spans and metrics can be named by pattern rather than raw path.
func makeRouteFinder(router chi.Routes) httpmiddleware.RouteFinder {
	return func(r *http.Request) (string, bool) {
		rctx := chi.NewRouteContext()
		if !router.Match(rctx, r.Method, r.URL.Path) {
			return "", false
		}
		return rctx.RoutePattern(), true
	}
}
