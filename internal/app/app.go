package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/comanda/internal/domain/auth"
	"github.com/xenking/comanda/internal/domain/order"
	"github.com/xenking/comanda/internal/domain/receipt"
	"github.com/xenking/comanda/internal/domain/report"
	"github.com/xenking/comanda/internal/domain/settlement"
	"github.com/xenking/comanda/internal/handler"
	"github.com/xenking/comanda/internal/kds"
	"github.com/xenking/comanda/internal/outbox"
	"github.com/xenking/comanda/pkg/health"
	"github.com/xenking/comanda/pkg/httpmiddleware"
)

const serviceName = "comanda"

// Run creates all dependencies, starts the HTTP server and the outbox
// dispatcher, and handles graceful shutdown. It is the single wiring point
// for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.String("storage", cfg.Storage))

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	st, err := openStorage(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	healthSvc := health.New()
	healthSvc.AddReadinessCheck(cfg.Storage, 5*time.Second, health.PingCheck(st.ping))
	healthSvc.AddReadinessCheck("outbox", 5*time.Second, health.BacklogCheck(cfg.Outbox.BacklogLimit, st.outbox.Pending))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Event sinks. The kitchen hub is always on; brokers are optional.
	hub := kds.NewHub(lg.Named("kds"), cfg.CORS.Origins)
	defer hub.Close()
	sinks := []outbox.Sink{hub}

	if cfg.AMQP.URL != "" {
		amqpSink, err := outbox.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return errors.Wrap(err, "amqp")
		}
		defer func() { _ = amqpSink.Close() }()
		healthSvc.AddReadinessCheck("amqp", time.Second, health.PingCheck(amqpSink.Ping))
		sinks = append(sinks, amqpSink)
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		sinks = append(sinks, outbox.NewRedisSink(rdb, cfg.Redis.ChannelPrefix))
	}

	dispatcher := outbox.NewDispatcher(st.coord, st.outbox, sinks, outbox.Config{
		Interval:    cfg.Outbox.Interval,
		BatchSize:   cfg.Outbox.BatchSize,
		Lease:       cfg.Outbox.Lease,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	}, lg.Named("outbox"))

	// Domain services.
	orderService := order.NewService(st.coord, st.orders, st.outbox, st.catalog, order.WithLocation(loc))
	receiptService := receipt.NewService(st.coord, st.sales, st.orders, st.receipts, st.outbox, loc)
	settlementService := settlement.NewService(st.coord, st.orders, st.sales, st.outbox, receiptService,
		settlement.WithLocation(loc),
		settlement.WithTelemetry(m.TracerProvider(), m.MeterProvider()),
	)
	reportService := report.NewService(st.reports, loc)

	pepper := []byte(cfg.APIKeyPepper)
	if cfg.Auth.BootstrapKey != "" {
		if err := st.register(ctx, "bootstrap", auth.HashKey(pepper, cfg.Auth.BootstrapKey), nil); err != nil {
			return errors.Wrap(err, "register bootstrap terminal")
		}
	}
	if cfg.Auth.Disabled {
		lg.Warn("Terminal authentication is disabled")
	}

	// HTTP handlers.
	h := handler.New(handler.Deps{
		Orders:   orderService,
		Settler:  settlementService,
		Sales:    st.sales,
		Receipts: receiptService,
		Reports:  reportService,
		Auth:     handler.NewAuthenticator(st.terminals, pepper, cfg.Auth.Disabled),
		Location: loc,
	})

	mux := http.NewServeMux()
	healthSvc.Register(mux)
	h.Register(mux, hub)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	common := []httpmiddleware.Middleware{
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
	}
	api := httpmiddleware.Wrap(mux, append(common,
		httpmiddleware.Instrument(serviceName, routeFinder, m.TracerProvider(), m.MeterProvider()),
		httpmiddleware.LogRequests(routeFinder),
		httpmiddleware.Labeler(routeFinder),
	)...)
	// Upgrades need the raw connection, so the feed skips the wrapping
	// writers of the instrumentation chain.
	root := http.NewServeMux()
	root.Handle("/ws/", httpmiddleware.Wrap(mux, common...))
	root.Handle("/", api)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           root,
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		hub.Close()
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}
