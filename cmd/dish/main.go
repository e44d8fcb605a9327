package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/bloomreach/shopify-to-bloomreach/internal/analytics"
	"github.com/bloomreach/shopify-to-bloomreach/internal/api"
	"github.com/bloomreach/shopify-to-bloomreach/internal/circuitbreaker"
	"github.com/bloomreach/shopify-to-bloomreach/internal/config"
	"github.com/bloomreach/shopify-to-bloomreach/internal/docker"
	"github.com/bloomreach/shopify-to-bloomreach/internal/metrics"
	"github.com/bloomreach/shopify-to-bloomreach/internal/reconciler"
	"github.com/bloomreach/shopify-to-bloomreach/internal/runner"
	"github.com/bloomreach/shopify-to-bloomreach/internal/scheduler"
	"github.com/bloomreach/shopify-to-bloomreach/internal/tracker"
	"github.com/bloomreach/shopify-to-bloomreach/internal/transport/channel"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`dish - Shopify to Bloomreach sync orchestrator

Usage:
  dish <command>

Commands:
  serve      Start the API, scheduler and reconciler
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  HTTP_ADDR                  HTTP server address (default: ":8080")
  DISH_ACCESS_TOKEN          Shared API secret; empty disables auth
  TRACKER_PATH               Delta run-state file (default: "delta-jobs.json")
  REDIS_ADDR                 Redis address for analytics (optional)

  DOCKER_IMAGE               Worker image for sync runs
  DOCKER_HOST_PATH           Host directory bound into each container (required)
  DOCKER_EXPORT_PATH         Mount point inside the container (default: "/export")
  DOCKER_MEMORY              Container memory limit (default: "4GB")
  DOCKER_LOG_TIMEOUT         Budget for log retrieval (default: "30s")
  DISPATCH_MAX_ATTEMPTS      Launch attempts including the first (default: "3")
  DISPATCH_RETRY_INTERVAL    First retry backoff delay (default: "2s")
  MARKET_CACHE_ENABLED       Let workers reuse cached market data (default: "false")
  MARKET_CACHE_MAX_AGE_HOURS Market cache expiry (default: "24")

  HTTP_SHUTDOWN_TIMEOUT      Graceful HTTP shutdown timeout (default: "10s")

  METRICS_ENABLED            Enable Prometheus metrics (default: "false")
  METRICS_PATH               Metrics endpoint path (default: "/metrics")

  RECONCILE_ENABLED          Enable container cleanup (default: "true")
  RECONCILE_INTERVAL         Cleanup cycle interval (default: "5m")
  CONTAINER_RETENTION        How long exited containers are kept (default: "1h")

  EVENTBUS_BUFFER_SIZE       Run event buffer size (default: "100")
  CIRCUIT_BREAKER_THRESHOLD  Failures before dispatch pauses; 0 disables (default: "5")
  CIRCUIT_BREAKER_COOLDOWN   Pause length once open (default: "2m")`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	dockerClient, err := docker.NewClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create docker client: %v\n", err)
		return exitRuntimeError
	}
	defer dockerClient.Close()

	store := tracker.New(cfg.TrackerPath)

	disp, err := docker.NewDispatcher(dockerClient, docker.Properties{
		Image:                  cfg.DockerImage,
		HostPath:               cfg.DockerHostPath,
		ExportPath:             cfg.DockerExportPath,
		Memory:                 cfg.DockerMemory,
		LogTimeout:             cfg.DockerLogTimeout,
		MaxAttempts:            uint(cfg.DispatchMaxAttempts),
		RetryInitialInterval:   cfg.DispatchRetryInterval,
		MarketCacheEnabled:     cfg.MarketCacheEnabled,
		MarketCacheMaxAgeHours: cfg.MarketCacheMaxAgeHours,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create dispatcher: %v\n", err)
		return exitInvalidConfig
	}

	// Initialize metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("dish: metrics enabled (path=%s)", cfg.MetricsPath)
	} else {
		log.Println("dish: METRICS_ENABLED not set; metrics disabled")
	}
	if metricsSink != nil {
		disp = disp.WithMetrics(metricsSink)
	}

	// Create event bus with optional metrics
	var busOpts []channel.Option
	if metricsSink != nil {
		busOpts = append(busOpts, channel.WithMetrics(metricsSink))
	}
	bus := channel.NewEventBus(cfg.EventBusBufferSize, busOpts...)

	run := runner.New(store, disp).WithEvents(bus)
	if metricsSink != nil {
		run = run.WithMetrics(metricsSink)
	}
	if cfg.CircuitBreakerThreshold > 0 {
		run = run.WithBreaker(circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown))
		log.Printf("dish: circuit breaker enabled (threshold=%d, cooldown=%s)",
			cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	}

	tickCtx, cancelTicks := context.WithCancel(context.Background())
	registry := scheduler.New(run).WithStateReader(store).WithContext(tickCtx)
	registry.Start()

	// Wire analytics if Redis is configured
	var recorderWg sync.WaitGroup
	var cancelRecorder context.CancelFunc
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		recorder := analytics.NewRecorder(analytics.NewRedisSink(redisClient, analytics.DefaultConfig()))

		var recorderCtx context.Context
		recorderCtx, cancelRecorder = context.WithCancel(context.Background())
		recorderWg.Add(1)
		go func() {
			defer recorderWg.Done()
			recorder.Run(recorderCtx, bus.Channel())
		}()
		log.Printf("dish: analytics enabled (redis=%s)", cfg.RedisAddr)
	} else {
		log.Println("dish: REDIS_ADDR not set; analytics disabled")
	}

	// Start reconciler if enabled
	var reconcilerWg sync.WaitGroup
	var cancelReconciler context.CancelFunc
	if cfg.ReconcileEnabled {
		recon := reconciler.New(
			reconciler.Config{
				Interval:  cfg.ReconcileInterval,
				Retention: cfg.ContainerRetention,
			},
			disp,
			store,
		)
		if metricsSink != nil {
			recon = recon.WithMetrics(metricsSink)
		}

		var reconcilerCtx context.Context
		reconcilerCtx, cancelReconciler = context.WithCancel(context.Background())
		reconcilerWg.Add(1)
		go func() {
			defer reconcilerWg.Done()
			recon.Run(reconcilerCtx)
		}()
		log.Printf("dish: reconciler enabled (interval=%s, retention=%s)",
			cfg.ReconcileInterval, cfg.ContainerRetention)
	} else {
		log.Println("dish: RECONCILE_ENABLED=false; reconciler disabled")
	}

	apiHandler := api.NewHandler(disp, registry).WithHealthChecker(disp)

	mux := http.NewServeMux()
	mux.Handle("/", api.RequireToken(cfg.AccessToken, apiHandler))
	if cfg.MetricsEnabled {
		mux.Handle(cfg.MetricsPath, promhttp.Handler())
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("dish: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("dish: http server error: %v", err)
		}
	}()

	log.Printf("dish: started (http=%s, tracker=%s, image=%s)",
		cfg.HTTPAddr, cfg.TrackerPath, cfg.DockerImage)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("dish: received signal %v, shutting down", received)

	// Phase 1: Stop the scheduler so no new ticks fire, then abort
	// anything still in flight.
	log.Println("dish: stopping scheduler...")
	registry.Stop()
	cancelTicks()
	log.Println("dish: scheduler stopped")

	// Phase 2: Stop reconciler
	if cancelReconciler != nil {
		log.Println("dish: stopping reconciler...")
		cancelReconciler()
		reconcilerWg.Wait()
		log.Println("dish: reconciler stopped")
	}

	// Phase 3: Stop analytics recorder
	if cancelRecorder != nil {
		log.Println("dish: stopping analytics recorder...")
		cancelRecorder()
		recorderWg.Wait()
		log.Println("dish: analytics recorder stopped")
	}

	// Phase 4: Stop HTTP server with graceful shutdown
	log.Println("dish: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("dish: http server shutdown error: %v", err)
	}
	log.Println("dish: http server stopped")

	log.Println("dish: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("dish version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
