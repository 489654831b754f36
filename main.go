package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	box "github.com/Delta456/box-cli-maker/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jessevdk/go-flags"
	"github.com/koblas/swbrowse/pkg/archive"
	"github.com/koblas/swbrowse/pkg/config"
	"github.com/koblas/swbrowse/pkg/handler"
	"github.com/koblas/swbrowse/pkg/logging"
	"github.com/koblas/swbrowse/pkg/metrics"
	"go.uber.org/zap"
)

const version = "0.1.0"

type options struct {
	Version       bool          `short:"v" long:"version" description:"Display the current version"`
	Listen        []string      `short:"l" long:"listen" description:"Port or host:port to listen on, may be given more than once" default:"5000"`
	MetricsListen string        `long:"metrics-listen" description:"Port or host:port for the Prometheus metrics endpoint, empty to disable"`
	Debug         bool          `short:"d" long:"debug" description:"Shows debugging information"`
	NoCompression bool          `short:"u" long:"no-compression" description:"Disable compression of listings"`
	Config        string        `short:"c" long:"config" description:"Path to the configuration file" default:"swbrowse.yaml"`
	SweepInterval time.Duration `long:"sweep-interval" description:"How often expired archives are removed" default:"1h"`
}

func listenAddress(value string) string {
	if strings.Contains(value, ":") {
		return value
	}
	return ":" + value
}

func newRouter(h handler.HandlerState, logger *zap.Logger, compress bool) chi.Router {
	router := chi.NewRouter()
	router.Use(logging.Middleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(metrics.Middleware)
	if compress {
		router.Use(middleware.Compress(5))
	}

	h.AttachRoutes(router)
	return router
}

// sweepExpired removes archives nobody asked for within the lifetime, once at
// start and then every interval until ctx is done.
func sweepExpired(ctx context.Context, cfg *config.Config, interval time.Duration, logger *zap.Logger) {
	sweep := func() {
		removed, err := archive.DeleteExpiredArchives(cfg.CacheRoot, cfg.ArchiveLifetime, time.Now(), logger)
		if err != nil {
			logger.Error("expired archive sweep failed", zap.Error(err))
			return
		}
		if removed > 0 {
			logger.Info("removed expired archives", zap.Int("count", removed))
		}
	}

	sweep()
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

func main() {
	var opts options

	args, err := flags.Parse(&opts)
	if err != nil {
		if !flags.WroteHelp(err) {
			os.Exit(1)
		}
		os.Exit(0)
	}

	if opts.Version {
		fmt.Printf("%s\n", version)
		os.Exit(0)
	}

	logger, err := logging.NewLogger(opts.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	configPath := opts.Config
	if len(args) != 0 {
		configPath = args[0]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("could not load configuration", zap.String("path", configPath), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := handler.NewHandler(cfg, logger)
	router := newRouter(h, logger, !opts.NoCompression)

	servers := []*http.Server{}
	lines := []string{}
	for _, item := range opts.Listen {
		servers = append(servers, &http.Server{
			Addr:              listenAddress(item),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		})
		lines = append(lines, fmt.Sprintf("- Local:       http://localhost%s", listenAddress(item)))
	}
	if opts.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		servers = append(servers, &http.Server{
			Addr:              listenAddress(opts.MetricsListen),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
		lines = append(lines, fmt.Sprintf("- Metrics:     http://localhost%s/metrics", listenAddress(opts.MetricsListen)))
	}
	lines = append(lines, fmt.Sprintf("- Root:        %s", cfg.Root))

	errs := make(chan error, len(servers))
	for _, server := range servers {
		go func(server *http.Server) {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errs <- fmt.Errorf("%s: %w", server.Addr, err)
			}
		}(server)
	}
	go sweepExpired(ctx, cfg, opts.SweepInterval, logger)

	bx := box.New(box.Config{Px: 4, Py: 1})
	bx.Println("Serving!", strings.Join(lines, "\n"))

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errs:
		logger.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, server := range servers {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.String("addr", server.Addr), zap.Error(err))
		}
	}
	h.Wait()
}
