package dyapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgeflare/dyapi/pkg/api"
	"github.com/edgeflare/dyapi/pkg/config"
	"github.com/edgeflare/dyapi/pkg/endpoint"
	"github.com/edgeflare/dyapi/pkg/httputil"
	mw "github.com/edgeflare/dyapi/pkg/httputil/middleware"
	"github.com/edgeflare/dyapi/pkg/metrics"
	pg "github.com/edgeflare/dyapi/pkg/pgx"
	"github.com/edgeflare/dyapi/pkg/storage/pgtable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the CRUD API server",
	Long:  `Connects to the storage backend, creates missing tables and serves the generated routes`,
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("server.listenAddr", "l", "", "API server listen address")
	f.String("server.baseURL", "", "public base URL advertised in the OpenAPI document")
	f.String("server.tlsCertFile", "", "TLS certificate file")
	f.String("server.tlsKeyFile", "", "TLS key file")
	f.StringP("storage.pg.connString", "c", "", "PostgreSQL connection string")
	f.Bool("storage.createTables", false, "create missing entity tables on startup")
	f.Bool("metrics.enabled", false, "serve Prometheus metrics")
	f.String("metrics.addr", "", "Prometheus metrics listen address")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	crudMetrics := metrics.NewCRUD(reg)

	var conn pg.Conn
	if cfg.Storage.Backend == config.BackendTable {
		pool, err := pg.Connect(ctx, pg.PoolConfig{
			ConnString: cfg.Storage.PG.ConnString,
			MaxElapsed: cfg.Storage.PG.ConnectTimeout,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		defer pool.Close()
		conn = pool
	}

	manager := storageManager(conn)
	tree, err := api.New(cfg.Entities, manager,
		endpoint.WithLogger(logger),
		endpoint.WithMetrics(crudMetrics),
		endpoint.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	)
	if err != nil {
		return err
	}
	if tm, ok := manager.(*pgtable.Manager); ok && cfg.Storage.CreateTables {
		if err := tm.Metadata().CreateAll(ctx, conn); err != nil {
			return fmt.Errorf("creating tables: %w", err)
		}
		logger.Info("tables ready", zap.Int("count", len(tm.Metadata().Tables())), zap.String("schema", cfg.Storage.Schema))
	}

	routerOpts := []httputil.RouterOptions{
		httputil.WithLogger(logger),
		httputil.WithServerOptions(func(s *http.Server) { s.ReadHeaderTimeout = 5 * time.Second }),
	}
	if cfg.Server.TLSCertFile != "" && cfg.Server.TLSKeyFile != "" {
		routerOpts = append(routerOpts, httputil.WithTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile))
	}
	r := httputil.NewRouter(routerOpts...)

	cors := mw.DefaultCORSOptions()
	cors.AllowedOrigins = cfg.Server.CORS.AllowedOrigins
	cors.AllowCredentials = cfg.Server.CORS.AllowCredentials
	r.Use(mw.RequestID, mw.CORSWithOptions(cors))
	if logLevel != "none" {
		r.Use(mw.LoggerWithOptions(&mw.LoggerOptions{Logger: logger}))
	}

	info := api.Info{Title: "dyapi", Version: config.Version, BaseURL: cfg.Server.BaseURL}
	r.Handle("GET /openapi.json", tree.OpenAPIHandler(info))
	r.Handle("GET /openapi.yaml", tree.OpenAPIHandler(info))
	r.Handle("GET /healthz", healthHandler(conn))
	tree.Mount(r)
	logger.Debug("routes mounted", zap.Strings("routes", r.Routes()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.ListenAndServe(cfg.Server.ListenAddr); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return metrics.ServePrometheus(gctx, &metrics.PromServerOpts{
				Addr:     cfg.Metrics.Addr,
				Path:     cfg.Metrics.Path,
				Gatherer: reg,
				Logger:   logger,
			})
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return r.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server gracefully stopped")
	return nil
}
