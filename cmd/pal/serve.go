package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/fxnlabs/pal/internal/config"
	"github.com/fxnlabs/pal/internal/hal"
	"github.com/fxnlabs/pal/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func serveCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Hold the device open and serve /metrics and /healthz",
		Action: func(c *cli.Context) error {
			app := fx.New(serveOptions(e.cfg, e.log))
			if err := app.Err(); err != nil {
				return err
			}

			startCtx, cancel := context.WithTimeout(c.Context, app.StartTimeout())
			defer cancel()
			if err := app.Start(startCtx); err != nil {
				return err
			}

			sig := <-app.Wait()
			e.log.Info("shutting down", zap.Any("signal", sig.Signal))

			stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
			defer cancel()
			return app.Stop(stopCtx)
		},
	}
}

func serveOptions(cfg *config.Config, log *zap.Logger) fx.Option {
	return fx.Options(
		fx.Supply(cfg, log),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(newServeDevice, newMetricsServer),
		fx.Invoke(func(*http.Server) {}),
	)
}

func newServeDevice(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*hal.Device, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	dev := hal.NewDevice(opts, log)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return dev.Open()
		},
		OnStop: func(context.Context) error {
			return dev.Close()
		},
	})
	return dev, nil
}

func newMetricsServer(lc fx.Lifecycle, cfg *config.Config, dev *hal.Device, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Middleware(promhttp.Handler(), "/metrics"))
	mux.Handle("/healthz", metrics.Middleware(healthHandler(dev), "/healthz"))

	srv := &http.Server{
		Addr:              cfg.Metrics.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	var g errgroup.Group
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("Starting server on", zap.String("address", ln.Addr().String()))
			g.Go(func() error {
				if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil {
				return err
			}
			return g.Wait()
		},
	})
	return srv
}

type healthResponse struct {
	Status string          `json:"status"`
	Device *hal.DeviceInfo `json:"device,omitempty"`
}

func healthHandler(dev *hal.Device) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !dev.IsOpen() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(healthResponse{Status: "device closed"})
			return
		}
		info := dev.Info()
		_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok", Device: &info})
	})
}
