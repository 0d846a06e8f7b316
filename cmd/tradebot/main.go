// Command tradebot runs the trading engine against the live market feed, or
// replays a recorded tick file deterministically on a virtual clock.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/ghwfluffy/coinbase-tradebot/internal/backtest"
	"github.com/ghwfluffy/coinbase-tradebot/internal/clock"
	"github.com/ghwfluffy/coinbase-tradebot/internal/config"
	"github.com/ghwfluffy/coinbase-tradebot/internal/feed"
	"github.com/ghwfluffy/coinbase-tradebot/internal/obs"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:           "tradebot",
		Short:         "Autonomous spot trading engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	root.AddCommand(runCmd(), replayCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Trade against the live market feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			return runLive(cfg)
		},
	}
}

func runLive(cfg *config.Config) error {
	if cfg.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profiling.AppName,
			ServerAddress:   cfg.Profiling.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			logs.Warnf("profiler: %+v", err)
		} else {
			defer profiler.Stop()
		}
	}

	s, err := newSession(cfg, clock.Real{})
	if err != nil {
		return err
	}
	defer s.close()
	s.queue.Start(4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			logs.Infof("metrics listening on %s", cfg.Metrics.Listen)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logs.Errorf("metrics server: %+v", err)
			}
		}()
		go func() {
			ticker := time.NewTicker(5 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					obs.SetQueueDepth(s.queue.Depth())
				}
			}
		}()
	}

	priceFeed := feed.NewPriceFeed(feed.PriceFeedOptions{
		URL:            cfg.Feed.URL,
		ProductID:      cfg.Feed.ProductID,
		ReconnectDelay: time.Duration(cfg.Feed.ReconnectDelaySeconds) * time.Second,
	}, s.reg)
	go priceFeed.Run(ctx)
	go s.sync.Run(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	logs.Info("tradebot running")
	<-sig
	logs.Info("shutting down")

	cancel()
	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logs.Warnf("metrics shutdown: %+v", err)
		}
	}
	return nil
}

func replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <ticks.jsonl>",
		Short: "Replay a recorded tick file on a virtual clock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			return runReplay(cfg, args[0])
		},
	}
}

func runReplay(cfg *config.Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	ticks, err := backtest.ReadTicks(f)
	if err != nil {
		return err
	}
	if len(ticks) == 0 {
		return errors.New("empty tick file")
	}

	clk := clock.NewVirtual(ticks[0].TimeMicros)
	s, err := newSession(cfg, clk)
	if err != nil {
		return err
	}
	defer s.close()
	// One worker keeps replays deterministic.
	s.queue.Start(1)

	driver := backtest.NewDriver(clk, s.queue, s.paper, s.sync, s.reg)
	result, err := driver.Run(ticks)
	if err != nil {
		return err
	}
	fmt.Printf("replayed %d ticks, realized profit %s\n",
		result.Ticks, result.ProfitCents.FormatUSD())
	return nil
}
