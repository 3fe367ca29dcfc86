// Command poeserver hosts one or more Poe bots declared in a YAML manifest,
// syncing their settings at boot and whenever the manifest changes.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	poe "github.com/poe-platform/fastapi-poe"
	"github.com/poe-platform/fastapi-poe/pkg/safego"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	port         int
	manifestPath string
	configPath   string
)

func main() {
	root := &cobra.Command{
		Use:   "poeserver",
		Short: "Host one or more Poe bots from a YAML manifest",
		RunE:  run,
	}
	root.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config default)")
	root.Flags().StringVar(&manifestPath, "manifest", "", "path to bots.yaml (overrides config default)")
	root.Flags().StringVar(&configPath, "config", "", "optional poeserver config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := poe.LoadServerConfig(configPath)
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Port = port
	}
	if manifestPath != "" {
		cfg.ManifestPath = manifestPath
	}

	logger, err := poe.NewLogger(poe.LogConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}
	defer logger.Sync()

	manifest, err := poe.LoadManifest(cfg.ManifestPath)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	hosts := map[string]*poe.BotHost{}
	syncer := poe.NewSettingsSyncer(cfg.PlatformURL, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registerBot := func(entry poe.BotManifestEntry) {
		handler := poe.HandlerFunc(func(ctx context.Context, req poe.QueryRequest) (<-chan poe.BotEvent, error) {
			ch := make(chan poe.BotEvent, 1)
			go func() {
				defer close(ch)
				ch <- poe.BotEvent{Partial: &poe.PartialResponse{Text: "this bot has not been implemented yet"}}
			}()
			return ch, nil
		})
		host := poe.NewBotHost(entry.Name, handler, entry.AccessKey, logger)
		hosts[entry.Name] = host
		router.Any("/"+entry.Name+"/*any", gin.WrapH(http.StripPrefix("/"+entry.Name, host.Router())))

		if err := syncer.Sync(ctx, entry.Name, entry.AccessKey, handler); err != nil {
			logger.Warn("initial settings sync failed", zap.String("bot", entry.Name), zap.Error(err))
		}
	}

	for _, entry := range manifest.Bots {
		registerBot(entry)
	}

	watcher, err := poe.NewManifestWatcher(cfg.ManifestPath, logger)
	if err != nil {
		logger.Warn("manifest watch disabled", zap.Error(err))
	} else {
		safego.Go(logger, "manifest-watch", func() {
			watcher.Watch(ctx, func(changed []string, next poe.BotManifest) {
				for _, name := range changed {
					for _, entry := range next.Bots {
						if entry.Name != name {
							continue
						}
						if host, hosted := hosts[entry.Name]; hosted {
							if err := syncer.Sync(ctx, entry.Name, entry.AccessKey, host.Handler); err != nil {
								logger.Warn("settings re-sync failed", zap.String("bot", entry.Name), zap.Error(err))
							}
							continue
						}
						registerBot(entry)
					}
				}
			})
		})
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: router,
	}

	safego.Go(logger, "http-server", func() {
		logger.Info("poeserver listening", zap.String("addr", srv.Addr), zap.Int("bots", len(hosts)))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
