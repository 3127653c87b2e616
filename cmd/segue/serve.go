package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/satindergrewal/segue/internal/assets"
	"github.com/satindergrewal/segue/internal/audio"
	"github.com/satindergrewal/segue/internal/config"
	"github.com/satindergrewal/segue/internal/engine"
	"github.com/satindergrewal/segue/internal/graph"
	"github.com/satindergrewal/segue/internal/logger"
	"github.com/satindergrewal/segue/internal/project"
	"github.com/satindergrewal/segue/internal/reporter"
	"github.com/satindergrewal/segue/internal/server"
	"github.com/satindergrewal/segue/internal/situation"
	"github.com/satindergrewal/segue/internal/stream"
)

var serveCmd = &cobra.Command{
	Use:   "serve [project]",
	Short: "Run the editor backend with live preview playback",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			cfg.ProjectPath = args[0]
		}
		if cmd.Flags().Changed("port") {
			cfg.Port, _ = cmd.Flags().GetInt("port")
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return serve(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().Int("port", 8080, "HTTP port (overrides SEGUE_PORT)")
}

// assetOpener resolves sourcePaths: local files relative to the asset
// root, s3:// paths through MinIO when configured.
func assetOpener(ctx context.Context, cfg config.Config) *assets.Router {
	root := cfg.AssetRoot
	if root == "" {
		root = filepath.Dir(cfg.ProjectPath)
	}
	router := assets.NewRouter(assets.FileFetcher{Root: root})
	if cfg.MinioEndpoint == "" {
		return router
	}
	mf, err := assets.NewMinioFetcher(ctx, assets.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		UseSSL:    cfg.MinioUseSSL,
		Region:    cfg.MinioRegion,
	})
	if err != nil {
		logger.Warn("s3 asset paths disabled", logger.Err(err))
		return router
	}
	router.Handle("s3", mf)
	return router
}

// syncDecodes requests assets that are new or moved. Failed decodes are
// left alone until the user retries them.
func syncDecodes(g *graph.Graph, ds *audio.DecodeService) {
	for _, a := range g.Assets() {
		st := ds.Status(a.ID)
		if st.State == audio.Absent || st.Path != a.SourcePath {
			ds.Request(a.ID, a.SourcePath)
		}
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	ws := project.NewWorkspace(cfg.ProjectPath)
	if res := ws.Open(); !res.OK {
		return fmt.Errorf("open %s: %s", cfg.ProjectPath, res.Reason)
	}

	ds := audio.NewDecodeService(assetOpener(ctx, cfg), cfg.FFmpegPath)
	defer ds.Close()
	ds.OnReady(ws.SetAssetLength)
	ws.OnChange(func(g *graph.Graph) { syncDecodes(g, ds) })
	syncDecodes(ws.Graph(), ds)

	device := audio.NewDevice()
	go device.Run(ctx)
	monitor := stream.NewMonitor()
	go monitor.Run(ctx, device.Frames())

	sit := situation.NewManual("")
	if cfg.MQTTURL != "" {
		feed := situation.NewMQTTFeed(cfg.MQTTURL, cfg.MQTTClientID, cfg.MQTTTopic, sit)
		go func() {
			if err := feed.Start(); err != nil {
				logger.Warn("mqtt situation feed unavailable, manual selection only", logger.String("broker", cfg.MQTTURL), logger.Err(err))
			}
		}()
		defer feed.Stop()
	}
	sit.OnChange(func(name string) {
		logger.Info("situation changed", logger.String("situation", name))
	})

	eng := engine.New(device, ds, sit)
	go eng.Run(ctx, cfg.TickInterval)
	defer eng.Stop()

	rep := reporter.New(eng.Clock(), cfg.ReportInterval)
	rep.Start(ctx)
	defer rep.Stop()

	offer := stream.NewWebRTCHandler(monitor, cfg.StreamBitrate)
	defer offer.Close()

	srv := server.New(server.Deps{
		Workspace: ws,
		Engine:    eng,
		Reporter:  rep,
		Situation: sit,
		Decoder:   ds,
		Stream:    stream.NewMP3Handler(monitor, cfg.FFmpegPath, cfg.StreamBitrate),
		Offer:     offer,
	})
	go srv.PumpEvents(ctx, eng.Events())

	if cfg.Watch {
		go func() {
			if err := ws.Watch(ctx); err != nil {
				logger.Warn("project watcher stopped", logger.Err(err))
			}
		}()
	}

	return srv.ListenAndServe(ctx, cfg.Port)
}
