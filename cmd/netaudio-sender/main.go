// Command netaudio-sender captures one or more local audio devices,
// encodes each as an independent track, and streams them to a receiver
// over UDP.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	flag "github.com/spf13/pflag"

	"netaudio/internal/config"
	"netaudio/internal/status"
	"netaudio/internal/track"
	"netaudio/internal/transport"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML track config; a single default track is used if omitted")
		target     = flag.String("target", "", "receiver address (overrides network.target_addr)")
		listen     = flag.String("listen", "", "local bind address (overrides network.listen_addr)")
		statusAddr = flag.String("status-addr", "", "status HTTP bind address (overrides status_addr)")
		logLevel   = flag.String("log-level", "info", "log level: debug|info|warn|error")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("config error", "err", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *target != "" {
		cfg.Network.TargetAddr = *target
	}
	if *listen != "" {
		cfg.Network.ListenAddr = *listen
	}
	if *statusAddr != "" {
		cfg.StatusAddr = *statusAddr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	sender, err := transport.NewSender(cfg.Network.ListenAddr, cfg.Network.TargetAddr)
	if err != nil {
		logger.Error("socket bind failed", "err", err)
		os.Exit(1)
	}
	defer sender.Close()

	registry := track.NewSenderRegistry(logger)
	for _, t := range cfg.Tracks {
		p, err := registry.CreateSender(t, sender)
		if err != nil {
			logger.Error("track creation failed", "track", t.Name, "err", err)
			os.Exit(1)
		}
		if err := p.Start(); err != nil {
			logger.Error("track start failed", "track", t.Name, "err", err)
			os.Exit(1)
		}
	}
	logger.Info("sender started", "target", cfg.Network.TargetAddr, "tracks", len(cfg.Tracks))

	statusServer := status.NewServer(cfg.StatusAddr, registry, logger)
	go func() {
		if err := statusServer.ListenAndServe(); err != nil {
			logger.Warn("status server stopped", "err", err)
		}
	}()

	go func() {
		tick := time.NewTicker(5 * time.Second)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				for _, p := range registry.Senders() {
					st := p.StatsSnapshot()
					logger.Info("track stats",
						"track_id", st.TrackID,
						"sent", st.PacketsSent,
						"dropped", st.PacketsDropped,
						"frames_encoded", st.Encoder.FramesEncoded,
						"avg_frame_bytes", st.Encoder.AverageFrameBytes,
						"ring_overflow", st.RingOverflow)
				}
			}
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	statusServer.Close()
	registry.StopAll()

	logger.Info("shutdown complete")
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
