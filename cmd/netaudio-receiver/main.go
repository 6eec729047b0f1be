// Command netaudio-receiver binds a UDP socket, demultiplexes incoming
// packets by track id, and plays each decoded track on a local output
// device.
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
	if *listen != "" {
		cfg.Network.ListenAddr = *listen
	}
	if *statusAddr != "" {
		cfg.StatusAddr = *statusAddr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	registry := track.NewReceiverRegistry(logger, cfg.Jitter.Capacity, cfg.Jitter.MinDelay)

	for _, t := range cfg.Tracks {
		if t.TrackID == nil {
			continue
		}
		if _, err := registry.CreateReceiver(t); err != nil {
			logger.Error("track creation failed", "track", t.Name, "err", err)
			os.Exit(1)
		}
	}

	receiver, err := transport.NewReceiver(cfg.Network.ListenAddr)
	if err != nil {
		logger.Error("socket bind failed", "err", err)
		os.Exit(1)
	}
	go receiver.Loop()
	go registry.Demux(receiver.Packets())
	logger.Info("receiver started", "listen", cfg.Network.ListenAddr)

	go func() {
		tick := time.NewTicker(5 * time.Second)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				for _, p := range registry.Receivers() {
					st := p.StatsSnapshot()
					logger.Info("track stats",
						"track_id", st.TrackID,
						"received", st.Jitter.Received,
						"lost", st.Jitter.Lost,
						"late", st.Jitter.Late,
						"loss_rate", st.Jitter.LossRate(),
						"jitter_level", st.Jitter.Level,
						"ring_underrun", st.RingUnderrun,
						"invalid_packets", receiver.InvalidPackets())
				}
			}
		}
	}()

	statusServer := status.NewServer(cfg.StatusAddr, registry, logger)
	go func() {
		if err := statusServer.ListenAndServe(); err != nil {
			logger.Warn("status server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	statusServer.Close()
	receiver.Stop()
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
