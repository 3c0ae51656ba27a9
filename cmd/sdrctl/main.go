package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kmorris/sdrctl/internal/client"
	"github.com/kmorris/sdrctl/internal/config"
	"github.com/kmorris/sdrctl/internal/logging"
	"github.com/kmorris/sdrctl/internal/observability"
	"github.com/kmorris/sdrctl/internal/server"
	"github.com/kmorris/sdrctl/internal/transport"
)

func main() {
	configPath := flag.String("config", "receiver.toml", "receiver config path")
	flag.Parse()

	logging.ConfigureRuntime()
	logger := observability.Component("sdrctl")

	if err := run(*configPath, logger); err != nil {
		fmt.Fprintf(os.Stderr, "sdrctl: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, logger zerolog.Logger) error {
	cfg, err := config.LoadReceiverConfig(configPath)
	if err != nil {
		return err
	}
	rt, err := loadRuntimeConfig(configPath)
	if err != nil {
		return err
	}

	tcpCfg := transport.DefaultTCPConfig(cfg.DeviceAddr)
	tcpCfg.ConnectTimeout = rt.TCP.ConnectTimeout
	tcpCfg.WriteTimeout = rt.TCP.WriteTimeout
	tcpCfg.MaxConnectAttempts = rt.TCP.MaxConnectAttempts
	ctl := transport.NewTCPControl(tcpCfg)
	data := transport.NewUDPData(transport.DefaultUDPConfig(cfg.DataListenAddr))

	clientCfg := rt.Client
	clientCfg.Channel = cfg.Channel
	clientCfg.SampleBitWidth = cfg.SampleBitWidth
	cl, err := client.New(ctl, data, clientCfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cl.Connect(ctx); err != nil {
		return err
	}
	defer cl.Disconnect()

	if cfg.FrequencyHz > 0 {
		ack, err := cl.SetFrequency(ctx, cfg.FrequencyHz, cfg.Channel)
		if err != nil {
			return err
		}
		if ack != nil {
			logger.Info().Uint64("frequency_hz", cfg.FrequencyHz).Msg("tuned")
		}
	}
	if err := cl.StartIQ(ctx); err != nil {
		return err
	}

	if cfg.StatusAddr != "" {
		srv := server.New(server.Config{ListenAddr: cfg.StatusAddr, CorsOrigins: cfg.CorsOrigins}, cl)
		go func() {
			if err := srv.Run(); err != nil {
				logger.Error().Err(err).Msg("status server stopped")
			}
		}()
	}

	go consumeSamples(ctx, cl, logger)

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	if err := cl.StopIQ(); err != nil {
		logger.Warn().Err(err).Msg("stop iq")
	}
	return nil
}

func consumeSamples(ctx context.Context, cl *client.Client, logger zerolog.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var blocks, samples uint64
	for {
		select {
		case <-ctx.Done():
			return
		case block, ok := <-cl.Samples():
			if !ok {
				return
			}
			blocks++
			samples += uint64(len(block))
		case <-ticker.C:
			status := cl.Status()
			logger.Info().
				Uint64("blocks", blocks).
				Uint64("samples", samples).
				Uint64("dropped", status.BlocksDropped).
				Bool("streaming", status.Streaming).
				Msg("iq stream")
		}
	}
}
