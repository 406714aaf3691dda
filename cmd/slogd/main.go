package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/abadid/SLOG/internal/config"
	"github.com/abadid/SLOG/internal/logutil"
	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML configuration file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logFile := flag.String("log-file", "", "log file path, empty for stderr")
	metricsAddr := flag.String("metrics-addr", ":9090", "address to serve /metrics on")
	flag.Parse()

	if err := logutil.InitLogger(*logLevel, *logFile); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal("failed to load configuration", zap.Error(err))
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		log.Fatal("default configuration is invalid", zap.Error(err))
	}

	log.Info("starting slogd",
		zap.Uint32("machine_id", cfg.LocalMachineId()),
		zap.Uint32("local_replica", cfg.LocalReplica),
		zap.Uint32("local_partition", cfg.LocalPartition),
		zap.Uint32("num_workers", cfg.NumWorkers),
		zap.String("remaster_protocol", cfg.RemasterProtocol.String()),
	)

	http.Handle("/metrics", promhttp.Handler())
	log.Info("serving metrics", zap.String("addr", *metricsAddr))
	if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
		log.Fatal("metrics server exited", zap.Error(err))
	}
}
