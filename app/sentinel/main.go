package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/openuhs/go-sentinel/api"
	"github.com/openuhs/go-sentinel/domain/archive"
	"github.com/openuhs/go-sentinel/domain/sentinel"
	"github.com/openuhs/go-sentinel/external/coordinator"
	"github.com/openuhs/go-sentinel/external/kafka"
	"github.com/openuhs/go-sentinel/external/peer"
	"github.com/openuhs/go-sentinel/infrastructure/store"
)

const envPrefix = "UHS_SENTINEL"

func main() {
	if err := run(); err != nil {
		log.Fatalf("main: exited with error: %s", err.Error())
	}
}

func run() error {
	var cfg struct {
		SentinelID           uint32   `conf:"default:0"`
		SentinelEndpoints    []string `conf:"default:127.0.0.1:5555"`
		SentinelPrivateKeys  []string `conf:"optional"`
		SentinelLogLevels    []string `conf:"default:info"`
		AttestationThreshold uint32   `conf:"default:0"`
		CoordinatorEndpoints []string `conf:"default:127.0.0.1:7777"`
		Tha                  struct {
			Type       string `conf:"default:pebble"`
			Parameter  string `conf:"default:archive"`
			Port       int    `conf:"default:9142"`
			User       string `conf:"optional"`
			Password   string `conf:"optional,mask"`
			SSLVersion string `conf:"default:TLS1_2"`
		}
		Client struct {
			QueueSize int `conf:"default:128"`
			Workers   int `conf:"default:4"`
		}
		Kafka struct {
			Enabled          bool     `conf:"default:false"`
			BootstrapServers []string `conf:"default:localhost:9092"`
			StatusTopic      string   `conf:"default:uhs-tx-status"`
		}
		TxCacheTTL       time.Duration `conf:"default:30s"`
		MetricsNamespace string        `conf:"default:uhs_sentinel"`
		MetricsPort      int           `conf:"default:9999"`
	}

	if err := conf.Parse(os.Args[1:], envPrefix, &cfg); err != nil {
		switch {
		case errors.Is(err, conf.ErrHelpWanted):
			usage, err := conf.Usage(envPrefix, &cfg)
			if err != nil {
				return errors.Wrap(err, "generating config usage")
			}
			fmt.Println(usage)
			return nil
		case errors.Is(err, conf.ErrVersionWanted):
			version, err := conf.VersionString(envPrefix, &cfg)
			if err != nil {
				return errors.Wrap(err, "generating config version")
			}
			fmt.Println(version)
			return nil
		}
		return errors.Wrap(err, "parsing config")
	}

	out, err := conf.String(&cfg)
	if err != nil {
		return errors.Wrap(err, "generating config for output")
	}
	log.Printf("main: Config :\n%v\n", out)

	logger, err := buildLogger(cfg.SentinelLogLevels, cfg.SentinelID)
	if err != nil {
		return errors.Wrap(err, "creating logger")
	}
	defer logger.Sync()
	sLogger := logger.Sugar()

	if int(cfg.SentinelID) >= len(cfg.SentinelEndpoints) {
		return errors.Errorf("sentinel id %d is too large for %d endpoints",
			cfg.SentinelID, len(cfg.SentinelEndpoints))
	}
	ownEndpoint := cfg.SentinelEndpoints[cfg.SentinelID]

	// Archive backend. Archival is best-effort: a backend that cannot be
	// opened disables the archive but not the sentinel.
	var backend store.Backend
	if cfg.Tha.Type != store.TypeNone {
		backend, err = store.NewBackend(store.Config{
			Type:       cfg.Tha.Type,
			Parameter:  cfg.Tha.Parameter,
			Port:       cfg.Tha.Port,
			User:       cfg.Tha.User,
			Password:   cfg.Tha.Password,
			SSLVersion: cfg.Tha.SSLVersion,
		}, sLogger)
		if err != nil {
			sLogger.Errorw("Failed to open archive backend, archiving disabled", "error", err)
			backend = nil
		} else {
			defer backend.Close()
		}
	}

	var events archive.EventPublisher
	if cfg.Kafka.Enabled {
		kafkaMetrics := kprom.NewMetrics(cfg.MetricsNamespace,
			kprom.Registerer(prometheus.DefaultRegisterer),
			kprom.Gatherer(prometheus.DefaultGatherer))
		kcl, err := kgo.NewClient(
			kgo.WithHooks(kafkaMetrics),
			kgo.DefaultProduceTopic(cfg.Kafka.StatusTopic),
			kgo.SeedBrokers(cfg.Kafka.BootstrapServers...),
		)
		if err != nil {
			return errors.Wrap(err, "creating kafka client")
		}
		defer kcl.Close()
		events = kafka.NewClient(kcl, sLogger)
	}

	archiver := archive.NewArchiver(cfg.SentinelID, backend, events, sLogger)

	coordinatorEndpoint := cfg.CoordinatorEndpoints[int(cfg.SentinelID)%len(cfg.CoordinatorEndpoints)]
	coordinatorClient := coordinator.NewClient(coordinatorEndpoint,
		cfg.Client.QueueSize, cfg.Client.Workers, sLogger)
	defer coordinatorClient.Close()
	initCoordinator(coordinatorClient, sLogger)

	var peers []sentinel.PeerClient
	for i, endpoint := range cfg.SentinelEndpoints {
		if i == int(cfg.SentinelID) {
			continue
		}
		peerClient := peer.NewClient(endpoint, cfg.Client.QueueSize, cfg.Client.Workers, sLogger)
		if err := peerClient.Init(); err != nil {
			sLogger.Warnw("Failed to reach peer sentinel", "endpoint", endpoint, "error", err)
		}
		defer peerClient.Close()
		peers = append(peers, peerClient)
	}

	metrics := sentinel.NewMetrics(cfg.MetricsNamespace, prometheus.DefaultRegisterer)

	privateKey := ""
	if int(cfg.SentinelID) < len(cfg.SentinelPrivateKeys) {
		privateKey = cfg.SentinelPrivateKeys[cfg.SentinelID]
	}
	controller, err := sentinel.NewController(sentinel.Config{
		SentinelID:           cfg.SentinelID,
		Endpoints:            cfg.SentinelEndpoints,
		AttestationThreshold: cfg.AttestationThreshold,
		PrivateKey:           privateKey,
	}, coordinatorClient, peers, archiver, metrics, sLogger)
	if err != nil {
		return errors.Wrap(err, "creating sentinel controller")
	}

	handler := api.NewHandler(controller, archiver, cfg.TxCacheTTL, sLogger)

	apiServer := &http.Server{Addr: ownEndpoint, Handler: handler.Router()}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/health", api.Health)
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sLogger.Infow("Starting sentinel RPC server", "endpoint", ownEndpoint)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "sentinel RPC server")
		}
		return nil
	})
	g.Go(func() error {
		sLogger.Infow("Starting metrics endpoint", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "metrics server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		apiServer.Shutdown(shutdownCtx)
		metricsServer.Shutdown(shutdownCtx)
		return nil
	})

	return g.Wait()
}

// initCoordinator probes the coordinator with exponential backoff. Total
// failure is a warning, not fatal: submissions retry at execution time.
func initCoordinator(client *coordinator.Client, logger *zap.SugaredLogger) {
	retryDelay := time.Second
	for attempt := 1; attempt <= 4; attempt++ {
		if err := client.Init(); err == nil {
			return
		}
		logger.Warnw("Failed to reach coordinator", "attempt", attempt)
		if attempt < 4 {
			time.Sleep(retryDelay)
			retryDelay *= 2
			logger.Warnw("Retrying coordinator connection")
		}
	}
}

func buildLogger(levels []string, sentinelID uint32) (*zap.Logger, error) {
	level := "info"
	if len(levels) > 0 {
		idx := int(sentinelID)
		if idx >= len(levels) {
			idx = len(levels) - 1
		}
		level = levels[idx]
	}
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %v", level, err)
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(parsed)
	// Display a readable date instead of an epoch time.
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)
	return config.Build()
}
