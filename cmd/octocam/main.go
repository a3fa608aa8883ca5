package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/your-org/octocam/internal/capture"
	"github.com/your-org/octocam/internal/ledger"
	"github.com/your-org/octocam/internal/octocam"
	"github.com/your-org/octocam/internal/publish"
	"github.com/your-org/octocam/pkg/config"
	"github.com/your-org/octocam/pkg/kafka"
	"github.com/your-org/octocam/pkg/logger"
	"github.com/your-org/octocam/pkg/storage"
	"github.com/your-org/octocam/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logr, err := logger.New(cfg.App.LogLevel, cfg.App.Environment)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		Attributes:  tracing.ParseAttributes(cfg.Tracing.ResourceAttr),
		ServiceName: cfg.App.Name,
	})
	if err != nil {
		logr.Fatal("init tracing", zap.Error(err))
	}
	defer traceShutdown(context.Background()) //nolint:errcheck

	store, err := storage.Open(storage.Config{
		Provider:          cfg.Storage.Provider,
		Endpoint:          cfg.Storage.Endpoint,
		Region:            cfg.Storage.Region,
		Bucket:            cfg.Storage.Bucket,
		AccessKey:         cfg.Storage.AccessKey,
		SecretKey:         cfg.Storage.SecretKey,
		UseSSL:            cfg.Storage.UseSSL,
		IPFSProjectID:     cfg.Storage.IPFSProjectID,
		IPFSProjectSecret: cfg.Storage.IPFSProjectSecret,
		IPFSCIDVersion:    cfg.Storage.IPFSCIDVersion,
		IPFSPin:           cfg.Storage.IPFSPin,
		Timeout:           cfg.Storage.Timeout,
	})
	if err != nil {
		logr.Fatal("init content store", zap.Error(err))
	}

	var events octocam.EventPublisher
	if cfg.Kafka.Enabled {
		events = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.PublishedTopic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			Compression:  kafka.CompressionFromString(cfg.Kafka.CompressionCodec),
			RequiredAcks: kafkago.RequireAll,
			MaxAttempts:  cfg.Kafka.Retries,
		})
	}

	session := capture.NewSession(capture.Params{
		Device: newDevice(cfg.Capture),
		Constraints: capture.Constraints{
			FacingMode: cfg.Capture.FacingMode,
			WidthHint:  cfg.Capture.WidthHint,
			HeightHint: cfg.Capture.HeightHint,
		},
		JPEGQuality:      cfg.Capture.JPEGQuality,
		MaxDisplayPixels: cfg.Capture.MaxDisplayPixels,
		Logger:           logr,
	})

	publisher := publish.New(publish.Params{
		Store:           store,
		Logger:          logr,
		ImageTimeout:    cfg.Publish.ImageTimeout,
		MetadataTimeout: cfg.Publish.MetadataTimeout,
		ImageRetries:    cfg.Publish.ImageRetries,
		RetryBackoff:    cfg.Publish.RetryBackoff,
	})

	service, err := octocam.NewService(octocam.Params{
		Session:         session,
		Publisher:       publisher,
		Store:           store,
		Events:          events,
		Wallet:          ledger.StaticWallet{Account: cfg.Ledger.Account},
		ContractAddress: cfg.Ledger.ContractAddress,
		Category:        cfg.Ledger.Category,
		Logger:          logr,
	})
	if err != nil {
		logr.Fatal("init service", zap.Error(err))
	}

	handler := octocam.NewHTTPHandler(service, logr)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logr.Error("http server shutdown failed", zap.Error(err))
		}
		if err := service.Close(shutdownCtx); err != nil {
			logr.Error("service shutdown failed", zap.Error(err))
		}
	}()

	logr.Info("octocam starting",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("device", cfg.Capture.Device),
		zap.String("store", cfg.Storage.Provider),
		zap.Bool("events", cfg.Kafka.Enabled),
	)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Fatal("http server failed", zap.Error(err))
	}
}

func newDevice(cfg config.CaptureConfig) capture.Device {
	if cfg.Device == "snapshot" {
		return capture.SnapshotDevice{
			URL:    cfg.Source,
			Client: &http.Client{Timeout: cfg.AcquireTimeout},
		}
	}
	return capture.FileDevice{Path: cfg.Source}
}
