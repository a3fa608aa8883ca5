package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures the full runtime configuration of the octocam service.
type Config struct {
	App     AppConfig
	HTTP    HTTPConfig
	Capture CaptureConfig
	Storage StorageConfig
	Publish PublishConfig
	Kafka   KafkaConfig
	Tracing TracingConfig
	Ledger  LedgerConfig
}

type AppConfig struct {
	Name        string `env:"APP_NAME" envDefault:"octocam"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	Version     string `env:"APP_VERSION" envDefault:"0.1.0"`
	LogLevel    string `env:"APP_LOG_LEVEL" envDefault:"info"`
}

type HTTPConfig struct {
	Addr         string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
}

// CaptureConfig selects the frame device. Source is a file path for the
// file device and a snapshot URL for the snapshot device.
type CaptureConfig struct {
	Device           string        `env:"CAPTURE_DEVICE" envDefault:"file"`
	Source           string        `env:"CAPTURE_SOURCE" envDefault:"./frame.jpg"`
	FacingMode       string        `env:"CAPTURE_FACING_MODE" envDefault:"environment"`
	WidthHint        int           `env:"CAPTURE_WIDTH_HINT" envDefault:"1280"`
	HeightHint       int           `env:"CAPTURE_HEIGHT_HINT" envDefault:"720"`
	JPEGQuality      int           `env:"CAPTURE_JPEG_QUALITY" envDefault:"95"`
	MaxDisplayPixels int           `env:"CAPTURE_MAX_DISPLAY_PIXELS" envDefault:"16777216"`
	AcquireTimeout   time.Duration `env:"CAPTURE_ACQUIRE_TIMEOUT" envDefault:"10s"`
}

// StorageConfig selects the content-addressed store. For minio/s3 the
// endpoint is host:port; for ipfs it is the RPC base URL.
type StorageConfig struct {
	Provider          string        `env:"STORAGE_PROVIDER" envDefault:"ipfs"`
	Endpoint          string        `env:"STORAGE_ENDPOINT" envDefault:"http://127.0.0.1:5001"`
	Region            string        `env:"STORAGE_REGION" envDefault:"us-east-1"`
	Bucket            string        `env:"STORAGE_BUCKET" envDefault:"octocam-captures"`
	AccessKey         string        `env:"STORAGE_ACCESS_KEY" envDefault:"minioadmin"`
	SecretKey         string        `env:"STORAGE_SECRET_KEY" envDefault:"minioadmin"`
	UseSSL            bool          `env:"STORAGE_USE_SSL" envDefault:"false"`
	IPFSProjectID     string        `env:"STORAGE_IPFS_PROJECT_ID"`
	IPFSProjectSecret string        `env:"STORAGE_IPFS_PROJECT_SECRET"`
	IPFSCIDVersion    int           `env:"STORAGE_IPFS_CID_VERSION" envDefault:"0"`
	IPFSPin           bool          `env:"STORAGE_IPFS_PIN" envDefault:"true"`
	Timeout           time.Duration `env:"STORAGE_HTTP_TIMEOUT" envDefault:"0s"`
}

// PublishConfig bounds each upload phase. Zero timeouts leave the caller's
// context as the only limit.
type PublishConfig struct {
	ImageTimeout    time.Duration `env:"PUBLISH_IMAGE_TIMEOUT" envDefault:"60s"`
	MetadataTimeout time.Duration `env:"PUBLISH_METADATA_TIMEOUT" envDefault:"30s"`
	ImageRetries    int           `env:"PUBLISH_IMAGE_RETRIES" envDefault:"0"`
	RetryBackoff    time.Duration `env:"PUBLISH_RETRY_BACKOFF" envDefault:"500ms"`
}

type KafkaConfig struct {
	Enabled          bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	Brokers          []string      `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	PublishedTopic   string        `env:"KAFKA_PUBLISHED_TOPIC" envDefault:"octocam.published"`
	Retries          int           `env:"KAFKA_RETRIES" envDefault:"3"`
	CompressionCodec string        `env:"KAFKA_COMPRESSION_CODEC" envDefault:"snappy"`
	BatchSize        int           `env:"KAFKA_BATCH_SIZE" envDefault:"1"`
	BatchTimeout     time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"50ms"`
}

type TracingConfig struct {
	Endpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRatio  float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1.0"`
	ResourceAttr string  `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:"service.namespace=octocam"`
}

type LedgerConfig struct {
	ContractAddress string `env:"LEDGER_CONTRACT_ADDRESS"`
	Account         string `env:"LEDGER_ACCOUNT"`
	Category        string `env:"LEDGER_CATEGORY" envDefault:"camera-asset"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Capture.Device {
	case "file", "snapshot":
	default:
		return fmt.Errorf("unsupported capture device: %s", c.Capture.Device)
	}
	if c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100 {
		return fmt.Errorf("capture jpeg quality must be in 1..100, got %d", c.Capture.JPEGQuality)
	}
	if c.Capture.MaxDisplayPixels <= 0 {
		return fmt.Errorf("capture max display pixels must be positive, got %d", c.Capture.MaxDisplayPixels)
	}
	if c.Publish.ImageRetries < 0 {
		return fmt.Errorf("publish image retries must not be negative")
	}
	return nil
}
