package config

import "github.com/kelseyhightower/envconfig"

// DBConfig carries the shared Postgres pool settings.
type DBConfig struct {
	DSN                   string `envconfig:"DB_DSN" required:"true"`
	PoolMaxConns          int32  `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
	PoolMinConns          int32  `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	PoolMaxConnLifetime   string `envconfig:"DB_POOL_MAX_CONN_LIFETIME"`
	PoolMaxConnIdleTime   string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME"`
	PoolHealthCheckPeriod string `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD"`
}

type APIConfig struct {
	DB          DBConfig
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Campaign start rails
	MaxRecipientsPerCampaign int `envconfig:"MAX_RECIPIENTS_PER_CAMPAIGN" default:"10000"`
}

type WorkerConfig struct {
	DB          DBConfig
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Delivery loop
	TickInterval             string `envconfig:"TICK_INTERVAL" default:"10s"`
	BatchSize                int    `envconfig:"BATCH_SIZE" default:"25"`
	StaleLeaseAfter          string `envconfig:"STALE_LEASE_AFTER" default:"10m"`
	MaxRecipientsPerCampaign int    `envconfig:"MAX_RECIPIENTS_PER_CAMPAIGN" default:"10000"`

	// Per-instance send throttle (messages/sec toward the provider)
	SendRPS   float64 `envconfig:"SEND_RPS" default:"2"`
	SendBurst int     `envconfig:"SEND_BURST" default:"1"`

	// AWS / SQS domain event bus
	AWSRegion          string `envconfig:"AWS_REGION" required:"true"`
	EventsQueueURL     string `envconfig:"EVENTS_QUEUE_URL" required:"true"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
	SQSWaitTime        int32  `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs         int32  `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVizTimeout      int32  `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"60"`
	EventConcurrency   int    `envconfig:"EVENT_CONCURRENCY" default:"4"`

	// WhatsApp Cloud API
	WhatsAppBaseURL     string `envconfig:"WHATSAPP_BASE_URL" default:"https://graph.facebook.com"`
	WhatsAppAPIVersion  string `envconfig:"WHATSAPP_API_VERSION" default:"v19.0"`
	WhatsAppAccessToken string `envconfig:"WHATSAPP_ACCESS_TOKEN" required:"true"`
}

// WebhookConfig configures the delivery-status ingress. It has no database;
// callbacks are verified and queued, the processor owns persistence.
type WebhookConfig struct {
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Webhook signature verification
	WhatsAppAppSecret   string `envconfig:"WHATSAPP_APP_SECRET" required:"true"`
	WhatsAppVerifyToken string `envconfig:"WHATSAPP_VERIFY_TOKEN" required:"true"`

	// AWS / SQS delivery-status queue
	AWSRegion            string `envconfig:"AWS_REGION" required:"true"`
	StatusEventsQueueURL string `envconfig:"STATUS_EVENTS_QUEUE_URL" required:"true"`
	LocalstackEndpoint   string `envconfig:"LOCALSTACK_ENDPOINT"`
}

type WebhookProcessorConfig struct {
	DB          DBConfig
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	AWSRegion            string `envconfig:"AWS_REGION" required:"true"`
	StatusEventsQueueURL string `envconfig:"STATUS_EVENTS_QUEUE_URL" required:"true"`
	LocalstackEndpoint   string `envconfig:"LOCALSTACK_ENDPOINT"`
	SQSWaitTime          int32  `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs           int32  `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVizTimeout        int32  `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"60"`
	ProcessorConcurrency int    `envconfig:"PROCESSOR_CONCURRENCY" default:"4"`
}

func LoadAPI() APIConfig {
	var cfg APIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWorker() WorkerConfig {
	var cfg WorkerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWebhook() WebhookConfig {
	var cfg WebhookConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWebhookProcessor() WebhookProcessorConfig {
	var cfg WebhookProcessorConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
