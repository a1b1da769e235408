package config

import (
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env                string            `mapstructure:"env"`
	LogLevel           string            `mapstructure:"log_level"`
	LogType            string            `mapstructure:"log_type"`
	ServiceName        string            `mapstructure:"service_name"`
	Version            string            `mapstructure:"version"`
	CrawlerSettings    *CrawlerConfig    `mapstructure:"crawler"`
	EngineSettings     *EngineConfig     `mapstructure:"engine"`
	ExtractSettings    *ExtractConfig    `mapstructure:"extract"`
	DbSettings         *DatabaseConfig   `mapstructure:"database"`
	KafkaSettings      *KafkaConfig      `mapstructure:"kafka"`
	S3Settings         *S3Config         `mapstructure:"s3"`
	TelemetrySettings  *TelemetryConfig  `mapstructure:"telemetry"`
	HttpClientSettings *HttpClientConfig `mapstructure:"http_client"`
}

type CrawlerConfig struct {
	CookieLandingUrl string            `mapstructure:"cookie_landing_url"`
	SearchUrl        string            `mapstructure:"search_url"`
	FormQuery        string            `mapstructure:"form_query"`
	LinkQuery        string            `mapstructure:"link_query"`
	OffsetParam      string            `mapstructure:"offset_param"`
	ActionParam      string            `mapstructure:"action_param"`
	SubmitAction     string            `mapstructure:"submit_action"`
	NextPageAction   string            `mapstructure:"next_page_action"`
	PageSize         int               `mapstructure:"page_size"`
	SearchParams     map[string]string `mapstructure:"search_params"`
	DedupeTtl        time.Duration     `mapstructure:"dedupe_ttl"`
}

type EngineConfig struct {
	UserAgent        string        `mapstructure:"user_agent"`
	WorkersNum       int           `mapstructure:"workers_num"`
	RetryAttempts    int           `mapstructure:"retry_attempts"`
	RateLimitPermits int           `mapstructure:"rate_limit_permits"`
	RateLimitWindow  time.Duration `mapstructure:"rate_limit_window"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	LogoutMarker     string        `mapstructure:"logout_marker"`
}

type ExtractConfig struct {
	SummaryQuery  string `mapstructure:"summary_query"`
	ContentQuery  string `mapstructure:"content_query"`
	TagWordsQuery string `mapstructure:"tag_words_query"`
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
}

type KafkaConfig struct {
	Producer *ProducerConfig `mapstructure:"producer"`
}

type ProducerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Addr           []string      `mapstructure:"addr"`
	WriteTopicName string        `mapstructure:"write_topic_name"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BatchSize      int           `mapstructure:"batch_size"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequiredAsks   int           `mapstructure:"required_acks"`
	Async          bool          `mapstructure:"async"`
}

type S3Config struct {
	Enabled         bool   `mapstructure:"enabled"`
	AwsBaseEndpoint string `mapstructure:"aws_base_endpoint"`
	Region          string `mapstructure:"region"`
	BucketName      string `mapstructure:"bucket_name"`
	KeyPrefix       string `mapstructure:"key_prefix"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	CollectorUrl string `mapstructure:"collector_url"`
}

type HttpClientConfig struct {
	MaxIdleConnections        int           `mapstructure:"max_idle_connections"`
	MaxIdleConnectionsPerHost int           `mapstructure:"max_idle_connections_per_host"`
	MaxConnectionsPerHost     int           `mapstructure:"max_connections_per_host"`
	IdleConnectionTimeout     time.Duration `mapstructure:"idle_connection_timeout"`
	TlsHandshakeTimeout       time.Duration `mapstructure:"tls_handshake_timeout"`
	DialTimeout               time.Duration `mapstructure:"dial_timeout"`
	DialKeepAlive             time.Duration `mapstructure:"dial_keep_alive"`
	TlsInsecureSkipVerify     bool          `mapstructure:"tls_insecure_skip_verify"`
}

func MustLoad() *Config {
	viper.AddConfigPath(path.Join("."))
	viper.SetConfigName("config")
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		slog.Error("can't initialize config file.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("error unmarshalling viper config.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	return &cfg
}
