/*
Copyright 2024 Waypoint Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT            = "5001"
	DEFAULT_MONITORING_PORT = "5004"
	DEFAULT_WEBHOOK_QUEUE   = "waypoint_webhooks"
	DEFAULT_CACHE_TTL_SEC   = 300
	// MemoryDataSource selects the in-process store instead of PostgreSQL.
	MemoryDataSource = "memory"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"WAYPOINT_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"WAYPOINT_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"WAYPOINT_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"WAYPOINT_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"WAYPOINT_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"WAYPOINT_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"WAYPOINT_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"WAYPOINT_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"WAYPOINT_REDIS_SKIP_TLS_VERIFY"`
}

type QueueConfig struct {
	WebhookQueue   string `json:"webhook_queue" envconfig:"WAYPOINT_QUEUE_WEBHOOK"`
	Concurrency    int    `json:"concurrency" envconfig:"WAYPOINT_QUEUE_CONCURRENCY"`
	MaxRetry       int    `json:"max_retry" envconfig:"WAYPOINT_QUEUE_MAX_RETRY"`
	MonitoringPort string `json:"monitoring_port" envconfig:"WAYPOINT_QUEUE_MONITORING_PORT"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"WAYPOINT_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"WAYPOINT_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"WAYPOINT_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type CacheConfig struct {
	RoadmapTTLSec int  `json:"roadmap_ttl_sec" envconfig:"WAYPOINT_CACHE_ROADMAP_TTL_SEC"`
	LocalTTLSec   int  `json:"local_ttl_sec" envconfig:"WAYPOINT_CACHE_LOCAL_TTL_SEC"`
	Disabled      bool `json:"disabled" envconfig:"WAYPOINT_CACHE_DISABLED"`
}

type LockConfig struct {
	WorkflowTimeoutSec int `json:"workflow_timeout_sec" envconfig:"WAYPOINT_LOCK_WORKFLOW_TIMEOUT_SEC"`
}

type TracingConfig struct {
	Enabled     bool   `json:"enabled" envconfig:"WAYPOINT_TRACING_ENABLED"`
	Endpoint    string `json:"endpoint" envconfig:"WAYPOINT_TRACING_ENDPOINT"`
	ServiceName string `json:"service_name" envconfig:"WAYPOINT_TRACING_SERVICE_NAME"`
	Insecure    bool   `json:"insecure" envconfig:"WAYPOINT_TRACING_INSECURE"`
}

type TelemetryConfig struct {
	PosthogKey      string `json:"posthog_key" envconfig:"WAYPOINT_TELEMETRY_POSTHOG_KEY"`
	PosthogEndpoint string `json:"posthog_endpoint" envconfig:"WAYPOINT_TELEMETRY_POSTHOG_ENDPOINT"`
	HeartbeatSec    int    `json:"heartbeat_sec" envconfig:"WAYPOINT_TELEMETRY_HEARTBEAT_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"WAYPOINT_SLACK_WEBHOOK_URL"`
}

type WebhookConfig struct {
	Url     string            `json:"url" envconfig:"WAYPOINT_WEBHOOK_URL"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack   SlackWebhook  `json:"slack"`
	Webhook WebhookConfig `json:"webhook"`
}

// Configuration is the full server configuration. EnableTelemetry needs telemetry.posthog_key.
type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"WAYPOINT_PROJECT_NAME"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Queue           QueueConfig      `json:"queue"`
	Notification    Notification     `json:"notification"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
	Cache           CacheConfig      `json:"cache"`
	Lock            LockConfig       `json:"lock"`
	Tracing         TracingConfig    `json:"tracing"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"WAYPOINT_ENABLE_TELEMETRY"`
	Telemetry       TelemetryConfig  `json:"telemetry"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("waypoint", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

// InitConfig loads an optional .env file, then the JSON file, then the environment.
func InitConfig(configFile string) error {
	logger()
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("could not load .env file")
	}
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called waypoint.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Waypoint Server"
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Server.SSL && cnf.Server.Domain == "" {
		return errors.New("server domain is required when ssl is enabled")
	}

	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = DEFAULT_WEBHOOK_QUEUE
	}
	if cnf.Queue.Concurrency <= 0 {
		cnf.Queue.Concurrency = 10
	}
	if cnf.Queue.MaxRetry <= 0 {
		cnf.Queue.MaxRetry = 5
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = DEFAULT_MONITORING_PORT
	}

	if cnf.Cache.RoadmapTTLSec <= 0 {
		cnf.Cache.RoadmapTTLSec = DEFAULT_CACHE_TTL_SEC
	}

	if cnf.Lock.WorkflowTimeoutSec <= 0 {
		cnf.Lock.WorkflowTimeoutSec = 30
	}

	if cnf.Tracing.ServiceName == "" {
		cnf.Tracing.ServiceName = "waypoint"
	}
	if cnf.Tracing.Enabled && cnf.Tracing.Endpoint == "" {
		cnf.Tracing.Endpoint = "localhost:4318"
		log.Printf("Warning: Tracing endpoint not specified. Setting default value: %s", cnf.Tracing.Endpoint)
	}

	if cnf.EnableTelemetry && cnf.Telemetry.PosthogKey == "" {
		log.Println("Warning: telemetry enabled without a PostHog key. Disabling telemetry.")
		cnf.EnableTelemetry = false
	}
	if cnf.Telemetry.PosthogEndpoint == "" {
		cnf.Telemetry.PosthogEndpoint = "https://us.i.posthog.com"
	}
	if cnf.Telemetry.HeartbeatSec <= 0 {
		cnf.Telemetry.HeartbeatSec = 300
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// UsesMemoryStore reports whether the in-process store was selected.
func (cnf *Configuration) UsesMemoryStore() bool {
	return strings.EqualFold(cnf.DataSource.Dns, MemoryDataSource)
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
