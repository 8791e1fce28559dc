package config

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAndAddDefaults(t *testing.T) {
	cnf := Configuration{
		DataSource: DataSourceConfig{Dns: ""},
		Redis:      RedisConfig{Dns: "localhost:6379"},
	}
	err := cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "data source DNS is required" {
		t.Errorf("Expected data source DNS required error, got %v", err)
	}

	cnf = Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432"},
		Redis:      RedisConfig{Dns: ""},
	}
	err = cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "redis DNS is required" {
		t.Errorf("Expected redis DNS required error, got %v", err)
	}

	cnf = Configuration{
		ProjectName: "Test Project",
		DataSource:  DataSourceConfig{Dns: " memory "},
		Redis:       RedisConfig{Dns: "localhost:6379"},
	}
	require.NoError(t, cnf.validateAndAddDefaults())

	assert.Equal(t, DEFAULT_PORT, cnf.Server.Port)
	assert.Equal(t, DEFAULT_WEBHOOK_QUEUE, cnf.Queue.WebhookQueue)
	assert.Equal(t, 10, cnf.Queue.Concurrency)
	assert.Equal(t, DEFAULT_MONITORING_PORT, cnf.Queue.MonitoringPort)
	assert.Equal(t, DEFAULT_CACHE_TTL_SEC, cnf.Cache.RoadmapTTLSec)
	assert.Equal(t, 30, cnf.Lock.WorkflowTimeoutSec)
	assert.Equal(t, "waypoint", cnf.Tracing.ServiceName)
	assert.Nil(t, cnf.RateLimit.RequestsPerSecond)
	assert.True(t, cnf.UsesMemoryStore())
}

func TestValidateSSLRequiresDomain(t *testing.T) {
	cnf := Configuration{
		DataSource: DataSourceConfig{Dns: "memory"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
		Server:     ServerConfig{SSL: true},
	}
	assert.EqualError(t, cnf.validateAndAddDefaults(), "server domain is required when ssl is enabled")
}

func TestRateLimitDefaults(t *testing.T) {
	rps := 5.0
	cnf := Configuration{
		DataSource: DataSourceConfig{Dns: "memory"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
		RateLimit:  RateLimitConfig{RequestsPerSecond: &rps},
	}
	require.NoError(t, cnf.validateAndAddDefaults())
	assert.Equal(t, 10, *cnf.RateLimit.Burst)

	burst := 8
	cnf.RateLimit = RateLimitConfig{Burst: &burst}
	require.NoError(t, cnf.validateAndAddDefaults())
	assert.Equal(t, 4.0, *cnf.RateLimit.RequestsPerSecond)
}

func TestLoadConfigFromFile(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "waypoint.json")
	if err != nil {
		t.Fatalf("Unable to create temporary file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	sampleConfig := Configuration{
		ProjectName: "Temp Project",
		DataSource:  DataSourceConfig{Dns: "temp-dns"},
		Redis:       RedisConfig{Dns: "temp-redis"},
	}
	if err := json.NewEncoder(tmpFile).Encode(sampleConfig); err != nil {
		t.Fatalf("Unable to write to temporary file: %v", err)
	}
	tmpFile.Close()

	t.Setenv("WAYPOINT_PROJECT_NAME", "Env Project")

	if err := loadConfigFromFile(tmpFile.Name()); err != nil {
		t.Fatalf("loadConfigFromFile failed: %v", err)
	}

	loadedConfig, err := Fetch()
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if loadedConfig.ProjectName != "Env Project" {
		t.Errorf("Expected ProjectName to be 'Env Project', got '%s'", loadedConfig.ProjectName)
	}
	if loadedConfig.DataSource.Dns != "temp-dns" {
		t.Errorf("Expected DataSource.Dns to be 'temp-dns', got '%s'", loadedConfig.DataSource.Dns)
	}
	assert.False(t, loadedConfig.UsesMemoryStore())
}

func TestInitConfigFromEnvOnly(t *testing.T) {
	t.Setenv("WAYPOINT_DATA_SOURCE_DNS", "memory")
	t.Setenv("WAYPOINT_REDIS_DNS", "localhost:6379")
	t.Setenv("WAYPOINT_SERVER_PORT", "7001")

	require.NoError(t, InitConfig("does-not-exist.json"))

	loadedConfig, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "7001", loadedConfig.Server.Port)
	assert.True(t, loadedConfig.UsesMemoryStore())
}

func TestMockConfig(t *testing.T) {
	MockConfig(&Configuration{ProjectName: "mocked"})
	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "mocked", cnf.ProjectName)
}
