package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GCP_PROJECT_ID", "my-project")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Service.Port)
	assert.Equal(t, "console", cfg.Service.LogFormat)
	assert.Equal(t, "https://sea.api.riotgames.com", cfg.Riot.MatchBaseURL)
	assert.Equal(t, 20, cfg.Riot.MatchCount)
	assert.Equal(t, 10*time.Second, cfg.Riot.RequestTimeout)
	assert.Equal(t, "TFT", cfg.Pipeline.Folder)
	assert.Equal(t, "match-data-ready", cfg.Pipeline.Topic)
	assert.Equal(t, 1, cfg.Pipeline.Workers)
	assert.Equal(t, "gcs", cfg.Storage.Backend)
	assert.Equal(t, "bigquery", cfg.Warehouse.Backend)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GCP_PROJECT_ID", "\"quoted-project\"")
	t.Setenv("INGEST_WORKERS", "4")
	t.Setenv("RIOT_REQUEST_TIMEOUT", "3s")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("STORAGE_BACKEND", "file")
	t.Setenv("BLOB_STORAGE_PATH", "/tmp/blobs")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "quoted-project", cfg.Pipeline.ProjectID)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 3*time.Second, cfg.Riot.RequestTimeout)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/tmp/blobs", cfg.Storage.LocalPath)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("GCP_PROJECT_ID", "p")
	t.Setenv("PORT", "eighty")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Service.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		errMsg string
	}{
		{"missing project", map[string]string{"GCP_PROJECT_ID": ""}, "GCP_PROJECT_ID"},
		{"zero workers", map[string]string{"INGEST_WORKERS": "0"}, "INGEST_WORKERS"},
		{"bad port", map[string]string{"PORT": "70000"}, "invalid port"},
		{"file backend without path", map[string]string{"STORAGE_BACKEND": "file"}, "BLOB_STORAGE_PATH"},
		{"unknown storage", map[string]string{"STORAGE_BACKEND": "s3"}, "STORAGE_BACKEND"},
		{"postgres without url", map[string]string{"WAREHOUSE_BACKEND": "postgres"}, "DATABASE_URL"},
		{"unknown warehouse", map[string]string{"WAREHOUSE_BACKEND": "snowflake"}, "WAREHOUSE_BACKEND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GCP_PROJECT_ID", "p")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestMaskedAPIKey(t *testing.T) {
	cfg := &Config{Riot: RiotConfig{APIKey: "RGAPI-12345678-abcd-efgh"}}
	assert.Equal(t, "RGAPI-12...efgh", cfg.MaskedAPIKey())

	cfg.Riot.APIKey = "short"
	assert.Equal(t, "****", cfg.MaskedAPIKey())
}
