package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/texapp/opinion-harvester/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Server: config.ServerConfig{Port: 8080},
		Harvest: config.HarvestConfig{
			BaseURL:            "http://dockets.test",
			Sources:            []int{1, 2, 3},
			UserAgent:          "harvester-test",
			CaseDelaySeconds:   1,
			SourceDelaySeconds: 1,
		},
		Fetch: config.FetchConfig{
			TimeoutSeconds:     5,
			MaxRetries:         2,
			BackoffBaseSeconds: 1,
		},
		Storage:   config.StorageConfig{Backend: config.BackendMemory},
		Artifacts: config.ArtifactsConfig{Root: filepath.Join(dir, "artifacts")},
		Report:    config.ReportConfig{Dir: filepath.Join(dir, "reports")},
		Logging:   config.LoggingConfig{Development: false},
	}
}

func TestNewWiresServices(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, cfg.Validate())

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, a.Close(context.Background()))
	}()

	require.NotNil(t, a.Logger())
	require.NotNil(t, a.Pipeline())
	require.NotNil(t, a.Coordinator())
	require.NotNil(t, a.Reporter())
	require.NotNil(t, a.Ledger())
	require.NotNil(t, a.Runs())
	require.NotNil(t, a.APIServer())
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Harvest.BaseURL = "not-a-url"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestAllowedHosts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Harvest.BaseURL = "https://search.txcourts.gov"
	cfg.Fetch.ExtraAllowedHosts = []string{"media.txcourts.gov"}

	hosts, err := allowedHosts(cfg)
	require.NoError(t, err)
	require.Equal(t, []string{"search.txcourts.gov", "media.txcourts.gov"}, hosts)
}
