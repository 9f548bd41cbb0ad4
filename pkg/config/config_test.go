package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://api.semanticscholar.org/graph/v1", cfg.S2BaseURL)
	assert.Equal(t, 100*time.Millisecond, cfg.PacingFloor)
	assert.Equal(t, 50*time.Millisecond, cfg.PacingDecrease)
	assert.Equal(t, "dir", cfg.ObjectStore)
	assert.Equal(t, "litgraph/", cfg.TablePrefix)
	assert.Equal(t, 1, cfg.MaxPoolSize)
	assert.Equal(t, -1, cfg.MaxRefsPerPub)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MAX_POOL_SIZE=4\nGRAPH_BACKEND=memory\nS2_PACING_STEP_MS=250\n"), 0644))
	t.Cleanup(func() {
		os.Unsetenv("MAX_POOL_SIZE")
		os.Unsetenv("GRAPH_BACKEND")
		os.Unsetenv("S2_PACING_STEP_MS")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxPoolSize)
	assert.Equal(t, "memory", cfg.GraphBackend)
	assert.Equal(t, 250*time.Millisecond, cfg.PacingStep)
}

func TestLoadMissingEnvFileIsNotFatal(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("MAX_POOL_SIZE", "many")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("MAX_POOL_SIZE", "0")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{ObjectStore: "dir", GraphBackend: "memory", WorklistDriver: "sqlite", MaxPoolSize: 1, PacingFloor: time.Millisecond}
	}
	require.NoError(t, valid().Validate())

	c := valid()
	c.ObjectStore = "s3"
	assert.Error(t, c.Validate())

	c = valid()
	c.ObjectStore = "gcs"
	assert.Error(t, c.Validate())
	c.GCSBucket = "bucket"
	assert.NoError(t, c.Validate())

	c = valid()
	c.GraphBackend = "arango"
	assert.Error(t, c.Validate())

	c = valid()
	c.WorklistDriver = "mysql"
	assert.Error(t, c.Validate())
}
