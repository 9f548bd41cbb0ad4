package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds every setting the binaries read from the environment.
type Config struct {
	S2BaseURL      string
	S2APIKey       string
	PacingFloor    time.Duration
	PacingStep     time.Duration
	PacingDecrease time.Duration
	ObjectStore    string
	ObjectStoreDir string
	GCSBucket      string
	GCSCredentials string
	TablePrefix    string
	TableName      string
	ColumnarDSN    string
	GraphBackend   string
	GraphSnapshot  string
	Neo4jURI       string
	Neo4jUser      string
	Neo4jPassword  string
	Neo4jDatabase  string
	WorklistDriver string
	WorklistDSN    string
	RedisAddr      string
	MaxPoolSize    int
	MaxRefsPerPub  int
	MaxCitsPerPub  int
	MetricsAddr    string
}

// Load reads envFile (if present) into the process environment and builds a Config.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			logrus.WithError(err).WithField("env_file", envFile).Warn("Env file not loaded, using process environment")
		}
	}

	cfg := &Config{
		S2BaseURL:      getString("S2_BASE_URL", "https://api.semanticscholar.org/graph/v1"),
		S2APIKey:       getString("S2_API_KEY", ""),
		PacingFloor:    getMillis("S2_PACING_FLOOR_MS", 100),
		PacingStep:     getMillis("S2_PACING_STEP_MS", 100),
		PacingDecrease: getMillis("S2_PACING_DECREASE_MS", 50),
		ObjectStore:    getString("OBJECT_STORE", "dir"),
		ObjectStoreDir: getString("OBJECT_STORE_DIR", "./data/objects"),
		GCSBucket:      getString("GCS_BUCKET", ""),
		GCSCredentials: getString("GCS_CREDENTIALS_FILE", ""),
		TablePrefix:    getString("TABLE_PREFIX", "litgraph/"),
		TableName:      getString("TABLE_NAME", "publications"),
		ColumnarDSN:    getString("COLUMNAR_DSN", "./data/columnar.db"),
		GraphBackend:   getString("GRAPH_BACKEND", "neo4j"),
		GraphSnapshot:  getString("GRAPH_SNAPSHOT", "./data/graph.json"),
		Neo4jURI:       getString("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:      getString("NEO4J_USER", "neo4j"),
		Neo4jPassword:  getString("NEO4J_PASSWORD", ""),
		Neo4jDatabase:  getString("NEO4J_DATABASE", ""),
		WorklistDriver: getString("WORKLIST_DRIVER", "sqlite"),
		WorklistDSN:    getString("WORKLIST_DSN", "./data/worklist.db"),
		RedisAddr:      getString("REDIS_ADDR", ""),
		MetricsAddr:    getString("METRICS_ADDR", ""),
	}

	var err error
	if cfg.MaxPoolSize, err = getInt("MAX_POOL_SIZE", 1); err != nil {
		return nil, err
	}
	if cfg.MaxRefsPerPub, err = getInt("MAX_REFS_PER_PUB", -1); err != nil {
		return nil, err
	}
	if cfg.MaxCitsPerPub, err = getInt("MAX_CITS_PER_PUB", -1); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks backend names and numeric bounds.
func (c *Config) Validate() error {
	switch c.ObjectStore {
	case "dir", "gcs":
	default:
		return fmt.Errorf("unknown OBJECT_STORE %q", c.ObjectStore)
	}
	if c.ObjectStore == "gcs" && c.GCSBucket == "" {
		return fmt.Errorf("GCS_BUCKET is required when OBJECT_STORE=gcs")
	}
	switch c.GraphBackend {
	case "neo4j", "memory":
	default:
		return fmt.Errorf("unknown GRAPH_BACKEND %q", c.GraphBackend)
	}
	switch c.WorklistDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown WORKLIST_DRIVER %q", c.WorklistDriver)
	}
	if c.MaxPoolSize < 1 {
		return fmt.Errorf("MAX_POOL_SIZE must be at least 1, got %d", c.MaxPoolSize)
	}
	if c.PacingFloor <= 0 {
		return fmt.Errorf("S2_PACING_FLOOR_MS must be positive")
	}
	return nil
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getMillis(key string, def int) time.Duration {
	n, err := getInt(key, def)
	if err != nil || n < 0 {
		logrus.WithField("key", key).Warn("Invalid duration, using default")
		n = def
	}
	return time.Duration(n) * time.Millisecond
}
