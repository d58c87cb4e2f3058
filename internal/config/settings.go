package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Embedding cache kinds accepted by SPECQA_CACHE.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheQdrant = "qdrant"
)

// Settings is the typed view of the SPECQA_* environment after Load has
// layered the config files into it. Zero values mean "use the component
// default".
type Settings struct {
	ChunkSize         int
	TopK              int
	Concurrency       int
	BatchSize         int
	RequestsPerSecond float64
	FailurePolicy     string
	EmbedTimeout      time.Duration
	GenerateTimeout   time.Duration
	Cache             string
	Temperature       float32
	MaxContextTokens  int

	HistoryDB string
	DocsDir   string
	DocsLimit int

	Host      string
	Port      int
	RateLimit float64
	RateBurst int
}

// SettingsFromEnv parses the SPECQA_* environment variables. Malformed
// values are reported rather than silently replaced by defaults.
func SettingsFromEnv() (Settings, error) {
	p := &parser{}
	s := Settings{
		ChunkSize:         p.int("SPECQA_CHUNK_SIZE"),
		TopK:              p.int("SPECQA_TOP_K"),
		Concurrency:       p.int("SPECQA_EMBED_CONCURRENCY"),
		BatchSize:         p.int("SPECQA_EMBED_BATCH_SIZE"),
		RequestsPerSecond: p.float("SPECQA_EMBED_RPS"),
		FailurePolicy:     os.Getenv("SPECQA_FAILURE_POLICY"),
		EmbedTimeout:      p.duration("SPECQA_EMBED_TIMEOUT"),
		GenerateTimeout:   p.duration("SPECQA_GENERATE_TIMEOUT"),
		Cache:             strings.ToLower(getEnvOrDefault("SPECQA_CACHE", CacheMemory)),
		Temperature:       float32(p.float("SPECQA_TEMPERATURE")),
		MaxContextTokens:  p.int("SPECQA_MAX_CONTEXT_TOKENS"),

		HistoryDB: os.Getenv("SPECQA_HISTORY_DB"),
		DocsDir:   getEnvOrDefault("SPECQA_DOCS_DIR", "."),
		DocsLimit: p.int("SPECQA_DOCS_LIMIT"),

		Host:      getEnvOrDefault("SPECQA_HOST", "127.0.0.1"),
		Port:      p.int("SPECQA_PORT"),
		RateLimit: p.float("SPECQA_RATE_LIMIT"),
		RateBurst: p.int("SPECQA_RATE_BURST"),
	}
	if s.Port == 0 {
		s.Port = 8080
	}
	if p.err != nil {
		return Settings{}, p.err
	}

	switch s.Cache {
	case CacheNone, CacheMemory, CacheQdrant:
	default:
		return Settings{}, fmt.Errorf("config: SPECQA_CACHE: unknown cache %q (want none, memory or qdrant)", s.Cache)
	}
	return s, nil
}

// parser records the first parse error across several lookups.
type parser struct {
	err error
}

func (p *parser) int(key string) int {
	v := os.Getenv(key)
	if v == "" || p.err != nil {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		p.err = fmt.Errorf("config: %s: invalid non-negative integer %q", key, v)
		return 0
	}
	return n
}

func (p *parser) float(key string) float64 {
	v := os.Getenv(key)
	if v == "" || p.err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		p.err = fmt.Errorf("config: %s: invalid non-negative number %q", key, v)
		return 0
	}
	return f
}

func (p *parser) duration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" || p.err != nil {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		p.err = fmt.Errorf("config: %s: invalid duration %q", key, v)
		return 0
	}
	return d
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
