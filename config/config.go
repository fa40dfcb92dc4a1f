// Package config loads settings from defaults, an optional TOML file, a .env file and the
// environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix = "ELE_"

	BackendOpenAI = "openai"
	BackendLocal  = "local"

	StoreMemory   = "memory"
	StoreCosmosDB = "cosmosdb"
	StoreRedis    = "redis"
)

type Config struct {
	Server struct {
		Port        string        `koanf:"port"`
		StaticDir   string        `koanf:"static_dir"`
		TurnTimeout time.Duration `koanf:"turn_timeout"`
		RateLimit   int           `koanf:"rate_limit"`
		RateBurst   int           `koanf:"rate_burst"`
	} `koanf:"server"`

	Assistant struct {
		Backend         string        `koanf:"backend"`
		APIKey          string        `koanf:"api_key"`
		AssistantID     string        `koanf:"assistant_id"`
		BaseURL         string        `koanf:"base_url"`
		Instructions    string        `koanf:"instructions"`
		PollInterval    time.Duration `koanf:"poll_interval"`
		PollMaxInterval time.Duration `koanf:"poll_max_interval"`
		PollTimeout     time.Duration `koanf:"poll_timeout"`
	} `koanf:"assistant"`

	// LLM is the OpenAI compatible model behind the local backend.
	LLM struct {
		Endpoint string `koanf:"endpoint"`
		APIKey   string `koanf:"api_key"`
		Model    string `koanf:"model"`
		APIType  string `koanf:"api_type"`
	} `koanf:"llm"`

	Store struct {
		Type string        `koanf:"type"`
		TTL  time.Duration `koanf:"ttl"`
	} `koanf:"store"`

	CosmosDB struct {
		Endpoint  string `koanf:"endpoint"`
		Database  string `koanf:"database"`
		Container string `koanf:"container"`
		Emulator  bool   `koanf:"emulator"`
	} `koanf:"cosmosdb"`

	Redis struct {
		URL string `koanf:"url"`
	} `koanf:"redis"`

	Log struct {
		Level  string `koanf:"level"`
		Pretty bool   `koanf:"pretty"`
	} `koanf:"log"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.port":                 "8080",
		"server.static_dir":           "./static",
		"server.turn_timeout":         "3m",
		"server.rate_limit":           30,
		"server.rate_burst":           5,
		"assistant.backend":           BackendOpenAI,
		"assistant.poll_interval":     "1s",
		"assistant.poll_max_interval": "5s",
		"assistant.poll_timeout":      "2m",
		"llm.api_type":                "openai",
		"store.type":                  StoreMemory,
		"store.ttl":                   "1h",
		"cosmosdb.database":           "elechat",
		"cosmosdb.container":          "threads",
		"redis.url":                   "redis://localhost:6379/0",
		"log.level":                   "info",
	}
}

// Load reads configuration. An empty configPath falls back to ./ele.toml when it exists.
func Load(configPath string) (*Config, error) {
	var k = koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath == "" {
		if _, err := os.Stat("ele.toml"); err == nil {
			configPath = "ele.toml"
		}
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	// a missing .env is fine
	_ = godotenv.Load()

	// ELE_ASSISTANT_API_KEY -> assistant.api_key
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if cfg.Assistant.APIKey == "" {
		cfg.Assistant.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if port := os.Getenv("PORT"); port != "" && os.Getenv(envPrefix+"SERVER_PORT") == "" {
		cfg.Server.Port = port
	}

	return &cfg, nil
}

// envKey maps ELE_SECTION_SOME_KEY to section.some_key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	section, key, found := strings.Cut(s, "_")
	if !found {
		return s
	}
	return section + "." + key
}

// Validate checks the settings the selected backend and store depend on. A missing hosted
// API key is not an error: requests then fail as upstream unavailable.
func Validate(cfg *Config) error {
	switch cfg.Assistant.Backend {
	case BackendOpenAI:
		if cfg.Assistant.AssistantID == "" {
			return errors.New("assistant.assistant_id is required for the openai backend")
		}
	case BackendLocal:
		if cfg.LLM.Model == "" {
			return errors.New("llm.model is required for the local backend")
		}
		if cfg.LLM.APIType != "openai" && cfg.LLM.APIType != "azure" {
			return fmt.Errorf("llm.api_type must be openai or azure, got %q", cfg.LLM.APIType)
		}
		if cfg.LLM.APIType == "azure" && cfg.LLM.Endpoint == "" {
			return errors.New("llm.endpoint is required for azure")
		}
		switch cfg.Store.Type {
		case StoreMemory, StoreRedis:
		case StoreCosmosDB:
			if cfg.CosmosDB.Endpoint == "" {
				return errors.New("cosmosdb.endpoint is required for the cosmosdb store")
			}
		default:
			return fmt.Errorf("unknown store type %q", cfg.Store.Type)
		}
	default:
		return fmt.Errorf("unknown assistant backend %q", cfg.Assistant.Backend)
	}

	if cfg.Assistant.PollTimeout <= 0 {
		return errors.New("assistant.poll_timeout must be positive")
	}
	// the HTTP write timeout is derived from it
	if cfg.Server.TurnTimeout <= 0 {
		return errors.New("server.turn_timeout must be positive")
	}
	return nil
}
