package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/quorum-comply/internal/domain/agents"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql (default) | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	OpenAI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`

	// Agents holds the evaluator roster, grouped by provider. Roster size
	// and provider endpoints vary by deployment, so they live here and not
	// in code.
	Agents struct {
		Roster               []agents.Agent `yaml:"roster"`
		Providers            []Provider     `yaml:"providers"`
		CatalogDir           string         `yaml:"catalogDir"`
		MaxConcurrent        int            `yaml:"maxConcurrent"`
		CallTimeoutSec       int            `yaml:"callTimeoutSec"`
		PollTimeoutSec       int            `yaml:"pollTimeoutSec"`
		MinReachableFraction float64        `yaml:"minReachableFraction"`
	} `yaml:"agents"`

	Quorum struct {
		// Threshold 0 derives ceil(2n/3)+1 from the roster size. The
		// documented product deployment ships 23 of 33.
		Threshold                int     `yaml:"threshold"`
		ProviderCapFraction      float64 `yaml:"providerCapFraction"`
		MaxIndeterminateFraction float64 `yaml:"maxIndeterminateFraction"`
	} `yaml:"quorum"`

	Assessment struct {
		RunTimeoutSec        int `yaml:"runTimeoutSec"`
		MaxParallelQuestions int `yaml:"maxParallelQuestions"`
	} `yaml:"assessment"`

	PDCA struct {
		CadenceDays          int `yaml:"cadenceDays"`
		SchedulerIntervalSec int `yaml:"schedulerIntervalSec"`
	} `yaml:"pdca"`

	Events struct {
		WebhookURL string `yaml:"webhookUrl"`
	} `yaml:"events"`

	Auth struct {
		// tenant -> api key
		APIKeys map[string]string `yaml:"apiKeys"`
	} `yaml:"auth"`
}

// Provider is one evaluator vendor. BaseURL points at any
// OpenAI-compatible chat endpoint; empty means api.openai.com. Empty
// apiKey/model fall back to the openai section.
type Provider struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseUrl"`
	Model   string `yaml:"model"`
}

// Load baca file config.yaml
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq connection string for the postgres deployment.
func (c *Config) PostgresDSN() string {
	ssl := c.Database.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		ssl,
	)
}

// RunTimeout duration helpers with sane defaults
func (c *Config) RunTimeout() time.Duration {
	if c.Assessment.RunTimeoutSec > 0 {
		return time.Duration(c.Assessment.RunTimeoutSec) * time.Second
	}
	return 5 * time.Minute
}

func (c *Config) CallTimeout() time.Duration {
	if c.Agents.CallTimeoutSec > 0 {
		return time.Duration(c.Agents.CallTimeoutSec) * time.Second
	}
	return 20 * time.Second
}

func (c *Config) PollTimeout() time.Duration {
	if c.Agents.PollTimeoutSec > 0 {
		return time.Duration(c.Agents.PollTimeoutSec) * time.Second
	}
	return 90 * time.Second
}

func (c *Config) PDCACadence() time.Duration {
	if c.PDCA.CadenceDays > 0 {
		return time.Duration(c.PDCA.CadenceDays) * 24 * time.Hour
	}
	return 90 * 24 * time.Hour
}

func (c *Config) SchedulerInterval() time.Duration {
	if c.PDCA.SchedulerIntervalSec > 0 {
		return time.Duration(c.PDCA.SchedulerIntervalSec) * time.Second
	}
	return time.Minute
}
