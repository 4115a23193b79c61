package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	VectorStoreAstra    = "astra"
	VectorStorePGVector = "pgvector"

	LLMProviderGoogle   = "google"
	LLMProviderGigaChat = "gigachat"
)

// Secrets the retriever cannot start without when backed by Astra DB.
var RequiredAstraEnv = []string{
	"GOOGLE_API_KEY",
	"ASTRA_DB_API_ENDPOINT",
	"ASTRA_DB_APPLICATION_TOKEN",
	"ASTRA_DB_KEYSPACE",
}

type Config struct {
	Server      ServerConfig     `yaml:"-"`
	Database    DatabaseConfig   `yaml:"-"`
	GigaChat    GigaChatConfig   `yaml:"-"`
	Logger      LoggerConfig     `yaml:"-"`
	VectorStore string           `yaml:"vector_store"`
	AstraDB     AstraDBConfig    `yaml:"astra_db"`
	Retriever   RetrieverConfig  `yaml:"retriever"`
	LLM         LLMConfig        `yaml:"llm"`
	Embedding   EmbeddingConfig  `yaml:"embedding_model"`
	Scraper     ScraperConfig    `yaml:"scraper"`
	Evaluation  EvaluationConfig `yaml:"evaluation"`
	RateLimit   RateLimitConfig  `yaml:"rate_limit"`
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	StaticDir    string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	Model              string
	InsecureSkipVerify bool
}

// AstraDBConfig holds the collection name from the config file and the
// connection secrets from the environment.
type AstraDBConfig struct {
	CollectionName   string        `yaml:"collection_name"`
	APIEndpoint      string        `yaml:"-"`
	ApplicationToken string        `yaml:"-"`
	Keyspace         string        `yaml:"-"`
	Timeout          time.Duration `yaml:"timeout"`
}

type RetrieverConfig struct {
	TopK           int     `yaml:"top_k"`
	FetchK         int     `yaml:"fetch_k"`
	LambdaMult     float64 `yaml:"lambda_mult"`
	ScoreThreshold float64 `yaml:"score_threshold"`
}

type LLMConfig struct {
	Provider        string  `yaml:"provider"`
	ModelName       string  `yaml:"model_name"`
	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	APIKey          string  `yaml:"-"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	ModelName string `yaml:"model_name"`
}

type ScraperConfig struct {
	BaseURL        string        `yaml:"base_url"`
	OutputDir      string        `yaml:"output_dir"`
	Headless       bool          `yaml:"headless"`
	PageLoadDelay  time.Duration `yaml:"page_load_delay"`
	PopupDelay     time.Duration `yaml:"popup_delay"`
	SettleDelay    time.Duration `yaml:"settle_delay"`
	ScrollDelay    time.Duration `yaml:"scroll_delay"`
	PopupTimeout   time.Duration `yaml:"popup_timeout"`
	DefaultItems   int           `yaml:"max_products"`
	DefaultReviews int           `yaml:"review_count"`
}

type EvaluationConfig struct {
	Strictness  int `yaml:"strictness"`
	Concurrency int `yaml:"concurrency"`
}

type RateLimitConfig struct {
	LLMRequestsPerSecond float64 `yaml:"llm_requests_per_second"`
	LLMBurst             int     `yaml:"llm_burst"`
	ChatMaxPerMinute     int     `yaml:"chat_max_per_minute"`
}

// MissingEnvError lists every required variable that was not set.
type MissingEnvError struct {
	Names []string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("missing environment variables: %v", e.Names)
}

func Load() (*Config, error) {
	// .env is optional; plain environment variables work too (Docker/K8s)
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	cfg := defaultConfig()

	path := getEnv("CONFIG_PATH", "config/config.yaml")
	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// LoadFile reads only the YAML mapping, without touching the environment.
func LoadFile(path string) (*Config, error) {
	cfg := defaultConfig()
	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// RequiredEnv returns the secrets the selected vector store backend needs.
func (c *Config) RequiredEnv() []string {
	if c.VectorStore == VectorStorePGVector {
		return []string{"GOOGLE_API_KEY"}
	}
	return RequiredAstraEnv
}

// CheckEnv fails with every missing name at once. A variable set to the
// empty string counts as present.
func CheckEnv(lookup func(string) (string, bool), names []string) error {
	var missing []string
	for _, name := range names {
		if _, ok := lookup(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingEnvError{Names: missing}
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		VectorStore: VectorStoreAstra,
		AstraDB: AstraDBConfig{
			CollectionName: "ecommercedata",
			Timeout:        30 * time.Second,
		},
		// zero is meaningful for these two, so they are defaulted before the
		// file is decoded and only absent keys keep the default
		Retriever: RetrieverConfig{
			LambdaMult:     0.7,
			ScoreThreshold: 0.3,
		},
		LLM: LLMConfig{
			Provider:        LLMProviderGoogle,
			ModelName:       "gemini-2.0-flash",
			MaxOutputTokens: 2048,
		},
		Embedding: EmbeddingConfig{
			Provider:  LLMProviderGoogle,
			ModelName: "text-embedding-004",
		},
		Scraper: ScraperConfig{
			BaseURL:        "https://www.flipkart.com",
			OutputDir:      "data",
			Headless:       true,
			PageLoadDelay:  5 * time.Second,
			PopupDelay:     2 * time.Second,
			SettleDelay:    2 * time.Second,
			ScrollDelay:    1500 * time.Millisecond,
			PopupTimeout:   3 * time.Second,
			DefaultItems:   1,
			DefaultReviews: 2,
		},
	}
}

func applyEnv(cfg *Config) {
	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "120"))
	insecureSkipVerify := getEnv("GIGACHAT_INSECURE_SKIP_VERIFY", "true") == "true"

	cfg.Server = ServerConfig{
		Port:         getEnv("SERVER_PORT", "8000"),
		ReadTimeout:  time.Duration(readTimeout) * time.Second,
		WriteTimeout: time.Duration(writeTimeout) * time.Second,
		StaticDir:    getEnv("STATIC_DIR", ""),
	}
	cfg.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		DBName:   getEnv("DB_NAME", "prod_assistant"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
	cfg.GigaChat = GigaChatConfig{
		APIKey:             getEnv("GIGACHAT_API_KEY", ""),
		Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
		Model:              getEnv("GIGACHAT_MODEL", "GigaChat"),
		InsecureSkipVerify: insecureSkipVerify,
	}
	cfg.Logger = LoggerConfig{
		Level: getEnv("LOG_LEVEL", "info"),
	}

	cfg.VectorStore = getEnv("VECTOR_STORE", cfg.VectorStore)
	cfg.LLM.Provider = getEnv("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.APIKey = os.Getenv("GOOGLE_API_KEY")
	cfg.AstraDB.APIEndpoint = os.Getenv("ASTRA_DB_API_ENDPOINT")
	cfg.AstraDB.ApplicationToken = os.Getenv("ASTRA_DB_APPLICATION_TOKEN")
	cfg.AstraDB.Keyspace = os.Getenv("ASTRA_DB_KEYSPACE")
}

func applyDefaults(cfg *Config) {
	if cfg.Retriever.TopK <= 0 {
		cfg.Retriever.TopK = 3
	}
	if cfg.Retriever.FetchK <= 0 {
		cfg.Retriever.FetchK = 20
	}
	if cfg.Retriever.FetchK < cfg.Retriever.TopK {
		cfg.Retriever.FetchK = cfg.Retriever.TopK
	}
	if cfg.Evaluation.Strictness <= 0 {
		cfg.Evaluation.Strictness = 3
	}
	if cfg.Evaluation.Concurrency <= 0 {
		cfg.Evaluation.Concurrency = 4
	}
	if cfg.RateLimit.LLMRequestsPerSecond <= 0 {
		cfg.RateLimit.LLMRequestsPerSecond = 5
	}
	if cfg.RateLimit.LLMBurst <= 0 {
		cfg.RateLimit.LLMBurst = 5
	}
	if cfg.RateLimit.ChatMaxPerMinute <= 0 {
		cfg.RateLimit.ChatMaxPerMinute = 30
	}
	if cfg.Scraper.OutputDir == "" {
		cfg.Scraper.OutputDir = "data"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
