package main

import (
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	GitHubToken string `yaml:"github_token"`

	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	EmbeddingModel  string `yaml:"embedding_model"`

	DBPath          string `yaml:"db_path"`
	ReportOutputDir string `yaml:"report_output_dir"`
	CompanyName     string `yaml:"company_name"`

	MonthsBack    int     `yaml:"months_back"`
	MinConfidence float64 `yaml:"min_confidence"`
	RetrievalK    int     `yaml:"retrieval_k"`

	SlackBotToken   string `yaml:"slack_bot_token"`
	ReportChannelID string `yaml:"report_channel_id"`

	AnalysisSchedule string `yaml:"analysis_schedule"`
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.GitHubToken, "GITHUB_TOKEN")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.EmbeddingModel, "EMBEDDING_MODEL")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ReportOutputDir, "REPORT_OUTPUT_DIR")
	envOverride(&cfg.CompanyName, "COMPANY_NAME")
	envOverrideInt(&cfg.MonthsBack, "MONTHS_BACK")
	envOverrideFloat(&cfg.MinConfidence, "MIN_CONFIDENCE")
	envOverrideInt(&cfg.RetrievalK, "RETRIEVAL_K")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.ReportChannelID, "REPORT_CHANNEL_ID")
	envOverride(&cfg.AnalysisSchedule, "ANALYSIS_SCHEDULE")

	// Defaults
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "anthropic"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./rdagent.db"
	}
	if cfg.ReportOutputDir == "" {
		cfg.ReportOutputDir = "./reports"
	}
	if cfg.MonthsBack == 0 {
		cfg.MonthsBack = 12
	}
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = 50
	}
	if cfg.RetrievalK == 0 {
		cfg.RetrievalK = 3
	}

	// Validate required fields. Startup is the only place the whole run
	// may abort; everything after this point degrades per item.
	if cfg.GitHubToken == "" {
		log.Fatalf("Required config 'github_token' is not set (via config.yaml or env var)")
	}

	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Fatalf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Fatalf("openai_api_key is required when llm_provider=openai")
		}
	default:
		log.Fatalf("llm_provider must be 'anthropic' or 'openai', got '%s'", cfg.LLMProvider)
	}

	// Embeddings always go through the OpenAI API, regardless of the chat
	// provider.
	if cfg.OpenAIAPIKey == "" {
		log.Fatalf("openai_api_key is required for the embedding backend")
	}

	if cfg.MonthsBack < 1 {
		log.Fatalf("invalid months_back '%d': must be >= 1", cfg.MonthsBack)
	}
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 100 {
		log.Fatalf("invalid min_confidence '%f': must be between 0 and 100", cfg.MinConfidence)
	}
	if cfg.RetrievalK < 0 {
		log.Fatalf("invalid retrieval_k '%d': must be >= 0", cfg.RetrievalK)
	}
	if cfg.ReportChannelID != "" && cfg.SlackBotToken == "" {
		log.Fatalf("slack_bot_token is required when report_channel_id is set")
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideFloat(field *float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func (c Config) SlackConfigured() bool {
	return strings.TrimSpace(c.SlackBotToken) != "" && strings.TrimSpace(c.ReportChannelID) != ""
}
