package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"

	configPathEnv     = "PAPER_DIGEST_CONFIG"
	enrichAPIKeyEnv   = "DEEPSEEK_API_KEY"
	enrichBaseURLEnv  = "DEEPSEEK_API_URL"
	enrichModelEnv    = "DEEPSEEK_MODEL"
	senderEmailEnv    = "SENDER_EMAIL"
	senderPasswordEnv = "SENDER_PASSWORD"
	smtpServerEnv     = "SMTP_SERVER"
	smtpPortEnv       = "SMTP_PORT"
	recipientsEnv     = "RECIPIENT_EMAILS"
	dingTalkHookEnv   = "DINGTALK_WEBHOOK"
	archiveDSNEnv     = "ARCHIVE_DSN"
	logLevelEnv       = "LOG_LEVEL"
)

// Config holds high-level settings required across the application.
// It is built once at startup and passed by value; no component reads
// ambient global state.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Arxiv     ArxivConfig     `yaml:"arxiv"`
	Sites     []SiteConfig    `yaml:"sites"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Topics    []TopicConfig   `yaml:"topics"`
	Filter    FilterConfig    `yaml:"filter"`
	Enrich    EnrichConfig    `yaml:"enrich"`
	Ranking   RankingConfig   `yaml:"ranking"`
	Email     EmailConfig     `yaml:"email"`
	DingTalk  DingTalkConfig  `yaml:"dingtalk"`
	Storage   StorageConfig   `yaml:"storage"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// LoggingConfig controls the slog console handler.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ArxivConfig drives the arXiv API source.
type ArxivConfig struct {
	Keywords   []string `yaml:"keywords"`
	Categories []string `yaml:"categories"`
	MaxResults int      `yaml:"maxResults"`
	SearchMode string   `yaml:"searchMode"` // or | and | keyword_only | category_only
}

// SiteConfig describes a single site handled by a scanner strategy.
type SiteConfig struct {
	Name       string            `yaml:"name"`
	Scanner    string            `yaml:"scanner"`
	Categories []CategoryConfig  `yaml:"categories"`
	Options    map[string]string `yaml:"options"`
}

// CategoryConfig holds a concrete endpoint to crawl (e.g., an arXiv listing URL).
type CategoryConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// DedupConfig locates the fingerprint cache file.
type DedupConfig struct {
	CacheFile string `yaml:"cacheFile"`
}

// TopicConfig is one weighted keyword group. Table order matters: the
// first-defined topic wins classification ties.
type TopicConfig struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Weight      float64  `yaml:"weight"`
	Keywords    []string `yaml:"keywords"`
}

// FilterConfig controls relevance filtering and candidate truncation.
type FilterConfig struct {
	MinRelevanceScore float64 `yaml:"minRelevanceScore"`
	TopN              int     `yaml:"topN"`
	SortBy            string  `yaml:"sortBy"` // relevance | published | topic
}

// EnrichConfig defines how to contact the enrichment service.
type EnrichConfig struct {
	APIKey           string `yaml:"apiKey"`
	BaseURL          string `yaml:"baseUrl"`
	Model            string `yaml:"model"`
	TimeoutSec       int    `yaml:"timeout"`
	BatchSize        int    `yaml:"batchSize"`
	MaxRetries       int    `yaml:"maxRetries"`
	RetryDelaySec    int    `yaml:"retryDelay"`
	BatchPauseSec    int    `yaml:"batchPause"`
	MaxAbstractChars int    `yaml:"maxAbstractChars"`
	SummaryPrompt    string `yaml:"summaryPrompt"`
}

// RankingConfig holds the final-score weight split.
type RankingConfig struct {
	QualityWeight   float64 `yaml:"qualityWeight"`
	RelevanceWeight float64 `yaml:"relevanceWeight"`
}

// EmailConfig wires SMTP delivery.
type EmailConfig struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	From         string   `yaml:"from"`
	Password     string   `yaml:"password"`
	Recipients   []string `yaml:"recipients"`
	UseSSL       bool     `yaml:"useSsl"`
	MaxRetries   int      `yaml:"maxRetries"`
	SendDelaySec int      `yaml:"sendDelay"`
}

// DingTalkConfig wires the ops webhook.
type DingTalkConfig struct {
	Webhook string `yaml:"webhook"`
	Enabled bool   `yaml:"enabled"`
}

// StorageConfig locates run artifacts and the optional Postgres archive.
type StorageConfig struct {
	OutputDir  string `yaml:"outputDir"`
	ArchiveDSN string `yaml:"archiveDsn"`
}

// SchedulerConfig defines when the daily job should run.
type SchedulerConfig struct {
	ExecuteTime string         `yaml:"executeTime"` // "HH:MM"
	Timezone    string         `yaml:"timezone"`
	location    *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Topics) == 0 {
		cfg.Topics = defaultTopics()
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(enrichAPIKeyEnv); v != "" {
		c.Enrich.APIKey = v
	}
	if v := os.Getenv(enrichBaseURLEnv); v != "" {
		c.Enrich.BaseURL = v
	}
	if v := os.Getenv(enrichModelEnv); v != "" {
		c.Enrich.Model = v
	}

	if v := os.Getenv(senderEmailEnv); v != "" {
		c.Email.From = v
	}
	if v := os.Getenv(senderPasswordEnv); v != "" {
		c.Email.Password = v
	}
	if v := os.Getenv(smtpServerEnv); v != "" {
		c.Email.Host = v
	}
	if v := os.Getenv(smtpPortEnv); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Email.Port = port
		} else {
			log.Printf("config: invalid %s=%q, keeping %d", smtpPortEnv, v, c.Email.Port)
		}
	}
	if v := os.Getenv(recipientsEnv); v != "" {
		c.Email.Recipients = splitList(v)
	}

	if v := os.Getenv(dingTalkHookEnv); v != "" {
		c.DingTalk.Webhook = v
		c.DingTalk.Enabled = true
	}

	if v := os.Getenv(archiveDSNEnv); v != "" {
		c.Storage.ArchiveDSN = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func splitList(value string) []string {
	parts := strings.Split(value, "|")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}

	if len(override.Arxiv.Keywords) > 0 {
		base.Arxiv.Keywords = override.Arxiv.Keywords
	}
	if len(override.Arxiv.Categories) > 0 {
		base.Arxiv.Categories = override.Arxiv.Categories
	}
	if override.Arxiv.MaxResults > 0 {
		base.Arxiv.MaxResults = override.Arxiv.MaxResults
	}
	if override.Arxiv.SearchMode != "" {
		base.Arxiv.SearchMode = override.Arxiv.SearchMode
	}

	if len(override.Sites) > 0 {
		base.Sites = override.Sites
	}

	if override.Dedup.CacheFile != "" {
		base.Dedup = override.Dedup
	}

	if len(override.Topics) > 0 {
		base.Topics = override.Topics
	}

	if override.Filter.MinRelevanceScore > 0 {
		base.Filter.MinRelevanceScore = override.Filter.MinRelevanceScore
	}
	if override.Filter.TopN > 0 {
		base.Filter.TopN = override.Filter.TopN
	}
	if override.Filter.SortBy != "" {
		base.Filter.SortBy = override.Filter.SortBy
	}

	if override.Enrich.APIKey != "" {
		base.Enrich.APIKey = override.Enrich.APIKey
	}
	if override.Enrich.BaseURL != "" {
		base.Enrich.BaseURL = override.Enrich.BaseURL
	}
	if override.Enrich.Model != "" {
		base.Enrich.Model = override.Enrich.Model
	}
	if override.Enrich.TimeoutSec > 0 {
		base.Enrich.TimeoutSec = override.Enrich.TimeoutSec
	}
	if override.Enrich.BatchSize > 0 {
		base.Enrich.BatchSize = override.Enrich.BatchSize
	}
	if override.Enrich.MaxRetries > 0 {
		base.Enrich.MaxRetries = override.Enrich.MaxRetries
	}
	if override.Enrich.RetryDelaySec > 0 {
		base.Enrich.RetryDelaySec = override.Enrich.RetryDelaySec
	}
	if override.Enrich.BatchPauseSec > 0 {
		base.Enrich.BatchPauseSec = override.Enrich.BatchPauseSec
	}
	if override.Enrich.MaxAbstractChars > 0 {
		base.Enrich.MaxAbstractChars = override.Enrich.MaxAbstractChars
	}
	if override.Enrich.SummaryPrompt != "" {
		base.Enrich.SummaryPrompt = override.Enrich.SummaryPrompt
	}

	if override.Ranking.QualityWeight > 0 || override.Ranking.RelevanceWeight > 0 {
		base.Ranking = override.Ranking
	}

	if override.Email.Host != "" {
		base.Email.Host = override.Email.Host
	}
	if override.Email.Port > 0 {
		base.Email.Port = override.Email.Port
	}
	if override.Email.From != "" {
		base.Email.From = override.Email.From
	}
	if override.Email.Password != "" {
		base.Email.Password = override.Email.Password
	}
	if len(override.Email.Recipients) > 0 {
		base.Email.Recipients = override.Email.Recipients
	}
	if override.Email.UseSSL {
		base.Email.UseSSL = true
	}
	if override.Email.MaxRetries > 0 {
		base.Email.MaxRetries = override.Email.MaxRetries
	}
	if override.Email.SendDelaySec > 0 {
		base.Email.SendDelaySec = override.Email.SendDelaySec
	}

	if override.DingTalk.Webhook != "" {
		base.DingTalk = override.DingTalk
	}

	if override.Storage.OutputDir != "" {
		base.Storage.OutputDir = override.Storage.OutputDir
	}
	if override.Storage.ArchiveDSN != "" {
		base.Storage.ArchiveDSN = override.Storage.ArchiveDSN
	}

	if override.Scheduler.ExecuteTime != "" {
		base.Scheduler.ExecuteTime = override.Scheduler.ExecuteTime
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Arxiv: ArxivConfig{
			Keywords:   []string{"reinforcement learning", "image denoising"},
			Categories: []string{"cs.CV", "cs.AI", "cs.LG"},
			MaxResults: 50,
			SearchMode: "or",
		},
		Dedup: DedupConfig{CacheFile: "data/processed_papers.json"},
		Filter: FilterConfig{
			MinRelevanceScore: 0.0,
			TopN:              10,
			SortBy:            "relevance",
		},
		Enrich: EnrichConfig{
			BaseURL:          "https://api.deepseek.com/v1",
			Model:            "deepseek-chat",
			TimeoutSec:       30,
			BatchSize:        3,
			MaxRetries:       3,
			RetryDelaySec:    2,
			BatchPauseSec:    1,
			MaxAbstractChars: 1500,
		},
		Ranking: RankingConfig{QualityWeight: 0.7, RelevanceWeight: 0.3},
		Email: EmailConfig{
			Port:         587,
			MaxRetries:   1,
			SendDelaySec: 1,
		},
		Storage:   StorageConfig{OutputDir: "out"},
		Scheduler: SchedulerConfig{ExecuteTime: "09:00", Timezone: defaultTimezone, location: tz},
	}
}

func defaultTopics() []TopicConfig {
	return []TopicConfig{
		{
			Name:        "image_denoising",
			Description: "Image denoising",
			Weight:      1.0,
			Keywords:    []string{"denoise", "denoising", "noise removal", "image quality", "restoration"},
		},
		{
			Name:        "image_deraining",
			Description: "Image deraining",
			Weight:      1.0,
			Keywords:    []string{"derain", "deraining", "rain removal", "raindrop", "weather"},
		},
		{
			Name:        "reinforcement_learning",
			Description: "Reinforcement learning",
			Weight:      1.0,
			Keywords:    []string{"reinforcement learning", "RL", "Q-learning", "policy gradient", "reward", "agent", "environment"},
		},
		{
			Name:        "embodied_ai",
			Description: "Embodied AI",
			Weight:      1.0,
			Keywords:    []string{"embodied", "embodied AI", "robot", "navigation", "vision-language-action", "VLA", "embodied agent"},
		},
		{
			Name:        "computer_vision",
			Description: "Computer vision",
			Weight:      0.5,
			Keywords:    []string{"vision", "image", "visual", "video", "detection", "segmentation", "recognition"},
		},
		{
			Name:        "deep_learning",
			Description: "Deep learning",
			Weight:      0.3,
			Keywords:    []string{"deep learning", "neural network", "CNN", "transformer", "model", "network"},
		},
	}
}
