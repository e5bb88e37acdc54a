package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Grading holds the tunables of the marking and triage policy. Thresholds and
// weights are deployment configuration, not module constants: institutions
// tune them per subject.
type Grading struct {
	AcceptThreshold   float64
	ReviewThreshold   float64
	SegmentWeight     float64
	SimilarityWeight  float64
	MaxAttempts       int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	WorkerCount       int
	ScoreFanOut       int
	ExtractionTimeout time.Duration
	ScoringTimeout    time.Duration
}

// Config holds runtime configuration values for the grader service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	ResultCacheTTL         time.Duration
	AIProvider             string
	OpenAIAPIKey           string
	GeminiAPIKey           string
	OCREngine              string
	TesseractLanguages     string
	Grading                Grading
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRADER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Grader API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cloudinary.folder", "grader/sheets")
	v.SetDefault("result.cache_ttl", "10m")
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ocr.engine", "tesseract")
	v.SetDefault("ocr.languages", "eng")
	v.SetDefault("grading.accept_threshold", 0.75)
	v.SetDefault("grading.review_threshold", 0.5)
	v.SetDefault("grading.segment_weight", 0.5)
	v.SetDefault("grading.similarity_weight", 0.5)
	v.SetDefault("grading.max_attempts", 3)
	v.SetDefault("grading.retry_base_delay", "500ms")
	v.SetDefault("grading.retry_max_delay", "8s")
	v.SetDefault("grading.worker_count", 4)
	v.SetDefault("grading.score_fan_out", 8)
	v.SetDefault("grading.extraction_timeout", "45s")
	v.SetDefault("grading.scoring_timeout", "20s")

	ttl, err := time.ParseDuration(v.GetString("result.cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid result cache ttl: %w", err)
	}

	grading, err := loadGrading(v)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		ResultCacheTTL:         ttl,
		AIProvider:             strings.ToLower(v.GetString("ai.provider")),
		OpenAIAPIKey:           v.GetString("openai_api_key"),
		GeminiAPIKey:           v.GetString("gemini_api_key"),
		OCREngine:              strings.ToLower(v.GetString("ocr.engine")),
		TesseractLanguages:     v.GetString("ocr.languages"),
		Grading:                grading,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	return cfg, nil
}

func loadGrading(v *viper.Viper) (Grading, error) {
	baseDelay, err := time.ParseDuration(v.GetString("grading.retry_base_delay"))
	if err != nil {
		return Grading{}, fmt.Errorf("invalid retry base delay: %w", err)
	}

	maxDelay, err := time.ParseDuration(v.GetString("grading.retry_max_delay"))
	if err != nil {
		return Grading{}, fmt.Errorf("invalid retry max delay: %w", err)
	}

	extractionTimeout, err := time.ParseDuration(v.GetString("grading.extraction_timeout"))
	if err != nil {
		return Grading{}, fmt.Errorf("invalid extraction timeout: %w", err)
	}

	scoringTimeout, err := time.ParseDuration(v.GetString("grading.scoring_timeout"))
	if err != nil {
		return Grading{}, fmt.Errorf("invalid scoring timeout: %w", err)
	}

	g := Grading{
		AcceptThreshold:   v.GetFloat64("grading.accept_threshold"),
		ReviewThreshold:   v.GetFloat64("grading.review_threshold"),
		SegmentWeight:     v.GetFloat64("grading.segment_weight"),
		SimilarityWeight:  v.GetFloat64("grading.similarity_weight"),
		MaxAttempts:       v.GetInt("grading.max_attempts"),
		RetryBaseDelay:    baseDelay,
		RetryMaxDelay:     maxDelay,
		WorkerCount:       v.GetInt("grading.worker_count"),
		ScoreFanOut:       v.GetInt("grading.score_fan_out"),
		ExtractionTimeout: extractionTimeout,
		ScoringTimeout:    scoringTimeout,
	}

	if g.AcceptThreshold <= 0 || g.AcceptThreshold > 1 {
		return Grading{}, fmt.Errorf("accept threshold must be in (0,1]")
	}
	if g.ReviewThreshold < 0 || g.ReviewThreshold > 1 {
		return Grading{}, fmt.Errorf("review threshold must be in [0,1]")
	}
	if g.MaxAttempts <= 0 {
		g.MaxAttempts = 3
	}
	if g.WorkerCount <= 0 {
		g.WorkerCount = 4
	}
	if g.ScoreFanOut <= 0 {
		g.ScoreFanOut = 8
	}

	return g, nil
}
