package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Rendering
	DPI               float64 `yaml:"dpi"`
	BatchSize         int     `yaml:"batch_size"`
	MaxImageDimension int     `yaml:"max_image_dimension"`
	Resample          string  `yaml:"resample"`
	Grayscale         bool    `yaml:"grayscale"`
	PageWorkers       int     `yaml:"page_workers"` // 1 = strictly sequential

	// Text
	TextMode           string `yaml:"text_mode"` // "ocr" or "auto"
	MinWordsThreshold  int    `yaml:"min_words"`
	MinParagraphLength int    `yaml:"min_paragraph_length"`
	MergeBelow         int    `yaml:"merge_below"`
	FilterBoilerplate  bool   `yaml:"filter_boilerplate"`
	KeepRawText        bool   `yaml:"keep_raw_text"`
	PageSeparator      string `yaml:"page_separator"`

	// Input
	MaxPDFBytes int64 `yaml:"max_pdf_bytes"`

	// OCR
	OCREngine        string        `yaml:"ocr_engine"`
	OCRLanguage      string        `yaml:"ocr_language"`
	TesseractPSM     int           `yaml:"tesseract_psm"`
	OCRTimeout       time.Duration `yaml:"ocr_timeout"`
	MaxOCRConcurrent int64         `yaml:"max_ocr_concurrent"`
	OCRRateEvery     time.Duration `yaml:"ocr_rate_every"`
	OCRRateBurst     int           `yaml:"ocr_rate_burst"`

	// Mistral OCR
	MistralAPIKey  string `yaml:"mistral_api_key"`
	MistralAPIURL  string `yaml:"mistral_api_url"`
	MistralModel   string `yaml:"mistral_model"`
	MistralRetries int    `yaml:"mistral_retries"`

	// Output
	OutputFormat string `yaml:"output_format"`
	WriteBeside  bool   `yaml:"write_beside"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	Port                  string        `yaml:"port"`
	InternalSharedSecret  string        `yaml:"internal_shared_secret"`
	MaxConcurrentRequests int64         `yaml:"max_concurrent_requests"`
	ReadHeaderTimeout     time.Duration `yaml:"read_header_timeout"`
	ReadTimeout           time.Duration `yaml:"read_timeout"`
	WriteTimeout          time.Duration `yaml:"write_timeout"`
	IdleTimeout           time.Duration `yaml:"idle_timeout"`
	RequestTimeout        time.Duration `yaml:"request_timeout"`
	RateLimitEvery        time.Duration `yaml:"rate_limit_every"`
	RateLimitBurst        int           `yaml:"rate_limit_burst"`
	CleanupInterval       time.Duration `yaml:"cleanup_interval"`
	HealthDegradeRatio    float64       `yaml:"health_degrade_ratio"`
	MaxHeaderBytes        int           `yaml:"max_header_bytes"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DPI:               300,
		BatchSize:         10,
		MaxImageDimension: 4000,
		Resample:          "catmullrom",
		PageWorkers:       1,

		TextMode:           "ocr",
		MinWordsThreshold:  20,
		MinParagraphLength: 20,
		MergeBelow:         50,
		FilterBoilerplate:  true,
		PageSeparator:      "\n\n---\n\n",

		MaxPDFBytes: 200 << 20,

		OCREngine:        "tesseract",
		OCRLanguage:      "eng",
		TesseractPSM:     3,
		OCRTimeout:       120 * time.Second,
		MaxOCRConcurrent: 3,
		OCRRateEvery:     250 * time.Millisecond,
		OCRRateBurst:     4,

		MistralAPIURL:  "https://api.mistral.ai/v1/ocr",
		MistralModel:   "mistral-ocr-latest",
		MistralRetries: 2,

		OutputFormat: "json",

		LogLevel:  "info",
		LogFormat: "text",

		Port:                  "8080",
		MaxConcurrentRequests: 4,
		ReadHeaderTimeout:     10 * time.Second,
		ReadTimeout:           60 * time.Second,
		WriteTimeout:          600 * time.Second,
		IdleTimeout:           60 * time.Second,
		RequestTimeout:        540 * time.Second,
		RateLimitEvery:        6 * time.Second,
		RateLimitBurst:        5,
		CleanupInterval:       5 * time.Minute,
		HealthDegradeRatio:    0.9,
		MaxHeaderBytes:        1 << 20,
	}
}

// Load builds a Config from the defaults, then the YAML file at path (if any),
// then environment variables.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		if err := cfg.overlayFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.overlayEnv()
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) overlayEnv() {
	c.DPI = envFloat("OCR_DPI", c.DPI)
	c.BatchSize = envInt("OCR_BATCH_SIZE", c.BatchSize)
	c.MaxImageDimension = envInt("MAX_IMAGE_DIMENSION", c.MaxImageDimension)
	c.Resample = envStr("RESAMPLE", c.Resample)
	c.Grayscale = envBool("GRAYSCALE", c.Grayscale)
	c.PageWorkers = envInt("PAGE_WORKERS", c.PageWorkers)

	c.TextMode = envStr("TEXT_MODE", c.TextMode)
	c.MinWordsThreshold = envInt("MIN_WORDS", c.MinWordsThreshold)
	c.MinParagraphLength = envInt("MIN_PARAGRAPH_LENGTH", c.MinParagraphLength)
	c.MergeBelow = envInt("MERGE_BELOW", c.MergeBelow)
	c.FilterBoilerplate = envBool("FILTER_BOILERPLATE", c.FilterBoilerplate)
	c.KeepRawText = envBool("KEEP_RAW_TEXT", c.KeepRawText)
	c.PageSeparator = envStr("PAGE_SEPARATOR", c.PageSeparator)

	c.MaxPDFBytes = int64(envInt("MAX_PDF_BYTES", int(c.MaxPDFBytes)))

	c.OCREngine = envStr("OCR_ENGINE", c.OCREngine)
	c.OCRLanguage = envStr("OCR_LANGUAGE", c.OCRLanguage)
	c.TesseractPSM = envInt("TESSERACT_PSM", c.TesseractPSM)
	c.OCRTimeout = envDur("OCR_TIMEOUT", c.OCRTimeout)
	c.MaxOCRConcurrent = int64(envInt("MAX_OCR_CONCURRENT", int(c.MaxOCRConcurrent)))
	c.OCRRateEvery = envDur("OCR_RATE_EVERY", c.OCRRateEvery)
	c.OCRRateBurst = envInt("OCR_RATE_BURST", c.OCRRateBurst)

	c.MistralAPIKey = envStr("MISTRAL_API_KEY", c.MistralAPIKey)
	c.MistralAPIURL = envStr("MISTRAL_API_URL", c.MistralAPIURL)
	c.MistralModel = envStr("MISTRAL_MODEL", c.MistralModel)
	c.MistralRetries = envInt("MISTRAL_RETRIES", c.MistralRetries)

	c.OutputFormat = envStr("OUTPUT_FORMAT", c.OutputFormat)
	c.WriteBeside = envBool("WRITE_BESIDE", c.WriteBeside)

	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envStr("LOG_FORMAT", c.LogFormat)

	c.Port = envStr("PORT", c.Port)
	c.InternalSharedSecret = envStr("INTERNAL_SHARED_SECRET", c.InternalSharedSecret)
	c.MaxConcurrentRequests = int64(envInt("MAX_CONCURRENT_REQUESTS", int(c.MaxConcurrentRequests)))
	c.ReadHeaderTimeout = envDur("READ_HEADER_TIMEOUT", c.ReadHeaderTimeout)
	c.ReadTimeout = envDur("READ_TIMEOUT", c.ReadTimeout)
	c.WriteTimeout = envDur("WRITE_TIMEOUT", c.WriteTimeout)
	c.IdleTimeout = envDur("IDLE_TIMEOUT", c.IdleTimeout)
	c.RequestTimeout = envDur("REQUEST_TIMEOUT", c.RequestTimeout)
	c.RateLimitEvery = envDur("RATE_LIMIT_EVERY", c.RateLimitEvery)
	c.RateLimitBurst = envInt("RATE_LIMIT_BURST", c.RateLimitBurst)
	c.CleanupInterval = envDur("CLEANUP_INTERVAL", c.CleanupInterval)
	c.HealthDegradeRatio = envFloat("HEALTH_DEGRADE_RATIO", c.HealthDegradeRatio)
	c.MaxHeaderBytes = envInt("MAX_HEADER_BYTES", c.MaxHeaderBytes)
}

func (c Config) Validate() error {
	if c.DPI < 36 || c.DPI > 1200 {
		return fmt.Errorf("dpi must be between 36 and 1200, got %g", c.DPI)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MaxImageDimension < 0 {
		return fmt.Errorf("max_image_dimension must not be negative")
	}
	if c.PageWorkers < 1 {
		return fmt.Errorf("page_workers must be at least 1, got %d", c.PageWorkers)
	}
	if c.MaxPDFBytes <= 0 {
		return fmt.Errorf("max_pdf_bytes must be positive")
	}
	if !oneOf(c.Resample, "catmullrom", "bilinear", "nearest") {
		return fmt.Errorf("unknown resample kernel %q", c.Resample)
	}
	if !oneOf(c.TextMode, "ocr", "auto") {
		return fmt.Errorf("text_mode must be ocr or auto, got %q", c.TextMode)
	}
	if strings.TrimSpace(c.OCRLanguage) == "" {
		return fmt.Errorf("ocr_language is required")
	}
	switch c.OCREngine {
	case "tesseract":
	case "mistral":
		if strings.TrimSpace(c.MistralAPIKey) == "" {
			return fmt.Errorf("MISTRAL_API_KEY is required for the mistral engine")
		}
	default:
		return fmt.Errorf("unknown ocr_engine %q", c.OCREngine)
	}
	if !oneOf(c.OutputFormat, "json", "text", "xlsx") {
		return fmt.Errorf("output_format must be json, text or xlsx, got %q", c.OutputFormat)
	}
	if !oneOf(c.LogFormat, "text", "json") {
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// ValidateServer adds the checks that only apply to the HTTP service.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(c.InternalSharedSecret)) < 32 {
		return fmt.Errorf("INTERNAL_SHARED_SECRET must be at least 32 characters")
	}
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("max_concurrent_requests must be positive")
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func envStr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envDur(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
