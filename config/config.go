package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"manuscript-converter/models"
)

type Config struct {
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisPrefix     string
	PendingQueue    string
	ProcessingQueue string
	FailedQueue     string
	LockPrefix      string
	StatusPrefix    string
	LockTTL         time.Duration
	WorkerCount     int
	GotenbergURL    string
	GotenbergPDFA   string
	S3Bucket        string
	S3Region        string
	AWSS3AccessKey  string
	AWSS3SecretKey  string
	S3Endpoint      string
	S3UsePathStyle  bool
	DatabaseURL     string
	// ConversionTimeout bounds a whole run, ToolTimeout a single external process.
	ConversionTimeout time.Duration
	ToolTimeout       time.Duration
	MaxRetries        int
	WorkspaceDir      string
	KeepWorkspaces    bool
	MediaPublicURL    string
	ImageClass        string
	JPEGMaxSize       string
	LogLevel          string
	LogFormat         string
	ConfigFile        string
	Tools             Tools
	Stages            models.StagePolicy
}

// Tools names the external binaries. Each may be an absolute path.
type Tools struct {
	Pandoc    string `yaml:"pandoc"`
	Soffice   string `yaml:"soffice"`
	PDFLatex  string `yaml:"pdflatex"`
	Bibtex    string `yaml:"bibtex"`
	Inkscape  string `yaml:"inkscape"`
	Mogrify   string `yaml:"mogrify"`
	Cwebp     string `yaml:"cwebp"`
	Optipng   string `yaml:"optipng"`
	Pngquant  string `yaml:"pngquant"`
	Jpegoptim string `yaml:"jpegoptim"`
	Unzip     string `yaml:"unzip"`
}

func DefaultTools() Tools {
	return Tools{
		Pandoc:    getEnv("PANDOC_PATH", "pandoc"),
		Soffice:   getEnv("LIBREOFFICE_PATH", "soffice"),
		PDFLatex:  getEnv("PDFLATEX_PATH", "pdflatex"),
		Bibtex:    getEnv("BIBTEX_PATH", "bibtex"),
		Inkscape:  getEnv("INKSCAPE_PATH", "inkscape"),
		Mogrify:   getEnv("MOGRIFY_PATH", "mogrify"),
		Cwebp:     getEnv("CWEBP_PATH", "cwebp"),
		Optipng:   getEnv("OPTIPNG_PATH", "optipng"),
		Pngquant:  getEnv("PNGQUANT_PATH", "pngquant"),
		Jpegoptim: getEnv("JPEGOPTIM_PATH", "jpegoptim"),
		Unzip:     getEnv("UNZIP_PATH", "unzip"),
	}
}

// Load builds the configuration from the environment, then overlays the
// optional YAML file and finally the command-line flags in args.
func Load(args []string) (*Config, error) {
	cfg := loadEnv()

	fl, err := parseFlags(args)
	if err != nil {
		return nil, err
	}
	if fl.configFile != "" {
		cfg.ConfigFile = fl.configFile
	}

	if cfg.ConfigFile != "" {
		if err := applyFile(cfg, cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	fl.apply(cfg)
	return cfg, nil
}

func loadEnv() *Config {
	redisPrefix := getEnv("REDIS_PREFIX", "")
	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbName := getEnv("DB_DATABASE", "manuscripts")
	dbUser := getEnv("DB_USERNAME", "manuscripts")
	dbPassword := getEnv("DB_PASSWORD", "")
	dbSSLMode := getEnv("DB_SSLMODE", "disable")

	// lib/pq supports "key=value" connection strings and this avoids
	// URI escaping issues for special characters in passwords.
	dbURL := fmt.Sprintf("host=%s port=%s dbname=%s user=%s sslmode=%s",
		dbHost, dbPort, dbName, dbUser, dbSSLMode)
	if dbPassword != "" {
		dbURL += fmt.Sprintf(" password=%s", dbPassword)
	}
	if v := getEnv("DATABASE_URL", ""); v != "" {
		dbURL = v
	}

	return &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_CONVERSION_DB", 3),
		RedisPrefix:   redisPrefix,
		PendingQueue:  applyPrefix(getEnv("CONVERSION_PENDING_QUEUE", "conversion:pending"), redisPrefix),
		ProcessingQueue: applyPrefix(
			getEnv("CONVERSION_PROCESSING_QUEUE", "conversion:processing"),
			redisPrefix,
		),
		FailedQueue: applyPrefix(
			getEnv("CONVERSION_FAILED_QUEUE", "conversion:failed"),
			redisPrefix,
		),
		LockPrefix:     applyPrefix("conversion:lock:", redisPrefix),
		StatusPrefix:   applyPrefix("conversion:status:", redisPrefix),
		LockTTL:        time.Duration(getEnvInt("CONVERSION_LOCK_TTL", 900)) * time.Second,
		WorkerCount:    getEnvInt("CONVERSION_WORKER_COUNT", 3),
		GotenbergURL:   getEnv("GOTENBERG_URL", "http://gotenberg:3000"),
		GotenbergPDFA:  getEnv("GOTENBERG_PDFA", "PDF/A-2b"),
		S3Bucket:       getEnv("AWS_BUCKET", "manuscripts"),
		S3Region:       getEnvWithFallback("S3_REGION", "AWS_DEFAULT_REGION", "us-east-1"),
		AWSS3AccessKey: getEnvWithFallback("S3_KEY", "AWS_ACCESS_KEY_ID", ""),
		AWSS3SecretKey: getEnvWithFallback("S3_SECRET", "AWS_SECRET_ACCESS_KEY", ""),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3UsePathStyle: getEnvBool("S3_USE_PATH_STYLE_ENDPOINT", false),
		DatabaseURL:    dbURL,

		ConversionTimeout: time.Duration(getEnvInt("CONVERSION_TIMEOUT", 600)) * time.Second,
		ToolTimeout:       time.Duration(getEnvInt("TOOL_TIMEOUT", 120)) * time.Second,
		MaxRetries:        getEnvInt("CONVERSION_MAX_RETRIES", 3),
		WorkspaceDir:      getEnv("WORKSPACE_DIR", os.TempDir()+"/conversions"),
		KeepWorkspaces:    getEnvBool("KEEP_WORKSPACES", false),
		MediaPublicURL:    strings.TrimSuffix(getEnv("MEDIA_PUBLIC_URL", "http://localhost:8080/media"), "/"),
		ImageClass:        getEnv("IMAGE_CLASS", "img-fluid"),
		JPEGMaxSize:       getEnv("JPEG_MAX_SIZE", "500k"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		ConfigFile:        getEnv("CONVERTER_CONFIG", ""),
		Tools:             DefaultTools(),
		Stages:            models.DefaultStagePolicy(),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvWithFallback(primaryKey, secondaryKey, fallback string) string {
	if value := os.Getenv(primaryKey); value != "" {
		return value
	}
	if value := os.Getenv(secondaryKey); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func applyPrefix(key string, prefix string) string {
	if prefix == "" {
		return key
	}
	return prefix + key
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}
