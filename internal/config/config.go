// backend-go/internal/config/config.go
package config

import (
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Cache    CacheConfig
	Storage  StorageConfig
	Drive    DriveConfig
	Forecast ForecastConfig
}

type ServerConfig struct {
	Port           string
	WorkerPort     string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN returns the libpq connection string for the database
func (c DatabaseConfig) DSN() string {
	return "host=" + c.Host + " port=" + c.Port + " user=" + c.User +
		" password=" + c.Password + " dbname=" + c.DBName + " sslmode=" + c.SSLMode
}

type AppConfig struct {
	UploadDir string
	DataDir   string
	LogLevel  string
	LogFormat string
}

type CacheConfig struct {
	Enabled         bool
	RedisURL        string
	RedisHost       string
	RedisPort       string
	RedisPassword   string
	RedisDB         int
	StatsTTLSeconds int
}

// StorageConfig selects the object storage used for run archives
type StorageConfig struct {
	Provider  string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	LocalDir  string
}

type DriveConfig struct {
	CredentialsJSON string
	FolderPath      string
}

// ForecastConfig holds the planning parameters of the forecasting engines
type ForecastConfig struct {
	Warehouses          []string
	Workers             int
	StatsInterval       time.Duration
	LearningInterval    time.Duration
	DefaultLeadTimeDays int
	ReviewPeriodDays    int
	PlanningHorizonDays int
	ForecastBlendWeight float64
	LearningAutoApply   bool
	AutoApplyThreshold  float64
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		// Set default values
		viper.SetDefault("SERVER_PORT", "8080")
		viper.SetDefault("WORKER_PORT", "8081")
		viper.SetDefault("SERVER_MODE", "debug")
		viper.SetDefault("DB_HOST", "localhost")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "postgres")
		viper.SetDefault("DB_NAME", "autopo_forecast")
		viper.SetDefault("DB_SSLMODE", "disable")
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
		viper.SetDefault("APP_UPLOAD_DIR", "./data/uploads")
		viper.SetDefault("APP_DATA_DIR", "./data/output")
		viper.SetDefault("LOG_LEVEL", "info")
		viper.SetDefault("LOG_FORMAT", "console")
		viper.SetDefault("CACHE_ENABLED", false)
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("CACHE_STATS_TTL_SECONDS", 86400)
		viper.SetDefault("STORAGE_PROVIDER", "")
		viper.SetDefault("STORAGE_REGION", "us-east-1")
		viper.SetDefault("STORAGE_USE_SSL", true)
		viper.SetDefault("STORAGE_BUCKET", "forecast-archives")
		viper.SetDefault("STORAGE_LOCAL_DIR", "./data/archives")
		viper.SetDefault("DRIVE_FOLDER_PATH", "")
		viper.SetDefault("FORECAST_WAREHOUSES", "kentucky,burnaby")
		viper.SetDefault("FORECAST_WORKERS", 4)
		viper.SetDefault("FORECAST_STATS_INTERVAL", "24h")
		viper.SetDefault("FORECAST_LEARNING_INTERVAL", "24h")
		viper.SetDefault("FORECAST_DEFAULT_LEAD_TIME_DAYS", 60)
		viper.SetDefault("FORECAST_REVIEW_PERIOD_DAYS", 30)
		viper.SetDefault("FORECAST_PLANNING_HORIZON_DAYS", 120)
		viper.SetDefault("FORECAST_BLEND_WEIGHT", 0.5)
		viper.SetDefault("LEARNING_AUTO_APPLY", true)
		viper.SetDefault("LEARNING_AUTO_APPLY_THRESHOLD", 0.8)

		// Read from environment variables
		viper.AutomaticEnv()

		// Ensure upload and data directories exist
		ensureDir(viper.GetString("APP_UPLOAD_DIR"))
		ensureDir(viper.GetString("APP_DATA_DIR"))

		instance = &Config{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				WorkerPort:     viper.GetString("WORKER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
				WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			Database: DatabaseConfig{
				Host:     viper.GetString("DB_HOST"),
				Port:     viper.GetString("DB_PORT"),
				User:     viper.GetString("DB_USER"),
				Password: viper.GetString("DB_PASSWORD"),
				DBName:   viper.GetString("DB_NAME"),
				SSLMode:  viper.GetString("DB_SSLMODE"),
			},
			App: AppConfig{
				UploadDir: viper.GetString("APP_UPLOAD_DIR"),
				DataDir:   viper.GetString("APP_DATA_DIR"),
				LogLevel:  viper.GetString("LOG_LEVEL"),
				LogFormat: viper.GetString("LOG_FORMAT"),
			},
			Cache: CacheConfig{
				Enabled:         viper.GetBool("CACHE_ENABLED"),
				RedisURL:        viper.GetString("REDIS_URL"),
				RedisHost:       viper.GetString("REDIS_HOST"),
				RedisPort:       viper.GetString("REDIS_PORT"),
				RedisPassword:   viper.GetString("REDIS_PASSWORD"),
				RedisDB:         viper.GetInt("REDIS_DB"),
				StatsTTLSeconds: viper.GetInt("CACHE_STATS_TTL_SECONDS"),
			},
			Storage: StorageConfig{
				Provider:  strings.ToLower(viper.GetString("STORAGE_PROVIDER")),
				Endpoint:  viper.GetString("STORAGE_ENDPOINT"),
				AccessKey: viper.GetString("STORAGE_ACCESS_KEY"),
				SecretKey: viper.GetString("STORAGE_SECRET_KEY"),
				Bucket:    viper.GetString("STORAGE_BUCKET"),
				Region:    viper.GetString("STORAGE_REGION"),
				UseSSL:    viper.GetBool("STORAGE_USE_SSL"),
				LocalDir:  viper.GetString("STORAGE_LOCAL_DIR"),
			},
			Drive: DriveConfig{
				CredentialsJSON: viper.GetString("GOOGLE_CREDENTIALS_JSON"),
				FolderPath:      viper.GetString("DRIVE_FOLDER_PATH"),
			},
			Forecast: ForecastConfig{
				Warehouses:          splitList(viper.GetString("FORECAST_WAREHOUSES")),
				Workers:             viper.GetInt("FORECAST_WORKERS"),
				StatsInterval:       viper.GetDuration("FORECAST_STATS_INTERVAL"),
				LearningInterval:    viper.GetDuration("FORECAST_LEARNING_INTERVAL"),
				DefaultLeadTimeDays: viper.GetInt("FORECAST_DEFAULT_LEAD_TIME_DAYS"),
				ReviewPeriodDays:    viper.GetInt("FORECAST_REVIEW_PERIOD_DAYS"),
				PlanningHorizonDays: viper.GetInt("FORECAST_PLANNING_HORIZON_DAYS"),
				ForecastBlendWeight: viper.GetFloat64("FORECAST_BLEND_WEIGHT"),
				LearningAutoApply:   viper.GetBool("LEARNING_AUTO_APPLY"),
				AutoApplyThreshold:  viper.GetFloat64("LEARNING_AUTO_APPLY_THRESHOLD"),
			},
		}
	})

	return instance
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

func ensureDir(dir string) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
}
