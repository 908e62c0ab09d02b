package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/timmy/annotate/internal/domain"
	"github.com/timmy/annotate/internal/prompts"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	VLM      VLMConfig      `mapstructure:"vlm"`
	Annotate AnnotateConfig `mapstructure:"annotate"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	Mode        string   `mapstructure:"mode"`
	CORSOrigins []string `mapstructure:"cors_origins"` // empty allows any origin
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite or postgres
	Path            string        `mapstructure:"path"`   // sqlite file
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

// StorageConfig describes where image renditions are served from.
// Type "static" serves keys under BaseURL; s3, r2 and s3compatible use the S3 API.
type StorageConfig struct {
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
	BaseURL   string `mapstructure:"base_url"`
}

type VLMConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PromptsConfig holds the raw prompt values per kind. Sentinel values such as
// "" or "true" disable a kind, see domain.ParsePrompt.
type PromptsConfig struct {
	Alt         string `mapstructure:"alt"`
	Description string `mapstructure:"description"`
	Caption     string `mapstructure:"caption"`
	Title       string `mapstructure:"title"`
}

type AnnotateConfig struct {
	OutputDir      string        `mapstructure:"output_dir"`
	CheckpointFile string        `mapstructure:"checkpoint_file"`
	Size           string        `mapstructure:"size"`
	Publish        bool          `mapstructure:"publish"`
	Prompts        PromptsConfig `mapstructure:"prompts"`
}

// Sizes are the image renditions that can be sent to the model.
var Sizes = []string{"original", "large", "medium", "small"}

// CheckpointPath returns the full checkpoint location.
func (c *AnnotateConfig) CheckpointPath() string {
	return filepath.Join(c.OutputDir, c.CheckpointFile)
}

// PromptSet converts the raw prompt values into the immutable set used by
// the pipeline.
func (c *AnnotateConfig) PromptSet() domain.PromptSet {
	return domain.NewPromptSet(map[domain.Kind]domain.Prompt{
		domain.KindAlt:         domain.ParsePrompt(c.Prompts.Alt),
		domain.KindDescription: domain.ParsePrompt(c.Prompts.Description),
		domain.KindCaption:     domain.ParsePrompt(c.Prompts.Caption),
		domain.KindTitle:       domain.ParsePrompt(c.Prompts.Title),
	})
}

// Validate checks the annotate section. requirePrompts is set for the
// generate phase, which is pointless without at least one enabled kind.
func (c *AnnotateConfig) Validate(requirePrompts bool) error {
	if c.OutputDir == "" {
		return fmt.Errorf("annotate.output_dir is required")
	}
	if c.CheckpointFile == "" {
		return fmt.Errorf("annotate.checkpoint_file is required")
	}
	if !validSize(c.Size) {
		return fmt.Errorf("unknown image size %q (want one of %s)", c.Size, strings.Join(Sizes, ", "))
	}
	if requirePrompts && len(c.PromptSet().Enabled()) == 0 {
		return fmt.Errorf("every annotation kind is disabled; configure at least one prompt")
	}
	return nil
}

func validSize(size string) bool {
	for _, s := range Sizes {
		if s == size {
			return true
		}
	}
	return false
}

// Load reads configuration from .env, the YAML file and the environment.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/media.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("storage.type", "static")
	v.SetDefault("storage.base_url", "http://localhost:8000/media")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "media")
	v.SetDefault("vlm.base_url", "http://localhost:11434")
	v.SetDefault("vlm.model", "llava")
	v.SetDefault("vlm.timeout", 30*time.Minute)
	v.SetDefault("annotate.output_dir", "./data")
	v.SetDefault("annotate.checkpoint_file", "image_annotations.csv")
	v.SetDefault("annotate.size", "large")
	v.SetDefault("annotate.publish", false)
	v.SetDefault("annotate.prompts.alt", prompts.Alt)
	v.SetDefault("annotate.prompts.description", prompts.Description)
	v.SetDefault("annotate.prompts.caption", "false")
	v.SetDefault("annotate.prompts.title", "false")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Explicit bindings for the names operators already use
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	v.BindEnv("vlm.base_url", "OLLAMA_HOST")
	v.BindEnv("vlm.model", "VLM_MODEL")
	v.BindEnv("annotate.output_dir", "ANNOTATE_OUTPUT_DIR")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
