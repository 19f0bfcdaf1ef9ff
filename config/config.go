package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig
	Importer  ImporterConfig
	Supabase  SupabaseConfig
	S3        S3Config
	AMQP      AMQPConfig
	Proxy     ProxyConfig
	Retention RetentionConfig

	// ObjectStore selects the image backend: "supabase" or "s3".
	ObjectStore string
	// ListingStore selects the persistence backend: "supabase" or "postgres".
	ListingStore string

	DBPath   string
	LogFile  string
	LogLevel string
	LogJSON  bool

	Source *SourceConfig
}

type ServerConfig struct {
	Addr           string
	ImportTimeout  time.Duration
	RequireAuth    bool
	AllowedOrigins []string
}

type ImporterConfig struct {
	FetchTimeout  time.Duration
	ImageTimeout  time.Duration
	MinBodyLength int
	ImageWorkers  int

	// ImagePreset picks the media variant that gets stored: "gallery" or "quality".
	ImagePreset string
}

type SupabaseConfig struct {
	URL        string
	AnonKey    string
	ServiceKey string
	Bucket     string
	DBURL      string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for DO Spaces, R2, etc.
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

type ProxyConfig struct {
	URL string
}

type RetentionConfig struct {
	Cron   string
	MaxAge time.Duration
}

// SourceConfig describes the listing site the importer understands.
type SourceConfig struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	DomainMarker  string   `yaml:"domain_marker"`
	SiteURL       string   `yaml:"site_url"`
	MediaHost     string   `yaml:"media_host"`
	MediaMarkers  []string `yaml:"media_markers"`
	GalleryWidth  int      `yaml:"gallery_width"`
	GalleryHeight int      `yaml:"gallery_height"`
}

// DefaultSource is the built-in Centris definition. Files under
// config/sources override it field by field.
func DefaultSource() *SourceConfig {
	return &SourceConfig{
		ID:            "centris",
		Name:          "Centris",
		DomainMarker:  "centris.ca",
		SiteURL:       "https://www.centris.ca",
		MediaHost:     "mspublic.centris.ca",
		MediaMarkers:  []string{"mspublic.centris.ca", "centris.ca/media", "media.ashx"},
		GalleryWidth:  1024,
		GalleryHeight: 1024,
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Addr:           getEnv("HTTP_ADDR", ":8080"),
			ImportTimeout:  getEnvDuration("IMPORT_TIMEOUT", 2*time.Minute),
			RequireAuth:    getEnv("REQUIRE_AUTH", "true") == "true",
			AllowedOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
		},
		Importer: ImporterConfig{
			FetchTimeout:  getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
			ImageTimeout:  getEnvDuration("IMAGE_TIMEOUT", 60*time.Second),
			MinBodyLength: getEnvInt("MIN_BODY_LENGTH", 1000),
			ImageWorkers:  getEnvInt("IMAGE_WORKERS", 6),
			ImagePreset:   getEnv("IMAGE_PRESET", "gallery"),
		},
		Supabase: SupabaseConfig{
			URL:        strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
			AnonKey:    os.Getenv("SUPABASE_ANON_KEY"),
			ServiceKey: os.Getenv("SUPABASE_SERVICE_KEY"),
			Bucket:     getEnv("SUPABASE_BUCKET", "property-images"),
			DBURL:      os.Getenv("SUPABASE_DB_URL"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			PublicBaseURL:   os.Getenv("S3_PUBLIC_BASE_URL"),
		},
		AMQP: AMQPConfig{
			URL:        os.Getenv("AMQP_URL"),
			Exchange:   getEnv("AMQP_EXCHANGE", "listings"),
			RoutingKey: getEnv("AMQP_ROUTING_KEY", "listing.imported"),
		},
		Proxy: ProxyConfig{
			URL: os.Getenv("PROXY_URL"),
		},
		Retention: RetentionConfig{
			Cron:   getEnv("RETENTION_CRON", "@daily"),
			MaxAge: getEnvDuration("RUN_RETENTION", 30*24*time.Hour),
		},
		ObjectStore:  getEnv("OBJECT_STORE", "supabase"),
		ListingStore: getEnv("LISTING_STORE", "supabase"),
		DBPath:       getEnv("DB_PATH", "importer.db"),
		LogFile:      getEnv("LOG_FILE", "importer.log"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogJSON:      os.Getenv("LOG_JSON") == "true",
		Source:       DefaultSource(),
	}

	if err := cfg.loadSourceConfig("config/sources"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadSourceConfig(configDir string) error {
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(configDir, entry.Name()))
		if err != nil {
			return err
		}

		var src SourceConfig
		if err := yaml.Unmarshal(data, &src); err != nil {
			return err
		}

		if src.ID == c.Source.ID || src.ID == "" {
			c.Source.merge(&src)
		}
	}

	return nil
}

func (s *SourceConfig) merge(o *SourceConfig) {
	if o.Name != "" {
		s.Name = o.Name
	}
	if o.DomainMarker != "" {
		s.DomainMarker = o.DomainMarker
	}
	if o.SiteURL != "" {
		s.SiteURL = o.SiteURL
	}
	if o.MediaHost != "" {
		s.MediaHost = o.MediaHost
	}
	if len(o.MediaMarkers) > 0 {
		s.MediaMarkers = o.MediaMarkers
	}
	if o.GalleryWidth > 0 {
		s.GalleryWidth = o.GalleryWidth
	}
	if o.GalleryHeight > 0 {
		s.GalleryHeight = o.GalleryHeight
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
