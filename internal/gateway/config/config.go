package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string
	// Offline swaps every external service for an in-process fake.
	Offline bool

	Google       GoogleConfig
	Models       ModelConfig
	LLM          LLMConfig
	StageTimeout time.Duration
	Weather      WeatherConfig
	Storage      StorageConfig

	ArchiveDSN       string
	PolicyFile       string
	SessionTTL       time.Duration
	MaxSessions      int
	NotifyRecipients []string

	// parseErrs holds malformed values seen by Load; Validate reports them.
	parseErrs []error
}

type GoogleConfig struct {
	Project      string
	Location     string
	MapsAPIKey   string
	GeminiAPIKey string
}

type ModelConfig struct {
	Identify string
	Summary  string
	Risk     string
}

type LLMConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	RPS         float64
	Burst       int
}

type WeatherConfig struct {
	Backend       string // bigquery | postgres | static
	BigQueryTable string
	PostgresDSN   string
}

type StorageConfig struct {
	Backend       string // gcs | s3 | memory
	ImageBucket   string
	ImageObject   string
	ReportBucket  string
	PublicBaseURL string
	S3            S3Config
}

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

func (c S3Config) CanUse() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != ""
}

const defaultWeatherTable = "isv-coe-noelkenehan-00.weathernext_graph_forecasts.59572747_4_0"

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := firstNonEmpty(strings.TrimSpace(os.Getenv("APP_ENV")), "local")
	p := &envParser{}
	cfg := &Config{
		Port:      normalizePort(firstNonEmpty(os.Getenv("PORT"), "8081")),
		Env:       env,
		LogLevel:  firstNonEmpty(os.Getenv("LOG_LEVEL"), "info"),
		LogFormat: firstNonEmpty(os.Getenv("LOG_FORMAT"), "text"),
		Offline:   p.boolean("BIOSECURE_OFFLINE", false),
		Google: GoogleConfig{
			Project:      strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT")),
			Location:     firstNonEmpty(os.Getenv("GOOGLE_CLOUD_LOCATION"), "global"),
			MapsAPIKey:   strings.TrimSpace(os.Getenv("GOOGLE_MAPS_API_KEY")),
			GeminiAPIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		},
		Models: ModelConfig{
			Identify: firstNonEmpty(os.Getenv("GEMINI_MODEL_IDENTIFY"), "gemini-2.5-flash"),
			Summary:  firstNonEmpty(os.Getenv("GEMINI_MODEL_SUMMARY"), "gemini-2.5-flash"),
			Risk:     firstNonEmpty(os.Getenv("GEMINI_MODEL_RISK"), "gemini-2.5-pro"),
		},
		LLM: LLMConfig{
			Timeout:     p.duration("LLM_TIMEOUT", 60*time.Second),
			MaxAttempts: p.integer("LLM_MAX_ATTEMPTS", 1),
			RPS:         p.number("LLM_RPS", 0),
			Burst:       p.integer("LLM_BURST", 1),
		},
		StageTimeout: p.duration("STAGE_TIMEOUT", 3*time.Minute),
		Weather: WeatherConfig{
			Backend:       strings.ToLower(firstNonEmpty(os.Getenv("WEATHER_BACKEND"), "bigquery")),
			BigQueryTable: firstNonEmpty(os.Getenv("WEATHER_BQ_TABLE"), defaultWeatherTable),
			PostgresDSN:   strings.TrimSpace(os.Getenv("WEATHER_PG_DSN")),
		},
		Storage:          loadStorageConfig(p),
		ArchiveDSN:       strings.TrimSpace(os.Getenv("CASE_ARCHIVE_PG_DSN")),
		PolicyFile:       strings.TrimSpace(os.Getenv("POLICY_FILE")),
		SessionTTL:       p.duration("SESSION_TTL", 2*time.Hour),
		MaxSessions:      p.integer("MAX_SESSIONS", 4096),
		NotifyRecipients: splitList(os.Getenv("NOTIFY_RECIPIENTS")),
	}
	cfg.parseErrs = p.errs
	if strings.EqualFold(env, "local") {
		applyLocalDefaults(cfg)
	}
	return cfg, nil
}

func loadStorageConfig(p *envParser) StorageConfig {
	image := firstNonEmpty(os.Getenv("IMAGE_BUCKET"), "new-zealand-insects")
	return StorageConfig{
		Backend:       strings.ToLower(firstNonEmpty(os.Getenv("STORAGE_BACKEND"), "gcs")),
		ImageBucket:   image,
		ImageObject:   firstNonEmpty(os.Getenv("IMAGE_OBJECT"), "insect1.png"),
		ReportBucket:  firstNonEmpty(os.Getenv("REPORT_BUCKET"), image),
		PublicBaseURL: strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")),
		S3: S3Config{
			Endpoint:  strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
			Region:    firstNonEmpty(os.Getenv("S3_REGION"), "us-east-1"),
			AccessKey: firstNonEmpty(os.Getenv("S3_ACCESS_KEY"), os.Getenv("MINIO_ROOT_USER")),
			SecretKey: firstNonEmpty(os.Getenv("S3_SECRET_KEY"), os.Getenv("MINIO_ROOT_PASSWORD")),
			UseSSL:    p.boolean("S3_USE_SSL", true),
		},
	}
}

// Validate reports every missing required setting at once. It is called at
// startup so a bad deployment fails before serving any request.
func (c *Config) Validate() error {
	errs := append([]error(nil), c.parseErrs...)
	if !c.Offline {
		if c.Google.Project == "" && c.Google.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GOOGLE_CLOUD_PROJECT is required (or GEMINI_API_KEY for the Gemini API)"))
		}
		if c.Google.MapsAPIKey == "" {
			errs = append(errs, errors.New("GOOGLE_MAPS_API_KEY is required"))
		}
		switch c.Weather.Backend {
		case "bigquery":
			if c.Google.Project == "" {
				errs = append(errs, errors.New("GOOGLE_CLOUD_PROJECT is required for the bigquery weather backend"))
			}
		case "postgres":
			if c.Weather.PostgresDSN == "" {
				errs = append(errs, errors.New("WEATHER_PG_DSN is required for the postgres weather backend"))
			}
		case "static":
		default:
			errs = append(errs, fmt.Errorf("WEATHER_BACKEND %q is not one of bigquery, postgres, static", c.Weather.Backend))
		}
		switch c.Storage.Backend {
		case "gcs", "memory":
		case "s3":
			if !c.Storage.S3.CanUse() {
				errs = append(errs, errors.New("S3_ENDPOINT, S3_ACCESS_KEY and S3_SECRET_KEY are required for the s3 storage backend"))
			}
		default:
			errs = append(errs, fmt.Errorf("STORAGE_BACKEND %q is not one of gcs, s3, memory", c.Storage.Backend))
		}
	}
	if c.LLM.MaxAttempts < 1 {
		errs = append(errs, errors.New("LLM_MAX_ATTEMPTS must be at least 1"))
	}
	return errors.Join(errs...)
}

func normalizePort(p string) string {
	p = strings.TrimSpace(p)
	if strings.HasPrefix(p, ":") {
		return p
	}
	return ":" + p
}

// envParser reads typed environment values. An unset key yields the
// default; a malformed one yields the default and records an error.
type envParser struct {
	errs []error
}

func (p *envParser) lookup(key string) (string, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	return raw, raw != ""
}

func (p *envParser) fail(key, raw, reason string) {
	p.errs = append(p.errs, fmt.Errorf("%s=%q: %s", key, raw, reason))
}

func (p *envParser) boolean(key string, def bool) bool {
	raw, ok := p.lookup(key)
	if !ok {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, "not a boolean")
		return def
	}
	return v
}

func (p *envParser) integer(key string, def int) int {
	raw, ok := p.lookup(key)
	if !ok {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, "not an integer")
		return def
	}
	return v
}

func (p *envParser) number(key string, def float64) float64 {
	raw, ok := p.lookup(key)
	if !ok {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, "not a number")
		return def
	}
	return v
}

func (p *envParser) duration(key string, def time.Duration) time.Duration {
	raw, ok := p.lookup(key)
	if !ok {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, "not a duration")
		return def
	}
	if v <= 0 {
		p.fail(key, raw, "must be positive")
		return def
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
