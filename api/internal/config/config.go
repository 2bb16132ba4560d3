package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"xray-bot/api/internal/report"
)

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

type Config struct {
	Port             string
	TelegramBotToken string
	WebhookURL       string
	WorkDir          string

	Log LogConfig

	FontPath string
	FontSize float64

	ClassifierBackend string // inference | gemini
	DetectorBackend   string // inference | roboflow

	InferenceURL     string
	InferenceTimeout time.Duration

	GeminiAPIKey string
	GeminiModel  string
	ClassLabels  []string

	RoboflowAPIKey  string
	RoboflowProject string
	RoboflowVersion int

	Policy report.Policy
}

// fileConfig: то, что можно переопределить YAML-файлом (CONFIG_FILE).
type fileConfig struct {
	Log    *LogConfig     `yaml:"log"`
	Policy *report.Policy `yaml:"policy"`
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getFloat(k string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return f, nil
}

func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		WorkDir:          getEnv("WORK_DIR", "documents"),

		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},

		FontPath: getEnv("FONT_PATH", "arial.ttf"),

		ClassifierBackend: strings.ToLower(getEnv("CLASSIFIER_BACKEND", "inference")),
		DetectorBackend:   strings.ToLower(getEnv("DETECTOR_BACKEND", "inference")),
		InferenceURL:      strings.TrimRight(getEnv("INFERENCE_URL", "http://localhost:5000"), "/"),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		ClassLabels:  splitList(getEnv("CLASS_LABELS", "Normal,Pneumonia")),

		RoboflowAPIKey:  os.Getenv("ROBOFLOW_API_KEY"),
		RoboflowProject: os.Getenv("ROBOFLOW_PROJECT"),

		Policy: report.DefaultPolicy(),
	}
	if cfg.TelegramBotToken == "" {
		return nil, fmt.Errorf("missing required env TELEGRAM_BOT_TOKEN")
	}

	var err error
	if cfg.FontSize, err = getFloat("FONT_SIZE", 24); err != nil {
		return nil, err
	}
	if cfg.InferenceTimeout, err = getDuration("INFERENCE_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.Policy.Threshold, err = getFloat("CONFIDENCE_THRESHOLD", report.DefaultThreshold); err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(os.Getenv("ROBOFLOW_VERSION")); v != "" {
		if cfg.RoboflowVersion, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid ROBOFLOW_VERSION: %q", v)
		}
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFile накладывает YAML поверх env: отсутствующие ключи не трогают текущие значения.
func (c *Config) applyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	fc := fileConfig{Log: &c.Log, Policy: &c.Policy}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	p, err := strconv.Atoi(c.Port)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.Policy.Threshold <= 0 || c.Policy.Threshold > 100 {
		return fmt.Errorf("confidence threshold must be in (0,100], got %v", c.Policy.Threshold)
	}
	switch c.ClassifierBackend {
	case "inference":
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("CLASSIFIER_BACKEND=gemini requires GEMINI_API_KEY")
		}
		if len(c.ClassLabels) < 2 {
			return fmt.Errorf("CLASS_LABELS must list at least two classes")
		}
	default:
		return fmt.Errorf("unknown CLASSIFIER_BACKEND %q", c.ClassifierBackend)
	}
	switch c.DetectorBackend {
	case "inference":
	case "roboflow":
		if c.RoboflowAPIKey == "" || c.RoboflowProject == "" || c.RoboflowVersion <= 0 {
			return fmt.Errorf("DETECTOR_BACKEND=roboflow requires ROBOFLOW_API_KEY, ROBOFLOW_PROJECT and ROBOFLOW_VERSION")
		}
	default:
		return fmt.Errorf("unknown DETECTOR_BACKEND %q", c.DetectorBackend)
	}
	return nil
}

// UsesInferenceService reports whether any backend talks to the inference sidecar.
func (c *Config) UsesInferenceService() bool {
	return c.ClassifierBackend == "inference" || c.DetectorBackend == "inference"
}
