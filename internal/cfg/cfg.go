package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"exoplanet-ml/internal/common"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	APIKey             string
	Port               int
	DataPath           string
	Exoplanet          ModelPaths
	Habitability       ModelPaths
	GeminiModel        string
	GeminiBaseURL      string
	GeminiTemperature  float64
	GeminiRetries      int
	ExplanationTimeout time.Duration
	RequestTimeout     time.Duration
	AllowedOrigins     []string
	LogLevel           string
	LogFormat          string
	ClientErrorsAs400  bool
}

// ModelPaths locates the two artifacts of one pipeline.
type ModelPaths struct {
	Scaler     string `yaml:"scaler"`
	Classifier string `yaml:"classifier"`
}

type ConfigFile struct {
	API struct {
		Key string `yaml:"key"`
	} `yaml:"api"`

	Server struct {
		Port              int      `yaml:"port"`
		AllowedOrigins    []string `yaml:"allowedOrigins"`
		RequestTimeout    string   `yaml:"requestTimeout"`
		ClientErrorsAs400 bool     `yaml:"clientErrorsAs400"`
	} `yaml:"server"`

	Models struct {
		Exoplanet    ModelPaths `yaml:"exoplanet"`
		Habitability ModelPaths `yaml:"habitability"`
	} `yaml:"models"`

	Gemini struct {
		Model       string   `yaml:"model"`
		BaseURL     string   `yaml:"baseURL"`
		Temperature *float64 `yaml:"temperature"`
		Retries     *int     `yaml:"retries"`
		Timeout     string   `yaml:"timeout"`
	} `yaml:"gemini"`

	System struct {
		DataPath  string `yaml:"dataPath"`
		LogLevel  string `yaml:"logLevel"`
		LogFormat string `yaml:"logFormat"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Parse durations
	explanationTimeout, err := time.ParseDuration(config.Gemini.Timeout)
	if err != nil {
		explanationTimeout = common.DefaultExplanationTimeoutSecond * time.Second
	}

	requestTimeout, err := time.ParseDuration(config.Server.RequestTimeout)
	if err != nil {
		requestTimeout = common.DefaultRequestTimeoutSecond * time.Second
	}

	temperature := common.DefaultGeminiTemperature
	if config.Gemini.Temperature != nil {
		temperature = *config.Gemini.Temperature
	}
	retries := common.DefaultGeminiRetries
	if config.Gemini.Retries != nil {
		retries = *config.Gemini.Retries
	}

	settings := Settings{
		APIKey:   getAPIKey(config.API.Key),
		Port:     getIntFromEnvOrConfig(common.EnvPort, config.Server.Port, common.DefaultPort),
		DataPath: getEnvOrDefault(common.EnvDataPath, config.System.DataPath),
		Exoplanet: ModelPaths{
			Scaler:     getEnvOrDefault(common.EnvExoplanetScalerPath, orDefault(config.Models.Exoplanet.Scaler, common.DefaultExoplanetScalerPath)),
			Classifier: getEnvOrDefault(common.EnvExoplanetModelPath, orDefault(config.Models.Exoplanet.Classifier, common.DefaultExoplanetModelPath)),
		},
		Habitability: ModelPaths{
			Scaler:     getEnvOrDefault(common.EnvHabitabilityScalerPath, orDefault(config.Models.Habitability.Scaler, common.DefaultHabitabilityScalerPath)),
			Classifier: getEnvOrDefault(common.EnvHabitabilityModelPath, orDefault(config.Models.Habitability.Classifier, common.DefaultHabitabilityModelPath)),
		},
		GeminiModel:        getEnvOrDefault(common.EnvGeminiModel, orDefault(config.Gemini.Model, common.DefaultGeminiModel)),
		GeminiBaseURL:      getEnvOrDefault(common.EnvGeminiBaseURL, orDefault(config.Gemini.BaseURL, common.DefaultGeminiBaseURL)),
		GeminiTemperature:  getFloatOrDefault(common.EnvGeminiTemperature, temperature),
		GeminiRetries:      getIntOrDefault(common.EnvGeminiRetries, retries),
		ExplanationTimeout: getDurationOrDefault(common.EnvExplanationTimeout, explanationTimeout),
		RequestTimeout:     getDurationOrDefault(common.EnvRequestTimeout, requestTimeout),
		AllowedOrigins:     getOriginsFromEnvOrConfig(config.Server.AllowedOrigins),
		LogLevel:           getEnvOrDefault(common.EnvLogLevel, orDefault(config.System.LogLevel, common.DefaultLogLevel)),
		LogFormat:          getEnvOrDefault(common.EnvLogFormat, orDefault(config.System.LogFormat, common.DefaultLogFormat)),
		ClientErrorsAs400:  getBoolOrDefault(common.EnvClientErrorsAs400, config.Server.ClientErrorsAs400),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		APIKey:   getAPIKey(""),
		Port:     getIntOrDefault(common.EnvPort, common.DefaultPort),
		DataPath: os.Getenv(common.EnvDataPath), // optional
		Exoplanet: ModelPaths{
			Scaler:     getEnvOrDefault(common.EnvExoplanetScalerPath, common.DefaultExoplanetScalerPath),
			Classifier: getEnvOrDefault(common.EnvExoplanetModelPath, common.DefaultExoplanetModelPath),
		},
		Habitability: ModelPaths{
			Scaler:     getEnvOrDefault(common.EnvHabitabilityScalerPath, common.DefaultHabitabilityScalerPath),
			Classifier: getEnvOrDefault(common.EnvHabitabilityModelPath, common.DefaultHabitabilityModelPath),
		},
		GeminiModel:        getEnvOrDefault(common.EnvGeminiModel, common.DefaultGeminiModel),
		GeminiBaseURL:      getEnvOrDefault(common.EnvGeminiBaseURL, common.DefaultGeminiBaseURL),
		GeminiTemperature:  getFloatOrDefault(common.EnvGeminiTemperature, common.DefaultGeminiTemperature),
		GeminiRetries:      getIntOrDefault(common.EnvGeminiRetries, common.DefaultGeminiRetries),
		ExplanationTimeout: getDurationOrDefault(common.EnvExplanationTimeout, common.DefaultExplanationTimeoutSecond*time.Second),
		RequestTimeout:     getDurationOrDefault(common.EnvRequestTimeout, common.DefaultRequestTimeoutSecond*time.Second),
		AllowedOrigins:     getOriginsFromEnvOrConfig(nil),
		LogLevel:           getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFormat:          getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat),
		ClientErrorsAs400:  getBoolOrDefault(common.EnvClientErrorsAs400, false),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// getAPIKey prefers the lower-case "apikey" variable, then GOOGLE_API_KEY,
// then the config file value.
func getAPIKey(configValue string) string {
	if v := os.Getenv(common.EnvAPIKey); v != "" {
		return v
	}
	return getEnvOrDefault(common.EnvGoogleAPIKey, configValue)
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func orDefault(v, defaultValue string) string {
	if v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getIntOrDefault(key, defaultValue)
}

// getOriginsFromEnvOrConfig defaults to allowing every origin.
func getOriginsFromEnvOrConfig(configOrigins []string) []string {
	if env := os.Getenv(common.EnvAllowedOrigins); env != "" {
		var origins []string
		for _, o := range strings.Split(env, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		return origins
	}
	if len(configOrigins) > 0 {
		return configOrigins
	}
	return []string{"*"}
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	// Validate API credentials
	if settings.APIKey == "" {
		return fmt.Errorf("API key is required (set %s or %s)", common.EnvAPIKey, common.EnvGoogleAPIKey)
	}

	// Validate artifact paths
	for name, path := range map[string]string{
		"exoplanet scaler":        settings.Exoplanet.Scaler,
		"exoplanet classifier":    settings.Exoplanet.Classifier,
		"habitability scaler":     settings.Habitability.Scaler,
		"habitability classifier": settings.Habitability.Classifier,
	} {
		if path == "" {
			return fmt.Errorf("%s path cannot be empty", name)
		}
	}

	// Validate URLs
	if settings.GeminiBaseURL == "" {
		return fmt.Errorf("Gemini base URL cannot be empty")
	}
	if settings.GeminiModel == "" {
		return fmt.Errorf("Gemini model cannot be empty")
	}

	// Validate time durations
	if settings.ExplanationTimeout < time.Second || settings.ExplanationTimeout > 5*time.Minute {
		return fmt.Errorf("explanation timeout must be between 1s and 5m, got %v", settings.ExplanationTimeout)
	}
	if settings.RequestTimeout < time.Second || settings.RequestTimeout > time.Minute {
		return fmt.Errorf("request timeout must be between 1s and 1m, got %v", settings.RequestTimeout)
	}

	// Validate integer values
	if settings.Port < 1 || settings.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", settings.Port)
	}
	if settings.GeminiRetries < 0 || settings.GeminiRetries > 10 {
		return fmt.Errorf("Gemini retries must be between 0 and 10, got %d", settings.GeminiRetries)
	}

	// Validate float values
	if settings.GeminiTemperature < 0 || settings.GeminiTemperature > 2 {
		return fmt.Errorf("Gemini temperature must be between 0 and 2, got %f", settings.GeminiTemperature)
	}

	// Validate logging
	switch settings.LogFormat {
	case common.LogFormatJSON, common.LogFormatConsole:
	default:
		return fmt.Errorf("log format must be %q or %q, got %q", common.LogFormatJSON, common.LogFormatConsole, settings.LogFormat)
	}
	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil || settings.LogLevel == "" {
		return fmt.Errorf("invalid log level %q", settings.LogLevel)
	}

	if len(settings.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}

	return nil
}
