package common

// Pipeline names
const (
	PipelineExoplanet    = "exoplanet"
	PipelineHabitability = "habitability"
)

// Environment variable keys
const (
	EnvConfigFile             = "CONFIG_FILE"
	EnvAPIKey                 = "apikey"
	EnvGoogleAPIKey           = "GOOGLE_API_KEY"
	EnvPort                   = "PORT"
	EnvDataPath               = "DATA_PATH"
	EnvExoplanetScalerPath    = "EXOPLANET_SCALER_PATH"
	EnvExoplanetModelPath     = "EXOPLANET_MODEL_PATH"
	EnvHabitabilityScalerPath = "HABITABILITY_SCALER_PATH"
	EnvHabitabilityModelPath  = "HABITABILITY_MODEL_PATH"
	EnvGeminiModel            = "GEMINI_MODEL"
	EnvGeminiBaseURL          = "GEMINI_BASE_URL"
	EnvGeminiTemperature      = "GEMINI_TEMPERATURE"
	EnvGeminiRetries          = "GEMINI_RETRIES"
	EnvExplanationTimeout     = "EXPLANATION_TIMEOUT"
	EnvRequestTimeout         = "REQUEST_TIMEOUT"
	EnvAllowedOrigins         = "ALLOWED_ORIGINS"
	EnvLogLevel               = "LOG_LEVEL"
	EnvLogFormat              = "LOG_FORMAT"
	EnvClientErrorsAs400      = "CLIENT_ERRORS_AS_400"
)

// Default values
const (
	DefaultPort                     = 8000
	DefaultExoplanetScalerPath      = "models/scaler.json"
	DefaultExoplanetModelPath       = "models/rf_model.json"
	DefaultHabitabilityScalerPath   = "models/habitability_scaler.json"
	DefaultHabitabilityModelPath    = "models/habitability_xgb_model.json"
	DefaultGeminiModel              = "gemini-2.0-flash"
	DefaultGeminiBaseURL            = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiTemperature        = 0.5
	DefaultGeminiRetries            = 2
	DefaultExplanationTimeoutSecond = 30
	DefaultRequestTimeoutSecond     = 15
	DefaultLogLevel                 = "info"
	DefaultLogFormat                = "json"
)

// Log formats
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)
