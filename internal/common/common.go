package common

// Shared constants to enforce DRY and avoid magic strings/numbers.

// HTTP headers and content types
const (
	HeaderAPIKey    = "X-API-Key" // #nosec G101 - header name constant, not a credential
	ContentTypeJSON = "application/json"
)

// API paths
const (
	PathHealthz         = "/healthz"
	PathMetrics         = "/metrics"
	PathIndex           = "/"
	PathAnalyze         = "/analyze"
	PathSimplify        = "/simplify"
	PathReset           = "/reset"
	PathAPIPrefix       = "/v1"
	PathAnalyses        = PathAPIPrefix + "/analyses"
	PathSimplifications = PathAPIPrefix + "/simplifications"
)

// Form fields
const (
	FormFieldFile = "file"
)

// Session cookie
const (
	DefaultSessionCookie = "healsmart_session"
	DefaultSessionTTL    = 24 // hours
)

// Defaults and limits
const (
	SQLiteBusyTimeoutMS = 5000
	DefaultMaxUploadMiB = 10
)

// MIME types
const (
	MimeImagePNG  = "image/png"
	MimeImageJPEG = "image/jpeg"
	MimeImageJPG  = "image/jpg"
)

// Environment variables
const (
	EnvConfigPath   = "HEALSMART_CONFIG"
	EnvGoogleAPIKey = "GOOGLE_API_KEY" // #nosec G101 - env var name, not a credential
	EnvGeminiAPIKey = "GEMINI_API_KEY" // #nosec G101 - env var name, not a credential
)

// Provider names
const (
	ProviderGemini    = "gemini"
	ProviderAIProxy   = "aiproxy"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderMock      = "mock"
)

// Session store names
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// IsSupportedImageMime reports whether the model accepts the mime type for image input.
func IsSupportedImageMime(mime string) bool {
	switch mime {
	case MimeImagePNG, MimeImageJPEG, MimeImageJPG:
		return true
	}
	return false
}
