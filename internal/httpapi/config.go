package httpapi

// maxBodyBytes bounds JSON request bodies. Default 1 MiB.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes configures the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server. Empty methods
// or headers fall back to what the dashboard front end needs.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
	if len(corsAllowedMethods) == 0 {
		corsAllowedMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	if len(corsAllowedHeaders) == 0 {
		corsAllowedHeaders = []string{"Content-Type", "X-Log-Level"}
	}
}
