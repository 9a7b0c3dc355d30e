package httpapi

// maxBodyBytes controls the maximum allowed request body size for JSON endpoints.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// dispatchTimeout bounds one /dispatch request in seconds. Zero means no
// additional timeout beyond server/connection timeouts.
var dispatchTimeout = int64(0)

// SetDispatchTimeoutSeconds sets the dispatch timeout in seconds (0 disables).
func SetDispatchTimeoutSeconds(sec int64) {
	if sec < 0 {
		sec = 0
	}
	dispatchTimeout = sec
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}

// Rate limit for /dispatch per client address (opt-in, rps <= 0 disables).
var (
	rateLimitRPS   float64
	rateLimitBurst int
)

// SetRateLimit configures the per-client /dispatch rate limit.
func SetRateLimit(rps float64, burst int) {
	if rps <= 0 {
		rateLimitRPS, rateLimitBurst = 0, 0
		return
	}
	if burst <= 0 {
		burst = 1
	}
	rateLimitRPS, rateLimitBurst = rps, burst
}
