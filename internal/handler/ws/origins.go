package ws

import "peercall-backend/pkg/env"

// defaultOrigins are the local development origins accepted when
// CORS_ALLOWED_ORIGINS is not set
var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8080",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:8080",
}

// GetAllowedOrigins returns the origin allowlist for WebSocket upgrades
func GetAllowedOrigins() map[string]bool {
	return env.GetOriginSet("CORS_ALLOWED_ORIGINS", defaultOrigins...)
}
