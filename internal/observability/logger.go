package observability

import (
	"github.com/danmuck/pomelogate/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger installs the runtime logging profile and returns the global
// logger tagged with app.
func InitLogger(app string) zerolog.Logger {
	logging.ConfigureRuntime(app)
	return log.Logger
}

// SessionLogger derives a per-connection logger.
func SessionLogger(sessionID, remote string) zerolog.Logger {
	return log.With().Str("session", sessionID).Str("remote", remote).Logger()
}
