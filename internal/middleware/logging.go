// Package middleware holds the request logging shared by the lobby HTTP
// endpoints and the game websocket.
package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// LogMiddleware wraps a handler and emits one logrus entry per request with
// the method, path, caller address and time spent serving it.
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.WithFields(logrus.Fields{
				"method":  r.Method,
				"path":    r.URL.Path,
				"remote":  r.RemoteAddr,
				"elapsed": time.Since(start),
			}).Info("Request served")
		})
	}
}

// LogWebSocketConnect marks a successful websocket upgrade on the game
// endpoint.
func LogWebSocketConnect(logger *logrus.Logger, remoteAddr, path string) {
	logger.WithFields(logrus.Fields{
		"remote": remoteAddr,
		"path":   path,
	}).Info("Game socket opened")
}

// LogWebSocketDisconnect marks the end of a game socket; err is nil for a
// clean close.
func LogWebSocketDisconnect(logger *logrus.Logger, remoteAddr, path string, err error) {
	entry := logger.WithFields(logrus.Fields{
		"remote": remoteAddr,
		"path":   path,
	})
	if err != nil {
		entry.WithError(err).Warn("Game socket dropped")
		return
	}
	entry.Info("Game socket closed")
}
