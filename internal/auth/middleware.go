// Package auth provides HTTP basic authentication against bcrypt hashed
// credentials for the misli HTTP endpoints.
package auth

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

type contextKey int

const (
	ctxUser contextKey = iota
	ctxRemoteIP
)

// Realm is sent in the WWW-Authenticate challenge.
const Realm = "misli"

// UserCredentials maps usernames to bcrypt password hashes.
type UserCredentials map[string]string

// Verify reports whether password matches the stored hash for username.
func (u UserCredentials) Verify(username, password string) bool {
	hash, ok := u[username]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// RequestUser returns the authenticated username from the context, or "".
func RequestUser(ctx context.Context) string {
	v, _ := ctx.Value(ctxUser).(string)
	return v
}

// RequestRemoteIP returns the client IP from the context, or "".
func RequestRemoteIP(ctx context.Context) string {
	v, _ := ctx.Value(ctxRemoteIP).(string)
	return v
}

// remoteIP extracts the IP address from r.RemoteAddr, stripping the
// port. Falls back to the raw value if parsing fails.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// Middleware returns HTTP middleware that requires basic auth credentials
// matching users. With no users configured every request passes through.
// Repeated failures from one IP are answered with 429 until the window
// expires.
func Middleware(users UserCredentials, logger *slog.Logger) func(http.Handler) http.Handler {
	limiter := newLoginRateLimiter()
	challenge := `Basic realm="` + Realm + `", charset="UTF-8"`

	return func(next http.Handler) http.Handler {
		if len(users) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteIP(r)

			if limiter.check(ip) {
				logger.Warn("auth: rate limited",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", "300")
				http.Error(w, "too many failed attempts", http.StatusTooManyRequests)

				return
			}

			username, password, ok := r.BasicAuth()
			if !ok {
				logger.Debug("auth: no credentials",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("WWW-Authenticate", challenge)
				w.WriteHeader(http.StatusUnauthorized)

				return
			}

			if !users.Verify(username, password) {
				limiter.record(ip)
				logger.Info("auth: invalid credentials",
					slog.String("user", username),
					slog.String("ip", ip),
				)
				w.Header().Set("WWW-Authenticate", challenge)
				w.WriteHeader(http.StatusUnauthorized)

				return
			}

			logger.Debug("auth: authenticated",
				slog.String("user", username),
				slog.String("ip", ip),
			)

			ctx := r.Context()
			ctx = context.WithValue(ctx, ctxUser, username)
			ctx = context.WithValue(ctx, ctxRemoteIP, ip)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
