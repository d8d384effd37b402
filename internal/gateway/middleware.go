package gateway

import (
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/relaymesh/gateway/internal/apierrors"
	"github.com/relaymesh/gateway/internal/budget"
)

// corsMiddleware handles cross-origin requests for browser-based clients.
// Allowed origins of "*" disables the allow-list entirely.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		originSet[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowAll || originSet[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-Id, X-Routing-Strategy, X-Prefer-Provider, X-Cache, X-Budget-Key")
			w.Header().Set("Access-Control-Expose-Headers", "X-Request-Id, X-Response-Time, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset")
			w.Header().Set("Access-Control-Max-Age", "3600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func generateRequestID() string {
	return fmt.Sprintf("gw-%d-%06d", time.Now().UnixMilli(), rand.Intn(999999))
}

// requestIDMiddleware stamps every request with a correlation id, honoring
// one the caller already supplied.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = generateRequestID()
		}
		w.Header().Set("X-Request-Id", id)
		w.Header().Set("X-Powered-By", "llm-gateway")
		next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), id)))
	})
}

func maxBodySizeMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 1 * 1024 * 1024
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeErr(w, apierrors.New(apierrors.KindInvalidRequest, "request body too large"))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func requestLoggerMiddleware(s *Server) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			s.Logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("request_id", RequestIDFrom(r.Context())).
				Int("status", rw.Status()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}

// authMiddleware resolves an optional Bearer API key against the key
// store. A missing Authorization header leaves the request anonymous
// (no per-key budget/rate-limit enforcement applies); an unrecognized or
// revoked key is rejected outright.
func authMiddleware(s *Server) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(s.Config.APIKeyHeader)
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			key := header
			if strings.HasPrefix(strings.ToLower(header), "bearer ") {
				key = strings.TrimSpace(header[7:])
			}

			rec, ok := s.KeyStore.Validate(key)
			if !ok {
				writeErr(w, apierrors.New(apierrors.KindAuthentication, "invalid or revoked API key"))
				return
			}
			next.ServeHTTP(w, r.WithContext(withAPIKeyRecord(r.Context(), rec)))
		})
	}
}

// adminAuthMiddleware gates the administrative surface behind an HS256 JWT
// signed with the configured admin key and carrying an "is_admin" claim; an
// empty AdminKey disables the admin API entirely.
func adminAuthMiddleware(s *Server) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.Config.AdminKey == "" {
				writeErr(w, apierrors.New(apierrors.KindServiceUnavailable, "admin API is not configured"))
				return
			}
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeErr(w, apierrors.New(apierrors.KindAuthentication, "missing admin bearer token"))
				return
			}
			tokenStr := strings.TrimPrefix(header, "Bearer ")

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(s.Config.AdminKey), nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				writeErr(w, apierrors.New(apierrors.KindAuthentication, "invalid or expired admin token"))
				return
			}
			if isAdmin, _ := claims["is_admin"].(bool); !isAdmin {
				writeErr(w, apierrors.New(apierrors.KindAuthentication, "token is not authorized for admin access"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeErr(w http.ResponseWriter, err *apierrors.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Kind.Status())
	writeJSON(w, err.ToEnvelope())
}

// setRateLimitHeaders reports the sliding-window limit state per spec.md
// §4.10: Limit/Remaining/Reset always, Retry-After only once exhausted.
// Reset and Retry-After are both ceilinged to whole seconds.
func setRateLimitHeaders(w http.ResponseWriter, limit budget.LimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limit.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(limit.ResetSeconds))
	if limit.RetryAfterMs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(float64(limit.RetryAfterMs)/1000))))
	}
}
