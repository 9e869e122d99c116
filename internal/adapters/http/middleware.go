package http

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/application"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/ports"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	actorKey     contextKey = "actor"
)

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if id == "" {
			id = uuid.NewString()
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// identityMiddleware resolves the caller in strict priority order: a
// presented API key wins over an authenticated user token, which wins over
// the bare network address. Requests are never rejected here; an anonymous
// caller simply gets the lowest-trust identity.
func identityMiddleware(service *application.Service, jwtSecret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := domain.Identity{Type: domain.IdentityTypeNetworkAddress, Value: clientAddress(r)}
			role := "user"

			if apiKey := strings.TrimSpace(r.Header.Get("X-API-Key")); apiKey != "" {
				identity = domain.Identity{Type: domain.IdentityTypeAPIKey, Value: apiKey}
			} else if sub, jwtRole, ok := subjectFromBearer(r, jwtSecret); ok {
				identity = domain.Identity{Type: domain.IdentityTypeUser, Value: sub}
				if jwtRole != "" {
					role = jwtRole
				}
			}

			actor := application.Actor{
				Identity:  identity,
				Tier:      service.ResolveTier(identity),
				Role:      role,
				RequestID: requestIDFromContext(r.Context()),
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
		})
	}
}

// subjectFromBearer validates an HS256 bearer token and extracts sub and
// role. A malformed or unsigned token is treated as absent rather than
// rejected, so the caller degrades to a network-address identity.
func subjectFromBearer(r *http.Request, secret []byte) (sub, role string, ok bool) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(auth), "bearer ") || len(secret) == 0 {
		return "", "", false
	}
	raw := strings.TrimSpace(auth[7:])
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", "", false
	}
	sub, _ = claims["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return "", "", false
	}
	role, _ = claims["role"].(string)
	return sub, strings.ToLower(strings.TrimSpace(role)), true
}

// admissionMiddleware runs the full admission pipeline for one endpoint
// class and surfaces the decision through X-RateLimit-* headers on every
// response, allowed or not.
func admissionMiddleware(service *application.Service, endpointClass string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := actorFromContext(r.Context())
			decision, err := service.Admit(r.Context(), actor.Identity, endpointClass, actor.Tier)
			if err != nil {
				status, code := mapDomainError(err)
				writeError(w, status, code, err.Error(), actor.RequestID)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
			if !decision.ResetAt.IsZero() {
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
			}
			w.Header().Set("X-RateLimit-Class", endpointClass)
			w.Header().Set("X-RateLimit-Identity", decision.IdentityType)

			if !decision.Allowed {
				switch decision.DenyCode {
				case domain.DenyCodeBlocked:
					msg := "access blocked"
					if decision.Reason != "" {
						msg = msg + ": " + decision.Reason
					}
					writeError(w, http.StatusForbidden, domain.DenyCodeBlocked, msg, actor.RequestID)
				default:
					writeError(w, http.StatusTooManyRequests, domain.DenyCodeRateLimit, "rate limit exceeded", actor.RequestID)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// observeMiddleware records request metrics and emits one access log line
// per request.
func observeMiddleware(logger *slog.Logger, metrics ports.MetricsRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)
			if metrics != nil {
				metrics.RecordRequest(rec.status, elapsed)
			}
			logger.InfoContext(r.Context(), "request completed",
				"module", "http",
				"layer", "adapter",
				"operation", r.Method+" "+r.URL.Path,
				"outcome", outcomeForStatus(rec.status),
				"status", rec.status,
				"duration_ms", elapsed.Milliseconds(),
				"request_id", requestIDFromContext(r.Context()),
			)
		})
	}
}

func recoverMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rv := recover(); rv != nil {
					logger.ErrorContext(r.Context(), "handler panicked",
						"module", "http",
						"layer", "adapter",
						"operation", r.Method+" "+r.URL.Path,
						"outcome", "failure",
						"panic", fmt.Sprint(rv),
						"request_id", requestIDFromContext(r.Context()),
					)
					writeError(w, http.StatusInternalServerError, "internal_error", "internal error", requestIDFromContext(r.Context()))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func outcomeForStatus(status int) string {
	if status >= 400 {
		return "failure"
	}
	return "success"
}

func clientAddress(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func actorFromContext(ctx context.Context) application.Actor {
	if v := ctx.Value(actorKey); v != nil {
		if a, ok := v.(application.Actor); ok {
			return a
		}
	}
	return application.Actor{}
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
