package app

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
	"golang.org/x/crypto/bcrypt"

	"github.com/proteamcare/access-engine/internal/observability"
	"github.com/proteamcare/access-engine/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the base middleware chain applied to every route.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(300, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
		clientIPMiddleware,
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return cfg.Metrics.Middleware(next)
		})
	}
	return middlewares
}

// clientIPMiddleware stores the caller network origin for audit records.
// Runs after RealIP so RemoteAddr already reflects forwarding headers.
func clientIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		// RemoteAddr is host:port for both IPv4 and bracketed IPv6; a bare
		// host (RealIP rewrote it from a forwarding header) passes through.
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithClientIP(r.Context(), ip)))
	})
}

// ServiceAuth authenticates the upstream gateway and resolves the acting
// user. The gateway presents a bearer service token checked against a bcrypt
// hash and names the actor in the X-Actor-ID header.
type ServiceAuth struct {
	tokenHash []byte
	logger    *slog.Logger
	// lastGood memoizes the most recent token that passed the bcrypt check
	// so the comparison cost is paid once per token, not per request.
	lastGood atomic.Value
}

// NewServiceAuth constructs the authenticator.
func NewServiceAuth(tokenHash string, logger *slog.Logger) *ServiceAuth {
	return &ServiceAuth{tokenHash: []byte(tokenHash), logger: logger}
}

// Middleware rejects requests without a valid service token and actor.
func (a *ServiceAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok || !a.tokenValid(token) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		actorID, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get("X-Actor-ID")), 10, 64)
		if err != nil || actorID <= 0 {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actorID)))
	})
}

func (a *ServiceAuth) tokenValid(token string) bool {
	if cached, ok := a.lastGood.Load().(string); ok && cached == token {
		return true
	}
	if err := bcrypt.CompareHashAndPassword(a.tokenHash, []byte(token)); err != nil {
		return false
	}
	a.lastGood.Store(token)
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}
