package server

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcggEz/backend-gradalyze-capstone/internal/audit"
	"github.com/mcggEz/backend-gradalyze-capstone/internal/auth"
	"github.com/mcggEz/backend-gradalyze-capstone/internal/config"
	"github.com/mcggEz/backend-gradalyze-capstone/internal/middleware"
	"github.com/mcggEz/backend-gradalyze-capstone/internal/profile"
	"github.com/mcggEz/backend-gradalyze-capstone/internal/storage"
)

type Server struct {
	mux            *http.ServeMux
	db             *pgxpool.Pool
	authService    *auth.AuthService
	profileService *profile.ProfileService
	store          *storage.ObjectStore
	auditService   *audit.AuditService
	principal      *middleware.Principal
	authLimiter    *middleware.RateLimiter // 5 req/s, burst 10 for auth endpoints
	apiLimiter     *middleware.RateLimiter // 30 req/s, burst 60 for API endpoints
	torBucket      string
	certBucket     string
	uploadMaxBytes int64
}

func New(
	cfg *config.Config,
	db *pgxpool.Pool,
	authService *auth.AuthService,
	profileService *profile.ProfileService,
	store *storage.ObjectStore,
	auditService *audit.AuditService,
) *Server {
	s := &Server{
		mux:            http.NewServeMux(),
		db:             db,
		authService:    authService,
		profileService: profileService,
		store:          store,
		auditService:   auditService,
		principal:      middleware.NewPrincipal(cfg.JWTSecret, cfg.ServiceKey),
		authLimiter:    middleware.NewRateLimiter(5, 10),  // 5 req/s, burst 10
		apiLimiter:     middleware.NewRateLimiter(30, 60), // 30 req/s, burst 60
		torBucket:      cfg.TORBucket,
		certBucket:     cfg.CertificateBucket,
		uploadMaxBytes: int64(cfg.UploadMaxSizeMB) * 1024 * 1024,
	}

	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return securityHeaders(cors(s.principal.Middleware(s.mux)))
}

// securityHeaders adds security headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// HSTS — enable in production behind TLS
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// maxBody limits request body size to prevent DoS via large payloads.
func maxBody(next http.Handler, maxBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerRoutes() {
	// Health check with DB ping
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "database unreachable"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// Auth (no session required, rate-limited)
	s.mux.Handle("POST /api/auth/register", s.authLimiter.Middleware(maxBody(http.HandlerFunc(s.handleRegister), 1<<20)))
	s.mux.Handle("POST /api/auth/login", s.authLimiter.Middleware(maxBody(http.HandlerFunc(s.handleLogin), 1<<20)))
	s.mux.Handle("GET /api/auth/profile", s.apiLimiter.Middleware(http.HandlerFunc(s.handleProfile)))
	s.mux.Handle("GET /api/auth/profile-by-email", s.apiLimiter.Middleware(http.HandlerFunc(s.handleProfileByEmail)))

	// Grades (session required, backed by the stored procedures)
	s.mux.Handle("GET /api/grades/get/{userId}", s.apiLimiter.Middleware(http.HandlerFunc(s.handleGetGrades)))
	s.mux.Handle("POST /api/grades/update/{userId}", s.apiLimiter.Middleware(maxBody(http.HandlerFunc(s.handleUpdateGrades), 1<<20)))
	s.mux.Handle("POST /api/grades/add/{userId}", s.apiLimiter.Middleware(maxBody(http.HandlerFunc(s.handleAddGrade), 1<<20)))
	s.mux.Handle("POST /api/grades/delete/{userId}", s.apiLimiter.Middleware(maxBody(http.HandlerFunc(s.handleDeleteGrade), 1<<20)))

	// Documents (session required)
	s.mux.Handle("POST /api/users/upload-tor", s.apiLimiter.Middleware(maxBody(http.HandlerFunc(s.handleUploadDocument), s.uploadMaxBytes)))
	s.mux.Handle("DELETE /api/users/upload-tor", s.apiLimiter.Middleware(maxBody(http.HandlerFunc(s.handleDeleteCertificate), 1<<20)))
	s.mux.Handle("DELETE /api/users/delete-tor", s.apiLimiter.Middleware(http.HandlerFunc(s.handleDeleteTOR)))
	s.mux.Handle("GET /api/users/profile-summary/{email}", s.apiLimiter.Middleware(http.HandlerFunc(s.handleProfileSummary)))
}

// ---------- Helpers ----------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// allowedOrigins returns the list of origins permitted for CORS.
// In production, set ALLOWED_ORIGINS env var to a comma-separated list.
func allowedOrigins() map[string]bool {
	originsStr := os.Getenv("ALLOWED_ORIGINS")
	origins := map[string]bool{
		"http://localhost:3000": true,
		"http://localhost:5173": true,
	}
	if originsStr != "" {
		for _, o := range strings.Split(originsStr, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				origins[o] = true
			}
		}
	}
	return origins
}

var corsOrigins = allowedOrigins()

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Only allow whitelisted origins with credentials
		if origin != "" && corsOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else if origin == "" {
			// No Origin header (same-origin or non-browser) — allow without credentials
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			// Unknown origin — allow without credentials (no cookies sent)
			w.Header().Set("Access-Control-Allow-Origin", origin)
			// Deliberately NOT setting Allow-Credentials for unknown origins
		}

		w.Header().Set("Vary", "Origin")

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Accept")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func sanitizeDBError(err error) string {
	msg := err.Error()
	// Only expose safe PostgreSQL error patterns to clients
	if strings.Contains(msg, "violates row-level security") {
		return "permission denied for this resource"
	}
	if strings.Contains(msg, "violates unique constraint") {
		return "duplicate key value violates unique constraint"
	}
	if strings.Contains(msg, "violates not-null constraint") {
		return "null value in column violates not-null constraint"
	}
	if strings.Contains(msg, "violates check constraint") {
		return "check constraint violation"
	}
	if strings.Contains(msg, "does not exist") {
		return "requested resource does not exist"
	}
	if strings.Contains(msg, "permission denied") {
		return "permission denied"
	}
	// Generic fallback — never expose raw DB errors
	return "database operation failed"
}

func dbErrorStatus(err error) int {
	msg := sanitizeDBError(err)
	if strings.Contains(msg, "permission denied") {
		return http.StatusForbidden
	}
	if strings.Contains(msg, "does not exist") {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
