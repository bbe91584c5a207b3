package httpadapter

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/getkin/kin-openapi/routers"

	"github.com/kirillkom/deco-docflow/internal/config"
	"github.com/kirillkom/deco-docflow/internal/core/ports"
)

// FileOpener serves stored uploads back over HTTP. Only the local disk
// driver provides one.
type FileOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// HTTPMetrics is the subset of the metrics registry the router drives.
type HTTPMetrics interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
	RecordRateLimited()
	RecordBackpressureRejected()
}

type Services struct {
	Accounts     ports.AccountService
	Transactions ports.TransactionService
	Documents    ports.DocumentService
	Notes        ports.NoteService
	Principals   ports.PrincipalResolver
	Storage      ports.FileStorage
	Files        FileOpener
	Metrics      HTTPMetrics
}

type Router struct {
	cfg       config.Config
	svc       Services
	validator routers.Router
	now       func() time.Time
}

func NewRouter(cfg config.Config, svc Services) (*Router, error) {
	rt := &Router{cfg: cfg, svc: svc, now: time.Now}
	if cfg.OpenAPIValidation {
		_, validator, err := loadOpenAPI()
		if err != nil {
			return nil, err
		}
		rt.validator = validator
	}
	return rt, nil
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware, accessLogMiddleware)
	if rt.svc.Metrics != nil {
		r.Use(rt.svc.Metrics.Middleware)
	}
	r.Use(cors.Handler(rt.corsOptions()))

	var rejections rejectionRecorder
	if rt.svc.Metrics != nil {
		rejections = rt.svc.Metrics
	}
	r.Use(func(next http.Handler) http.Handler {
		return rateLimitMiddleware(next, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rejections)
	})
	r.Use(func(next http.Handler) http.Handler {
		return backpressureMiddleware(next, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait, rejections)
	})
	if rt.validator != nil {
		r.Use(openAPIValidationMiddleware(rt.validator))
	}

	r.Get("/healthz", rt.healthz)
	r.Get("/openapi.yaml", rt.openAPIDocument)
	if rt.svc.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.svc.Metrics.Handler())
	}
	if rt.svc.Files != nil {
		r.Get("/uploads/{key}", rt.serveUpload)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", rt.register)
			r.Post("/login", rt.login)
			r.Post("/refresh", rt.refresh)
			r.Post("/send-email-otp", rt.sendEmailOTP)
			r.Post("/verify-email-otp", rt.verifyEmailOTP)
			r.Post("/forgot-password", rt.forgotPassword)
			r.Post("/verify-forgot-password", rt.verifyForgotPassword)
			r.Post("/reset-password", rt.resetPassword)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware(rt.svc.Principals))
				r.Get("/me", rt.me)
				r.With(requireAdmin).Get("/users", rt.listUsers)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(rt.svc.Principals))

			r.Route("/transactions", func(r chi.Router) {
				r.Post("/", rt.createTransaction)
				r.Get("/user/{userId}", rt.listUserTransactions)
				r.Get("/{transactionId}", rt.getTransaction)
				r.Patch("/{transactionId}", rt.updateTransaction)
			})

			r.Route("/documents", func(r chi.Router) {
				r.Post("/upload", rt.uploadDocument)
				r.Post("/upload-many", rt.uploadDocuments)
				r.Get("/user/{userId}", rt.listUserDocuments)
				r.Get("/transaction/{transactionId}", rt.listTransactionDocuments)
				r.Get("/{documentId}", rt.getDocument)
				r.Delete("/{documentId}", rt.deleteDocument)
				r.With(requireAdmin).Patch("/{documentId}/status", rt.updateDocumentStatus)
				r.With(requireAdmin).Patch("/{documentId}/signed-file", rt.attachSignedFile)
			})

			r.Route("/notes", func(r chi.Router) {
				r.Post("/document/{documentId}", rt.addNote)
				r.Get("/document/{documentId}", rt.listDocumentNotes)
				r.Get("/document/{documentId}/stats", rt.documentNoteStats)
				r.Get("/transaction/{transactionId}", rt.listTransactionNotes)
				r.Get("/user/{userId}", rt.listUserNotes)
				r.Patch("/{noteId}", rt.updateNote)
				r.Delete("/{noteId}", rt.deleteNote)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (rt *Router) corsOptions() cors.Options {
	origins := rt.cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	wildcard := slices.Contains(origins, "*")
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader, platformHeader},
		ExposedHeaders:   []string{requestIDHeader, "Retry-After"},
		AllowCredentials: !wildcard,
		MaxAge:           300,
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPIDocument(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPISpec)
}

func (rt *Router) serveUpload(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	rc, err := rt.svc.Files.Open(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()
	if contentType := mime.TypeByExtension(filepath.Ext(key)); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("upload_stream_failed",
			"request_id", requestIDFromContext(r.Context()),
			"key", key,
			"error", err,
		)
	}
}
