package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/infra"
)

// maxWebhookBody caps provider callback bodies at 1 MiB.
const maxWebhookBody = 1 << 20

// HTTPHandler builds the HTTP surface served on the same port as the
// socket: health, metrics, public site settings and the provider webhook.
func (g *Gateway) HTTPHandler(wsPath string) http.Handler {
	r := chi.NewRouter()
	r.Use(recovery(g.deps.Logger))
	r.Use(requestLogger(g.deps.Logger))

	r.Get(wsPath, g.ServeWS)
	r.Get("/health", g.handleHealth)
	r.Get("/metrics", g.handleMetrics)
	r.Get("/site/settings", g.handleSiteSettings)
	r.Post("/webhooks/oxapay", g.handleProviderWebhook)

	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := infra.HealthCheck(r.Context(), g.deps.Pool); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ts": time.Now().UnixMilli()})
}

func (g *Gateway) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.deps.Metrics.Snapshot())
}

func (g *Gateway) handleSiteSettings(w http.ResponseWriter, r *http.Request) {
	s := g.deps.Settings.Get(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"siteName":        s.SiteName,
		"siteDescription": s.SiteDescription,
		"online":          g.hub.Count(),
	})
}

// handleProviderWebhook delegates the raw body to the wallet webhook path.
// Signature and parse failures are final (400); everything else asks the
// provider to retry (500).
func (g *Gateway) handleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "body too large", http.StatusBadRequest)
		return
	}

	err = g.deps.Webhooks.HandleCallback(r.Context(), body, r.Header.Get("HMAC"))
	if err == nil {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
		return
	}

	g.deps.Metrics.Inc("webhook_errors_total")
	if appErr, ok := domain.AsAppError(err); ok {
		switch appErr.Code {
		case "UNAUTHORIZED", "VALIDATION_ERROR":
			http.Error(w, appErr.Message, http.StatusBadRequest)
			return
		}
	}
	g.deps.Logger.Error("webhook processing failed", "error", err)
	http.Error(w, "retry", http.StatusInternalServerError)
}

func recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("http handler panicked",
						"method", r.Method, "path", r.URL.Path,
						"panic", rec, "stack", string(debug.Stack()))
					http.Error(w, "internal error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("http request",
				"method", r.Method, "path", r.URL.Path,
				"duration_ms", time.Since(start).Milliseconds())
		})
	}
}
