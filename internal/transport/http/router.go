package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	httpmw "github.com/cwrk-planet/ride-hub/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Stats feeds the readiness probe.
type Stats interface {
	Connections() int
	Rooms() int
}

type Deps struct {
	WS             http.HandlerFunc
	Stats          Stats
	AllowedOrigins []string
	Log            *slog.Logger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(httpmw.RequestLogger(d.Log.With(slog.String("component", "http"))))
	r.Use(middlewareChi.Recoverer)

	// WS endpoint: GET /ws?token=...
	r.Get("/ws", d.WS)

	r.Group(func(pr chi.Router) {
		pr.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins(d.AllowedOrigins),
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "X-Request-ID"},
			MaxAge:         300,
		}))

		pr.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})

		pr.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, readyResponse{
				Status:      "ok",
				Connections: d.Stats.Connections(),
				Rooms:       d.Stats.Rooms(),
			})
		})
	})

	return r
}

type readyResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func origins(in []string) []string {
	if len(in) == 0 {
		return []string{"*"}
	}
	return in
}
