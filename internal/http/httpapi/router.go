package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"vtokiosk/internal/http/handlers"
	"vtokiosk/internal/infra"
	"vtokiosk/internal/middleware"
)

// Options configures the router beyond the handlers.
type Options struct {
	// Logger defaults to a no-op logger when nil.
	Logger         *infra.Logger
	AllowedOrigins []string
	DefaultLocale  string
	CountryLookup  middleware.CountryLookup
	OperatorSecret string
	// RateLimitPerMin bounds capture and authorize calls per client IP.
	RateLimitPerMin int
	// StaticDir serves local backups under /static when set.
	StaticDir string
	// AssetsDir serves catalog images under /assets when set.
	AssetsDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(*logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	limited := middleware.RateLimit(opts.RateLimitPerMin, time.Minute)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)
		r.Get("/catalog", app.GetCatalog)
		r.Get("/share/{id}", app.Share)
		r.Post("/logs", app.ClientLog)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", app.StartSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", app.GetSession)
				r.Delete("/", app.ExitSession)
				r.Get("/events", app.SessionEvents)

				r.Post("/garment", app.SelectGarment)
				r.Post("/design", app.EnterDesign)
				r.Post("/design/finalize", app.FinalizeDesign)
				r.Post("/back", app.Back)
				r.Post("/countdown", app.StartCountdown)
				r.Delete("/countdown", app.CancelCountdown)
				r.With(limited).Post("/capture", app.Capture)
				r.Post("/retry", app.Retry)
				r.With(limited).Post("/authorize", app.Authorize)
				r.Post("/reset", app.ResetSession)

				r.Post("/stickers", app.PlaceSticker)
				r.Delete("/stickers", app.ClearDesign)
				r.Patch("/stickers/{element}", app.MoveSticker)
				r.Delete("/stickers/{element}", app.DeleteSticker)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Operator(opts.OperatorSecret))
			r.Get("/history", app.ListHistory)
			r.Delete("/history", app.ClearHistory)
			r.Get("/history/export", app.ExportHistory)
			r.Get("/usage", app.GetUsage)
			r.Delete("/usage", app.ResetUsage)
			r.Get("/config/prompt", app.GetPromptConfig)
			r.Put("/config/prompt", app.SetPrompt)
			r.Delete("/config/prompt", app.ResetPrompt)
			r.Get("/config/prompt/export", app.ExportPrompt)
			r.Post("/config/prompt/import", app.ImportPrompt)
		})
	})

	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}
	if opts.AssetsDir != "" {
		r.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServer(http.Dir(opts.AssetsDir))))
	}
	return r
}
