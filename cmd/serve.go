package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/placegate/internal/cost"
	"github.com/sells-group/placegate/pkg/geocode"
	"github.com/sells-group/placegate/pkg/places"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(newEnv(cfg)),
			ReadHeaderTimeout: 5 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the API router. Handlers validate request shape only;
// domain outcomes come back as data envelopes from the core packages, so a
// failed geocode is still HTTP 200 with success=false.
func newRouter(e *env) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", e.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/geocode", e.handleGeocode)
		r.Get("/places/{placeID}/reviews", e.handleReviews)
		r.Get("/route-cost", e.handleRouteCost)
		r.Get("/business/auth-url", e.handleBusinessAuthURL)
		r.Post("/business/token", e.handleBusinessToken)
	})
	return r
}

// requestIDMiddleware tags every request with a UUID, echoed back in the
// X-Request-ID header and attached to the context for logging.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type requestIDKey struct{}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		id, _ := r.Context().Value(requestIDKey{}).(string)
		zap.L().Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", id),
			zap.Duration("duration", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (e *env) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	providers := map[string]bool{}
	for _, p := range e.registry.Providers() {
		providers[p.Name()] = p.Available(ctx)
	}
	circuits := map[string]string{}
	for name, state := range e.breakers.States() {
		circuits[name] = state.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"providers": providers,
		"circuits":  circuits,
	})
}

func (e *env) handleGeocode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address  string `json:"address"`
		Provider string `json:"provider"`
		Country  string `json:"country"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	outcome := e.selector.Resolve(r.Context(), req.Address, geocode.ResolveOptions{
		Provider: req.Provider,
		Geocode: geocode.Options{
			Country:  req.Country,
			Language: req.Language,
		},
	})
	writeJSON(w, http.StatusOK, outcome)
}

func (e *env) handleReviews(w http.ResponseWriter, r *http.Request) {
	placeID := chi.URLParam(r, "placeID")
	q := r.URL.Query()

	opts := places.PageOptions{
		Language:  q.Get("language"),
		PageToken: q.Get("pageToken"),
	}
	if v := q.Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "pageSize must be an integer")
			return
		}
		opts.PageSize = n
	}
	if v := q.Get("minRating"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 5 {
			writeError(w, http.StatusBadRequest, "minRating must be between 0 and 5")
			return
		}
		opts.MinRating = n
	}

	var page *places.ReviewPage
	if q.Get("chunked") == "true" {
		page = e.aggregator.GetReviewsChunked(r.Context(), placeID, opts)
	} else {
		page = e.aggregator.GetReviews(r.Context(), placeID, opts)
	}
	writeJSON(w, http.StatusOK, page)
}

func (e *env) handleRouteCost(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := q.Get("from")
	to := q.Get("to")
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	fromOut := e.selector.Resolve(r.Context(), from, geocode.ResolveOptions{})
	toOut := e.selector.Resolve(r.Context(), to, geocode.ResolveOptions{})
	if !fromOut.HasResults() || !toOut.HasResults() {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error": map[string]string{
				"code":    "geocode_failed",
				"message": "could not geocode both endpoints",
			},
		})
		return
	}

	f, t := fromOut.Results[0], toOut.Results[0]
	km := cost.DistanceKm(f.Latitude, f.Longitude, t.Latitude, t.Longitude)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"distanceKm": km,
		"cost":       e.costs.Estimate(km),
		"currency":   e.costs.Currency(),
	})
}

func (e *env) handleBusinessAuthURL(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		state = uuid.NewString()
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"authUrl": e.business.AuthURL(state),
		"state":   state,
	})
}

func (e *env) handleBusinessToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code         string `json:"code"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch {
	case req.Code != "":
		tok, err := e.business.Exchange(r.Context(), req.Code)
		if err != nil {
			zap.L().Warn("business token exchange failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "token exchange failed")
			return
		}
		writeJSON(w, http.StatusOK, tok)
	case req.RefreshToken != "":
		tok, err := e.business.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			zap.L().Warn("business token refresh failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "token refresh failed")
			return
		}
		writeJSON(w, http.StatusOK, tok)
	default:
		writeError(w, http.StatusBadRequest, "code or refreshToken is required")
	}
}
