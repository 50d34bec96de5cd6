package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/IRakow/aiaviizn-capture/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the capture HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initCapture(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/pages", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			limit, _ := strconv.Atoi(q.Get("limit"))
			pages, err := env.Store.ListPages(req.Context(), store.PageFilter{
				TenantID: q.Get("tenant"),
				Status:   q.Get("status"),
				Limit:    limit,
			})
			if err != nil {
				zap.L().Error("list pages failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list pages failed"})
				return
			}
			writeJSON(w, http.StatusOK, pages)
		})

		r.Get("/pages/{tenant}/*", func(w http.ResponseWriter, req *http.Request) {
			tenant := chi.URLParam(req, "tenant")
			url := chi.URLParam(req, "*")
			page, err := env.Store.GetPage(req.Context(), tenant, url)
			if err != nil {
				zap.L().Error("get page failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "get page failed"})
				return
			}
			if page == nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "page not found"})
				return
			}
			writeJSON(w, http.StatusOK, page)
		})

		r.Post("/capture", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				TenantID string `json:"tenant_id"`
				URL      string `json:"url"`
				Content  string `json:"content"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if body.TenantID == "" || body.URL == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant_id and url are required"})
				return
			}

			page, result, err := env.Pipeline.CapturePage(req.Context(), body.TenantID, body.URL, body.Content)
			if err != nil {
				zap.L().Error("capture failed",
					zap.String("tenant", body.TenantID),
					zap.String("url", body.URL),
					zap.Error(err),
				)
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
				return
			}

			writeJSON(w, http.StatusOK, map[string]any{
				"result": result,
				"page":   page,
			})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
