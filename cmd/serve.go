package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/placefeed/curator/internal/model"
	"github.com/placefeed/curator/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger server",
	Long:  "Exposes the batch trigger, status, maintenance operations and published entities over HTTP.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
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

func newRouter(env *pipelineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/pipeline/status", func(w http.ResponseWriter, req *http.Request) {
		report, err := env.Pipeline.Status(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	r.Post("/pipeline/run", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			MaxItems int `json:"max_items"`
		}
		if err := decodeBody(req, &body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		summary, err := env.Pipeline.RunBatch(req.Context(), body.MaxItems)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	})

	r.Post("/maintenance/reset", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Hard bool `json:"hard"`
		}
		if err := decodeBody(req, &body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		var n int
		var err error
		if body.Hard {
			n, err = env.Maintenance.HardReset(req.Context())
		} else {
			n, err = env.Maintenance.SoftResetAll(req.Context())
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"affected": n})
	})

	r.Post("/maintenance/scrub", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Action string `json:"action"`
		}
		if err := decodeBody(req, &body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		result, err := env.Maintenance.Scrub(req.Context(), model.ScrubAction(body.Action))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	r.Post("/maintenance/reimport", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			TargetType string `json:"target_type"`
			Limit      int    `json:"limit"`
			DryRun     bool   `json:"dry_run"`
		}
		if err := decodeBody(req, &body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		target := model.TargetType(body.TargetType)
		switch target {
		case model.TargetPlace, model.TargetLocality, model.TargetEvent:
		default:
			writeError(w, http.StatusBadRequest, eris.New("target_type must be place, locality or event"))
			return
		}
		result, err := env.Maintenance.Reimport(req.Context(), target, body.Limit, body.DryRun)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	r.Get("/entities", func(w http.ResponseWriter, req *http.Request) {
		entityType := model.TargetType(req.URL.Query().Get("type"))
		switch entityType {
		case model.TargetPlace, model.TargetLocality, model.TargetEvent:
		default:
			writeError(w, http.StatusBadRequest, eris.New("type must be place, locality or event"))
			return
		}
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

		entities, err := env.Store.ListPublishedEntities(req.Context(), entityType, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, entities)
	})

	r.Get("/entities/{id}", func(w http.ResponseWriter, req *http.Request) {
		entity, err := env.Store.GetEntity(req.Context(), chi.URLParam(req, "id"))
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, entity)
	})

	return r
}

// decodeBody tolerates an empty body so triggers work with plain POSTs.
func decodeBody(req *http.Request, v any) error {
	err := json.NewDecoder(req.Body).Decode(v)
	if err != nil && !eris.Is(err, io.EOF) {
		return eris.Wrap(err, "invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
