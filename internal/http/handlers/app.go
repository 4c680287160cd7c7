package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"atelier/internal/infra"
	"atelier/internal/middleware"
	"atelier/internal/storage"
)

// App is the handler container for the API binary.
type App struct {
	SQL    infra.SQLExecutor
	Store  *storage.FileStore
	Logger zerolog.Logger
}

func NewApp(sql infra.SQLExecutor, store *storage.FileStore, logger zerolog.Logger) *App {
	return &App{SQL: sql, Store: store, Logger: logger}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}
