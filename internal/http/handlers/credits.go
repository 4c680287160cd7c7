package handlers

import (
	"net/http"

	"atelier/internal/infra"
	"atelier/internal/sqlinline"
)

// CreditsBalance returns the caller's current credit balance.
func (a *App) CreditsBalance(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var balance int
	row := a.SQL.QueryRow(r.Context(), sqlinline.QSelectCreditBalance, userID)
	if err := row.Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			a.json(w, http.StatusOK, map[string]any{"balance": 0})
			return
		}
		a.Logger.Error().Err(err).Msg("handlers: balance query failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load balance")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"balance": balance})
}
