package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Lavizord/roulette-server/internal/engine"
	"github.com/Lavizord/roulette-server/logger"
)

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Default.Warnf("[API] - failed to write response: %v", err)
	}
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]interface{}{
		"success": false,
		"message": message,
	})
}

var kindStatus = map[engine.Kind]int{
	engine.KindValidation:    http.StatusBadRequest,
	engine.KindAuthorization: http.StatusForbidden,
	engine.KindState:         http.StatusConflict,
	engine.KindOracle:        http.StatusPaymentRequired,
	engine.KindNotFound:      http.StatusNotFound,
	engine.KindRefund:        http.StatusBadGateway,
	engine.KindInternal:      http.StatusInternalServerError,
}

// StatusFor maps an engine error to an http status.
func StatusFor(err error) int {
	var e *engine.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	if status, ok := kindStatus[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func respondWithEngineError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.Default.Errorf("[API] - %v", err)
	}
	respondWithJSON(w, status, map[string]interface{}{
		"success": false,
		"kind":    engine.KindOf(err).String(),
		"message": err.Error(),
	})
}
