package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Lavizord/roulette-server/internal/engine"
	"github.com/Lavizord/roulette-server/internal/models"
)

// Engine is the part of engine.Engine the api drives.
type Engine interface {
	CreateRound(ctx context.Context, closesAt time.Time) (uint64, error)
	PlaceBet(ctx context.Context, player string, req engine.BetRequest) (uint64, error)
	RequestRandomness(ctx context.Context, caller string, roundID uint64, gasBudget uint32, payment uint64) (engine.RandomnessResult, error)
	FulfillRandomness(ctx context.Context, requestID string, value *big.Int) bool
	Finalize(ctx context.Context, roundID uint64) (engine.FinalizeResult, error)
	ClaimRefund(ctx context.Context, caller string) (uint64, error)
	Status(roundID uint64) (engine.RoundStatus, error)
	CurrentRound() (models.Round, bool)
	Round(id uint64) (models.Round, error)
	Bet(id uint64) (models.Bet, error)
	Fee(gasBudget uint32) (uint64, error)
}

type Whitelist interface {
	Add(ctx context.Context, counterparty string) error
	Remove(ctx context.Context, counterparty string) error
	IsWhitelisted(ctx context.Context, counterparty string) (bool, error)
}

// AuditLog reads the persisted event trail of a round.
type AuditLog interface {
	RoundEvents(ctx context.Context, roundID uint64) ([]models.Event, error)
}

func pathID(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

func caller(r *http.Request) string {
	c, _ := CallerFrom(r.Context())
	return c.Address
}

type createRoundRequest struct {
	ClosesAt time.Time `json:"closes_at"`
}

func CreateRoundHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRoundRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		id, err := eng.CreateRound(r.Context(), req.ClosesAt)
		if err != nil {
			respondWithEngineError(w, err)
			return
		}
		respondWithJSON(w, http.StatusCreated, map[string]interface{}{"round_id": id})
	}
}

func CurrentRoundHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		round, ok := eng.CurrentRound()
		if !ok {
			respondWithError(w, http.StatusNotFound, "no round exists")
			return
		}
		respondWithJSON(w, http.StatusOK, round)
	}
}

func RoundHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			respondWithError(w, http.StatusBadRequest, "Invalid round id")
			return
		}
		round, err := eng.Round(id)
		if err != nil {
			respondWithEngineError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, round)
	}
}

func RoundStatusHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			respondWithError(w, http.StatusBadRequest, "Invalid round id")
			return
		}
		st, err := eng.Status(id)
		if err != nil {
			respondWithEngineError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, st)
	}
}

func RoundEventsHandler(audit AuditLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			respondWithError(w, http.StatusBadRequest, "Invalid round id")
			return
		}
		events, err := audit.RoundEvents(r.Context(), id)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "Failed to fetch events: "+err.Error())
			return
		}
		respondWithJSON(w, http.StatusOK, events)
	}
}

type randomnessRequest struct {
	GasBudget uint32 `json:"gas_budget"`
	Payment   uint64 `json:"payment"`
}

func RequestRandomnessHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			respondWithError(w, http.StatusBadRequest, "Invalid round id")
			return
		}
		var req randomnessRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		res, err := eng.RequestRandomness(r.Context(), caller(r), id, req.GasBudget, req.Payment)
		if err != nil {
			respondWithEngineError(w, err)
			return
		}
		body := map[string]interface{}{
			"success":    true,
			"round_id":   res.RoundID,
			"request_id": res.RequestID,
			"fee":        res.Fee,
			"refunded":   res.Refunded,
		}
		if res.RefundErr != nil {
			body["refund_error"] = res.RefundErr.Error()
		}
		respondWithJSON(w, http.StatusAccepted, body)
	}
}

func FinalizeHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			respondWithError(w, http.StatusBadRequest, "Invalid round id")
			return
		}
		res, err := eng.Finalize(r.Context(), id)
		if err != nil {
			respondWithEngineError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, res)
	}
}

func FeeHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gas, err := strconv.ParseUint(r.URL.Query().Get("gas_budget"), 10, 32)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "gas_budget is required")
			return
		}
		fee, err := eng.Fee(uint32(gas))
		if err != nil {
			respondWithEngineError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"gas_budget": gas,
			"fee":        fee,
		})
	}
}

func PlaceBetHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req engine.BetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
		id, err := eng.PlaceBet(r.Context(), caller(r), req)
		if err != nil {
			respondWithEngineError(w, err)
			return
		}
		respondWithJSON(w, http.StatusCreated, map[string]interface{}{"bet_id": id})
	}
}

func BetHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			respondWithError(w, http.StatusBadRequest, "Invalid bet id")
			return
		}
		bet, err := eng.Bet(id)
		if err != nil {
			respondWithEngineError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, bet)
	}
}

func ClaimRefundHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		amount, err := eng.ClaimRefund(r.Context(), caller(r))
		if err != nil {
			respondWithEngineError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"refunded": amount})
	}
}

type callbackRequest struct {
	RequestID string   `json:"request_id"`
	Value     *big.Int `json:"value"`
}

// OracleCallbackHandler always answers 200, the oracle does not cope with a failing receiver.
// Only a wrong token is turned away.
func OracleCallbackHandler(eng Engine, token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.Header.Get("x-access-token") != token {
			respondWithError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		var req callbackRequest
		ignored := true
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			ignored = eng.FulfillRandomness(r.Context(), req.RequestID, req.Value)
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"ignored": ignored})
	}
}

func WhitelistQueryHandler(wl Whitelist) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cp := mux.Vars(r)["counterparty"]
		ok, err := wl.IsWhitelisted(r.Context(), cp)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"counterparty": cp, "whitelisted": ok})
	}
}

func WhitelistAddHandler(wl Whitelist) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cp := mux.Vars(r)["counterparty"]
		if err := wl.Add(r.Context(), cp); err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"counterparty": cp, "whitelisted": true})
	}
}

func WhitelistRemoveHandler(wl Whitelist) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cp := mux.Vars(r)["counterparty"]
		if err := wl.Remove(r.Context(), cp); err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"counterparty": cp, "whitelisted": false})
	}
}
