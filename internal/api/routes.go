// Package api is the http surface of the round server.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Lavizord/roulette-server/internal/metrics"
)

type Deps struct {
	Engine    Engine
	Whitelist Whitelist
	// Audit is optional, the events route is only mounted when it is set.
	Audit       AuditLog
	Auth        Auth
	OracleToken string
}

func RegisterRoutes(d Deps) *mux.Router {
	r := mux.NewRouter()
	a := d.Auth

	r.HandleFunc("/api/rounds", a.Admin(CreateRoundHandler(d.Engine))).Methods("POST")
	r.HandleFunc("/api/rounds/current", CurrentRoundHandler(d.Engine)).Methods("GET")
	r.HandleFunc("/api/rounds/{id:[0-9]+}", RoundHandler(d.Engine)).Methods("GET")
	r.HandleFunc("/api/rounds/{id:[0-9]+}/status", RoundStatusHandler(d.Engine)).Methods("GET")
	r.HandleFunc("/api/rounds/{id:[0-9]+}/randomness", a.Protect(RequestRandomnessHandler(d.Engine))).Methods("POST")
	r.HandleFunc("/api/rounds/{id:[0-9]+}/finalize", a.Protect(FinalizeHandler(d.Engine))).Methods("POST")
	if d.Audit != nil {
		r.HandleFunc("/api/rounds/{id:[0-9]+}/events", RoundEventsHandler(d.Audit)).Methods("GET")
	}
	r.HandleFunc("/api/fee", FeeHandler(d.Engine)).Methods("GET")

	r.HandleFunc("/api/bets", a.Protect(PlaceBetHandler(d.Engine))).Methods("POST")
	r.HandleFunc("/api/bets/{id:[0-9]+}", BetHandler(d.Engine)).Methods("GET")
	r.HandleFunc("/api/refunds/claim", a.Protect(ClaimRefundHandler(d.Engine))).Methods("POST")

	r.HandleFunc("/api/whitelist/{counterparty}", WhitelistQueryHandler(d.Whitelist)).Methods("GET")
	r.HandleFunc("/api/whitelist/{counterparty}", a.Admin(WhitelistAddHandler(d.Whitelist))).Methods("PUT")
	r.HandleFunc("/api/whitelist/{counterparty}", a.Admin(WhitelistRemoveHandler(d.Whitelist))).Methods("DELETE")

	r.HandleFunc("/api/oracle/callback", OracleCallbackHandler(d.Engine, d.OracleToken)).Methods("POST")

	healthHandler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.HandleFunc("/api/health", healthHandler).Methods("GET")
	r.Handle("/debug/metrics", metrics.Handler()).Methods("GET")

	return r
}
