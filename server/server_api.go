package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"evpoint/authorizer"
	"evpoint/internal"
	"evpoint/internal/config"
	"evpoint/meter"
	"evpoint/types"
)

const transactionsListLimit = 100

// Api is the REST surface for station staff tooling: claiming refused cards,
// reading transactions with cost annotation, and commanding power limits.
type Api struct {
	conf       *config.Config
	httpServer *http.Server
	logger     internal.LogHandler
	gate       *authorizer.Gate
	database   internal.Database
	handler    *SystemHandler
}

type claimCommand struct {
	AccountId   int    `json:"account_id"`
	AccountName string `json:"account_name"`
	CardName    string `json:"card_name"`
}

type limitCommand struct {
	ConnectorId int     `json:"connector_id"`
	ProfileId   int     `json:"profile_id"`
	Limit       float64 `json:"limit"`
	Unit        string  `json:"unit"`
	Clear       bool    `json:"clear"`
}

func NewServerApi(conf *config.Config, logger internal.LogHandler) *Api {
	api := Api{
		conf:   conf,
		logger: logger,
	}
	router := httprouter.New()
	router.GET("/api/refused/:id", api.handleRefused)
	router.POST("/api/cards/:id", api.handleClaim)
	router.GET("/api/transactions", api.handleTransactions)
	router.GET("/api/transactions/:id/powerlogs", api.handlePowerLogs)
	router.GET("/api/status", api.handleStatus)
	router.GET("/api/log", api.handleLog)
	router.POST("/api/limit/:id", api.handleLimit)
	api.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%s", conf.Api.BindIP, conf.Api.Port),
		Handler: router,
	}
	return &api
}

func (s *Api) SetAuthorizer(gate *authorizer.Gate) {
	s.gate = gate
}

func (s *Api) SetDatabase(database internal.Database) {
	s.database = database
}

func (s *Api) SetSystemHandler(handler *SystemHandler) {
	s.handler = handler
}

func (s *Api) Start() error {
	s.logger.Debug(fmt.Sprintf("starting api server on %s", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Api) sendJson(w http.ResponseWriter, payload interface{}) {
	w.Header().Add("Content-Type", "application/json; charset=utf-8")
	err := json.NewEncoder(w).Encode(payload)
	if err != nil {
		s.logger.Error("api: encoding response", err)
	}
}

func (s *Api) sendError(w http.ResponseWriter, status int, err error) {
	s.logger.Warn(fmt.Sprintf("api: %v", err))
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (s *Api) handleRefused(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	attempts, err := s.gate.RecentRefusals(params.ByName("id"))
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, err)
		return
	}
	s.sendJson(w, attempts)
}

func (s *Api) handleClaim(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	var cmd claimCommand
	err := json.NewDecoder(r.Body).Decode(&cmd)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err)
		return
	}
	card, err := s.gate.ClaimLatestRefusal(params.ByName("id"), cmd.AccountId, cmd.AccountName, cmd.CardName)
	if err != nil {
		s.sendError(w, http.StatusNotFound, err)
		return
	}
	s.sendJson(w, card)
}

func (s *Api) handleTransactions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	transactions, err := s.database.GetTransactions(transactionsListLimit)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, err)
		return
	}
	s.sendJson(w, transactions)
}

func (s *Api) handlePowerLogs(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	transactionId, err := strconv.Atoi(params.ByName("id"))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, fmt.Errorf("invalid transaction id: %v", err))
		return
	}
	logs, err := s.database.GetPowerLogs(transactionId)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, err)
		return
	}
	err = meter.AnnotateCosts(logs, s.database)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, err)
		return
	}
	s.sendJson(w, logs)
}

func (s *Api) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	snapshots, err := s.database.GetMeterSnapshots()
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, err)
		return
	}
	s.sendJson(w, snapshots)
}

func (s *Api) handleLog(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	messages, err := s.database.ReadLog()
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, err)
		return
	}
	s.sendJson(w, messages)
}

func (s *Api) handleLimit(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if s.handler == nil {
		s.sendError(w, http.StatusServiceUnavailable, fmt.Errorf("command handler not configured"))
		return
	}
	var cmd limitCommand
	err := json.NewDecoder(r.Body).Decode(&cmd)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err)
		return
	}
	stationId := params.ByName("id")
	if cmd.Clear {
		err = s.handler.ClearPowerLimit(stationId, cmd.ConnectorId, cmd.ProfileId)
	} else {
		unit := types.ChargingRateUnitType(cmd.Unit)
		if unit != types.ChargingRateUnitAmperes {
			unit = types.ChargingRateUnitWatts
		}
		err = s.handler.SetPowerLimit(stationId, cmd.ConnectorId, cmd.ProfileId, cmd.Limit, unit)
	}
	if err != nil {
		s.sendError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
