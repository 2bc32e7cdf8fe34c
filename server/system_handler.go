package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"evpoint/authorizer"
	"evpoint/internal"
	"evpoint/internal/config"
	"evpoint/meter"
	"evpoint/models"
	"evpoint/ocpp"
	"evpoint/ocpp/core"
	"evpoint/ocpp/smartcharging"
	"evpoint/power"
	"evpoint/transactions"
	"evpoint/types"
)

// SessionState is the live state of one connected station. It is created when
// the socket is accepted and dropped when it closes; nothing here survives a
// reconnect.
type SessionState struct {
	station    models.Station
	profiles   *power.ProfileController
	heartbeats int
	cancel     context.CancelFunc
}

type SystemHandler struct {
	conf      *config.Config
	location  *time.Location
	sessions  map[string]*SessionState
	logger    internal.LogHandler
	gate      *authorizer.Gate
	tracker   *transactions.Tracker
	meter     *meter.Processor
	sender    ocpp.RequestSender
	listeners []internal.EventHandler
	mux       sync.Mutex
}

func NewSystemHandler(conf *config.Config, location *time.Location) *SystemHandler {
	return &SystemHandler{
		conf:     conf,
		location: location,
		sessions: make(map[string]*SessionState),
	}
}

func (h *SystemHandler) SetLogger(logger internal.LogHandler) {
	h.logger = logger
}

func (h *SystemHandler) SetAuthorizer(gate *authorizer.Gate) {
	h.gate = gate
}

func (h *SystemHandler) SetTransactionTracker(tracker *transactions.Tracker) {
	h.tracker = tracker
}

func (h *SystemHandler) SetMeterProcessor(processor *meter.Processor) {
	h.meter = processor
}

func (h *SystemHandler) SetRequestSender(sender ocpp.RequestSender) {
	h.sender = sender
}

func (h *SystemHandler) AddEventListener(listener internal.EventHandler) {
	h.listeners = append(h.listeners, listener)
}

func (h *SystemHandler) profileOptions() power.Options {
	options := power.DefaultOptions()
	if h.conf != nil {
		options.RequestTimeout = time.Duration(h.conf.Profile.RequestTimeout) * time.Second
		options.MaxAttempts = h.conf.Profile.MaxAttempts
		options.BackoffBase = time.Duration(h.conf.Profile.BackoffBase) * time.Second
		options.AssumeSuccessOnClose = h.conf.Profile.AssumeSuccessOnClose
	}
	return options
}

// OnConnect creates the session state for a freshly accepted socket. A
// reconnect replaces the previous state wholesale.
func (h *SystemHandler) OnConnect(stationId string) {
	profiles := power.NewProfileController(stationId, h.sender, h.logger, h.profileOptions())
	state := &SessionState{
		station:  models.Station{Id: stationId, Status: string(core.ChargePointStatusAvailable)},
		profiles: profiles,
	}
	if h.conf != nil && h.conf.Load.Enabled {
		ctx, cancel := context.WithCancel(context.Background())
		state.cancel = cancel
		loadController := power.NewDynamicLoadController(stationId, profiles, h.logger, power.LoadOptions{
			ConnectorId: h.conf.Load.Connector,
			MinPower:    h.conf.Load.MinPower,
			MaxPower:    h.conf.Load.MaxPower,
			Step:        h.conf.Load.Step,
			Interval:    time.Duration(h.conf.Load.Interval) * time.Second,
		})
		go loadController.Run(ctx)
	}

	h.mux.Lock()
	previous := h.sessions[stationId]
	h.sessions[stationId] = state
	count := len(h.sessions)
	h.mux.Unlock()
	if previous != nil && previous.cancel != nil {
		previous.cancel()
	}
	observeConnections(count)
	h.logger.Debug(fmt.Sprintf("session created for %s", stationId))
}

func (h *SystemHandler) OnDisconnect(stationId string) {
	h.mux.Lock()
	state := h.sessions[stationId]
	delete(h.sessions, stationId)
	count := len(h.sessions)
	h.mux.Unlock()
	if state != nil && state.cancel != nil {
		state.cancel()
	}
	observeConnections(count)
	h.logger.Debug(fmt.Sprintf("session closed for %s", stationId))
}

func (h *SystemHandler) getSession(stationId string) *SessionState {
	h.mux.Lock()
	state, ok := h.sessions[stationId]
	h.mux.Unlock()
	if !ok {
		// a frame arrived before the connect callback, register late
		h.OnConnect(stationId)
		h.mux.Lock()
		state = h.sessions[stationId]
		h.mux.Unlock()
	}
	return state
}

func (h *SystemHandler) notify(fire func(listener internal.EventHandler)) {
	for _, listener := range h.listeners {
		go fire(listener)
	}
}

func (h *SystemHandler) heartbeatInterval() int {
	if h.conf != nil && h.conf.HeartbeatInterval > 0 {
		return h.conf.HeartbeatInterval
	}
	return 600
}

func (h *SystemHandler) OnBootNotification(stationId string, request *core.BootNotificationRequest) (*core.BootNotificationResponse, error) {
	state := h.getSession(stationId)
	state.station.Vendor = request.ChargePointVendor
	state.station.Model = request.ChargePointModel
	state.station.SerialNumber = request.ChargePointSerialNumber
	state.station.FirmwareVersion = request.FirmwareVersion
	state.station.LastSeen = time.Now()

	h.logger.FeatureEvent(request.GetFeatureName(), stationId, fmt.Sprintf("%s %s accepted", request.ChargePointVendor, request.ChargePointModel))
	return core.NewBootNotificationResponse(types.Now(), h.heartbeatInterval(), core.RegistrationStatusAccepted), nil
}

func (h *SystemHandler) OnHeartbeat(stationId string, request *core.HeartbeatRequest) (*core.HeartbeatResponse, error) {
	state := h.getSession(stationId)
	state.heartbeats++
	state.station.LastSeen = time.Now()
	state.profiles.Reassert()
	h.logger.FeatureEvent(request.GetFeatureName(), stationId, fmt.Sprintf("beat %d", state.heartbeats))
	return core.NewHeartbeatResponse(types.Now()), nil
}

func (h *SystemHandler) OnAuthorize(stationId string, request *core.AuthorizeRequest) (*core.AuthorizeResponse, error) {
	result, err := h.gate.Authorize(stationId, request.IdTag)
	if err != nil {
		return nil, err
	}
	authStatus := types.AuthorizationStatusAccepted
	if !result.Accepted {
		authStatus = types.AuthorizationStatusInvalid
		observeRefusedAuth(stationId)
	}

	event := &internal.EventMessage{
		StationId: stationId,
		Time:      time.Now(),
		CardName:  result.CardName,
		IdTag:     request.IdTag,
		Status:    string(authStatus),
	}
	if result.Accepted {
		h.notify(func(listener internal.EventHandler) { listener.OnAuthorize(event) })
	} else {
		h.notify(func(listener internal.EventHandler) { listener.OnAuthorizeRefused(event) })
	}

	h.logger.FeatureEvent(request.GetFeatureName(), stationId, fmt.Sprintf("id tag: %s; authorization status: %s", request.IdTag, authStatus))
	return core.NewAuthorizationResponse(types.NewIdTagInfo(authStatus)), nil
}

func (h *SystemHandler) OnStartTransaction(stationId string, request *core.StartTransactionRequest) (*core.StartTransactionResponse, error) {
	cardName := ""
	card, err := h.gate.Lookup(request.IdTag)
	if err != nil {
		h.logger.Error("start transaction card lookup", err)
	} else if card != nil {
		cardName = card.Name
	}

	transaction := h.tracker.Start(stationId, request.ConnectorId, request.IdTag, cardName)
	observeTransactionStart(stationId)

	event := &internal.EventMessage{
		StationId:     stationId,
		ConnectorId:   request.ConnectorId,
		Time:          transaction.TimeStart,
		CardName:      cardName,
		IdTag:         request.IdTag,
		TransactionId: transaction.Id,
		Status:        "started",
	}
	h.notify(func(listener internal.EventHandler) { listener.OnTransactionStart(event) })

	h.logger.FeatureEvent(request.GetFeatureName(), stationId, fmt.Sprintf("started transaction #%v for connector %v", transaction.Id, request.ConnectorId))
	return core.NewStartTransactionResponse(types.NewIdTagInfo(types.AuthorizationStatusAccepted), transaction.Id), nil
}

func (h *SystemHandler) OnStopTransaction(stationId string, request *core.StopTransactionRequest) (*core.StopTransactionResponse, error) {
	event := &internal.EventMessage{
		StationId:     stationId,
		Time:          time.Now(),
		IdTag:         request.IdTag,
		TransactionId: request.TransactionId,
		Status:        "stopped",
		Info:          string(request.Reason),
	}
	h.notify(func(listener internal.EventHandler) { listener.OnTransactionStop(event) })

	h.logger.FeatureEvent(request.GetFeatureName(), stationId, fmt.Sprintf("stopped transaction #%v: %s", request.TransactionId, request.Reason))
	return core.NewStopTransactionResponse(), nil
}

func (h *SystemHandler) OnMeterValues(stationId string, request *core.MeterValuesRequest) (*core.MeterValuesResponse, error) {
	state := h.getSession(stationId)
	limit := state.profiles.CurrentLimit(request.ConnectorId)
	h.meter.Process(stationId, request.ConnectorId, request.TransactionId, request.MeterValue, limit)
	observeMeterValues(stationId)
	return core.NewMeterValuesResponse(), nil
}

func (h *SystemHandler) OnStatusNotification(stationId string, request *core.StatusNotificationRequest) (*core.StatusNotificationResponse, error) {
	state := h.getSession(stationId)
	state.station.Status = string(request.Status)
	state.station.ErrorCode = string(request.ErrorCode)
	state.station.LastSeen = time.Now()
	if request.ErrorCode != "" && request.ErrorCode != core.NoError {
		observeError(stationId, string(request.ErrorCode))
	}

	event := &internal.EventMessage{
		StationId:   stationId,
		ConnectorId: request.ConnectorId,
		Time:        time.Now(),
		Status:      string(request.Status),
		Info:        request.Info,
	}
	h.notify(func(listener internal.EventHandler) { listener.OnStatusNotification(event) })

	h.logger.FeatureEvent(request.GetFeatureName(), stationId, fmt.Sprintf("connector %d is %s", request.ConnectorId, request.Status))
	return core.NewStatusNotificationResponse(), nil
}

func (h *SystemHandler) OnSetChargingProfile(stationId string, request *smartcharging.SetChargingProfileRequest) (*smartcharging.SetChargingProfileResponse, error) {
	state := h.getSession(stationId)
	status := state.profiles.ApplyRemote(request.ConnectorId, request.ChargingProfile)
	h.logger.FeatureEvent(request.GetFeatureName(), stationId, fmt.Sprintf("connector %d profile: %s", request.ConnectorId, status))
	return smartcharging.NewSetChargingProfileResponse(status), nil
}

// SetPowerLimit imposes a ceiling on one connector of a connected station.
func (h *SystemHandler) SetPowerLimit(stationId string, connectorId, profileId int, limit float64, unit types.ChargingRateUnitType) error {
	state, err := h.connectedSession(stationId)
	if err != nil {
		return err
	}
	return state.profiles.SetLimit(connectorId, profileId, limit, unit)
}

// ClearPowerLimit removes the ceiling from one connector.
func (h *SystemHandler) ClearPowerLimit(stationId string, connectorId, profileId int) error {
	state, err := h.connectedSession(stationId)
	if err != nil {
		return err
	}
	return state.profiles.ClearLimit(connectorId, profileId)
}

func (h *SystemHandler) connectedSession(stationId string) (*SessionState, error) {
	h.mux.Lock()
	state, ok := h.sessions[stationId]
	h.mux.Unlock()
	if !ok {
		return nil, fmt.Errorf("station %s is not connected", stationId)
	}
	return state, nil
}
