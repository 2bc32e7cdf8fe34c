package server

import (
	"fmt"
	"log"
	"sync"
	"time"

	"evpoint/authorizer"
	"evpoint/internal"
	"evpoint/internal/config"
	"evpoint/meter"
	"evpoint/ocpp"
	"evpoint/ocpp/core"
	"evpoint/ocpp/smartcharging"
	"evpoint/telegram"
	"evpoint/transactions"
	"evpoint/types"
	"evpoint/utility"
)

type CentralSystem struct {
	server          *Server
	api             *Api
	logger          internal.LogHandler
	handler         *SystemHandler
	location        *time.Location
	pendingRequests map[string]pendingRequest
	mux             sync.Mutex
}

type pendingRequest struct {
	stationId string
	response  chan pendingResult
}

type pendingResult struct {
	payload   interface{}
	errorCode string
	errorText string
	err       error
}

// SendRequest delivers a server-initiated call and blocks until the station
// answered, the timeout elapsed, or the write failed. Transport errors come
// back unwrapped so the caller can classify ambiguous socket closes.
func (cs *CentralSystem) SendRequest(stationId string, request ocpp.Request, timeout time.Duration) (ocpp.Response, error) {
	uniqueId := utility.NewUUID()
	response := make(chan pendingResult, 1)
	cs.mux.Lock()
	cs.pendingRequests[uniqueId] = pendingRequest{stationId: stationId, response: response}
	cs.mux.Unlock()
	defer func() {
		cs.mux.Lock()
		delete(cs.pendingRequests, uniqueId)
		cs.mux.Unlock()
	}()

	err := cs.server.SendCall(stationId, uniqueId, request)
	if err != nil {
		return nil, err
	}

	select {
	case result := <-response:
		if result.err != nil {
			return nil, result.err
		}
		if result.errorCode != "" {
			return nil, fmt.Errorf("station %s returned %s: %s", stationId, result.errorCode, result.errorText)
		}
		responseType, err := getResponseType(request.GetFeatureName())
		if err != nil {
			return nil, err
		}
		return ocpp.ParseRawJsonResponse(result.payload, responseType)
	case <-time.After(timeout):
		return nil, ocpp.ErrRequestTimeout
	}
}

func (cs *CentralSystem) resolvePending(uniqueId string, result pendingResult) bool {
	cs.mux.Lock()
	pending, ok := cs.pendingRequests[uniqueId]
	if ok {
		delete(cs.pendingRequests, uniqueId)
	}
	cs.mux.Unlock()
	if ok {
		pending.response <- result
	}
	return ok
}

// cancelPendingRequests fails every request still waiting on a station whose
// socket is gone, so callers do not sit out their full timeout.
func (cs *CentralSystem) cancelPendingRequests(stationId string) {
	cs.mux.Lock()
	var cancelled []chan pendingResult
	for uniqueId, pending := range cs.pendingRequests {
		if pending.stationId == stationId {
			delete(cs.pendingRequests, uniqueId)
			cancelled = append(cancelled, pending.response)
		}
	}
	cs.mux.Unlock()
	for _, response := range cancelled {
		response <- pendingResult{err: ocpp.ErrConnectionClosed}
	}
}

func (cs *CentralSystem) OnConnect(stationId string) {
	cs.handler.OnConnect(stationId)
}

func (cs *CentralSystem) OnDisconnect(stationId string) {
	cs.cancelPendingRequests(stationId)
	cs.handler.OnDisconnect(stationId)
}

func (cs *CentralSystem) handleIncomingMessage(ws *WebSocket, data []byte) error {
	stationId := ws.ID()
	message, err := utility.ParseJson(data)
	if err != nil {
		return err
	}
	callType, err := MessageType(message)
	if err != nil {
		return err
	}
	if callType == CallTypeError {
		callError, err := ParseError(message)
		if err != nil {
			cs.logger.Warn(fmt.Sprintf("invalid error frame from %s: %s", stationId, string(data)))
			return nil
		}
		cs.logger.Warn(fmt.Sprintf("error message received from station %s: %s %s", stationId, callError.ErrorCode, callError.ErrorDescription))
		cs.resolvePending(callError.UniqueId, pendingResult{errorCode: callError.ErrorCode, errorText: callError.ErrorDescription})
		return nil
	}
	if callType == CallTypeResult {
		result, err := ParseResult(message)
		if err != nil {
			cs.logger.Warn(fmt.Sprintf("invalid result frame from %s: %s", stationId, string(data)))
			return nil
		}
		if !cs.resolvePending(result.UniqueId, pendingResult{payload: result.Payload}) {
			cs.logger.Warn(fmt.Sprintf("unexpected result %s from station %s", result.UniqueId, stationId))
		}
		return nil
	}

	callRequest, err := ParseRequest(message)
	if err != nil {
		if uniqueId, ok := message[1].(string); ok {
			return cs.server.SendCallError(ws, uniqueId, ErrorCodeNotSupported, err.Error())
		}
		return err
	}
	ws.SetUniqueId(callRequest.UniqueId)

	request := callRequest.Payload
	action := request.GetFeatureName()
	var confirmation ocpp.Response
	switch action {
	case core.BootNotificationFeatureName:
		confirmation, err = cs.handler.OnBootNotification(stationId, request.(*core.BootNotificationRequest))
	case core.AuthorizeFeatureName:
		confirmation, err = cs.handler.OnAuthorize(stationId, request.(*core.AuthorizeRequest))
	case core.HeartbeatFeatureName:
		confirmation, err = cs.handler.OnHeartbeat(stationId, request.(*core.HeartbeatRequest))
	case core.StartTransactionFeatureName:
		confirmation, err = cs.handler.OnStartTransaction(stationId, request.(*core.StartTransactionRequest))
	case core.StopTransactionFeatureName:
		confirmation, err = cs.handler.OnStopTransaction(stationId, request.(*core.StopTransactionRequest))
	case core.MeterValuesFeatureName:
		confirmation, err = cs.handler.OnMeterValues(stationId, request.(*core.MeterValuesRequest))
	case core.StatusNotificationFeatureName:
		confirmation, err = cs.handler.OnStatusNotification(stationId, request.(*core.StatusNotificationRequest))
	case smartcharging.SetChargingProfileFeatureName:
		confirmation, err = cs.handler.OnSetChargingProfile(stationId, request.(*smartcharging.SetChargingProfileRequest))
	default:
		err = fmt.Errorf("feature not supported: %s", action)
	}
	if err != nil {
		cs.logger.Error(fmt.Sprintf("handler %s failed for %s", action, stationId), err)
		return cs.server.SendCallError(ws, callRequest.UniqueId, ErrorCodeInternal, err.Error())
	}

	if ws.IsClosed() {
		cs.logger.FeatureEvent(action, stationId, "websocket closed, response not sent")
		return nil
	}
	return cs.server.SendResponse(ws, confirmation)
}

func (cs *CentralSystem) Start() {
	go func() {
		if err := cs.server.Start(); err != nil {
			cs.logger.Error("websocket server failed", err)
		}
	}()

	if cs.api != nil {
		go func() {
			if err := cs.api.Start(); err != nil {
				cs.logger.Error("api server failed", err)
			}
		}()
	}

	select {}
}

func NewCentralSystem(conf *config.Config) (*CentralSystem, error) {
	cs := &CentralSystem{
		pendingRequests: make(map[string]pendingRequest),
	}

	log.Println("set time zone to " + conf.TimeZone)
	location, err := time.LoadLocation(conf.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("time zone initialization failed: %s", err)
	}
	cs.location = location

	if !conf.Mongo.Enabled {
		return nil, utility.Err("mongodb must be configured and enabled")
	}
	database, err := internal.NewMongoClient(conf)
	if err != nil {
		return nil, fmt.Errorf("mongodb setup failed: %s", err)
	}
	log.Println("mongodb is configured and enabled")

	logService := internal.NewLogger(location)
	logService.SetDebugMode(conf.IsDebug)
	logService.SetDatabase(database)
	cs.logger = logService

	gate := authorizer.NewGate(database, logService)
	tracker, err := transactions.NewTracker(database, logService)
	if err != nil {
		return nil, err
	}
	processor := meter.NewProcessor(database, logService)

	systemHandler := NewSystemHandler(conf, location)
	systemHandler.SetLogger(logService)
	systemHandler.SetAuthorizer(gate)
	systemHandler.SetTransactionTracker(tracker)
	systemHandler.SetMeterProcessor(processor)
	systemHandler.SetRequestSender(cs)
	cs.handler = systemHandler

	if conf.Telegram.Enabled {
		telegramBot, err := telegram.NewBot(conf.Telegram.ApiKey)
		if err != nil {
			return nil, fmt.Errorf("telegram bot setup failed: %s", err)
		}
		telegramBot.SetDatabase(database)
		telegramBot.Start()
		systemHandler.AddEventListener(telegramBot)
		log.Println("telegram bot is configured and enabled")
	}

	wsServer := NewServer(conf, logService)
	wsServer.AddSupportedSubProtocol(types.SubProtocol16)
	wsServer.SetMessageHandler(cs.handleIncomingMessage)
	wsServer.SetConnectionHandler(cs)
	cs.server = wsServer

	if conf.Api.Enabled {
		apiServer := NewServerApi(conf, logService)
		apiServer.SetAuthorizer(gate)
		apiServer.SetDatabase(database)
		apiServer.SetSystemHandler(systemHandler)
		cs.api = apiServer
	}

	return cs, nil
}
