package server

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"evpoint/internal"
	"evpoint/internal/config"
	"evpoint/ocpp"
	"evpoint/utility"
)

const (
	wsEndpoint = "/ws/:id"
)

// ConnectionHandler is notified when a station session begins or ends.
type ConnectionHandler interface {
	OnConnect(stationId string)
	OnDisconnect(stationId string)
}

type Server struct {
	conf              *config.Config
	httpServer        *http.Server
	upgrader          websocket.Upgrader
	messageHandler    func(ws *WebSocket, data []byte) error
	connectionHandler ConnectionHandler
	logger            internal.LogHandler
	mux               sync.Mutex
	clients           map[string]*WebSocket
}

type WebSocket struct {
	conn     *websocket.Conn
	id       string
	uniqueId string
	writeMux sync.Mutex
	closed   bool
}

func (ws *WebSocket) ID() string {
	return ws.id
}

func (ws *WebSocket) UniqueId() string {
	return ws.uniqueId
}

func (ws *WebSocket) SetUniqueId(uniqueId string) {
	ws.uniqueId = uniqueId
}

func (ws *WebSocket) IsClosed() bool {
	ws.writeMux.Lock()
	defer ws.writeMux.Unlock()
	return ws.closed
}

func (ws *WebSocket) write(data []byte) error {
	ws.writeMux.Lock()
	defer ws.writeMux.Unlock()
	if ws.closed {
		return websocket.ErrCloseSent
	}
	return ws.conn.WriteMessage(websocket.TextMessage, data)
}

func (ws *WebSocket) markClosed() {
	ws.writeMux.Lock()
	ws.closed = true
	ws.writeMux.Unlock()
}

func NewServer(conf *config.Config, logger internal.LogHandler) *Server {
	server := Server{
		conf:     conf,
		logger:   logger,
		upgrader: websocket.Upgrader{Subprotocols: []string{}},
		clients:  make(map[string]*WebSocket),
	}
	router := httprouter.New()
	server.Register(router)
	server.httpServer = &http.Server{
		Handler: router,
	}
	return &server
}

func (s *Server) AddSupportedSubProtocol(proto string) {
	for _, sub := range s.upgrader.Subprotocols {
		if sub == proto {
			return
		}
	}
	s.upgrader.Subprotocols = append(s.upgrader.Subprotocols, proto)
}

func (s *Server) SetMessageHandler(handler func(ws *WebSocket, data []byte) error) {
	s.messageHandler = handler
}

func (s *Server) SetConnectionHandler(handler ConnectionHandler) {
	s.connectionHandler = handler
}

func (s *Server) Register(router *httprouter.Router) {
	router.GET(wsEndpoint, s.handleWsRequest)
}

func (s *Server) handleWsRequest(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id := params.ByName("id")
	s.logger.Debug(fmt.Sprintf("connection initiated from remote %s", r.RemoteAddr))

	s.upgrader.CheckOrigin = func(r *http.Request) bool {
		return true
	}

	clientSubProto := websocket.Subprotocols(r)
	requestedProto := ""
	for _, proto := range clientSubProto {
		if len(s.upgrader.Subprotocols) == 0 {
			// supporting all protocols
			requestedProto = proto
			break
		}
		if utility.Contains(s.upgrader.Subprotocols, proto) {
			requestedProto = proto
			break
		}
	}
	responseHeader := http.Header{}
	if requestedProto != "" {
		responseHeader.Add("Sec-WebSocket-Protocol", requestedProto)
	}

	conn, err := s.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		s.logger.Error("upgrade failed", err)
		return
	}

	s.logger.Debug(fmt.Sprintf("upgraded socket for %s and ready to receive data", id))
	ws := WebSocket{
		conn: conn,
		id:   id,
	}
	s.register(&ws)

	go s.messageReader(&ws)
}

func (s *Server) register(ws *WebSocket) {
	s.mux.Lock()
	previous := s.clients[ws.id]
	s.clients[ws.id] = ws
	s.mux.Unlock()
	if previous != nil {
		// the station reconnected before the old socket died
		previous.markClosed()
		_ = previous.conn.Close()
	}
	if s.connectionHandler != nil {
		s.connectionHandler.OnConnect(ws.id)
	}
}

func (s *Server) unregister(ws *WebSocket) {
	s.mux.Lock()
	current, ok := s.clients[ws.id]
	if ok && current == ws {
		delete(s.clients, ws.id)
	} else {
		ok = false
	}
	s.mux.Unlock()
	if ok && s.connectionHandler != nil {
		s.connectionHandler.OnDisconnect(ws.id)
	}
}

func (s *Server) client(stationId string) *WebSocket {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.clients[stationId]
}

func (s *Server) messageReader(ws *WebSocket) {
	conn := ws.conn
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, 3001) {
				s.logger.Debug(fmt.Sprintf("id %s leaving session", ws.id))
			} else {
				s.logger.Debug(fmt.Sprintf("id %s is closing session %s", ws.id, err))
			}
			ws.markClosed()
			err = conn.Close()
			if err != nil {
				s.logger.Warn(fmt.Sprintf("error while closing socket %s %s", ws.id, err))
			}
			s.unregister(ws)
			return
		}
		s.logger.RawDataEvent("IN", string(message))
		if s.messageHandler != nil {
			err = s.messageHandler(ws, message)
			if err != nil {
				s.logger.Error(fmt.Sprintf("handling message from %s", ws.id), err)
				continue
			}
		}
	}
}

func (s *Server) Start() error {
	if s.conf == nil {
		return utility.Err("configuration not loaded")
	}
	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIP, s.conf.Listen.Port)
	s.logger.Debug(fmt.Sprintf("starting server on %s", serverAddress))
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}
	if s.conf.Listen.TLS {
		s.logger.Debug("starting https TLS server")
		err = s.httpServer.ServeTLS(listener, s.conf.Listen.CertFile, s.conf.Listen.KeyFile)
	} else {
		s.logger.Debug("starting http server")
		err = s.httpServer.Serve(listener)
	}
	return err
}

func (s *Server) SendResponse(ws *WebSocket, response ocpp.Response) error {
	callResult, err := CreateCallResult(response, ws.UniqueId())
	if err != nil {
		return err
	}
	data, err := callResult.MarshalJSON()
	if err != nil {
		s.logger.Error("error encoding response", err)
		return err
	}
	s.logger.RawDataEvent("OUT", string(data))
	if err = ws.write(data); err != nil {
		s.logger.Error("error sending response", err)
	}
	return err
}

func (s *Server) SendCallError(ws *WebSocket, uniqueId, errorCode, description string) error {
	callError := CreateCallError(uniqueId, errorCode, description)
	data, err := callError.MarshalJSON()
	if err != nil {
		return err
	}
	s.logger.RawDataEvent("OUT", string(data))
	return ws.write(data)
}

// SendCall delivers a server-initiated request to a connected station. The
// caller correlates the answer by uniqueId.
func (s *Server) SendCall(stationId, uniqueId string, request ocpp.Request) error {
	ws := s.client(stationId)
	if ws == nil {
		return utility.Err(fmt.Sprintf("station %s is not connected", stationId))
	}
	callRequest := CreateCallRequest(uniqueId, request)
	data, err := callRequest.MarshalJSON()
	if err != nil {
		return err
	}
	s.logger.RawDataEvent("OUT", string(data))
	return ws.write(data)
}
