package ocpp

import (
	"errors"
	"time"
)

// ErrRequestTimeout is returned by a RequestSender when the station did not
// answer within the allotted time.
var ErrRequestTimeout = errors.New("request timeout")

// ErrConnectionClosed is returned by a RequestSender when the station
// disconnected while the request was waiting for an answer.
var ErrConnectionClosed = errors.New("connection closed")

// RequestSender delivers a call to a connected station and waits for the
// matching result or error frame.
type RequestSender interface {
	SendRequest(stationId string, request Request, timeout time.Duration) (Response, error)
}
