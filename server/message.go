package server

import (
	"encoding/json"
	"fmt"
	"reflect"

	"evpoint/ocpp"
	"evpoint/ocpp/core"
	"evpoint/ocpp/smartcharging"
	"evpoint/utility"
)

type CallType int

const (
	CallTypeRequest CallType = 2
	CallTypeResult  CallType = 3
	CallTypeError   CallType = 4
)

const (
	ErrorCodeInternal     = "InternalError"
	ErrorCodeNotSupported = "NotSupported"
)

// MessageType reads the frame discriminator, the first array element.
func MessageType(data []interface{}) (CallType, error) {
	if len(data) < 3 {
		return 0, utility.Err("incompatible message structure")
	}
	rawTypeId, ok := data[0].(float64)
	if !ok {
		return 0, utility.Err("invalid message type id")
	}
	callType := CallType(rawTypeId)
	switch callType {
	case CallTypeRequest, CallTypeResult, CallTypeError:
		return callType, nil
	}
	return 0, utility.Err(fmt.Sprintf("unsupported message type id: %v", rawTypeId))
}

// CallResult is an answer to a station's call, [3, id, payload] on the wire.
type CallResult struct {
	TypeId   CallType
	UniqueId string
	Payload  ocpp.Response
}

func (callResult *CallResult) MarshalJSON() ([]byte, error) {
	fields := make([]interface{}, 3)
	fields[0] = int(callResult.TypeId)
	fields[1] = callResult.UniqueId
	fields[2] = callResult.Payload
	return json.Marshal(fields)
}

func CreateCallResult(confirmation ocpp.Response, uniqueId string) (*CallResult, error) {
	if uniqueId == "" {
		return nil, utility.Err("empty unique id")
	}
	callResult := CallResult{
		TypeId:   CallTypeResult,
		UniqueId: uniqueId,
		Payload:  confirmation,
	}
	return &callResult, nil
}

// CallError rejects a station's call without dropping the connection,
// [4, id, code, description, details] on the wire.
type CallError struct {
	TypeId           CallType
	UniqueId         string
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     interface{}
}

func (callError *CallError) MarshalJSON() ([]byte, error) {
	fields := make([]interface{}, 5)
	fields[0] = int(callError.TypeId)
	fields[1] = callError.UniqueId
	fields[2] = callError.ErrorCode
	fields[3] = callError.ErrorDescription
	fields[4] = callError.ErrorDetails
	if fields[4] == nil {
		fields[4] = map[string]interface{}{}
	}
	return json.Marshal(fields)
}

func CreateCallError(uniqueId, errorCode, description string) *CallError {
	return &CallError{
		TypeId:           CallTypeError,
		UniqueId:         uniqueId,
		ErrorCode:        errorCode,
		ErrorDescription: description,
	}
}

// CallRequest is a call frame, [2, id, action, payload] on the wire. It is
// parsed from inbound station traffic and marshalled for server-initiated
// commands.
type CallRequest struct {
	TypeId   CallType
	UniqueId string
	feature  string
	Payload  ocpp.Request
}

func (callRequest *CallRequest) GetFeatureName() string {
	return callRequest.feature
}

func (callRequest *CallRequest) MarshalJSON() ([]byte, error) {
	fields := make([]interface{}, 4)
	fields[0] = int(callRequest.TypeId)
	fields[1] = callRequest.UniqueId
	fields[2] = callRequest.feature
	fields[3] = callRequest.Payload
	return json.Marshal(fields)
}

func CreateCallRequest(uniqueId string, request ocpp.Request) *CallRequest {
	return &CallRequest{
		TypeId:   CallTypeRequest,
		UniqueId: uniqueId,
		feature:  request.GetFeatureName(),
		Payload:  request,
	}
}

func ParseRequest(data []interface{}) (*CallRequest, error) {
	if len(data) != 4 {
		return nil, utility.Err("unsupported request format; expected length: 4 elements")
	}
	rawTypeId, ok := data[0].(float64)
	if !ok {
		return nil, utility.Err("invalid message type in request")
	}
	typeId := CallType(rawTypeId)
	if typeId != CallTypeRequest {
		return nil, utility.Err(fmt.Sprintf("invalid request type id: %v", typeId))
	}
	uniqueId, ok := data[1].(string)
	if !ok {
		return nil, utility.Err("invalid message unique id in request")
	}
	action, ok := data[2].(string)
	if !ok {
		return nil, utility.Err("invalid action in request")
	}

	requestType, err := getRequestType(action)
	if err != nil {
		return nil, err
	}
	request, err := ocpp.ParseRawJsonRequest(data[3], requestType)
	if err != nil {
		return nil, err
	}
	callRequest := CallRequest{
		TypeId:   typeId,
		UniqueId: uniqueId,
		feature:  action,
		Payload:  request,
	}
	return &callRequest, nil
}

// CallResultMessage is an inbound answer to a server-initiated command; the
// payload stays raw until the awaiting caller knows its type.
type CallResultMessage struct {
	UniqueId string
	Payload  interface{}
}

func ParseResult(data []interface{}) (*CallResultMessage, error) {
	if len(data) != 3 {
		return nil, utility.Err("unsupported result format; expected length: 3 elements")
	}
	uniqueId, ok := data[1].(string)
	if !ok {
		return nil, utility.Err("invalid message unique id in result")
	}
	return &CallResultMessage{UniqueId: uniqueId, Payload: data[2]}, nil
}

type CallErrorMessage struct {
	UniqueId         string
	ErrorCode        string
	ErrorDescription string
}

func ParseError(data []interface{}) (*CallErrorMessage, error) {
	if len(data) < 4 {
		return nil, utility.Err("unsupported error format; expected at least 4 elements")
	}
	uniqueId, ok := data[1].(string)
	if !ok {
		return nil, utility.Err("invalid message unique id in error")
	}
	message := CallErrorMessage{UniqueId: uniqueId}
	message.ErrorCode, _ = data[2].(string)
	message.ErrorDescription, _ = data[3].(string)
	return &message, nil
}

func getRequestType(action string) (requestType reflect.Type, err error) {
	switch action {
	case core.BootNotificationFeatureName:
		requestType = reflect.TypeOf(core.BootNotificationRequest{})
	case core.AuthorizeFeatureName:
		requestType = reflect.TypeOf(core.AuthorizeRequest{})
	case core.HeartbeatFeatureName:
		requestType = reflect.TypeOf(core.HeartbeatRequest{})
	case core.StartTransactionFeatureName:
		requestType = reflect.TypeOf(core.StartTransactionRequest{})
	case core.StopTransactionFeatureName:
		requestType = reflect.TypeOf(core.StopTransactionRequest{})
	case core.MeterValuesFeatureName:
		requestType = reflect.TypeOf(core.MeterValuesRequest{})
	case core.StatusNotificationFeatureName:
		requestType = reflect.TypeOf(core.StatusNotificationRequest{})
	case smartcharging.SetChargingProfileFeatureName:
		requestType = reflect.TypeOf(smartcharging.SetChargingProfileRequest{})
	default:
		return nil, utility.Err(fmt.Sprintf("unsupported action requested: %s", action))
	}
	return requestType, nil
}

func getResponseType(feature string) (responseType reflect.Type, err error) {
	switch feature {
	case smartcharging.SetChargingProfileFeatureName:
		responseType = reflect.TypeOf(smartcharging.SetChargingProfileResponse{})
	case smartcharging.ClearChargingProfileFeatureName:
		responseType = reflect.TypeOf(smartcharging.ClearChargingProfileResponse{})
	default:
		return nil, utility.Err(fmt.Sprintf("unsupported feature response: %s", feature))
	}
	return responseType, nil
}
