package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evpoint/ocpp/core"
	"evpoint/ocpp/smartcharging"
	"evpoint/types"
	"evpoint/utility"
)

func TestMessageType(t *testing.T) {
	fields, err := utility.ParseJson([]byte(`[2,"id-1","Heartbeat",{}]`))
	require.NoError(t, err)
	callType, err := MessageType(fields)
	require.NoError(t, err)
	assert.Equal(t, CallTypeRequest, callType)

	fields, err = utility.ParseJson([]byte(`[3,"id-1",{}]`))
	require.NoError(t, err)
	callType, err = MessageType(fields)
	require.NoError(t, err)
	assert.Equal(t, CallTypeResult, callType)

	fields, err = utility.ParseJson([]byte(`[7,"id-1",{}]`))
	require.NoError(t, err)
	_, err = MessageType(fields)
	assert.Error(t, err)
}

func TestParseRequest(t *testing.T) {
	t.Run("boot notification", func(t *testing.T) {
		raw := `[2,"uid-7","BootNotification",{"chargePointVendor":"Acme","chargePointModel":"X1"}]`
		fields, err := utility.ParseJson([]byte(raw))
		require.NoError(t, err)

		callRequest, err := ParseRequest(fields)
		require.NoError(t, err)
		assert.Equal(t, "uid-7", callRequest.UniqueId)
		assert.Equal(t, core.BootNotificationFeatureName, callRequest.GetFeatureName())

		request, ok := callRequest.Payload.(*core.BootNotificationRequest)
		require.True(t, ok)
		assert.Equal(t, "Acme", request.ChargePointVendor)
		assert.Equal(t, "X1", request.ChargePointModel)
	})

	t.Run("inbound set charging profile", func(t *testing.T) {
		raw := `[2,"uid-8","SetChargingProfile",{"connectorId":1,"csChargingProfiles":{"chargingProfileId":3,"stackLevel":1,"chargingProfilePurpose":"ChargePointMaxProfile","chargingProfileKind":"Absolute","chargingSchedule":{"chargingRateUnit":"W","chargingSchedulePeriod":[{"startPeriod":0,"limit":7200}]}}}]`
		fields, err := utility.ParseJson([]byte(raw))
		require.NoError(t, err)

		callRequest, err := ParseRequest(fields)
		require.NoError(t, err)
		request, ok := callRequest.Payload.(*smartcharging.SetChargingProfileRequest)
		require.True(t, ok)
		assert.Equal(t, 1, request.ConnectorId)
		require.NotNil(t, request.ChargingProfile)
		require.NotNil(t, request.ChargingProfile.ChargingSchedule)
		assert.InDelta(t, 7200, request.ChargingProfile.ChargingSchedule.ChargingSchedulePeriod[0].Limit, 0.001)
	})

	t.Run("unsupported action", func(t *testing.T) {
		fields, err := utility.ParseJson([]byte(`[2,"uid-9","Reset",{}]`))
		require.NoError(t, err)
		_, err = ParseRequest(fields)
		assert.Error(t, err)
	})

	t.Run("wrong element count", func(t *testing.T) {
		fields, err := utility.ParseJson([]byte(`[2,"uid-9","Heartbeat"]`))
		require.NoError(t, err)
		_, err = ParseRequest(fields)
		assert.Error(t, err)
	})
}

func TestCallFrameMarshalling(t *testing.T) {
	t.Run("call request is a four element array", func(t *testing.T) {
		request := smartcharging.NewSetChargingProfileRequest(1, smartcharging.NewMaxPowerProfile(3, 7200, types.ChargingRateUnitWatts))
		data, err := CreateCallRequest("uid-1", request).MarshalJSON()
		require.NoError(t, err)

		var fields []interface{}
		require.NoError(t, json.Unmarshal(data, &fields))
		require.Len(t, fields, 4)
		assert.Equal(t, float64(2), fields[0])
		assert.Equal(t, "uid-1", fields[1])
		assert.Equal(t, "SetChargingProfile", fields[2])
	})

	t.Run("call result is a three element array", func(t *testing.T) {
		callResult, err := CreateCallResult(core.NewHeartbeatResponse(types.Now()), "uid-2")
		require.NoError(t, err)
		data, err := callResult.MarshalJSON()
		require.NoError(t, err)

		var fields []interface{}
		require.NoError(t, json.Unmarshal(data, &fields))
		require.Len(t, fields, 3)
		assert.Equal(t, float64(3), fields[0])
		assert.Equal(t, "uid-2", fields[1])
	})

	t.Run("empty unique id is refused", func(t *testing.T) {
		_, err := CreateCallResult(core.NewHeartbeatResponse(types.Now()), "")
		assert.Error(t, err)
	})

	t.Run("call error is a five element array", func(t *testing.T) {
		data, err := CreateCallError("uid-3", ErrorCodeInternal, "boom").MarshalJSON()
		require.NoError(t, err)

		var fields []interface{}
		require.NoError(t, json.Unmarshal(data, &fields))
		require.Len(t, fields, 5)
		assert.Equal(t, float64(4), fields[0])
		assert.Equal(t, "uid-3", fields[1])
		assert.Equal(t, ErrorCodeInternal, fields[2])
		assert.Equal(t, "boom", fields[3])
	})
}

func TestParseResultAndError(t *testing.T) {
	fields, err := utility.ParseJson([]byte(`[3,"uid-4",{"status":"Accepted"}]`))
	require.NoError(t, err)
	result, err := ParseResult(fields)
	require.NoError(t, err)
	assert.Equal(t, "uid-4", result.UniqueId)
	assert.NotNil(t, result.Payload)

	fields, err = utility.ParseJson([]byte(`[4,"uid-5","InternalError","details",{}]`))
	require.NoError(t, err)
	callError, err := ParseError(fields)
	require.NoError(t, err)
	assert.Equal(t, "uid-5", callError.UniqueId)
	assert.Equal(t, "InternalError", callError.ErrorCode)
	assert.Equal(t, "details", callError.ErrorDescription)

	// frames without the trailing details object are still readable
	fields, err = utility.ParseJson([]byte(`[4,"uid-6","NotSupported","unknown action"]`))
	require.NoError(t, err)
	callError, err = ParseError(fields)
	require.NoError(t, err)
	assert.Equal(t, "NotSupported", callError.ErrorCode)

	fields, err = utility.ParseJson([]byte(`[4,"uid-7"]`))
	require.NoError(t, err)
	_, err = ParseError(fields)
	assert.ErrorContains(t, err, "at least 4 elements")
}

func TestGetResponseType(t *testing.T) {
	_, err := getResponseType(smartcharging.SetChargingProfileFeatureName)
	assert.NoError(t, err)
	_, err = getResponseType(smartcharging.ClearChargingProfileFeatureName)
	assert.NoError(t, err)
	_, err = getResponseType(core.HeartbeatFeatureName)
	assert.Error(t, err)
}
