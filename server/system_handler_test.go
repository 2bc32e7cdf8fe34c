package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evpoint/authorizer"
	"evpoint/meter"
	"evpoint/models"
	"evpoint/ocpp"
	"evpoint/ocpp/core"
	"evpoint/ocpp/smartcharging"
	"evpoint/transactions"
	"evpoint/types"
)

// fakeStore backs the gate, the tracker and the meter processor in one place.
type fakeStore struct {
	cards        map[string]*models.Card
	attempts     []*models.RefusedAttempt
	transactions []*models.Transaction
	logs         []*models.PowerLog
	finalEnergy  map[int]float64
	snapshot     *models.MeterSnapshot
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cards:       make(map[string]*models.Card),
		finalEnergy: make(map[int]float64),
	}
}

func (f *fakeStore) GetCard(rfid string) (*models.Card, error) { return f.cards[rfid], nil }
func (f *fakeStore) AddCard(card *models.Card) error {
	f.cards[card.Rfid] = card
	return nil
}
func (f *fakeStore) UpdateCardLastSeen(rfid string, seen time.Time) error { return nil }
func (f *fakeStore) AddRefusedAttempt(attempt *models.RefusedAttempt) error {
	f.attempts = append(f.attempts, attempt)
	return nil
}
func (f *fakeStore) GetRefusedAttempts(stationId string, since time.Time) ([]*models.RefusedAttempt, error) {
	return f.attempts, nil
}
func (f *fakeStore) GetLatestRefusedAttempt(stationId string, since time.Time) (*models.RefusedAttempt, error) {
	if len(f.attempts) == 0 {
		return nil, nil
	}
	return f.attempts[len(f.attempts)-1], nil
}
func (f *fakeStore) DeleteRefusedAttempt(id string) error { return nil }

func (f *fakeStore) AddTransaction(transaction *models.Transaction) error {
	f.transactions = append(f.transactions, transaction)
	return nil
}
func (f *fakeStore) GetTransaction(id int) (*models.Transaction, error) {
	for _, row := range f.transactions {
		if row.Id == id {
			return row, nil
		}
	}
	return nil, nil
}
func (f *fakeStore) GetLastTransaction() (*models.Transaction, error) { return nil, nil }

func (f *fakeStore) AddPowerLog(log *models.PowerLog) error {
	f.logs = append(f.logs, log)
	return nil
}
func (f *fakeStore) UpdateTransactionFinalEnergy(transactionId int, energyKwh float64) error {
	f.finalEnergy[transactionId] = energyKwh
	return nil
}
func (f *fakeStore) UpdateMeterSnapshot(snapshot *models.MeterSnapshot) error {
	f.snapshot = snapshot
	return nil
}

type nopLogger struct{}

func (nopLogger) FeatureEvent(feature, id, text string) {}
func (nopLogger) Debug(text string)                     {}
func (nopLogger) Warn(text string)                      {}
func (nopLogger) Error(text string, err error)          {}
func (nopLogger) RawDataEvent(direction, data string)   {}

type acceptingSender struct{}

func (acceptingSender) SendRequest(stationId string, request ocpp.Request, timeout time.Duration) (ocpp.Response, error) {
	switch request.(type) {
	case *smartcharging.SetChargingProfileRequest:
		return smartcharging.NewSetChargingProfileResponse(smartcharging.ChargingProfileStatusAccepted), nil
	case *smartcharging.ClearChargingProfileRequest:
		return &smartcharging.ClearChargingProfileResponse{Status: smartcharging.ClearChargingProfileStatusAccepted}, nil
	}
	return nil, ocpp.ErrRequestTimeout
}

func newTestHandler(t *testing.T, store *fakeStore) *SystemHandler {
	t.Helper()
	handler := NewSystemHandler(nil, time.UTC)
	handler.SetLogger(nopLogger{})
	handler.SetAuthorizer(authorizer.NewGate(store, nopLogger{}))
	tracker, err := transactions.NewTracker(store, nopLogger{})
	require.NoError(t, err)
	handler.SetTransactionTracker(tracker)
	handler.SetMeterProcessor(meter.NewProcessor(store, nopLogger{}))
	handler.SetRequestSender(acceptingSender{})
	return handler
}

func TestOnBootNotification(t *testing.T) {
	handler := newTestHandler(t, newFakeStore())

	response, err := handler.OnBootNotification("station-1", &core.BootNotificationRequest{
		ChargePointVendor: "Acme",
		ChargePointModel:  "X1",
	})
	require.NoError(t, err)
	assert.Equal(t, core.RegistrationStatusAccepted, response.Status)
	assert.Greater(t, response.Interval, 0)
	require.NotNil(t, response.CurrentTime)
}

func TestOnAuthorize(t *testing.T) {
	store := newFakeStore()
	store.cards["CARD1"] = &models.Card{Rfid: "CARD1", Name: "fob", AccountStatus: models.AccountStatusActive}
	handler := newTestHandler(t, store)

	t.Run("active card accepted", func(t *testing.T) {
		response, err := handler.OnAuthorize("station-1", &core.AuthorizeRequest{IdTag: "CARD1"})
		require.NoError(t, err)
		assert.Equal(t, types.AuthorizationStatusAccepted, response.IdTagInfo.Status)
		assert.Empty(t, store.attempts)
	})

	t.Run("unknown tag refused with one audit row", func(t *testing.T) {
		response, err := handler.OnAuthorize("station-1", &core.AuthorizeRequest{IdTag: "GHOST"})
		require.NoError(t, err)
		assert.Equal(t, types.AuthorizationStatusInvalid, response.IdTagInfo.Status)
		require.Len(t, store.attempts, 1)
		assert.Equal(t, "GHOST", store.attempts[0].Rfid)
	})
}

func TestOnStartTransaction(t *testing.T) {
	store := newFakeStore()
	store.cards["CARD1"] = &models.Card{Rfid: "CARD1", Name: "fob", AccountStatus: models.AccountStatusActive}
	handler := newTestHandler(t, store)

	response, err := handler.OnStartTransaction("station-1", &core.StartTransactionRequest{
		ConnectorId: 1,
		IdTag:       "CARD1",
		Timestamp:   types.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, types.AuthorizationStatusAccepted, response.IdTagInfo.Status)

	require.Len(t, store.transactions, 1)
	assert.Equal(t, response.TransactionId, store.transactions[0].Id)
	assert.Equal(t, "CARD1", store.transactions[0].IdTag)
	// minting a transaction is not an authorization and leaves no audit row
	assert.Empty(t, store.attempts)

	second, err := handler.OnStartTransaction("station-1", &core.StartTransactionRequest{
		ConnectorId: 1,
		IdTag:       "CARD1",
		Timestamp:   types.Now(),
	})
	require.NoError(t, err)
	assert.NotEqual(t, response.TransactionId, second.TransactionId)
}

func TestOnStopTransaction(t *testing.T) {
	handler := newTestHandler(t, newFakeStore())

	response, err := handler.OnStopTransaction("station-1", &core.StopTransactionRequest{
		TransactionId: 5,
		Reason:        "Local",
		Timestamp:     types.Now(),
	})
	require.NoError(t, err)
	require.NotNil(t, response)
}

func TestOnMeterValues(t *testing.T) {
	store := newFakeStore()
	handler := newTestHandler(t, store)
	txId := 3

	response, err := handler.OnMeterValues("station-1", &core.MeterValuesRequest{
		ConnectorId:   1,
		TransactionId: &txId,
		MeterValue: []types.MeterValue{{
			Timestamp: types.Now(),
			SampledValue: []types.SampledValue{
				{Value: "7200", Measurand: types.MeasurandPowerActiveImport, Unit: types.UnitOfMeasureW},
				{Value: "3500", Measurand: types.MeasurandEnergyActiveImportRegister, Unit: types.UnitOfMeasureWh},
			},
		}},
	})
	require.NoError(t, err)
	require.NotNil(t, response)

	require.Len(t, store.logs, 1)
	assert.InDelta(t, 7.2, store.logs[0].PowerKw, 0.001)
	assert.InDelta(t, 3.5, store.logs[0].EnergyKwh, 0.001)
	assert.InDelta(t, 3.5, store.finalEnergy[3], 0.001)
	require.NotNil(t, store.snapshot)
}

func TestOnStatusNotification(t *testing.T) {
	handler := newTestHandler(t, newFakeStore())

	response, err := handler.OnStatusNotification("station-1", &core.StatusNotificationRequest{
		ConnectorId: 1,
		Status:      core.ChargePointStatusCharging,
		ErrorCode:   core.NoError,
	})
	require.NoError(t, err)
	require.NotNil(t, response)

	state, err := handler.connectedSession("station-1")
	require.NoError(t, err)
	assert.Equal(t, string(core.ChargePointStatusCharging), state.station.Status)
}

func TestOnSetChargingProfile(t *testing.T) {
	handler := newTestHandler(t, newFakeStore())

	t.Run("valid profile accepted and recorded", func(t *testing.T) {
		response, err := handler.OnSetChargingProfile("station-1", &smartcharging.SetChargingProfileRequest{
			ConnectorId:     1,
			ChargingProfile: smartcharging.NewMaxPowerProfile(4, 3600, types.ChargingRateUnitWatts),
		})
		require.NoError(t, err)
		assert.Equal(t, smartcharging.ChargingProfileStatusAccepted, response.Status)

		state, err := handler.connectedSession("station-1")
		require.NoError(t, err)
		limit := state.profiles.CurrentLimit(1)
		require.NotNil(t, limit)
		assert.InDelta(t, 3600, *limit, 0.001)
	})

	t.Run("profile without schedule rejected", func(t *testing.T) {
		response, err := handler.OnSetChargingProfile("station-1", &smartcharging.SetChargingProfileRequest{
			ConnectorId: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, smartcharging.ChargingProfileStatusRejected, response.Status)
	})
}

func TestSessionLifecycle(t *testing.T) {
	handler := newTestHandler(t, newFakeStore())

	handler.OnConnect("station-1")
	_, err := handler.connectedSession("station-1")
	require.NoError(t, err)

	handler.OnDisconnect("station-1")
	_, err = handler.connectedSession("station-1")
	assert.Error(t, err)
}

func TestSetAndClearPowerLimit(t *testing.T) {
	handler := newTestHandler(t, newFakeStore())
	handler.OnConnect("station-1")

	require.NoError(t, handler.SetPowerLimit("station-1", 1, 100, 7200, types.ChargingRateUnitWatts))
	state, err := handler.connectedSession("station-1")
	require.NoError(t, err)
	require.NotNil(t, state.profiles.CurrentLimit(1))

	require.NoError(t, handler.ClearPowerLimit("station-1", 1, 100))
	assert.Nil(t, state.profiles.CurrentLimit(1))

	assert.Error(t, handler.SetPowerLimit("station-9", 1, 100, 7200, types.ChargingRateUnitWatts))
}
