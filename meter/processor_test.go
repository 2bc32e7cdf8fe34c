package meter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evpoint/models"
	"evpoint/types"
)

type fakeRepository struct {
	logs        []*models.PowerLog
	finalEnergy map[int]float64
	snapshot    *models.MeterSnapshot
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{finalEnergy: make(map[int]float64)}
}

func (f *fakeRepository) AddPowerLog(log *models.PowerLog) error {
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeRepository) UpdateTransactionFinalEnergy(transactionId int, energyKwh float64) error {
	f.finalEnergy[transactionId] = energyKwh
	return nil
}

func (f *fakeRepository) UpdateMeterSnapshot(snapshot *models.MeterSnapshot) error {
	f.snapshot = snapshot
	return nil
}

type nopLogger struct{}

func (nopLogger) FeatureEvent(feature, id, text string) {}
func (nopLogger) Debug(text string)                     {}
func (nopLogger) Warn(text string)                      {}
func (nopLogger) Error(text string, err error)          {}
func (nopLogger) RawDataEvent(direction, data string)   {}

func batch(samples ...types.SampledValue) []types.MeterValue {
	return []types.MeterValue{{
		Timestamp:    types.Now(),
		SampledValue: samples,
	}}
}

func TestProcessorPowerAndEnergy(t *testing.T) {
	repo := newFakeRepository()
	processor := NewProcessor(repo, nopLogger{})
	txId := 10

	processor.Process("station-1", 1, &txId, batch(
		types.SampledValue{Value: "7200", Measurand: types.MeasurandPowerActiveImport, Unit: types.UnitOfMeasureW},
		types.SampledValue{Value: "3500", Measurand: types.MeasurandEnergyActiveImportRegister, Unit: types.UnitOfMeasureWh},
	), nil)

	require.Len(t, repo.logs, 1)
	assert.InDelta(t, 7.2, repo.logs[0].PowerKw, 0.001)
	assert.InDelta(t, 3.5, repo.logs[0].EnergyKwh, 0.001)
	assert.Equal(t, 10, repo.logs[0].TransactionId)
	assert.InDelta(t, 3.5, repo.finalEnergy[10], 0.001)
}

func TestProcessorKiloUnitsPassThrough(t *testing.T) {
	repo := newFakeRepository()
	processor := NewProcessor(repo, nopLogger{})
	txId := 11

	processor.Process("station-1", 1, &txId, batch(
		types.SampledValue{Value: "7.2", Measurand: types.MeasurandPowerActiveImport, Unit: types.UnitOfMeasureKW},
		types.SampledValue{Value: "3.5", Measurand: types.MeasurandEnergyActiveImportRegister, Unit: types.UnitOfMeasureKWh},
	), nil)

	require.Len(t, repo.logs, 1)
	assert.InDelta(t, 7.2, repo.logs[0].PowerKw, 0.001)
	assert.InDelta(t, 3.5, repo.logs[0].EnergyKwh, 0.001)
}

func TestProcessorZeroEnergySuppression(t *testing.T) {
	repo := newFakeRepository()
	processor := NewProcessor(repo, nopLogger{})
	txId := 12

	processor.Process("station-1", 1, &txId, batch(
		types.SampledValue{Value: "5000", Measurand: types.MeasurandEnergyActiveImportRegister, Unit: types.UnitOfMeasureWh},
	), nil)
	require.Len(t, repo.logs, 1)

	// the end of charging marker carries a zero register and must not log
	processor.Process("station-1", 1, &txId, batch(
		types.SampledValue{Value: "0", Measurand: types.MeasurandEnergyActiveImportRegister, Unit: types.UnitOfMeasureWh},
		types.SampledValue{Value: "7200", Measurand: types.MeasurandPowerActiveImport, Unit: types.UnitOfMeasureW},
	), nil)
	assert.Len(t, repo.logs, 1)
	assert.InDelta(t, 5.0, repo.finalEnergy[12], 0.001)
}

func TestProcessorSnapshot(t *testing.T) {
	repo := newFakeRepository()
	processor := NewProcessor(repo, nopLogger{})
	txId := 13
	limit := 7200.0

	processor.Process("station-1", 2, &txId, batch(
		types.SampledValue{Value: "230.1", Measurand: types.MeasurandVoltage, Phase: types.PhaseL1, Unit: types.UnitOfMeasureV},
		types.SampledValue{Value: "16", Measurand: types.MeasurandCurrentImport, Unit: types.UnitOfMeasureA},
	), &limit)

	require.NotNil(t, repo.snapshot)
	assert.Equal(t, "station-1", repo.snapshot.StationId)
	assert.Equal(t, 2, repo.snapshot.ConnectorId)
	assert.Equal(t, 13, repo.snapshot.TransactionId)
	assert.InDelta(t, 230.1, repo.snapshot.Readings["Voltage.L1"], 0.001)
	assert.InDelta(t, 16, repo.snapshot.Readings["Current.Import"], 0.001)
	require.NotNil(t, repo.snapshot.PowerLimit)
	assert.InDelta(t, 7200, *repo.snapshot.PowerLimit, 0.001)
}

func TestProcessorWithoutTransaction(t *testing.T) {
	repo := newFakeRepository()
	processor := NewProcessor(repo, nopLogger{})

	processor.Process("station-1", 1, nil, batch(
		types.SampledValue{Value: "3500", Measurand: types.MeasurandEnergyActiveImportRegister, Unit: types.UnitOfMeasureWh},
	), nil)

	// snapshot only, no owning transaction to log against
	require.NotNil(t, repo.snapshot)
	assert.Empty(t, repo.logs)
	assert.Empty(t, repo.finalEnergy)
}

func TestProcessorUsesBatchTimestamp(t *testing.T) {
	repo := newFakeRepository()
	processor := NewProcessor(repo, nopLogger{})
	txId := 14
	sampled := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	processor.Process("station-1", 1, &txId, []types.MeterValue{{
		Timestamp: types.NewDateTime(sampled),
		SampledValue: []types.SampledValue{
			{Value: "1000", Measurand: types.MeasurandEnergyActiveImportRegister, Unit: types.UnitOfMeasureWh},
		},
	}}, nil)

	require.Len(t, repo.logs, 1)
	assert.True(t, repo.logs[0].Time.Equal(sampled))
}
