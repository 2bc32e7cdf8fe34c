package meter

import (
	"fmt"
	"time"

	"evpoint/internal"
	"evpoint/models"
	"evpoint/types"
	"evpoint/utility"
)

const featureName = "MeterValues"

type Repository interface {
	AddPowerLog(log *models.PowerLog) error
	UpdateTransactionFinalEnergy(transactionId int, energyKwh float64) error
	UpdateMeterSnapshot(snapshot *models.MeterSnapshot) error
}

// Processor turns raw MeterValues batches into the condensed snapshot and the
// per-transaction power log. Persistence failures are logged and swallowed;
// meter ingestion must never fail the station's call.
type Processor struct {
	database Repository
	logger   internal.LogHandler
}

func NewProcessor(database Repository, logger internal.LogHandler) *Processor {
	return &Processor{
		database: database,
		logger:   logger,
	}
}

// Process handles one MeterValues batch. powerLimit, when known, is carried
// into the snapshot so a live display can show the cap alongside the readings.
func (p *Processor) Process(stationId string, connectorId int, transactionId *int, batch []types.MeterValue, powerLimit *float64) {
	if len(batch) == 0 {
		return
	}
	readings := make(map[string]float64)
	timestamp := time.Now()
	var powerKw, energyKwh float64

	for _, meterValue := range batch {
		if meterValue.Timestamp != nil {
			timestamp = meterValue.Timestamp.Time
		}
		for _, sample := range meterValue.SampledValue {
			value := utility.ToFloat(sample.Value)
			readings[readingKey(sample)] = value
			switch sample.Measurand {
			case types.MeasurandPowerActiveImport:
				powerKw = toKilo(value, sample.Unit, types.UnitOfMeasureW)
			case types.MeasurandEnergyActiveImportRegister:
				energyKwh = toKilo(value, sample.Unit, types.UnitOfMeasureWh)
			}
		}
	}

	txId := 0
	if transactionId != nil {
		txId = *transactionId
	}
	snapshot := &models.MeterSnapshot{
		StationId:     stationId,
		ConnectorId:   connectorId,
		TransactionId: txId,
		Time:          timestamp,
		Readings:      readings,
		PowerLimit:    powerLimit,
	}
	err := p.database.UpdateMeterSnapshot(snapshot)
	if err != nil {
		p.logger.Error(fmt.Sprintf("update snapshot %s", stationId), err)
	}

	if transactionId == nil {
		return
	}
	if energyKwh == 0 {
		// stations send a zero energy register as an end of charging
		// marker; it carries no consumption and is not logged
		p.logger.Debug(fmt.Sprintf("zero energy sample on %s, transaction %d", stationId, txId))
		return
	}
	powerLog := &models.PowerLog{
		TransactionId: txId,
		Time:          timestamp,
		PowerKw:       powerKw,
		EnergyKwh:     energyKwh,
	}
	err = p.database.AddPowerLog(powerLog)
	if err != nil {
		p.logger.Error(fmt.Sprintf("persist power log, transaction %d", txId), err)
	}
	err = p.database.UpdateTransactionFinalEnergy(txId, energyKwh)
	if err != nil {
		p.logger.Error(fmt.Sprintf("update final energy, transaction %d", txId), err)
	}
}

func readingKey(sample types.SampledValue) string {
	measurand := string(sample.Measurand)
	if measurand == "" {
		measurand = string(types.MeasurandEnergyActiveImportRegister)
	}
	if sample.Phase != "" {
		return measurand + "." + string(sample.Phase)
	}
	return measurand
}

// toKilo brings a sampled value to kW or kWh; stations report either the base
// unit or the kilo unit depending on firmware.
func toKilo(value float64, unit types.UnitOfMeasure, base types.UnitOfMeasure) float64 {
	if unit == base || unit == "" {
		return value / 1000
	}
	return value
}
