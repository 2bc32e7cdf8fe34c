package internal

import (
	"time"

	"evpoint/models"
)

type Database interface {
	WriteLogMessage(data Data) error
	ReadLog() (interface{}, error)

	GetCard(rfid string) (*models.Card, error)
	AddCard(card *models.Card) error
	UpdateCardLastSeen(rfid string, seen time.Time) error

	AddRefusedAttempt(attempt *models.RefusedAttempt) error
	GetRefusedAttempts(stationId string, since time.Time) ([]*models.RefusedAttempt, error)
	GetLatestRefusedAttempt(stationId string, since time.Time) (*models.RefusedAttempt, error)
	DeleteRefusedAttempt(id string) error

	AddTransaction(transaction *models.Transaction) error
	GetTransaction(id int) (*models.Transaction, error)
	GetTransactions(limit int64) ([]*models.Transaction, error)
	GetLastTransaction() (*models.Transaction, error)
	UpdateTransactionFinalEnergy(id int, energyKwh float64) error

	AddPowerLog(powerLog *models.PowerLog) error
	GetPowerLogs(transactionId int) ([]*models.PowerLog, error)

	UpdateMeterSnapshot(snapshot *models.MeterSnapshot) error
	GetMeterSnapshots() ([]*models.MeterSnapshot, error)

	GetActiveTariff(date time.Time) (*models.Tariff, error)
}

type Data interface {
	DataType() string
}
