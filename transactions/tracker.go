package transactions

import (
	"fmt"
	"sync"
	"time"

	"evpoint/internal"
	"evpoint/models"
	"evpoint/utility"
)

const featureName = "Transactions"

type Repository interface {
	AddTransaction(transaction *models.Transaction) error
	GetLastTransaction() (*models.Transaction, error)
}

// Tracker mints transaction identifiers and records started sessions. The
// counter is seeded from the store once so identifiers stay unique across
// restarts.
type Tracker struct {
	database Repository
	logger   internal.LogHandler
	mux      sync.Mutex
	nextId   int
}

func NewTracker(database Repository, logger internal.LogHandler) (*Tracker, error) {
	tracker := &Tracker{
		database: database,
		logger:   logger,
		nextId:   1,
	}
	last, err := database.GetLastTransaction()
	if err != nil {
		return nil, fmt.Errorf("read last transaction: %w", err)
	}
	if last != nil {
		tracker.nextId = last.Id + 1
	}
	return tracker, nil
}

// Start registers a new transaction for the tag at the given connector. The
// identifier is handed out even when persistence fails; the station must be
// able to charge regardless of a storage hiccup.
func (t *Tracker) Start(stationId string, connectorId int, idTag, cardName string) *models.Transaction {
	t.mux.Lock()
	id := t.nextId
	t.nextId++
	t.mux.Unlock()

	transaction := &models.Transaction{
		Id:          id,
		StationId:   stationId,
		ConnectorId: connectorId,
		IdTag:       utility.NormalizeTag(idTag),
		CardName:    cardName,
		TimeStart:   time.Now(),
	}
	err := t.database.AddTransaction(transaction)
	if err != nil {
		t.logger.Error(fmt.Sprintf("persist transaction %d", id), err)
	}
	t.logger.FeatureEvent(featureName, stationId, fmt.Sprintf("transaction %d started for %s", id, transaction.IdTag))
	return transaction
}
