package transactions

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evpoint/models"
)

type fakeRepository struct {
	rows   []*models.Transaction
	last   *models.Transaction
	addErr error
}

func (f *fakeRepository) AddTransaction(transaction *models.Transaction) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.rows = append(f.rows, transaction)
	return nil
}

func (f *fakeRepository) GetLastTransaction() (*models.Transaction, error) {
	return f.last, nil
}

type nopLogger struct{}

func (nopLogger) FeatureEvent(feature, id, text string) {}
func (nopLogger) Debug(text string)                     {}
func (nopLogger) Warn(text string)                      {}
func (nopLogger) Error(text string, err error)          {}
func (nopLogger) RawDataEvent(direction, data string)   {}

func TestTrackerIdentifiers(t *testing.T) {
	t.Run("every start mints a fresh id", func(t *testing.T) {
		repo := &fakeRepository{}
		tracker, err := NewTracker(repo, nopLogger{})
		require.NoError(t, err)

		seen := make(map[int]bool)
		for i := 0; i < 200; i++ {
			transaction := tracker.Start("station-1", 1, "CARD1", "fob")
			assert.False(t, seen[transaction.Id], "id %d issued twice", transaction.Id)
			seen[transaction.Id] = true
		}
		assert.Len(t, repo.rows, 200)
	})

	t.Run("counter continues after the last persisted transaction", func(t *testing.T) {
		repo := &fakeRepository{last: &models.Transaction{Id: 41}}
		tracker, err := NewTracker(repo, nopLogger{})
		require.NoError(t, err)

		transaction := tracker.Start("station-1", 1, "CARD1", "fob")
		assert.Equal(t, 42, transaction.Id)
	})
}

func TestTrackerFailOpen(t *testing.T) {
	repo := &fakeRepository{addErr: errors.New("database down")}
	tracker, err := NewTracker(repo, nopLogger{})
	require.NoError(t, err)

	transaction := tracker.Start("station-1", 2, "CARD1", "fob")
	require.NotNil(t, transaction)
	assert.Equal(t, 1, transaction.Id)
	assert.Equal(t, "station-1", transaction.StationId)
	assert.Equal(t, 2, transaction.ConnectorId)
	assert.Equal(t, "CARD1", transaction.IdTag)
}

func TestTrackerNormalizesTag(t *testing.T) {
	repo := &fakeRepository{}
	tracker, err := NewTracker(repo, nopLogger{})
	require.NoError(t, err)

	transaction := tracker.Start("station-1", 1, " card1 ", "fob")
	assert.Equal(t, "CARD1", transaction.IdTag)
}
