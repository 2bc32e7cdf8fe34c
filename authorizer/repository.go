package authorizer

import (
	"time"

	"evpoint/models"
)

type Repository interface {
	GetCard(rfid string) (*models.Card, error)
	AddCard(card *models.Card) error
	UpdateCardLastSeen(rfid string, seen time.Time) error
	AddRefusedAttempt(attempt *models.RefusedAttempt) error
	GetRefusedAttempts(stationId string, since time.Time) ([]*models.RefusedAttempt, error)
	GetLatestRefusedAttempt(stationId string, since time.Time) (*models.RefusedAttempt, error)
	DeleteRefusedAttempt(id string) error
}
