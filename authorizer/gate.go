package authorizer

import (
	"fmt"
	"time"

	"evpoint/internal"
	"evpoint/models"
	"evpoint/utility"
)

const featureName = "Authorizer"

// ClaimWindow is how long a refused attempt remains claimable through the api.
const ClaimWindow = 5 * time.Minute

// Result of a single authorization decision.
type Result struct {
	Accepted bool
	CardName string
}

type Gate struct {
	database Repository
	logger   internal.LogHandler
}

func NewGate(database Repository, logger internal.LogHandler) *Gate {
	return &Gate{
		database: database,
		logger:   logger,
	}
}

// Authorize checks the presented tag against registered cards. A tag unknown
// to the system, or one bound to an inactive account, is refused; every
// refusal is recorded so the card can later be claimed by its owner.
func (g *Gate) Authorize(stationId, idTag string) (*Result, error) {
	rfid := utility.NormalizeTag(idTag)
	if rfid == "" {
		return nil, utility.Err("empty id tag")
	}
	card, err := g.database.GetCard(rfid)
	if err != nil {
		return nil, fmt.Errorf("card lookup %s: %w", rfid, err)
	}
	if card == nil || !card.IsActive() {
		g.registerRefusal(stationId, rfid)
		return &Result{Accepted: false}, nil
	}
	err = g.database.UpdateCardLastSeen(rfid, time.Now())
	if err != nil {
		g.logger.Warn(fmt.Sprintf("update last seen %s: %v", rfid, err))
	}
	return &Result{Accepted: true, CardName: card.Name}, nil
}

// Lookup fetches the card for a tag without any authorization side effects.
func (g *Gate) Lookup(idTag string) (*models.Card, error) {
	return g.database.GetCard(utility.NormalizeTag(idTag))
}

func (g *Gate) registerRefusal(stationId, rfid string) {
	attempt := &models.RefusedAttempt{
		Id:        utility.NewUUID(),
		Rfid:      rfid,
		StationId: stationId,
		Time:      time.Now(),
	}
	err := g.database.AddRefusedAttempt(attempt)
	if err != nil {
		g.logger.Error("register refusal", err)
		return
	}
	g.logger.FeatureEvent(featureName, stationId, fmt.Sprintf("refused tag %s", rfid))
}

// RecentRefusals lists attempts at the station that are still inside the
// claim window, newest first.
func (g *Gate) RecentRefusals(stationId string) ([]*models.RefusedAttempt, error) {
	since := time.Now().Add(-ClaimWindow)
	attempts, err := g.database.GetRefusedAttempts(stationId, since)
	if err != nil {
		return nil, fmt.Errorf("list refused attempts: %w", err)
	}
	return attempts, nil
}

// ClaimLatestRefusal binds the most recently refused tag at the station to the
// given account, registering it as an active card. The attempt is consumed so
// it cannot be claimed twice.
func (g *Gate) ClaimLatestRefusal(stationId string, accountId int, accountName, cardName string) (*models.Card, error) {
	since := time.Now().Add(-ClaimWindow)
	attempt, err := g.database.GetLatestRefusedAttempt(stationId, since)
	if err != nil {
		return nil, fmt.Errorf("find refused attempt: %w", err)
	}
	if attempt == nil {
		return nil, utility.Err(fmt.Sprintf("no refused attempt at %s in the last %v", stationId, ClaimWindow))
	}
	card := &models.Card{
		Rfid:           attempt.Rfid,
		Name:           cardName,
		AccountId:      accountId,
		AccountName:    accountName,
		AccountStatus:  models.AccountStatusActive,
		DateRegistered: time.Now(),
	}
	err = g.database.AddCard(card)
	if err != nil {
		return nil, fmt.Errorf("register card %s: %w", card.Rfid, err)
	}
	err = g.database.DeleteRefusedAttempt(attempt.Id)
	if err != nil {
		g.logger.Warn(fmt.Sprintf("delete claimed attempt %s: %v", attempt.Id, err))
	}
	g.logger.FeatureEvent(featureName, stationId, fmt.Sprintf("card %s claimed by %s", card.Rfid, accountName))
	return card, nil
}
