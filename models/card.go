package models

import "time"

const (
	AccountStatusInvited = "invited"
	AccountStatusActive  = "active"
)

// Card binds an RFID tag to a resident account.
type Card struct {
	Rfid           string    `json:"rfid" bson:"rfid"`
	Name           string    `json:"name" bson:"name"`
	AccountId      int       `json:"account_id" bson:"account_id"`
	AccountName    string    `json:"account_name" bson:"account_name"`
	AccountStatus  string    `json:"account_status" bson:"account_status"`
	DateRegistered time.Time `json:"date_registered" bson:"date_registered"`
	LastSeen       time.Time `json:"last_seen" bson:"last_seen"`
}

func (c *Card) IsActive() bool {
	return c.AccountStatus == AccountStatusActive
}
