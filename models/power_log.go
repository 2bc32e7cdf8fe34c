package models

import "time"

// PowerLog is one normalized meter reading tied to a transaction.
// Cost fields are derived at read time from the tariff effective on the
// sample's date and are never stored.
type PowerLog struct {
	TransactionId int       `json:"transaction_id" bson:"transaction_id"`
	Time          time.Time `json:"time" bson:"time"`
	PowerKw       float64   `json:"power_kw" bson:"power_kw"`
	EnergyKwh     float64   `json:"energy_kwh" bson:"energy_kwh"`

	PricePerKwh float64 `json:"price_per_kwh,omitempty" bson:"-"`
	CostDelta   float64 `json:"cost_delta,omitempty" bson:"-"`
}
