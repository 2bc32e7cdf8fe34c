package models

import "time"

// MeterSnapshot is the condensed current state of one station's meter,
// overwritten on every MeterValues batch and used for live display.
// Readings are keyed by measurand, or "measurand.phase" when a phase is
// present.
type MeterSnapshot struct {
	StationId     string             `json:"station_id" bson:"station_id"`
	ConnectorId   int                `json:"connector_id" bson:"connector_id"`
	TransactionId int                `json:"transaction_id" bson:"transaction_id"`
	Time          time.Time          `json:"time" bson:"time"`
	Readings      map[string]float64 `json:"readings" bson:"readings"`
	PowerLimit    *float64           `json:"power_limit,omitempty" bson:"power_limit,omitempty"`
}
