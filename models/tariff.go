package models

import "time"

// Tariff is a price per kWh effective from StartDate until superseded by a
// tariff with a later start date.
type Tariff struct {
	PricePerKwh float64   `json:"price_per_kwh" bson:"price_per_kwh"`
	StartDate   time.Time `json:"start_date" bson:"start_date"`
	Created     time.Time `json:"created" bson:"created"`
}
