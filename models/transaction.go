package models

import "time"

// Transaction is one charging session on a connector. It is created on a
// StartTransaction event and outlives the session that created it.
type Transaction struct {
	Id             int       `json:"transaction_id" bson:"transaction_id"`
	StationId      string    `json:"station_id" bson:"station_id"`
	ConnectorId    int       `json:"connector_id" bson:"connector_id"`
	IdTag          string    `json:"id_tag" bson:"id_tag"`
	CardName       string    `json:"card_name" bson:"card_name"`
	TimeStart      time.Time `json:"time_start" bson:"time_start"`
	FinalEnergyKwh *float64  `json:"final_energy_kwh,omitempty" bson:"final_energy_kwh,omitempty"`
}
