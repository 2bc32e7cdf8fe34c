package models

import "time"

// RefusedAttempt is one denied authorization. Written exactly once per
// denial; reclaimable by station staff within a short window.
type RefusedAttempt struct {
	Id        string    `json:"attempt_id" bson:"attempt_id"`
	Rfid      string    `json:"rfid" bson:"rfid"`
	StationId string    `json:"station_id" bson:"station_id"`
	Time      time.Time `json:"time" bson:"time"`
}
