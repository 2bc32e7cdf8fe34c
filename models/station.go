package models

import "time"

// Station describes the physical hardware unit behind a session, as reported
// by its last BootNotification and StatusNotification.
type Station struct {
	Id              string    `json:"station_id" bson:"station_id"`
	Vendor          string    `json:"vendor" bson:"vendor"`
	Model           string    `json:"model" bson:"model"`
	SerialNumber    string    `json:"serial_number" bson:"serial_number"`
	FirmwareVersion string    `json:"firmware_version" bson:"firmware_version"`
	Status          string    `json:"status" bson:"status"`
	ErrorCode       string    `json:"error_code" bson:"error_code"`
	LastSeen        time.Time `json:"last_seen" bson:"last_seen"`
}
