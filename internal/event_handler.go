package internal

import "time"

type EventHandler interface {
	OnAuthorize(event *EventMessage)
	OnAuthorizeRefused(event *EventMessage)
	OnTransactionStart(event *EventMessage)
	OnTransactionStop(event *EventMessage)
	OnStatusNotification(event *EventMessage)
}

type EventMessage struct {
	StationId     string    `json:"station_id" bson:"station_id"`
	ConnectorId   int       `json:"connector_id" bson:"connector_id"`
	Time          time.Time `json:"time" bson:"time"`
	CardName      string    `json:"card_name" bson:"card_name"`
	IdTag         string    `json:"id_tag" bson:"id_tag"`
	TransactionId int       `json:"transaction_id" bson:"transaction_id"`
	Status        string    `json:"status" bson:"status"`
	Info          string    `json:"info" bson:"info"`
}
