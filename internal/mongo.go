package internal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"evpoint/internal/config"
	"evpoint/models"
)

const (
	collectionLog             = "sys_log"
	collectionCards           = "cards"
	collectionRefusedAttempts = "refused_attempts"
	collectionTransactions    = "transactions"
	collectionPowerLogs       = "power_logs"
	collectionSnapshots       = "meter_snapshots"
	collectionTariffs         = "tariffs"
)

// MongoDB opens a short-lived connection per operation; no connection state
// is shared between sessions.
type MongoDB struct {
	ctx           context.Context
	clientOptions *options.ClientOptions
	database      string
}

func NewMongoClient(conf *config.Config) (*MongoDB, error) {
	if !conf.Mongo.Enabled {
		return nil, nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	client := &MongoDB{
		ctx:           context.Background(),
		clientOptions: clientOptions,
		database:      conf.Mongo.Database,
	}
	return client, nil
}

func (m *MongoDB) connect() (*mongo.Client, error) {
	connection, err := mongo.Connect(m.ctx, m.clientOptions)
	if err != nil {
		return nil, err
	}
	return connection, nil
}

func (m *MongoDB) disconnect(connection *mongo.Client) {
	err := connection.Disconnect(m.ctx)
	if err != nil {
		log.Println("mongodb disconnect error;", err)
	}
}

func (m *MongoDB) WriteLogMessage(data Data) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)
	collection := connection.Database(m.database).Collection(collectionLog)
	_, err = collection.InsertOne(m.ctx, data)
	return err
}

func (m *MongoDB) ReadLog() (interface{}, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	var logMessages []FeatureLogMessage
	collection := connection.Database(m.database).Collection(collectionLog)
	filter := bson.D{}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(1000)
	cursor, err := collection.Find(m.ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	if err = cursor.All(m.ctx, &logMessages); err != nil {
		return nil, err
	}
	return logMessages, nil
}

func (m *MongoDB) GetCard(rfid string) (*models.Card, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "rfid", Value: rfid}}
	collection := connection.Database(m.database).Collection(collectionCards)
	var card models.Card
	err = collection.FindOne(m.ctx, filter).Decode(&card)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &card, nil
}

func (m *MongoDB) AddCard(card *models.Card) error {
	existedCard, _ := m.GetCard(card.Rfid)
	if existedCard != nil {
		return fmt.Errorf("card with rfid %s already exists", card.Rfid)
	}

	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionCards)
	_, err = collection.InsertOne(m.ctx, card)
	return err
}

func (m *MongoDB) UpdateCardLastSeen(rfid string, seen time.Time) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "rfid", Value: rfid}}
	update := bson.M{"$set": bson.M{"last_seen": seen}}
	collection := connection.Database(m.database).Collection(collectionCards)
	_, err = collection.UpdateOne(m.ctx, filter, update)
	return err
}

func (m *MongoDB) AddRefusedAttempt(attempt *models.RefusedAttempt) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionRefusedAttempts)
	_, err = collection.InsertOne(m.ctx, attempt)
	return err
}

func (m *MongoDB) GetRefusedAttempts(stationId string, since time.Time) ([]*models.RefusedAttempt, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	var attempts []*models.RefusedAttempt
	filter := bson.D{{Key: "station_id", Value: stationId}, {Key: "time", Value: bson.D{{Key: "$gte", Value: since}}}}
	opts := options.Find().SetSort(bson.D{{Key: "time", Value: -1}})
	collection := connection.Database(m.database).Collection(collectionRefusedAttempts)
	cursor, err := collection.Find(m.ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	if err = cursor.All(m.ctx, &attempts); err != nil {
		return nil, err
	}
	return attempts, nil
}

func (m *MongoDB) GetLatestRefusedAttempt(stationId string, since time.Time) (*models.RefusedAttempt, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "station_id", Value: stationId}, {Key: "time", Value: bson.D{{Key: "$gte", Value: since}}}}
	opts := options.FindOne().SetSort(bson.D{{Key: "time", Value: -1}})
	collection := connection.Database(m.database).Collection(collectionRefusedAttempts)
	var attempt models.RefusedAttempt
	err = collection.FindOne(m.ctx, filter, opts).Decode(&attempt)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (m *MongoDB) DeleteRefusedAttempt(id string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "attempt_id", Value: id}}
	collection := connection.Database(m.database).Collection(collectionRefusedAttempts)
	_, err = collection.DeleteOne(m.ctx, filter)
	return err
}

func (m *MongoDB) AddTransaction(transaction *models.Transaction) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionTransactions)
	_, err = collection.InsertOne(m.ctx, transaction)
	return err
}

func (m *MongoDB) GetTransaction(id int) (*models.Transaction, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "transaction_id", Value: id}}
	collection := connection.Database(m.database).Collection(collectionTransactions)
	var transaction models.Transaction
	err = collection.FindOne(m.ctx, filter).Decode(&transaction)
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

func (m *MongoDB) GetTransactions(limit int64) ([]*models.Transaction, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	var transactions []*models.Transaction
	opts := options.Find().SetSort(bson.D{{Key: "time_start", Value: -1}}).SetLimit(limit)
	collection := connection.Database(m.database).Collection(collectionTransactions)
	cursor, err := collection.Find(m.ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	if err = cursor.All(m.ctx, &transactions); err != nil {
		return nil, err
	}
	return transactions, nil
}

func (m *MongoDB) GetLastTransaction() (*models.Transaction, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	opts := options.FindOne().SetSort(bson.D{{Key: "transaction_id", Value: -1}})
	collection := connection.Database(m.database).Collection(collectionTransactions)
	var transaction models.Transaction
	err = collection.FindOne(m.ctx, bson.D{}, opts).Decode(&transaction)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

func (m *MongoDB) UpdateTransactionFinalEnergy(id int, energyKwh float64) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "transaction_id", Value: id}}
	update := bson.M{"$set": bson.M{"final_energy_kwh": energyKwh}}
	collection := connection.Database(m.database).Collection(collectionTransactions)
	_, err = collection.UpdateOne(m.ctx, filter, update)
	return err
}

func (m *MongoDB) AddPowerLog(powerLog *models.PowerLog) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionPowerLogs)
	_, err = collection.InsertOne(m.ctx, powerLog)
	return err
}

func (m *MongoDB) GetPowerLogs(transactionId int) ([]*models.PowerLog, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	var powerLogs []*models.PowerLog
	filter := bson.D{{Key: "transaction_id", Value: transactionId}}
	opts := options.Find().SetSort(bson.D{{Key: "time", Value: 1}})
	collection := connection.Database(m.database).Collection(collectionPowerLogs)
	cursor, err := collection.Find(m.ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	if err = cursor.All(m.ctx, &powerLogs); err != nil {
		return nil, err
	}
	return powerLogs, nil
}

func (m *MongoDB) UpdateMeterSnapshot(snapshot *models.MeterSnapshot) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "station_id", Value: snapshot.StationId}}
	update := bson.M{"$set": snapshot}
	opts := options.Update().SetUpsert(true)
	collection := connection.Database(m.database).Collection(collectionSnapshots)
	_, err = collection.UpdateOne(m.ctx, filter, update, opts)
	return err
}

func (m *MongoDB) GetMeterSnapshots() ([]*models.MeterSnapshot, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	var snapshots []*models.MeterSnapshot
	collection := connection.Database(m.database).Collection(collectionSnapshots)
	cursor, err := collection.Find(m.ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	if err = cursor.All(m.ctx, &snapshots); err != nil {
		return nil, err
	}
	return snapshots, nil
}

// GetActiveTariff returns the tariff effective on the given date: the latest
// tariff whose start date is not after it.
func (m *MongoDB) GetActiveTariff(date time.Time) (*models.Tariff, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "start_date", Value: bson.D{{Key: "$lte", Value: date}}}}
	opts := options.FindOne().SetSort(bson.D{{Key: "start_date", Value: -1}})
	collection := connection.Database(m.database).Collection(collectionTariffs)
	var tariff models.Tariff
	err = collection.FindOne(m.ctx, filter, opts).Decode(&tariff)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tariff, nil
}
