package telegram

import (
	"fmt"
	"log"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"evpoint/internal"
	"evpoint/utility"
)

// TgBot implements EventHandler and pushes station events to subscribed
// operators. Subscriptions live in memory and are rebuilt by the /start
// command after a restart.
type TgBot struct {
	api           *tgbotapi.BotAPI
	database      internal.Database
	mux           sync.Mutex
	subscriptions map[int]int64
	event         chan MessageContent
	send          chan MessageContent
}

type MessageContent struct {
	ChatID int64
	Text   string
}

func NewBot(apiKey string) (*TgBot, error) {
	tgBot := &TgBot{
		subscriptions: make(map[int]int64),
		event:         make(chan MessageContent, 100),
		send:          make(chan MessageContent, 100),
	}
	api, err := tgbotapi.NewBotAPI(apiKey)
	if err != nil {
		return nil, err
	}
	tgBot.api = api
	return tgBot, nil
}

// SetDatabase attach database service
func (b *TgBot) SetDatabase(database internal.Database) {
	b.database = database
}

func (b *TgBot) Start() {
	go b.sendPump()
	go b.eventPump()
	go b.updatesPump()
}

// Start listening for updates
func (b *TgBot) updatesPump() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates, err := b.api.GetUpdatesChan(u)
	if err != nil {
		log.Printf("bot: error getting updates: %v", err)
		return
	}
	for update := range updates {
		if update.Message == nil {
			continue
		}
		if !update.Message.IsCommand() {
			continue
		}
		switch update.Message.Command() {
		case "start":
			b.subscribe(update.Message.From.ID, update.Message.Chat.ID)
			msg := fmt.Sprintf("Hello *%v*, you are now subscribed to station events", update.Message.From.UserName)
			b.send <- MessageContent{ChatID: update.Message.Chat.ID, Text: msg}
		case "stop":
			b.unsubscribe(update.Message.From.ID)
			b.send <- MessageContent{ChatID: update.Message.Chat.ID, Text: "Your subscription has been removed"}
		case "status":
			msg := b.composeStatusMessage()
			b.send <- MessageContent{ChatID: update.Message.Chat.ID, Text: msg}
		}
	}
}

// subscriptions are written by the updates pump and read by the event pump,
// so every access goes through the mutex
func (b *TgBot) subscribe(userId int, chatId int64) {
	b.mux.Lock()
	b.subscriptions[userId] = chatId
	b.mux.Unlock()
}

func (b *TgBot) unsubscribe(userId int) {
	b.mux.Lock()
	delete(b.subscriptions, userId)
	b.mux.Unlock()
}

func (b *TgBot) subscribers() []int64 {
	b.mux.Lock()
	defer b.mux.Unlock()
	chats := make([]int64, 0, len(b.subscriptions))
	for _, chatId := range b.subscriptions {
		chats = append(chats, chatId)
	}
	return chats
}

func (b *TgBot) subscriberCount() int {
	b.mux.Lock()
	defer b.mux.Unlock()
	return len(b.subscriptions)
}

// eventPump sending events to all subscribers
func (b *TgBot) eventPump() {
	for {
		if event, ok := <-b.event; ok {
			for _, chatId := range b.subscribers() {
				b.sendMessage(chatId, event.Text)
			}
		}
	}
}

// sendPump sending messages to users
func (b *TgBot) sendPump() {
	for {
		if event, ok := <-b.send; ok {
			b.sendMessage(event.ChatID, event.Text)
		}
	}
}

// sendMessage common routine to send a message via bot API
func (b *TgBot) sendMessage(id int64, text string) {
	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = "MarkdownV2"
	_, err := b.api.Send(msg)
	if err != nil {
		// maybe error was while parsing, so we can send a message about this error
		msg = tgbotapi.NewMessage(id, fmt.Sprintf("Error: %v", err))
		_, err = b.api.Send(msg)
		if err != nil {
			log.Printf("bot: error sending message: %v", err)
		}
	}
}

func (b *TgBot) OnAuthorize(event *internal.EventMessage) {
	msg := fmt.Sprintf("*%v*: card: `%v`\n", sanitize(event.StationId), sanitize(event.CardName))
	msg += fmt.Sprintf("Auth status: %v\n", event.Status)
	b.event <- MessageContent{Text: msg}
}

func (b *TgBot) OnAuthorizeRefused(event *internal.EventMessage) {
	msg := fmt.Sprintf("*%v*: unknown tag `%v` refused\n", sanitize(event.StationId), sanitize(event.IdTag))
	msg += "The card can be claimed through the api within 5 minutes\n"
	b.event <- MessageContent{Text: msg}
}

func (b *TgBot) OnTransactionStart(event *internal.EventMessage) {
	msg := fmt.Sprintf("*%v*: Connector %v: `%v`\n", sanitize(event.StationId), event.ConnectorId, event.Status)
	msg += fmt.Sprintf("Transaction ID: %v START\n", event.TransactionId)
	msg += fmt.Sprintf("Card: %v\n", sanitize(event.CardName))
	b.event <- MessageContent{Text: msg}
}

func (b *TgBot) OnTransactionStop(event *internal.EventMessage) {
	msg := fmt.Sprintf("*%v*: Connector %v: `%v`\n", sanitize(event.StationId), event.ConnectorId, event.Status)
	msg += fmt.Sprintf("Transaction ID: %v STOP\n", event.TransactionId)
	if event.Info != "" {
		msg += fmt.Sprintf("Info: %v\n", sanitize(event.Info))
	}
	b.event <- MessageContent{Text: msg}
}

func (b *TgBot) OnStatusNotification(event *internal.EventMessage) {
	if event.ConnectorId == 0 {
		// don`t send status updates for the station itself, only for connectors
		return
	}
	msg := fmt.Sprintf("*%v*: Connector %v: `%v`\n", sanitize(event.StationId), event.ConnectorId, event.Status)
	if event.Info != "" {
		msg += fmt.Sprintf("%v\n", sanitize(event.Info))
	}
	b.event <- MessageContent{Text: msg}
}

// compose status message
func (b *TgBot) composeStatusMessage() string {
	msg := "Status info:\n"
	msg += "\n"
	if b.database != nil {
		snapshots, err := b.database.GetMeterSnapshots()
		if err != nil {
			log.Printf("bot: error getting snapshots: %v", err)
			msg += fmt.Sprintf("Error getting snapshots:\n `%v`", err)
		} else {
			for _, s := range snapshots {
				msg += fmt.Sprintf("*%v*: connector %v, `%v`\n", sanitize(s.StationId), s.ConnectorId, sanitize(utility.TimeAgo(s.Time)))
				for key, value := range s.Readings {
					msg += fmt.Sprintf("`%v: %v`\n", sanitize(key), value)
				}
				msg += "\n"
			}
		}
	}
	msg += fmt.Sprintf("Active subscriptions: %v", b.subscriberCount())
	return msg
}

func sanitize(input string) string {
	// Define a list of reserved characters that need to be escaped
	reservedChars := "\\`*_{}[]()#+-.!|"

	sanitized := ""
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sanitized += "\\" + string(char)
		} else {
			sanitized += string(char)
		}
	}

	return sanitized
}
