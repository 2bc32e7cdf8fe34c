package telegram

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestBot() *TgBot {
	return &TgBot{
		subscriptions: make(map[int]int64),
		event:         make(chan MessageContent, 100),
		send:          make(chan MessageContent, 100),
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	bot := newTestBot()

	bot.subscribe(7, 1007)
	bot.subscribe(8, 1008)
	assert.Equal(t, 2, bot.subscriberCount())
	assert.ElementsMatch(t, []int64{1007, 1008}, bot.subscribers())

	// resubscribing moves the user to the new chat
	bot.subscribe(7, 2007)
	assert.ElementsMatch(t, []int64{2007, 1008}, bot.subscribers())

	bot.unsubscribe(7)
	assert.Equal(t, 1, bot.subscriberCount())
	assert.ElementsMatch(t, []int64{1008}, bot.subscribers())
}

func TestSubscriptionsConcurrentAccess(t *testing.T) {
	bot := newTestBot()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			bot.subscribe(i, int64(1000+i))
		}(i)
		go func() {
			defer wg.Done()
			for _, chatId := range bot.subscribers() {
				_ = chatId
			}
		}()
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				bot.unsubscribe(i)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, bot.subscriberCount(), 100)
	assert.GreaterOrEqual(t, bot.subscriberCount(), 50)
}
