package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/opentake/multicam-server-go/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
)

type Client struct {
	SessionID string
	Events    chan Event
	Done      chan struct{}
}

// sessionFeed is one Redis subscription shared by every local client of a
// session. Its context ends when the last client unsubscribes, so session
// churn does not accumulate reader goroutines.
type sessionFeed struct {
	clients map[*Client]bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Broker bridges the Redis per-session change channels to in-process SSE
// subscribers. One Redis subscription is held per session with at least one
// local client.
type Broker struct {
	redis  *redisclient.Client
	feeds  map[string]*sessionFeed
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:  redisClient,
		feeds:  make(map[string]*sessionFeed),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (b *Broker) Subscribe(sessionID string) *Client {
	client := &Client{
		SessionID: sessionID,
		Events:    make(chan Event, 100),
		Done:      make(chan struct{}),
	}

	b.mu.Lock()
	feed := b.feeds[sessionID]
	if feed == nil {
		ctx, cancel := context.WithCancel(b.ctx)
		feed = &sessionFeed{
			clients: make(map[*Client]bool),
			ctx:     ctx,
			cancel:  cancel,
		}
		b.feeds[sessionID] = feed
		go b.subscribeToRedis(ctx, sessionID)
	}
	feed.clients[client] = true
	clientCount := len(feed.clients)
	b.mu.Unlock()

	log.Info().
		Str("sessionId", sessionID).
		Int("clientCount", clientCount).
		Msg("change feed client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	feed, ok := b.feeds[client.SessionID]
	if !ok || !feed.clients[client] {
		return
	}

	delete(feed.clients, client)
	close(client.Done)

	if len(feed.clients) == 0 {
		feed.cancel()
		delete(b.feeds, client.SessionID)
	}

	log.Info().
		Str("sessionId", client.SessionID).
		Int("clientCount", len(feed.clients)).
		Msg("change feed client unsubscribed")
}

func (b *Broker) Publish(ctx context.Context, sessionID string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := redisclient.SessionChannel(sessionID)
	return b.redis.Publish(ctx, channel, data).Err()
}

func (b *Broker) subscribeToRedis(ctx context.Context, sessionID string) {
	channel := redisclient.SessionChannel(sessionID)
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("sessionId", sessionID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			log.Debug().
				Str("sessionId", sessionID).
				Msg("redis pubsub released")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(sessionID, event)
		}
	}
}

func (b *Broker) broadcast(sessionID string, event Event) {
	b.mu.RLock()
	feed := b.feeds[sessionID]
	var clients []*Client
	if feed != nil {
		clients = make([]*Client, 0, len(feed.clients))
		for client := range feed.clients {
			clients = append(clients, client)
		}
	}
	b.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("sessionId", sessionID).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, feed := range b.feeds {
		for client := range feed.clients {
			close(client.Done)
		}
	}
	b.feeds = make(map[string]*sessionFeed)
}

func (b *Broker) ClientCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	feed := b.feeds[sessionID]
	if feed == nil {
		return 0
	}
	return len(feed.clients)
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, feed := range b.feeds {
		total += len(feed.clients)
	}
	return total
}
