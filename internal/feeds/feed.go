// Package feeds subscribes to the market websocket channel and keeps a
// store of synthetic books current. It is the snapshot-supplying
// collaborator of the pricing core; matching itself happens in handlers.
package feeds

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/signaldrift/signaldrift/internal/book"
)

const (
	reconnectDelay = 5 * time.Second
	pingInterval   = 30 * time.Second
)

// Handler is called after each applied batch of events, with the store in
// its post-update state.
type Handler func(store *book.Store)

// MarketFeed maintains one websocket subscription for one market's asset
// ids and routes decoded events into the store.
type MarketFeed struct {
	mu      sync.RWMutex
	wsURL   string
	conn    *websocket.Conn
	running bool
	stopCh  chan struct{}

	store    *book.Store
	handlers []Handler
}

// NewMarketFeed creates a feed over the given store.
func NewMarketFeed(wsURL string, store *book.Store) *MarketFeed {
	return &MarketFeed{
		wsURL:  wsURL,
		stopCh: make(chan struct{}),
		store:  store,
	}
}

// OnUpdate registers a handler invoked after every applied event batch.
// Register handlers before Start; there is no locking around the slice.
func (f *MarketFeed) OnUpdate(h Handler) {
	f.handlers = append(f.handlers, h)
}

// Start connects and begins processing in the background.
func (f *MarketFeed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.connectionLoop()
	log.Info().Str("market", f.store.MarketSlug()).Msg("Feed started")
}

// Stop closes the connection and halts reconnects.
func (f *MarketFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running {
		return
	}
	f.running = false
	close(f.stopCh)

	if f.conn != nil {
		f.conn.Close()
	}
	log.Info().Str("market", f.store.MarketSlug()).Msg("Feed stopped")
}

func (f *MarketFeed) connectionLoop() {
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		if err := f.connect(); err != nil {
			log.Error().Err(err).Msg("Connection failed, retrying...")
			time.Sleep(reconnectDelay)
			continue
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()

		done := make(chan struct{})
		go f.pingLoop(conn, done)
		f.readLoop()
		close(done)
		time.Sleep(reconnectDelay)
	}
}

func (f *MarketFeed) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL, nil)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	sub := map[string]interface{}{
		"type":       "market",
		"assets_ids": f.store.AssetIDs(),
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return err
	}

	log.Info().Str("market", f.store.MarketSlug()).Msg("WebSocket connected")
	return nil
}

// pingLoop keeps one connection alive and dies with it; done is closed
// when the read loop for that connection returns.
func (f *MarketFeed) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopCh:
			return
		case <-done:
			return
		case <-ticker.C:
			conn.WriteMessage(websocket.PingMessage, nil)
		}
	}
}

func (f *MarketFeed) readLoop() {
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("Read error")
			return
		}

		f.process(data)
	}
}

func (f *MarketFeed) process(data []byte) {
	msgs, err := DecodeMessages(data)
	if err != nil {
		log.Warn().Err(err).Msg("Dropping undecodable frame")
		return
	}

	if err := ApplyMessages(f.store, msgs, time.Now().UTC()); err != nil {
		// Events before the bad one stay applied; each book is still
		// internally consistent and the next snapshot repairs it.
		log.Warn().Err(err).Str("market", f.store.MarketSlug()).Msg("Dropping rest of event batch")
		return
	}

	for _, h := range f.handlers {
		h(f.store)
	}
}
