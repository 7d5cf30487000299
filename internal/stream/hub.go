package stream

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/fiemcasals/controlador/internal/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultBuffer is the per-client send buffer. A client that lets it fill
// up is evicted instead of silently missing messages.
const DefaultBuffer = 256

const (
	// DefaultBridgeBuffer bounds the messages waiting to be bridged to redis.
	DefaultBridgeBuffer = 1024
	// DefaultBridgeTimeout bounds one redis publish.
	DefaultBridgeTimeout = time.Second
)

// Hub is a group publish/subscribe fabric. Local members are served
// directly; with a redis client every publish is also bridged to the other
// instances sharing that redis.
type Hub struct {
	redis         *redis.Client
	origin        string
	logger        zerolog.Logger
	buffer        int
	bridgeTimeout time.Duration
	clients       map[string]map[*Client]struct{}
	mu            sync.RWMutex
	outbox        chan bridged
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	subReady      chan struct{}
}

type bridged struct {
	channel string
	data    []byte
}

type Client struct {
	Group string
	Send  chan []byte

	closeOnce sync.Once
}

type envelope struct {
	Origin  string `json:"origin"`
	Payload []byte `json:"payload"`
}

func NewHub(redisClient *redis.Client, logger zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		redis:         redisClient,
		origin:        uuid.NewString(),
		logger:        logger,
		buffer:        DefaultBuffer,
		bridgeTimeout: DefaultBridgeTimeout,
		clients:       map[string]map[*Client]struct{}{},
		cancel:        cancel,
		subReady:      make(chan struct{}),
	}

	if redisClient == nil {
		close(h.subReady)
		return h
	}
	h.outbox = make(chan bridged, DefaultBridgeBuffer)
	h.wg.Add(2)
	go h.subscribeRedis(ctx)
	go h.bridgeRedis(ctx)
	return h
}

// Join registers a new member of group.
func (h *Hub) Join(group string) *Client {
	client := &Client{
		Group: group,
		Send:  make(chan []byte, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[group] == nil {
		h.clients[group] = map[*Client]struct{}{}
	}
	h.clients[group][client] = struct{}{}
	metrics.AddObservers(1)
	return client
}

// Leave removes the client and closes its Send channel. Calling it more
// than once, or after an eviction, is a no-op.
func (h *Hub) Leave(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	groupClients, ok := h.clients[client.Group]
	if !ok {
		return
	}
	if _, member := groupClients[client]; !member {
		return
	}
	delete(groupClients, client)
	if len(groupClients) == 0 {
		delete(h.clients, client.Group)
	}
	client.closeOnce.Do(func() { close(client.Send) })
	metrics.AddObservers(-1)
}

// Members returns the number of local members in group.
func (h *Hub) Members(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[group])
}

// Publish delivers payload to every local member of group, in call order.
// With redis configured the payload is also queued for the bridge; Publish
// never waits on redis, and a full queue drops the bridged copy.
func (h *Hub) Publish(group string, payload []byte) {
	h.deliver(group, payload)

	if h.redis == nil {
		return
	}
	data, err := json.Marshal(envelope{Origin: h.origin, Payload: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("group", group).Msg("encode bus envelope")
		return
	}
	select {
	case h.outbox <- bridged{channel: redisChannel(group), data: data}:
	default:
		metrics.RecordBridgePublish("dropped")
		h.logger.Warn().Str("group", group).Msg("redis bridge queue full, message not bridged")
	}
}

// bridgeRedis publishes queued messages one at a time so remote instances
// see them in local order.
func (h *Hub) bridgeRedis(ctx context.Context) {
	defer h.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.outbox:
			pubCtx, cancel := context.WithTimeout(ctx, h.bridgeTimeout)
			err := h.redis.Publish(pubCtx, msg.channel, msg.data).Err()
			cancel()
			if err != nil {
				metrics.RecordBridgePublish("error")
				h.logger.Warn().Err(err).Str("channel", msg.channel).Msg("redis publish error")
				continue
			}
			metrics.RecordBridgePublish("ok")
		}
	}
}

// deliver sends to a snapshot of the group's members. Sends happen under
// the read lock so Leave cannot close a channel mid-send; they never block.
func (h *Hub) deliver(group string, payload []byte) {
	var slow []*Client

	h.mu.RLock()
	for client := range h.clients[group] {
		select {
		case client.Send <- payload:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	for _, client := range slow {
		h.logger.Warn().Str("group", group).Msg("evicting slow group member")
		metrics.RecordObserverEvicted()
		h.removeLocked(client)
	}
	h.mu.Unlock()
}

func (h *Hub) subscribeRedis(ctx context.Context) {
	defer h.wg.Done()

	pubsub := h.redis.PSubscribe(ctx, redisChannel("*"))
	defer pubsub.Close()
	// Unblocks Receive and Channel when the hub closes.
	stop := context.AfterFunc(ctx, func() { _ = pubsub.Close() })
	defer stop()

	if _, err := pubsub.Receive(ctx); err != nil {
		h.logger.Error().Err(err).Msg("redis subscribe failed")
		close(h.subReady)
		return
	}
	close(h.subReady)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				h.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed bus message")
				continue
			}
			if env.Origin == h.origin {
				continue
			}
			h.deliver(groupFromChannel(msg.Channel), env.Payload)
		}
	}
}

// Ready is closed once the redis subscription is established (immediately
// without redis).
func (h *Hub) Ready() <-chan struct{} {
	return h.subReady
}

// Close stops the redis bridge and disconnects every local member.
func (h *Hub) Close() {
	h.cancel()
	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, groupClients := range h.clients {
		for client := range groupClients {
			h.removeLocked(client)
		}
	}
}

func redisChannel(group string) string {
	return "vae:group:" + group
}

func groupFromChannel(ch string) string {
	// vae:group:{group}
	const prefix = "vae:group:"
	if !strings.HasPrefix(ch, prefix) || len(ch) == len(prefix) {
		return ""
	}
	return ch[len(prefix):]
}
