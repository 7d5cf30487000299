package relay

import (
	"github.com/fiemcasals/controlador/internal/metrics"
	"github.com/fiemcasals/controlador/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
)

// ObserverGroup is the bus group every monitor connection joins.
const ObserverGroup = "monitor"

// GroupBus is the fan-out the relay publishes commands on. stream.Hub is
// the in-process (optionally redis-bridged) implementation.
type GroupBus interface {
	Join(group string) *stream.Client
	Leave(client *stream.Client)
	Publish(group string, payload []byte)
}

type Relay struct {
	bus       GroupBus
	forwarder *Forwarder
	logger    zerolog.Logger
}

func New(bus GroupBus, forwarder *Forwarder, logger zerolog.Logger) *Relay {
	return &Relay{bus: bus, forwarder: forwarder, logger: logger}
}

// HandleCommand processes one operator message and returns the ack to send
// back. Valid commands are broadcast verbatim, then handed to the
// forwarder; neither step can block the caller.
func (r *Relay) HandleCommand(raw []byte) []byte {
	cmd, err := ParseCommand(raw)
	if err != nil {
		metrics.RecordCommand(false)
		r.logger.Debug().Err(err).Int("bytes", len(raw)).Msg("unparseable operator message")
		return rawAckFor(raw)
	}
	metrics.RecordCommand(true)

	r.bus.Publish(ObserverGroup, raw)
	r.forwarder.Submit(raw)

	ev := r.logger.Trace()
	if cmd.Angle != nil {
		ev = ev.Float64("angle", *cmd.Angle)
	}
	if cmd.AC != nil {
		ev = ev.Float64("ac", *cmd.AC)
	}
	ev.Msg("command relayed")
	return ackFor(raw)
}

func RegisterRoutes(r fiber.Router, relay *Relay) {
	operator := websocket.New(relay.serveOperator)
	r.Get("/ws", operator)
	r.Get("/ws/joystick", operator)
	r.Get("/ws/monitor", websocket.New(relay.serveObserver))
}

func (r *Relay) serveOperator(c *websocket.Conn) {
	logger := r.logger.With().Str("remote", c.RemoteAddr().String()).Logger()
	logger.Info().Msg("operator connected")
	defer logger.Info().Msg("operator disconnected")

	if err := c.WriteMessage(websocket.TextMessage, greeting); err != nil {
		return
	}
	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		if err := c.WriteMessage(websocket.TextMessage, r.HandleCommand(msg)); err != nil {
			return
		}
	}
}

func (r *Relay) serveObserver(c *websocket.Conn) {
	client := r.bus.Join(ObserverGroup)
	logger := r.logger.With().Str("remote", c.RemoteAddr().String()).Logger()
	logger.Info().Msg("observer connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range client.Send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
		// Send is closed on leave or eviction; drop the socket so the read
		// loop below ends too.
		_ = c.Close()
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
	r.bus.Leave(client)
	<-done
	logger.Info().Msg("observer disconnected")
}
