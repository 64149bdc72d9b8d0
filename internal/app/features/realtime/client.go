// internal/app/features/realtime/client.go
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dalemusser/waffle/pantry/ratelimit"
	"github.com/dalemusser/waffle/pantry/websocket"
	"go.uber.org/zap"
)

const pingPeriod = 54 * time.Second

var (
	errClosed       = errors.New("connection closed")
	errSlowConsumer = errors.New("send buffer full")
)

// client is one websocket connection. Send never blocks: frames are
// queued for the write loop and a client whose queue is full is closed.
type client struct {
	id           string
	sock         *websocket.Client
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	log          *zap.Logger

	// Touched only by the read loop.
	joins  *ratelimit.Limiter
	group  string
	member string
}

func newClient(sock *websocket.Client, buffer int, writeTimeout time.Duration, logger *zap.Logger) *client {
	return &client{
		id:           sock.ID(),
		sock:         sock,
		send:         make(chan []byte, buffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		log:          logger.With(zap.String("conn_id", sock.ID())),
	}
}

func (c *client) ID() string { return c.id }

func (c *client) Send(event string, payload any) error {
	b, err := json.Marshal(outFrame{Event: event, Data: payload})
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	case <-c.done:
		return errClosed
	default:
		c.log.Warn("closing slow realtime client", zap.String("event", event))
		c.close()
		return errSlowConsumer
	}
}

func (c *client) joined() bool { return c.group != "" }

// close stops the write loop, which closes the socket and so ends the
// read loop.
func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *client) write(msg []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	return c.sock.Send(ctx, websocket.MessageText, msg)
}

// ping waits for the pong, which the read loop delivers.
func (c *client) ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	return c.sock.Conn().Ping(ctx)
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.sock.Close()
	}()

	pings := make(chan error, 1)
	pinging := false
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				c.log.Debug("realtime write failed", zap.Error(err))
				c.close()
				return
			}
		case <-ticker.C:
			if pinging {
				continue
			}
			pinging = true
			go func() { pings <- c.ping() }()
		case err := <-pings:
			pinging = false
			if err != nil {
				c.log.Debug("realtime ping failed", zap.Error(err))
				c.close()
				return
			}
		case <-c.done:
			c.drain()
			return
		}
	}
}

// drain flushes frames queued before close, best effort.
func (c *client) drain() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
