package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vango-go/midas/pkg/repair/session"
)

// ChannelPrefix prefixes the per-session pub/sub channel.
const ChannelPrefix = "midas:session:"

// RedisPublisher is the subset of the Redis client the publisher uses.
// *redis.Client satisfies it.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// Publisher mirrors session snapshots onto Redis channels named
// midas:session:<id>. Publishing happens on a background worker; when the
// queue is full the oldest pending snapshot is superseded by the newest.
type Publisher struct {
	client  RedisPublisher
	logger  *slog.Logger
	timeout time.Duration

	queue chan session.Snapshot
	done  chan struct{}
	once  sync.Once
}

// NewPublisher starts the publish worker.
func NewPublisher(client RedisPublisher, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		client:  client,
		logger:  logger,
		timeout: 2 * time.Second,
		queue:   make(chan session.Snapshot, 64),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Channel returns the channel for a session.
func Channel(sessionID string) string {
	return ChannelPrefix + sessionID
}

// OnChange is a session.Hooks.OnChange callback.
func (p *Publisher) OnChange(snap session.Snapshot) {
	for {
		select {
		case p.queue <- snap:
			return
		default:
		}
		select {
		case <-p.queue:
		default:
		}
	}
}

// Publish sends one snapshot synchronously.
func (p *Publisher) Publish(ctx context.Context, snap session.Snapshot) error {
	payload, err := json.Marshal(Event{Type: EventSession, Session: &snap, At: time.Now()})
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, Channel(snap.ID), payload).Err()
}

func (p *Publisher) run() {
	defer close(p.done)
	for snap := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.Publish(ctx, snap); err != nil {
			p.logger.Warn("redis publish failed", "channel", Channel(snap.ID), "error", err)
		}
		cancel()
	}
}

// Close drains pending snapshots and stops the worker. OnChange must not be
// called after Close.
func (p *Publisher) Close() {
	p.once.Do(func() { close(p.queue) })
	<-p.done
}
