// Package redisfeed разносит изменения строк между инстансами через Redis pub/sub.
// Канал на таблицу: changefeed:<table>.
package redisfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"habitTracker/internal/changefeed"
	"habitTracker/internal/logger"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix = "changefeed:"
	pumpBuffer    = 256
)

func ChannelName(table string) string {
	return channelPrefix + table
}

// Connect создаёт клиента и проверяет соединение ping-ом
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		logger.Error("Changefeed: Redis недоступен", err, zap.String("addr", addr))
		return nil, fmt.Errorf("подключение к redis %s: %w", addr, err)
	}
	logger.Info("Changefeed: Подключение к Redis установлено", zap.String("addr", addr))
	return client, nil
}

type Feed struct {
	client *redis.Client
}

func New(client *redis.Client) *Feed {
	return &Feed{client: client}
}

func (f *Feed) Publish(ctx context.Context, c changefeed.Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("сериализация изменения: %w", err)
	}
	if err := f.client.Publish(ctx, ChannelName(c.Table), payload).Err(); err != nil {
		return fmt.Errorf("публикация в redis: %w", err)
	}
	return nil
}

type subscription struct {
	pubsub *redis.PubSub
	pump   *changefeed.Pump
	h      changefeed.Handler
	once   sync.Once
	wg     sync.WaitGroup
}

// Open подписывается на канал таблицы и ждёт подтверждения от Redis.
// Переподключение после обрыва делает сам go-redis.
func (f *Feed) Open(ctx context.Context, spec changefeed.Spec, h changefeed.Handler) (changefeed.Subscription, error) {
	pubsub := f.client.Subscribe(ctx, ChannelName(spec.Table))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		h.Notify(changefeed.StatusChannelError, err)
		return nil, fmt.Errorf("подписка на %s: %w", ChannelName(spec.Table), err)
	}

	sub := &subscription{
		pubsub: pubsub,
		pump:   changefeed.NewPump(h, pumpBuffer),
		h:      h,
	}
	sub.wg.Add(1)
	go sub.listen(spec)

	h.Notify(changefeed.StatusSubscribed, nil)
	return sub, nil
}

func (s *subscription) listen(spec changefeed.Spec) {
	defer s.wg.Done()
	for msg := range s.pubsub.Channel() {
		var c changefeed.Change
		if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
			logger.Warn("Changefeed: Некорректное сообщение из Redis",
				zap.Error(err),
				zap.String("channel", msg.Channel))
			continue
		}
		if !spec.Matches(c) {
			continue
		}
		if err := s.pump.Push(c); errors.Is(err, changefeed.ErrPumpStopped) {
			return
		}
	}
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		s.pump.Stop()
		err = s.pubsub.Close()
		s.wg.Wait()
		s.h.Notify(changefeed.StatusClosed, nil)
	})
	return err
}
