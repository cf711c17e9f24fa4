package changefeed

import (
	"errors"
	"sync"
	"sync/atomic"

	"habitTracker/internal/logger"
	"habitTracker/internal/metrics"

	"go.uber.org/zap"
)

var (
	ErrPumpStopped = errors.New("доставка остановлена")
	ErrPumpFull    = errors.New("очередь подписки переполнена")
)

// Pump доставляет изменения обработчику из собственной горутины.
// Порядок Push сохраняется. Push никогда не ждёт: при полной очереди изменение
// отбрасывается, а когда очередь разберётся, обработчик получит LAGGED
// и должен перечитать данные целиком.
type Pump struct {
	h      Handler
	queue  chan Change
	done   chan struct{}
	once   sync.Once
	lagged atomic.Bool
}

func NewPump(h Handler, buffer int) *Pump {
	if buffer < 1 {
		buffer = 1
	}
	p := &Pump{
		h:     h,
		queue: make(chan Change, buffer),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Pump) run() {
	for {
		select {
		case c := <-p.queue:
			p.h.Dispatch(c)
			if len(p.queue) == 0 && p.lagged.CompareAndSwap(true, false) {
				p.h.Notify(StatusLagged, ErrPumpFull)
			}
		case <-p.done:
			return
		}
	}
}

func (p *Pump) Push(c Change) error {
	select {
	case <-p.done:
		return ErrPumpStopped
	default:
	}
	select {
	case p.queue <- c:
		return nil
	default:
	}

	metrics.FeedDropped.WithLabelValues(c.Table).Inc()
	if p.lagged.CompareAndSwap(false, true) {
		logger.Warn("Changefeed: Подписка не успевает, изменения отбрасываются",
			zap.String("table", c.Table),
			zap.Int("buffer", cap(p.queue)))
	}
	return ErrPumpFull
}

// Lagged сообщает, были ли потери с момента последнего LAGGED
func (p *Pump) Lagged() bool {
	return p.lagged.Load()
}

// Stop останавливает доставку; повторный вызов ничего не делает
func (p *Pump) Stop() bool {
	stopped := false
	p.once.Do(func() {
		close(p.done)
		stopped = true
	})
	return stopped
}
