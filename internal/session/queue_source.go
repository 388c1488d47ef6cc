package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/location-engine/internal/domain"
	apperrors "github.com/location-engine/internal/pkg/errors"
)

// ErrSourceStopped - источник остановлен и больше не принимает точки
var ErrSourceStopped = errors.New("location source stopped")

// Authorizer проверяет, разрешено ли отслеживание для сессии
type Authorizer func(ctx context.Context) error

// QueueSource - LocationSource поверх неограниченной FIFO-очереди.
// Push не блокируется и не теряет точки, даже если движок занят вводом-выводом.
// Точки старше последней принятой отклоняются с ErrOutOfOrder
type QueueSource struct {
	authorize Authorizer

	mu       sync.Mutex
	queue    []domain.GeoPoint
	last     time.Time
	hasLast  bool
	started  bool
	stopped  bool
	notify   chan struct{}
	stopping chan struct{}
	out      chan domain.GeoPoint
}

func NewQueueSource(authorize Authorizer) *QueueSource {
	return &QueueSource{
		authorize: authorize,
		notify:    make(chan struct{}, 1),
		stopping:  make(chan struct{}),
		out:       make(chan domain.GeoPoint),
	}
}

func (s *QueueSource) RequestAuthorization(ctx context.Context) error {
	if s.authorize == nil {
		return nil
	}
	return s.authorize(ctx)
}

// Start запускает выдачу точек в канал Subscribe. Отмена ctx прерывает выдачу
// без вычитывания очереди
func (s *QueueSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSourceStopped
	}
	if s.started {
		return nil
	}
	s.started = true

	go s.pump(ctx)
	return nil
}

// Stop перестаёт принимать точки. Уже принятые точки выдаются до конца,
// после чего канал подписки закрывается
func (s *QueueSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.stopping)

	if !s.started {
		close(s.out)
	}
	return nil
}

func (s *QueueSource) Subscribe() <-chan domain.GeoPoint {
	return s.out
}

// Push добавляет точку в конец очереди
func (s *QueueSource) Push(p domain.GeoPoint) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSourceStopped
	}
	if s.hasLast && p.Timestamp.Before(s.last) {
		s.mu.Unlock()
		return apperrors.ErrOutOfOrder.WithDetails(map[string]interface{}{
			"timestamp": p.Timestamp,
			"last":      s.last,
		})
	}
	s.queue = append(s.queue, p)
	s.last = p.Timestamp
	s.hasLast = true
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// Len - сколько точек ждёт обработки
func (s *QueueSource) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *QueueSource) pump(ctx context.Context) {
	defer close(s.out)

	for {
		p, ok, stopped := s.next()
		if !ok {
			if stopped {
				return
			}
			select {
			case <-s.notify:
				continue
			case <-s.stopping:
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case s.out <- p:
		case <-ctx.Done():
			return
		}
	}
}

// next снимает голову очереди. stopped - очередь пуста и новых точек не будет
func (s *QueueSource) next() (domain.GeoPoint, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return domain.GeoPoint{}, false, s.stopped
	}
	p := s.queue[0]
	s.queue[0] = domain.GeoPoint{}
	s.queue = s.queue[1:]
	return p, true, false
}
