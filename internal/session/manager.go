package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/location-engine/internal/domain"
	"github.com/location-engine/internal/domain/repository"
	apperrors "github.com/location-engine/internal/pkg/errors"
	"github.com/location-engine/internal/usecase"
	"github.com/location-engine/internal/worker"
	"go.uber.org/zap"
)

const (
	defaultIdleTimeout  = 30 * time.Minute
	defaultDrainTimeout = 10 * time.Second
)

// ErrManagerClosed - менеджер остановлен, новые сессии не создаются
var ErrManagerClosed = errors.New("session manager closed")

// EngineFactory собирает движок для профиля
type EngineFactory func(profileID uuid.UUID) *usecase.Engine

// ProfileAuthorizer проверяет разрешение на отслеживание профиля
type ProfileAuthorizer func(ctx context.Context, profileID uuid.UUID) error

// LocationSharingAuthorizer разрешает отслеживание по флагу location_sharing профиля
func LocationSharingAuthorizer(profileRepo repository.ProfileRepository) ProfileAuthorizer {
	return func(ctx context.Context, profileID uuid.UUID) error {
		enabled, err := profileRepo.IsLocationSharingEnabled(ctx, profileID)
		if err != nil {
			return fmt.Errorf("check location sharing: %w", err)
		}
		if !enabled {
			return apperrors.ErrLocationUnauthorized
		}
		return nil
	}
}

// ManagerConfig - параметры жизненного цикла сессий
type ManagerConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	DrainTimeout  time.Duration
}

type session struct {
	profileID uuid.UUID
	engine    *usecase.Engine
	source    *QueueSource
	cancel    context.CancelFunc
	lastSeen  time.Time

	// prev - предыдущая сессия профиля, которая ещё дорабатывает
	prev *session
	done chan struct{}
}

// Manager владеет движками активных профилей: по одному на профиль,
// создаётся при первой точке и выгружается после простоя
type Manager struct {
	*worker.BaseWorker

	newEngine EngineFactory
	authorize ProfileAuthorizer
	cfg       ManagerConfig
	now       func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
	running  map[*session]struct{} // включая выгруженные, но ещё не доработавшие
	latest   map[uuid.UUID]*session // последняя запущенная сессия профиля среди running
	closed   bool
	wg       sync.WaitGroup
}

// NewManager - authorize может быть nil, тогда отслеживание разрешено всем
func NewManager(newEngine EngineFactory, authorize ProfileAuthorizer, cfg ManagerConfig, logger *zap.Logger) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = cfg.IdleTimeout / 4
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}

	return &Manager{
		BaseWorker: worker.NewBaseWorker("session-manager", "", logger),
		newEngine:  newEngine,
		authorize:  authorize,
		cfg:        cfg,
		now:        time.Now,
		sessions:   make(map[uuid.UUID]*session),
		running:    make(map[*session]struct{}),
		latest:     make(map[uuid.UUID]*session),
	}
}

// Dispatch ставит точку в очередь сессии профиля, создавая сессию при необходимости
func (m *Manager) Dispatch(ctx context.Context, profileID uuid.UUID, p domain.GeoPoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// вторая попытка - если сессия остановилась между поиском и Push
	for attempt := 0; attempt < 2; attempt++ {
		s, err := m.acquire(profileID)
		if err != nil {
			return err
		}

		err = s.source.Push(p)
		if errors.Is(err, ErrSourceStopped) {
			m.forget(s)
			continue
		}
		return err
	}

	return ErrSourceStopped
}

func (m *Manager) acquire(profileID uuid.UUID) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}

	s, ok := m.sessions[profileID]
	if !ok {
		s = m.startLocked(profileID)
		m.sessions[profileID] = s
	}
	s.lastSeen = m.now()
	return s, nil
}

func (m *Manager) startLocked(profileID uuid.UUID) *session {
	var authorize Authorizer
	if m.authorize != nil {
		authorize = func(ctx context.Context) error {
			return m.authorize(ctx, profileID)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		profileID: profileID,
		engine:    m.newEngine(profileID),
		source:    NewQueueSource(authorize),
		cancel:    cancel,
		prev:      m.latest[profileID],
		done:      make(chan struct{}),
	}

	m.running[s] = struct{}{}
	m.latest[profileID] = s
	m.wg.Add(1)
	go m.run(ctx, s)

	m.Logger().Debug("Session started", zap.String("profile_id", profileID.String()))
	return s
}

func (m *Manager) run(ctx context.Context, s *session) {
	defer m.wg.Done()
	defer s.cancel()
	defer m.finish(s)

	logger := m.Logger().With(zap.String("profile_id", s.profileID.String()))

	// точки одного профиля не обрабатываются параллельно: новая сессия
	// стартует только после того, как выгруженная дописала своё состояние
	if prev := s.prev; prev != nil {
		s.prev = nil
		select {
		case <-prev.done:
		case <-ctx.Done():
			_ = s.source.Stop()
			logger.Warn("Session cancelled while waiting for previous one",
				zap.Int("dropped_points", s.source.Len()))
			return
		}
	}

	if err := s.engine.Restore(ctx); err != nil {
		logger.Warn("Session state not fully restored", zap.Error(err))
	}

	err := s.engine.Run(ctx, s.source)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		logger.Debug("Session finished")
	case errors.Is(err, apperrors.ErrLocationUnauthorized):
		_ = s.source.Stop()
		logger.Warn("Location tracking not authorized, session stopped",
			zap.Int("dropped_points", s.source.Len()))
	default:
		_ = s.source.Stop()
		logger.Error("Session failed",
			zap.Int("dropped_points", s.source.Len()),
			zap.Error(err))
	}
}

func (m *Manager) finish(s *session) {
	m.mu.Lock()
	delete(m.running, s)
	if m.latest[s.profileID] == s {
		delete(m.latest, s.profileID)
	}
	m.mu.Unlock()
	close(s.done)

	m.forget(s)
}

func (m *Manager) forget(s *session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.sessions[s.profileID]; ok && cur == s {
		delete(m.sessions, s.profileID)
	}
}

// Coverage возвращает трекер покрытия активной сессии
func (m *Manager) Coverage(profileID uuid.UUID) (*usecase.CoverageTracker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[profileID]
	if !ok {
		return nil, false
	}
	return s.engine.Coverage(), true
}

// ActiveSessions - число активных сессий
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// EvictIdle останавливает сессии без точек дольше IdleTimeout и с пустой очередью
func (m *Manager) EvictIdle(now time.Time) int {
	m.mu.Lock()
	var idle []*session
	for id, s := range m.sessions {
		if now.Sub(s.lastSeen) >= m.cfg.IdleTimeout && s.source.Len() == 0 {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		_ = s.source.Stop()
	}
	if len(idle) > 0 {
		m.Logger().Info("Idle sessions evicted", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Start периодически выгружает простаивающие сессии до остановки
func (m *Manager) Start(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	m.Logger().Info("Session manager started",
		zap.Duration("idle_timeout", m.cfg.IdleTimeout))

	for {
		select {
		case <-ctx.Done():
			m.Shutdown()
			return nil
		case <-m.StopChan():
			m.Shutdown()
			return nil
		case <-ticker.C:
			m.EvictIdle(m.now())
		}
	}
}

// Shutdown останавливает все сессии, даёт им дообработать очереди
// в пределах DrainTimeout и затем прерывает оставшиеся
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		_ = s.source.Stop()
	}

	if worker.WaitTimeout(&m.wg, m.cfg.DrainTimeout) {
		m.Logger().Info("All sessions drained", zap.Int("count", len(sessions)))
		return
	}

	m.Logger().Warn("Session drain timed out, cancelling",
		zap.Duration("timeout", m.cfg.DrainTimeout))
	m.mu.Lock()
	for s := range m.running {
		s.cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}
