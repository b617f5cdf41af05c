// Package service реализует бизнес-логику аукционного сервиса:
// маршрутизацию действий, разрешение ставок, жизненный цикл дропов
// и движок таймеров.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/auction-system/internal/model"
	"github.com/mmeshcher/auction-system/internal/validation"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	Ping(ctx context.Context) error
	GetItem(ctx context.Context, id string) (*model.Item, error)
	CreateItem(ctx context.Context, it *model.Item) error
	UpdateItem(ctx context.Context, it *model.Item) error
	ActivateSetupItems(ctx context.Context) (int64, error)
	CreateAction(ctx context.Context, a *model.Action) error
	GetAction(ctx context.Context, id string) (*model.Action, error)
	GetActionsForDispatch(ctx context.Context, limit int) ([]model.Action, error)
	FinalizeAction(ctx context.Context, id string, result model.ActionResult, processedDate time.Time) (bool, error)
	QueueAction(ctx context.Context, id string) (bool, error)
	UpdateActionResult(ctx context.Context, id string, result model.ActionResult) error
	UpsertTimer(ctx context.Context, t *model.Timer) error
	GetTimers(ctx context.Context) ([]model.Timer, error)
	UpdateTimerRemaining(ctx context.Context, id string, seconds int) error
	DeleteTimer(ctx context.Context, id string) error
	GetDrop(ctx context.Context, id string) (*model.Drop, error)
	GetDropsForScheduling(ctx context.Context) ([]model.Drop, error)
	UpdateDrop(ctx context.Context, d *model.Drop) error
}

// Scheduler описывает контракт внешнего планировщика отложенных задач.
type Scheduler interface {
	ScheduleCallback(ctx context.Context, callbackURL string, payload any, at time.Time) error
}

// Notifier описывает контракт доставки уведомлений пользователям.
type Notifier interface {
	Notify(userID, template, itemID, itemName string) error
}

// Options содержит настраиваемые параметры аукционной логики.
type Options struct {
	// BidIncrement — шаг прокси-ставки: новый лидер платит на столько
	// больше потолка предыдущего лидера, но не больше собственной ставки.
	BidIncrement int64
	// BidExtension — продление окна ставок после квалифицирующей ставки.
	BidExtension time.Duration
	// CountdownLead — за сколько до старта дропа запускается обратный отсчёт.
	CountdownLead time.Duration
	// AutomaticPurchases включает автоматическую обработку запросов на покупку.
	AutomaticPurchases bool
	// CallbackBaseURL — внешний адрес сервиса для callback планировщика.
	CallbackBaseURL string
}

// Service содержит бизнес-логику аукционного сервиса.
type Service struct {
	repo      Repository
	scheduler Scheduler
	notifier  Notifier
	logger    *zap.Logger
	opts      Options

	now func() time.Time
}

// NewService создаёт новый сервис с указанными зависимостями.
func NewService(repo Repository, scheduler Scheduler, notifier Notifier, logger *zap.Logger, opts Options) *Service {
	if opts.BidIncrement == 0 {
		opts.BidIncrement = 25
	}
	if opts.BidExtension == 0 {
		opts.BidExtension = 45 * time.Second
	}
	if opts.CountdownLead == 0 {
		opts.CountdownLead = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:      repo,
		scheduler: scheduler,
		notifier:  notifier,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Ping проверяет доступность хранилища данных.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// CreateItem сохраняет новый лот.
func (s *Service) CreateItem(ctx context.Context, it *model.Item) error {
	return s.repo.CreateItem(ctx, it)
}

// GetItem возвращает лот по идентификатору.
func (s *Service) GetItem(ctx context.Context, id string) (*model.Item, error) {
	return s.repo.GetItem(ctx, id)
}

// CreateAction сохраняет новое действие для последующей обработки.
func (s *Service) CreateAction(ctx context.Context, a *model.Action) error {
	return s.repo.CreateAction(ctx, a)
}

// GetAction возвращает действие по идентификатору.
func (s *Service) GetAction(ctx context.Context, id string) (*model.Action, error) {
	return s.repo.GetAction(ctx, id)
}

// Dispatch проверяет и маршрутизирует действие соответствующему обработчику.
// Каждая ветка завершает действие терминальным статусом Processed ровно один
// раз; повторная доставка уже обработанного действия не изменяет состояние.
func (s *Service) Dispatch(ctx context.Context, a *model.Action) error {
	// синтетические записи о выигрыше терминальны по построению
	if a.IsWinningBid() {
		s.logger.Debug("bypassing winning bid action", zap.String("actionID", a.ID))
		return nil
	}

	// защита от повторной доставки
	fresh, err := s.repo.GetAction(ctx, a.ID)
	if err != nil {
		return err
	}
	if fresh.Status == model.ActionStatusProcessed {
		s.logger.Debug("action already processed", zap.String("actionID", a.ID))
		return nil
	}

	if err := validation.ValidateAction(a); err != nil {
		s.logger.Warn("invalid action",
			zap.String("actionID", a.ID),
			zap.String("type", string(a.Type)),
			zap.Error(err))
		_, finErr := s.repo.FinalizeAction(ctx, a.ID, model.ActionResultInvalid, s.now())
		return finErr
	}

	switch a.Type {
	case model.ActionTypeBid:
		return s.processBid(ctx, a)
	case model.ActionTypePurchaseRequest:
		return s.processPurchaseRequest(ctx, a)
	case model.ActionTypeAcceptRequest:
		return s.acceptPurchaseRequest(ctx, a)
	default:
		// инвойсы и письма обрабатываются внешними компонентами
		s.logger.Debug("bypassing action",
			zap.String("actionID", a.ID),
			zap.String("type", string(a.Type)))
		return nil
	}
}

// StartActionDispatch запускает фоновую обработку созданных действий.
func (s *Service) StartActionDispatch(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processActionBatch(ctx)
			}
		}
	}()
}

func (s *Service) processActionBatch(ctx context.Context) {
	actions, err := s.repo.GetActionsForDispatch(ctx, 100)
	if err != nil {
		s.logger.Error("select actions for dispatch", zap.Error(err))
		return
	}

	// ошибка одного действия не блокирует обработку остальных
	for i := range actions {
		a := &actions[i]
		if err := s.Dispatch(ctx, a); err != nil {
			s.logger.Error("dispatch action",
				zap.String("actionID", a.ID),
				zap.String("type", string(a.Type)),
				zap.Error(err))
		}
	}
}

// StartDropLifecycle запускает фоновую обработку жизненного цикла дропов.
func (s *Service) StartDropLifecycle(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processDropBatch(ctx)
			}
		}
	}()
}

func (s *Service) processDropBatch(ctx context.Context) {
	drops, err := s.repo.GetDropsForScheduling(ctx)
	if err != nil {
		s.logger.Error("select drops", zap.Error(err))
		return
	}

	for i := range drops {
		d := &drops[i]
		if err := s.processDrop(ctx, d); err != nil {
			s.logger.Error("process drop",
				zap.String("dropID", d.ID),
				zap.String("status", string(d.Status)),
				zap.Error(err))
		}
	}
}

// StartTimerEngine запускает движок таймеров.
func (s *Service) StartTimerEngine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processTimerBatch(ctx)
			}
		}
	}()
}

func (s *Service) processTimerBatch(ctx context.Context) {
	timers, err := s.repo.GetTimers(ctx)
	if err != nil {
		s.logger.Error("select timers", zap.Error(err))
		return
	}

	for i := range timers {
		t := &timers[i]
		if err := s.processTimer(ctx, t); err != nil {
			s.logger.Error("process timer",
				zap.String("timerID", t.ID),
				zap.Error(err))
		}
	}
}

func (s *Service) notify(userID, template, itemID, itemName string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(userID, template, itemID, itemName); err != nil {
		s.logger.Warn("notify user",
			zap.String("userID", userID),
			zap.String("template", template),
			zap.Error(err))
	}
}
