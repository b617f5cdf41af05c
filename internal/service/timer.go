package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/auction-system/internal/model"
	"github.com/mmeshcher/auction-system/internal/notifier"
	"github.com/mmeshcher/auction-system/internal/repository"
)

// nearExpiryThreshold — граница, ниже которой остаток секунд
// записывается на каждом тике, а не через один.
const nearExpiryThreshold = 10 * time.Second

// processTimer обрабатывает один таймер: при истечении выполняет терминальный
// переход, иначе записывает пересчитанный остаток секунд. Таймер удаляется
// только после успешной фиксации терминального состояния, поэтому любая
// ошибка оставляет его для повторной попытки на следующем тике.
func (s *Service) processTimer(ctx context.Context, t *model.Timer) error {
	remaining := t.ExpireDate.Sub(s.now())

	if remaining <= 0 {
		switch {
		case t.ItemID != "":
			return s.finalizeItemTimer(ctx, t)
		case t.DropID != "":
			return s.finalizeDropTimer(ctx, t)
		default:
			return fmt.Errorf("timer %s has neither itemId nor dropId", t.ID)
		}
	}

	seconds := int(remaining / time.Second)
	if seconds == t.RemainingSeconds {
		return nil
	}
	// вдали от истечения пишем остаток реже, чтобы снизить объём записей
	if remaining > nearExpiryThreshold && seconds%2 != 0 {
		return nil
	}

	return s.repo.UpdateTimerRemaining(ctx, t.ID, seconds)
}

// finalizeItemTimer закрывает окно ставок: лот придерживается за текущим
// лидером, создаётся синтетическое действие Winning Bid, победитель
// уведомляется, таймер удаляется последним. Повторная доставка после
// частичного сбоя распознаётся по уже установленной дате продажи.
func (s *Service) finalizeItemTimer(ctx context.Context, t *model.Timer) error {
	item, err := s.repo.GetItem(ctx, t.ItemID)
	if err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			s.logger.Warn("timer references missing item",
				zap.String("timerID", t.ID),
				zap.String("itemID", t.ItemID))
			return s.repo.DeleteTimer(ctx, t.ID)
		}
		return err
	}

	// окно уже закрыто другой доставкой либо ставок не было
	if item.BuyDate != nil || item.CurrBid == nil {
		s.logger.Info("skipping item finalization",
			zap.String("itemID", item.ID),
			zap.String("status", string(item.Status)))
		return s.repo.DeleteTimer(ctx, t.ID)
	}

	now := s.now()
	winner := *item.CurrBid

	it := cloneItem(item)
	it.Status = model.ItemStatusOnHold
	it.BuyerID = winner.UserID
	it.BuyDate = &now

	if err := s.repo.UpdateItem(ctx, it); err != nil {
		return err
	}

	action := &model.Action{
		ID:            dateUID(now),
		Type:          model.ActionTypeBid,
		Status:        model.ActionStatusProcessed,
		Result:        model.ActionResultWinningBid,
		ItemID:        it.ID,
		ItemName:      it.Name,
		UserID:        winner.UserID,
		Nickname:      winner.Nickname,
		Amount:        it.BuyPrice,
		MaxAmount:     winner.Amount,
		CreatedDate:   now,
		ProcessedDate: &now,
	}
	if err := s.repo.CreateAction(ctx, action); err != nil {
		return err
	}

	s.notify(winner.UserID, notifier.TemplateWinningBid, it.ID, it.Name)

	if err := s.repo.DeleteTimer(ctx, t.ID); err != nil {
		return err
	}

	s.logger.Info("bid window closed",
		zap.String("itemID", it.ID),
		zap.String("buyerID", winner.UserID),
		zap.Int64("buyPrice", it.BuyPrice))
	return nil
}

// finalizeDropTimer выполняет переход Countdown → Live: все лоты в Setup
// активируются одним запросом, дроп становится Live, таймер удаляется.
// Дроп в любом другом статусе — устаревшая доставка, удаляется только таймер.
func (s *Service) finalizeDropTimer(ctx context.Context, t *model.Timer) error {
	d, err := s.repo.GetDrop(ctx, t.DropID)
	if err != nil {
		if errors.Is(err, repository.ErrDropNotFound) {
			s.logger.Warn("timer references missing drop",
				zap.String("timerID", t.ID),
				zap.String("dropID", t.DropID))
			return s.repo.DeleteTimer(ctx, t.ID)
		}
		return err
	}

	if d.Status != model.DropStatusCountdown {
		s.logger.Info("skipping drop finalization",
			zap.String("dropID", d.ID),
			zap.String("status", string(d.Status)))
		return s.repo.DeleteTimer(ctx, t.ID)
	}

	activated, err := s.repo.ActivateSetupItems(ctx)
	if err != nil {
		return err
	}

	d.Status = model.DropStatusLive
	if err := s.repo.UpdateDrop(ctx, d); err != nil {
		return err
	}

	if err := s.repo.DeleteTimer(ctx, t.ID); err != nil {
		return err
	}

	s.logger.Info("drop is live",
		zap.String("dropID", d.ID),
		zap.Int64("activatedItems", activated))
	return nil
}

// dateUID возвращает идентификатор с префиксом даты для удобного просмотра.
func dateUID(now time.Time) string {
	return now.Format("01-02-06-") + uuid.NewString()
}
