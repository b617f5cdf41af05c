package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/auction-system/internal/model"
)

// CountdownPayload — тело callback планировщика, запускающего обратный отсчёт.
type CountdownPayload struct {
	DropID string `json:"dropId"`
	TaskID string `json:"taskId"`
}

// processDrop продвигает дроп по жизненному циклу:
// Scheduling — ставит задачу планировщику на момент startDate минус
// упреждение и фиксирует идентификатор задачи;
// Start Countdown — создаёт таймер до startDate и переводит дроп в Countdown.
// Остальные статусы компонент не трогает.
func (s *Service) processDrop(ctx context.Context, d *model.Drop) error {
	switch d.Status {
	case model.DropStatusScheduling:
		// планировщик опционален; без него дроп остаётся в Scheduling
		if s.scheduler == nil {
			s.logger.Warn("scheduler is not configured, drop not scheduled",
				zap.String("dropID", d.ID))
			return nil
		}

		taskID := uuid.NewString()
		payload := CountdownPayload{DropID: d.ID, TaskID: taskID}
		at := d.StartDate.Add(-s.opts.CountdownLead)
		callbackURL := strings.TrimRight(s.opts.CallbackBaseURL, "/") + "/api/drops/countdown"

		if err := s.scheduler.ScheduleCallback(ctx, callbackURL, payload, at); err != nil {
			return err
		}

		d.Status = model.DropStatusScheduled
		d.TaskID = taskID
		if err := s.repo.UpdateDrop(ctx, d); err != nil {
			return err
		}

		s.logger.Info("drop scheduled",
			zap.String("dropID", d.ID),
			zap.Time("startDate", d.StartDate),
			zap.String("taskID", taskID))
		return nil

	case model.DropStatusStartCountdown:
		timer := &model.Timer{
			ID:         model.DropTimerID(d.ID),
			DropID:     d.ID,
			ExpireDate: d.StartDate,
		}
		if err := s.repo.UpsertTimer(ctx, timer); err != nil {
			return err
		}

		d.Status = model.DropStatusCountdown
		if err := s.repo.UpdateDrop(ctx, d); err != nil {
			return err
		}

		s.logger.Info("drop countdown started", zap.String("dropID", d.ID))
		return nil

	default:
		return nil
	}
}

// StartDropCountdown обрабатывает callback планировщика. Срабатывание
// принимается, только если дроп всё ещё Scheduled и идентификатор задачи
// совпадает с сохранённым; устаревшие и повторные доставки игнорируются.
func (s *Service) StartDropCountdown(ctx context.Context, dropID, taskID string) error {
	d, err := s.repo.GetDrop(ctx, dropID)
	if err != nil {
		return err
	}

	if d.Status != model.DropStatusScheduled {
		s.logger.Info("bypassing drop countdown: not scheduled",
			zap.String("dropID", dropID),
			zap.String("status", string(d.Status)))
		return nil
	}
	if d.TaskID != taskID {
		s.logger.Info("bypassing drop countdown: stale task",
			zap.String("dropID", dropID),
			zap.String("taskID", taskID))
		return nil
	}

	d.Status = model.DropStatusStartCountdown
	return s.repo.UpdateDrop(ctx, d)
}
