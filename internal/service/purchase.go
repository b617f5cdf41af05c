package service

import (
	"context"
	"errors"

	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/auction-system/internal/model"
	"github.com/mmeshcher/auction-system/internal/notifier"
	"github.com/mmeshcher/auction-system/internal/repository"
)

// processPurchaseRequest обрабатывает запрос на покупку по фиксированной цене.
// В автоматическом режиме непроданный лот продаётся сразу; в ручном режиме
// запрос ставится в очередь до решения продавца.
func (s *Service) processPurchaseRequest(ctx context.Context, a *model.Action) error {
	now := s.now()
	req := model.PurchaseRequest{
		ActionID: a.ID,
		UserID:   a.UserID,
		Nickname: a.Nickname,
		Amount:   a.Amount,
		Date:     now,
	}

	var (
		result    model.ActionResult
		queue     bool
		itemName  string
		purchased bool
	)

	backoff := retry.WithMaxRetries(casMaxRetries, retry.NewConstant(casRetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		item, err := s.repo.GetItem(ctx, a.ItemID)
		if err != nil {
			return err
		}
		itemName = item.Name
		result = ""
		queue = false
		purchased = false

		it := cloneItem(item)
		it.PurchaseReqs = append(it.PurchaseReqs, req)
		it.NumberOfPurchaseReqs++

		switch {
		case s.opts.AutomaticPurchases && item.BuyPrice == 0:
			it.BuyDate = &now
			it.BuyPrice = it.StartPrice
			it.BuyerID = a.UserID
			it.Status = model.ItemStatusOnHold
			result = model.ActionResultPurchased
			purchased = true

		case s.opts.AutomaticPurchases:
			result = model.ActionResultAlreadySold

		case item.Status == model.ItemStatusOnHold || item.Status == model.ItemStatusSold:
			// запрос пришёл после того, как остальные уже обработаны вручную
			result = model.ActionResultAlreadySold
			return nil

		default:
			it.Status = model.ItemStatusRequested
			queue = true
		}

		if err := s.repo.UpdateItem(ctx, it); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	if queue {
		_, err := s.repo.QueueAction(ctx, a.ID)
		return err
	}

	if _, err := s.repo.FinalizeAction(ctx, a.ID, result, s.now()); err != nil {
		return err
	}

	if s.opts.AutomaticPurchases {
		template := notifier.TemplatePurchaseFail
		if purchased {
			template = notifier.TemplatePurchaseSuccess
		}
		s.notify(a.UserID, template, a.ItemID, itemName)
	}

	return nil
}

// acceptPurchaseRequest удовлетворяет один из поставленных в очередь запросов
// на покупку: лот придерживается за покупателем, удовлетворённый запрос
// получает Purchased, остальные — Already Sold. Уведомления не дублируются
// по пользователям с несколькими запросами.
func (s *Service) acceptPurchaseRequest(ctx context.Context, a *model.Action) error {
	now := s.now()

	var item *model.Item

	backoff := retry.WithMaxRetries(casMaxRetries, retry.NewConstant(casRetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		src, err := s.repo.GetItem(ctx, a.ItemID)
		if err != nil {
			return err
		}

		it := cloneItem(src)
		it.Status = model.ItemStatusOnHold
		it.BuyerID = a.UserID
		it.BuyPrice = it.StartPrice
		it.BuyDate = &now

		if err := s.repo.UpdateItem(ctx, it); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		item = it
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := s.repo.FinalizeAction(ctx, a.ID, model.ActionResultPurchased, now); err != nil {
		return err
	}

	s.notify(a.UserID, notifier.TemplatePurchaseSuccess, item.ID, item.Name)

	notified := map[string]bool{a.UserID: true}
	for _, req := range item.PurchaseReqs {
		result := model.ActionResultAlreadySold
		if req.ActionID == a.RefActionID {
			result = model.ActionResultPurchased
		}

		if _, err := s.repo.FinalizeAction(ctx, req.ActionID, result, now); err != nil {
			return err
		}

		// пользователь мог оставить несколько запросов
		if !notified[req.UserID] {
			s.notify(req.UserID, notifier.TemplatePurchaseFail, item.ID, item.Name)
			notified[req.UserID] = true
		}
	}

	return nil
}
