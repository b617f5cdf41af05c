package service

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/auction-system/internal/model"
	"github.com/mmeshcher/auction-system/internal/notifier"
	"github.com/mmeshcher/auction-system/internal/repository"
)

const (
	casMaxRetries = 3
	casRetryDelay = 50 * time.Millisecond
)

// bidOutcome описывает решение по входящей ставке: новое состояние лота,
// итог самой ставки, коррекцию итога вытесненной ставки и продление окна.
type bidOutcome struct {
	result model.ActionResult
	// item содержит изменённую копию лота; nil, если лот не изменяется.
	item          *model.Item
	itemName      string
	newExpireDate *time.Time
	prevActionID  string
	prevResult    model.ActionResult
	alertUserID   string
	alertTemplate string
}

// resolveBid — чистая функция разрешения ставки. Случаи проверяются по
// порядку, срабатывает первый подходящий:
//  1. лот уже продан — Late Bid, без изменений;
//  2. первая ставка — принимается от стартовой цены, buyPrice = startPrice;
//  3. ставка не выше текущей цены — Outbid, лидер не меняется;
//  4. лидер корректирует собственный потолок — цена и окно не меняются;
//  5. новый лидер — buyPrice = min(ставка, потолок прежнего лидера + шаг);
//  6. ставка поднимает цену, но не перебивает лидера —
//     buyPrice = min(ставка + шаг, потолок лидера).
func resolveBid(src *model.Item, a *model.Action, now time.Time, extension time.Duration, increment int64) bidOutcome {
	newBid := model.Bid{
		ActionID: a.ID,
		UserID:   a.UserID,
		Nickname: a.Nickname,
		Amount:   a.Amount,
		Date:     a.CreatedDate,
	}

	// 1: лот уже продан или придержан
	if src.BuyDate != nil {
		return bidOutcome{
			result:        model.ActionResultLateBid,
			itemName:      src.Name,
			alertUserID:   a.UserID,
			alertTemplate: notifier.TemplateLateBid,
		}
	}

	it := cloneItem(src)

	var expire *time.Time
	if it.IsDrop() {
		t := now.Add(extension)
		expire = &t
	}

	// 2: первая ставка
	if it.BuyPrice == 0 {
		if a.Amount < it.StartPrice {
			// ставка ниже стартовой цены лот не трогает
			return bidOutcome{result: model.ActionResultInvalid}
		}

		it.BuyPrice = it.StartPrice
		it.CurrBid = &newBid
		it.NumberOfBids++
		addBidder(it, a.UserID)
		if it.IsDrop() {
			it.Status = model.ItemStatusDropping
			it.DropExpireDate = expire
		} else {
			it.Status = model.ItemStatusLive
			expire = nil
		}

		return bidOutcome{
			result:        model.ActionResultHighBid,
			item:          it,
			newExpireDate: expire,
		}
	}

	// 3: ставка не выше текущей цены — сразу перебита
	if a.Amount <= it.BuyPrice {
		it.PrevBids = append(it.PrevBids, newBid)
		it.NumberOfBids++
		addBidder(it, a.UserID)

		return bidOutcome{
			result:        model.ActionResultOutbid,
			item:          it,
			alertUserID:   a.UserID,
			alertTemplate: notifier.TemplateOutbid,
		}
	}

	// 4: лидер корректирует собственный потолок; цена и окно не меняются
	if a.UserID == it.CurrBid.UserID {
		prev := *it.CurrBid
		it.PrevBids = append(it.PrevBids, prev)
		it.CurrBid = &newBid
		it.NumberOfBids++

		return bidOutcome{
			result:       model.ActionResultHighBid,
			item:         it,
			prevActionID: prev.ActionID,
			prevResult:   model.ActionResultIncreased,
		}
	}

	// 5: новый лидер; платит на шаг больше потолка прежнего лидера
	if a.Amount > it.CurrBid.Amount {
		prev := *it.CurrBid
		it.BuyPrice = min(a.Amount, prev.Amount+increment)
		it.PrevBids = append(it.PrevBids, prev)
		it.CurrBid = &newBid
		it.NumberOfBids++
		addBidder(it, a.UserID)
		if it.IsDrop() {
			it.DropExpireDate = expire
		} else {
			expire = nil
		}

		return bidOutcome{
			result:        model.ActionResultHighBid,
			item:          it,
			newExpireDate: expire,
			prevActionID:  prev.ActionID,
			prevResult:    model.ActionResultOutbid,
			alertUserID:   prev.UserID,
			alertTemplate: notifier.TemplateOutbid,
		}
	}

	// 6: ставка поднимает цену, но потолок лидера выше
	it.BuyPrice = min(a.Amount+increment, it.CurrBid.Amount)
	it.PrevBids = append(it.PrevBids, newBid)
	it.NumberOfBids++
	addBidder(it, a.UserID)
	if it.IsDrop() {
		it.DropExpireDate = expire
	} else {
		expire = nil
	}

	return bidOutcome{
		result:        model.ActionResultOutbid,
		item:          it,
		newExpireDate: expire,
		alertUserID:   a.UserID,
		alertTemplate: notifier.TemplateOutbid,
	}
}

// processBid применяет решение по ставке: записывает лот по версии,
// продлевает таймер, корректирует вытесненную ставку и финализирует действие.
func (s *Service) processBid(ctx context.Context, a *model.Action) error {
	var out bidOutcome

	backoff := retry.WithMaxRetries(casMaxRetries, retry.NewConstant(casRetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		item, err := s.repo.GetItem(ctx, a.ItemID)
		if err != nil {
			return err
		}

		out = resolveBid(item, a, s.now(), s.opts.BidExtension, s.opts.BidIncrement)
		if out.item == nil {
			return nil
		}

		if err := s.repo.UpdateItem(ctx, out.item); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				// конкурентная ставка успела раньше: перечитываем и решаем заново
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	if out.newExpireDate != nil {
		timer := &model.Timer{
			ID:         model.ItemTimerID(a.ItemID),
			ItemID:     a.ItemID,
			ExpireDate: *out.newExpireDate,
		}
		if err := s.repo.UpsertTimer(ctx, timer); err != nil {
			return err
		}
	}

	if out.prevActionID != "" {
		if err := s.repo.UpdateActionResult(ctx, out.prevActionID, out.prevResult); err != nil {
			return err
		}
	}

	if out.alertUserID != "" {
		itemName := out.itemName
		if out.item != nil {
			itemName = out.item.Name
		}
		s.notify(out.alertUserID, out.alertTemplate, a.ItemID, itemName)
	}

	_, err = s.repo.FinalizeAction(ctx, a.ID, out.result, s.now())
	return err
}

func cloneItem(src *model.Item) *model.Item {
	it := *src
	it.PrevBids = append([]model.Bid(nil), src.PrevBids...)
	it.BidderIDs = append([]string(nil), src.BidderIDs...)
	it.PurchaseReqs = append([]model.PurchaseRequest(nil), src.PurchaseReqs...)
	if src.CurrBid != nil {
		b := *src.CurrBid
		it.CurrBid = &b
	}
	return &it
}

func addBidder(it *model.Item, userID string) {
	if !it.HasBidder(userID) {
		it.BidderIDs = append(it.BidderIDs, userID)
	}
}
