package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mmeshcher/auction-system/internal/model"
	"github.com/mmeshcher/auction-system/internal/notifier"
)

func TestProcessTimer_ItemExpiryClosesBidWindow(t *testing.T) {
	repo := newStubRepo()
	it := dropItem("item1", 100)
	it.Status = model.ItemStatusDropping
	it.BuyPrice = 125
	it.CurrBid = &model.Bid{ActionID: "b2", UserID: "u2", Nickname: "u2", Amount: 150}
	it.NumberOfBids = 2
	repo.items["item1"] = it

	timerID := model.ItemTimerID("item1")
	repo.timers[timerID] = &model.Timer{
		ID:         timerID,
		ItemID:     "item1",
		ExpireDate: testNow.Add(-time.Second),
	}
	svc, _, notif := newTestService(repo, Options{})

	timer := *repo.timers[timerID]
	if err := svc.processTimer(context.Background(), &timer); err != nil {
		t.Fatalf("process timer: %v", err)
	}

	stored := repo.items["item1"]
	if stored.Status != model.ItemStatusOnHold {
		t.Fatalf("status: got %s want On Hold", stored.Status)
	}
	if stored.BuyerID != "u2" || stored.BuyDate == nil {
		t.Fatalf("winner must be recorded: %+v", stored)
	}

	var winning *model.Action
	for _, a := range repo.actions {
		if a.Result == model.ActionResultWinningBid {
			winning = a
		}
	}
	if winning == nil {
		t.Fatalf("expected winning bid record")
	}
	if winning.Status != model.ActionStatusProcessed {
		t.Fatalf("winning bid must be terminal, got %s", winning.Status)
	}
	if winning.Amount != 125 || winning.MaxAmount != 150 {
		t.Fatalf("winning bid amounts: got %d/%d want 125/150", winning.Amount, winning.MaxAmount)
	}
	if !strings.HasPrefix(winning.ID, testNow.Format("01-02-06-")) {
		t.Fatalf("winning bid id must carry date prefix, got %s", winning.ID)
	}

	if _, ok := repo.timers[timerID]; ok {
		t.Fatalf("timer must be deleted after finalization")
	}
	if len(notif.alerts) != 1 || notif.alerts[0].template != notifier.TemplateWinningBid || notif.alerts[0].userID != "u2" {
		t.Fatalf("winner must be notified, got %+v", notif.alerts)
	}
}

func TestProcessTimer_ItemExpiryIsIdempotent(t *testing.T) {
	repo := newStubRepo()
	it := dropItem("item1", 100)
	sold := testNow.Add(-time.Minute)
	it.Status = model.ItemStatusOnHold
	it.BuyerID = "u2"
	it.BuyDate = &sold
	it.CurrBid = &model.Bid{ActionID: "b2", UserID: "u2", Amount: 150}
	repo.items["item1"] = it

	timerID := model.ItemTimerID("item1")
	repo.timers[timerID] = &model.Timer{
		ID:         timerID,
		ItemID:     "item1",
		ExpireDate: testNow.Add(-time.Second),
	}
	svc, _, notif := newTestService(repo, Options{})

	timer := *repo.timers[timerID]
	if err := svc.processTimer(context.Background(), &timer); err != nil {
		t.Fatalf("process timer: %v", err)
	}

	if len(repo.actions) != 0 {
		t.Fatalf("redelivered expiry must not create actions: %v", repo.actions)
	}
	if len(notif.alerts) != 0 {
		t.Fatalf("redelivered expiry must not notify, got %+v", notif.alerts)
	}
	if _, ok := repo.timers[timerID]; ok {
		t.Fatalf("timer must still be deleted")
	}
}

func TestProcessTimer_ItemExpiryWithoutBids(t *testing.T) {
	repo := newStubRepo()
	repo.items["item1"] = dropItem("item1", 100)

	timerID := model.ItemTimerID("item1")
	repo.timers[timerID] = &model.Timer{
		ID:         timerID,
		ItemID:     "item1",
		ExpireDate: testNow.Add(-time.Second),
	}
	svc, _, _ := newTestService(repo, Options{})

	timer := *repo.timers[timerID]
	if err := svc.processTimer(context.Background(), &timer); err != nil {
		t.Fatalf("process timer: %v", err)
	}

	if got := repo.items["item1"].Status; got != model.ItemStatusAvailable {
		t.Fatalf("item without bids must not change, got %s", got)
	}
	if _, ok := repo.timers[timerID]; ok {
		t.Fatalf("orphan timer must be deleted")
	}
}

func TestProcessTimer_DropExpiryGoesLive(t *testing.T) {
	repo := newStubRepo()
	repo.drops["drop1"] = &model.Drop{
		ID:      "drop1",
		Status:  model.DropStatusCountdown,
		Version: 3,
	}
	repo.items["item1"] = &model.Item{ID: "item1", SaleType: model.SaleTypeDrop, Status: model.ItemStatusSetup, StartPrice: 100, Version: 1}
	repo.items["item2"] = &model.Item{ID: "item2", SaleType: model.SaleTypeDrop, Status: model.ItemStatusSetup, StartPrice: 200, Version: 1}

	timerID := model.DropTimerID("drop1")
	repo.timers[timerID] = &model.Timer{
		ID:         timerID,
		DropID:     "drop1",
		ExpireDate: testNow.Add(-time.Second),
	}
	svc, _, _ := newTestService(repo, Options{})

	timer := *repo.timers[timerID]
	if err := svc.processTimer(context.Background(), &timer); err != nil {
		t.Fatalf("process timer: %v", err)
	}

	if got := repo.drops["drop1"].Status; got != model.DropStatusLive {
		t.Fatalf("drop status: got %s want Live", got)
	}
	for _, id := range []string{"item1", "item2"} {
		if got := repo.items[id].Status; got != model.ItemStatusAvailable {
			t.Fatalf("item %s: got %s want Available", id, got)
		}
	}
	if _, ok := repo.timers[timerID]; ok {
		t.Fatalf("timer must be deleted")
	}
}

func TestProcessTimer_DropExpiryWrongStatus(t *testing.T) {
	repo := newStubRepo()
	repo.drops["drop1"] = &model.Drop{
		ID:      "drop1",
		Status:  model.DropStatusLive,
		Version: 4,
	}
	repo.items["item1"] = &model.Item{ID: "item1", SaleType: model.SaleTypeDrop, Status: model.ItemStatusSetup, StartPrice: 100, Version: 1}

	timerID := model.DropTimerID("drop1")
	repo.timers[timerID] = &model.Timer{
		ID:         timerID,
		DropID:     "drop1",
		ExpireDate: testNow.Add(-time.Second),
	}
	svc, _, _ := newTestService(repo, Options{})

	timer := *repo.timers[timerID]
	if err := svc.processTimer(context.Background(), &timer); err != nil {
		t.Fatalf("process timer: %v", err)
	}

	if got := repo.items["item1"].Status; got != model.ItemStatusSetup {
		t.Fatalf("stale drop expiry must not activate items, got %s", got)
	}
	if _, ok := repo.timers[timerID]; ok {
		t.Fatalf("stale timer must still be deleted")
	}
}

func TestProcessTimerBatch_ConvergesToSingleFinalization(t *testing.T) {
	repo := newStubRepo()
	it := dropItem("item1", 100)
	it.Status = model.ItemStatusDropping
	it.BuyPrice = 100
	it.CurrBid = &model.Bid{ActionID: "b1", UserID: "u1", Nickname: "u1", Amount: 100}
	it.NumberOfBids = 1
	repo.items["item1"] = it

	timerID := model.ItemTimerID("item1")
	repo.timers[timerID] = &model.Timer{
		ID:               timerID,
		ItemID:           "item1",
		ExpireDate:       testNow.Add(5 * time.Second),
		RemainingSeconds: 5,
	}
	svc, _, notif := newTestService(repo, Options{})

	clock := testNow
	svc.now = func() time.Time { return clock }

	// секундные тики до и после истечения окна
	for tick := 0; tick < 10; tick++ {
		svc.processTimerBatch(context.Background())
		clock = clock.Add(time.Second)
	}

	if len(repo.timers) != 0 {
		t.Fatalf("timer must be gone after expiry, got %v", repo.timers)
	}

	winning := 0
	for _, a := range repo.actions {
		if a.Result == model.ActionResultWinningBid {
			winning++
		}
	}
	if winning != 1 {
		t.Fatalf("expected exactly one winning bid record, got %d", winning)
	}
	if len(notif.alerts) != 1 || notif.alerts[0].userID != "u1" {
		t.Fatalf("winner must be notified exactly once, got %+v", notif.alerts)
	}

	stored := repo.items["item1"]
	if stored.Status != model.ItemStatusOnHold || stored.BuyerID != "u1" {
		t.Fatalf("item must converge to On Hold for the winner: %+v", stored)
	}
}

func TestProcessTimer_WritesRemainingSeconds(t *testing.T) {
	repo := newStubRepo()
	timerID := model.ItemTimerID("item1")
	svc, _, _ := newTestService(repo, Options{})

	tests := []struct {
		name      string
		remaining time.Duration
		stored    int
		want      int
	}{
		{name: "near expiry writes every second", remaining: 5 * time.Second, stored: 6, want: 5},
		{name: "far from expiry writes even seconds", remaining: 30 * time.Second, stored: 32, want: 30},
		{name: "far from expiry skips odd seconds", remaining: 31 * time.Second, stored: 32, want: 32},
		{name: "unchanged value is not rewritten", remaining: 30 * time.Second, stored: 30, want: 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo.timers[timerID] = &model.Timer{
				ID:               timerID,
				ItemID:           "item1",
				ExpireDate:       testNow.Add(tt.remaining),
				RemainingSeconds: tt.stored,
			}

			timer := *repo.timers[timerID]
			if err := svc.processTimer(context.Background(), &timer); err != nil {
				t.Fatalf("process timer: %v", err)
			}
			if got := repo.timers[timerID].RemainingSeconds; got != tt.want {
				t.Fatalf("remaining: got %d want %d", got, tt.want)
			}
		})
	}
}
