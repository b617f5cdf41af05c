package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/auction-system/internal/model"
)

func TestProcessDrop_SchedulesCallback(t *testing.T) {
	repo := newStubRepo()
	start := testNow.Add(time.Hour)
	repo.drops["drop1"] = &model.Drop{
		ID:        "drop1",
		Name:      "Summer drop",
		Status:    model.DropStatusScheduling,
		StartDate: start,
		Version:   1,
	}
	svc, sched, _ := newTestService(repo, Options{CountdownLead: 60 * time.Second})

	d, _ := repo.GetDrop(context.Background(), "drop1")
	if err := svc.processDrop(context.Background(), d); err != nil {
		t.Fatalf("process drop: %v", err)
	}

	if len(sched.tasks) != 1 {
		t.Fatalf("expected 1 scheduled task, got %d", len(sched.tasks))
	}
	task := sched.tasks[0]
	if task.callbackURL != "http://auction.local/api/drops/countdown" {
		t.Fatalf("callback url: got %s", task.callbackURL)
	}
	wantAt := start.Add(-60 * time.Second)
	if !task.at.Equal(wantAt) {
		t.Fatalf("schedule time: got %v want %v", task.at, wantAt)
	}

	stored := repo.drops["drop1"]
	if stored.Status != model.DropStatusScheduled {
		t.Fatalf("status: got %s want Scheduled", stored.Status)
	}
	if stored.TaskID == "" {
		t.Fatalf("task id must be recorded")
	}
	payload, ok := task.payload.(CountdownPayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", task.payload)
	}
	if payload.TaskID != stored.TaskID || payload.DropID != "drop1" {
		t.Fatalf("payload mismatch: %+v vs stored task %s", payload, stored.TaskID)
	}
}

func TestProcessDrop_WithoutSchedulerStaysInScheduling(t *testing.T) {
	repo := newStubRepo()
	repo.drops["drop1"] = &model.Drop{
		ID:        "drop1",
		Status:    model.DropStatusScheduling,
		StartDate: testNow.Add(time.Hour),
		Version:   1,
	}
	// планировщик не сконфигурирован
	svc := NewService(repo, nil, nil, zap.NewNop(), Options{})
	svc.now = func() time.Time { return testNow }

	d, _ := repo.GetDrop(context.Background(), "drop1")
	if err := svc.processDrop(context.Background(), d); err != nil {
		t.Fatalf("drop without scheduler must be skipped, not fail: %v", err)
	}

	stored := repo.drops["drop1"]
	if stored.Status != model.DropStatusScheduling || stored.TaskID != "" {
		t.Fatalf("drop must stay untouched: %+v", stored)
	}
}

func TestProcessDrop_StartCountdownCreatesTimer(t *testing.T) {
	repo := newStubRepo()
	start := testNow.Add(time.Minute)
	repo.drops["drop1"] = &model.Drop{
		ID:        "drop1",
		Status:    model.DropStatusStartCountdown,
		StartDate: start,
		Version:   2,
	}
	svc, _, _ := newTestService(repo, Options{})

	d, _ := repo.GetDrop(context.Background(), "drop1")
	if err := svc.processDrop(context.Background(), d); err != nil {
		t.Fatalf("process drop: %v", err)
	}

	timer := repo.timers[model.DropTimerID("drop1")]
	if timer == nil {
		t.Fatalf("expected countdown timer")
	}
	if !timer.ExpireDate.Equal(start) || timer.DropID != "drop1" {
		t.Fatalf("unexpected timer: %+v", timer)
	}
	if got := repo.drops["drop1"].Status; got != model.DropStatusCountdown {
		t.Fatalf("status: got %s want Countdown", got)
	}
}

func TestStartDropCountdown_AcceptsMatchingTask(t *testing.T) {
	repo := newStubRepo()
	repo.drops["drop1"] = &model.Drop{
		ID:      "drop1",
		Status:  model.DropStatusScheduled,
		TaskID:  "task-1",
		Version: 2,
	}
	svc, _, _ := newTestService(repo, Options{})

	if err := svc.StartDropCountdown(context.Background(), "drop1", "task-1"); err != nil {
		t.Fatalf("start countdown: %v", err)
	}
	if got := repo.drops["drop1"].Status; got != model.DropStatusStartCountdown {
		t.Fatalf("status: got %s want Start Countdown", got)
	}
}

func TestStartDropCountdown_IgnoresStaleTask(t *testing.T) {
	repo := newStubRepo()
	repo.drops["drop1"] = &model.Drop{
		ID:      "drop1",
		Status:  model.DropStatusScheduled,
		TaskID:  "task-2",
		Version: 2,
	}
	svc, _, _ := newTestService(repo, Options{})

	// callback от задачи, отменённой переносом даты старта
	if err := svc.StartDropCountdown(context.Background(), "drop1", "task-1"); err != nil {
		t.Fatalf("stale callback must succeed without effect: %v", err)
	}
	if got := repo.drops["drop1"].Status; got != model.DropStatusScheduled {
		t.Fatalf("status must not change, got %s", got)
	}
}

func TestStartDropCountdown_IgnoresWrongStatus(t *testing.T) {
	repo := newStubRepo()
	repo.drops["drop1"] = &model.Drop{
		ID:      "drop1",
		Status:  model.DropStatusLive,
		TaskID:  "task-1",
		Version: 5,
	}
	svc, _, _ := newTestService(repo, Options{})

	if err := svc.StartDropCountdown(context.Background(), "drop1", "task-1"); err != nil {
		t.Fatalf("late callback must succeed without effect: %v", err)
	}
	if got := repo.drops["drop1"].Status; got != model.DropStatusLive {
		t.Fatalf("status must not change, got %s", got)
	}
}
