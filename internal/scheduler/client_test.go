package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestScheduleCallback_OK(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/tasks" {
			t.Fatalf("path = %s, want /api/tasks", r.URL.Path)
		}

		var task Task
		if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
			t.Fatalf("decode task: %v", err)
		}
		if task.URL != "http://callback.example/api/drops/countdown" {
			t.Fatalf("task url = %s", task.URL)
		}
		if !task.ScheduleTime.Equal(at) {
			t.Fatalf("schedule time = %v, want %v", task.ScheduleTime, at)
		}

		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	payload := map[string]string{"dropId": "d1", "taskId": "t1"}
	err := client.ScheduleCallback(ctx, "http://callback.example/api/drops/countdown", payload, at)
	if err != nil {
		t.Fatalf("ScheduleCallback error: %v", err)
	}
}

func TestScheduleCallback_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := client.ScheduleCallback(ctx, "http://callback.example/cb", map[string]string{}, time.Now())
	if err == nil {
		t.Fatalf("expected error for bad status")
	}
}

func TestScheduleCallback_NotConfigured(t *testing.T) {
	var client *Client

	err := client.ScheduleCallback(context.Background(), "http://callback.example/cb", nil, time.Now())
	if err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}
