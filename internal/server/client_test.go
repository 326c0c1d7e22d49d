package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/shared"
)

func TestClient(t *testing.T) {
	t.Run("ControlsRemoteTasks", func(t *testing.T) {
		srv, registry, _ := newTestServer(t, nil)
		id := runningTask(t, registry)
		client := NewClient(context.Background(), srv.URL, nil)

		if got := client.List(); len(got) != 1 || got[0].ID != id {
			t.Fatalf("expected one listed task, got %+v", got)
		}
		if err := client.Pause(id); err != nil {
			t.Fatalf("Pause() error = %v", err)
		}
		if task, _ := registry.Get(id); task.Status != models.TaskPaused {
			t.Errorf("expected paused, got %s", task.Status)
		}
		if err := client.Resume(id); err != nil {
			t.Fatalf("Resume() error = %v", err)
		}
		if err := client.Cancel(id); err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}
		task, err := client.Get(id)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if task.Status != models.TaskCancelled {
			t.Errorf("expected cancelled, got %s", task.Status)
		}
		if n := client.ClearCompleted(); n != 0 {
			t.Errorf("cancelled tasks should stay listed, cleared %d", n)
		}
		if err := client.Remove(id); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		if got := client.List(); len(got) != 0 {
			t.Errorf("expected empty list, got %+v", got)
		}
	})

	t.Run("MapsStatusCodes", func(t *testing.T) {
		srv, registry, _ := newTestServer(t, nil)
		client := NewClient(context.Background(), srv.URL, nil)

		if _, err := client.Get(404); !errors.Is(err, shared.ErrTaskNotFound) {
			t.Errorf("expected ErrTaskNotFound, got %v", err)
		}

		task := registry.Create("同步", 1, models.TaskTypeSync, "")
		if err := client.Resume(task.ID); !errors.Is(err, shared.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("Subscribe", func(t *testing.T) {
		srv, registry, _ := newTestServer(t, nil)
		id := runningTask(t, registry)
		client := NewClient(context.Background(), srv.URL, nil)

		updates, stop := client.Subscribe(8)
		defer stop()

		select {
		case task := <-updates:
			if task.ID != id {
				t.Errorf("expected snapshot of %d, got %+v", id, task)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no snapshot received")
		}

		stop()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case _, ok := <-updates:
				if !ok {
					return
				}
			case <-deadline:
				t.Fatal("stream did not close after unsubscribe")
			}
		}
	})
	t.Run("SubscribeSeesRemoval", func(t *testing.T) {
		srv, registry, _ := newTestServer(t, nil)
		id := runningTask(t, registry)
		client := NewClient(context.Background(), srv.URL, nil)

		updates, stop := client.Subscribe(8)
		defer stop()

		select {
		case <-updates:
		case <-time.After(2 * time.Second):
			t.Fatal("no snapshot received")
		}

		if err := client.Remove(id); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		select {
		case task := <-updates:
			if task.ID != id || !task.Removed {
				t.Errorf("expected removal of %d, got %+v", id, task)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no removal event received")
		}
	})
}
