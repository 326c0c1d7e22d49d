package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/desertthunder/mpsync/internal/shared"
	tu "github.com/desertthunder/mpsync/internal/testing"
)

func TestReadSnapshotFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	tu.MustWriteFile(t, good, `{"cookies":[{"domain":"a.com","name":"x","value":"1"}]}`)
	snapshot, err := ReadSnapshotFile(good)
	if err != nil {
		t.Fatalf("ReadSnapshotFile() error = %v", err)
	}
	if len(snapshot.Cookies) != 1 || snapshot.LocalStorage == nil {
		t.Errorf("unexpected snapshot %+v", snapshot)
	}

	bad := filepath.Join(dir, "bad.json")
	tu.MustWriteFile(t, bad, `{`)
	if _, err := ReadSnapshotFile(bad); !errors.Is(err, shared.ErrInvalidAuthBlob) {
		t.Errorf("expected ErrInvalidAuthBlob, got %v", err)
	}

	if _, err := ReadSnapshotFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSnapshotWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	tu.MustWriteFile(t, path, `{"cookies":[]}`)

	store := tu.NewMemoryAuthStore()
	store.Blobs["acc"] = ""
	pusher := &mockPusher{}
	syncer := NewAuthSyncer(NewSnapshotStore(store, nil), pusher, nil)
	scheduler := NewSyncScheduler(20*time.Millisecond, nil)
	watcher := NewSnapshotWatcher(path, "acc", syncer, scheduler, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	tu.MustWriteFile(t, path, `{"cookies":[{"domain":"mp.weixin.qq.com","name":"slave_sid","value":"new"}]}`)

	deadline := time.Now().Add(3 * time.Second)
	for pusher.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if pusher.count() == 0 {
		t.Fatal("expected a sync after the snapshot file changed")
	}
	if got := pusher.calls[len(pusher.calls)-1].Cookies.Added; len(got) != 1 || got[0].Value != "new" {
		t.Errorf("unexpected pushed diff %+v", got)
	}
}
