package srv

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestShutdownServicesReverseOrder(t *testing.T) {
	rec := &recorder{}
	services := []Service{
		NewCleanup("db", func() error { rec.add("db"); return nil }),
		NewCleanup("bot", func() error { rec.add("bot"); return errors.New("already stopped") }),
		NewCleanup("http", func() error { rec.add("http"); return nil }),
	}

	ctx, cancel := context.WithCancel(context.Background())
	StartServices(ctx, services)
	cancel()

	done := make(chan struct{})
	go func() {
		ShutdownServices(ctx, services)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown did not finish")
	}

	assert.Equal(t, []string{"http", "bot", "db"}, rec.list())
}

func TestServiceName(t *testing.T) {
	assert.Equal(t, "db", name(NewCleanup("db", nil)))
}
