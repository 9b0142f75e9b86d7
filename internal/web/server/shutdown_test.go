package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func createTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := New(&Config{Address: "127.0.0.1:0", Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})})
	require.NoError(t, err)
	return srv
}

func TestNewGracefulShutdownDefaults(t *testing.T) {
	gs := NewGracefulShutdown(createTestServer(t), nil)

	assert.Equal(t, 30*time.Second, gs.timeout)
	assert.Equal(t, []os.Signal{syscall.SIGINT, syscall.SIGTERM}, gs.signals)
	assert.NotNil(t, gs.logger)
}

func TestNewGracefulShutdownWithConfig(t *testing.T) {
	logger := zap.NewExample()
	gs := NewGracefulShutdown(createTestServer(t), &ShutdownConfig{
		Timeout: 10 * time.Second,
		Signals: []os.Signal{syscall.SIGTERM},
		Logger:  logger,
	})

	assert.Equal(t, 10*time.Second, gs.timeout)
	assert.Len(t, gs.signals, 1)
	assert.Same(t, logger, gs.logger)
}

func TestRunStopsWithContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	gs := NewGracefulShutdown(createTestServer(t), &ShutdownConfig{
		Timeout: 5 * time.Second,
		Logger:  zap.New(core),
	})

	var mu sync.Mutex
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		gs.RegisterHook(func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, i)
			if i == 1 {
				return errors.New("flush failed")
			}
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gs.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	assert.Equal(t, []int{0, 1, 2}, order, "a failing hook does not stop the rest")
	assert.Equal(t, 1, logs.FilterMessage("shutdown hook failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("server stopped").Len())
	assert.NoError(t, gs.Wait())
}

func TestShutdownIsIdempotent(t *testing.T) {
	gs := NewGracefulShutdown(createTestServer(t), nil)

	calls := 0
	gs.RegisterHook(func(ctx context.Context) error {
		calls++
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, gs.Shutdown())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
}

func TestRunReportsListenFailure(t *testing.T) {
	srv := createTestServer(t)
	require.NoError(t, srv.Listen())
	defer srv.Close()

	taken, err := New(&Config{Address: srv.Addr(), Handler: http.NotFoundHandler()})
	require.NoError(t, err)

	err = NewGracefulShutdown(taken, nil).Run(context.Background())
	assert.Error(t, err)
}
