package main

import (
	"errors"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	stop chan struct{}
	sent chan struct{}
}

func newFakeServer() *fakeServer {
	return &fakeServer{stop: make(chan struct{}), sent: make(chan struct{})}
}

// Start behaves like http.Server: it returns ErrServerClosed once shut down.
func (s *fakeServer) Start(errChannel chan<- error) {
	<-s.stop
	errChannel <- http.ErrServerClosed
	close(s.sent)
}

func (s *fakeServer) ShutdownGracefully(timeout time.Duration) {
	close(s.stop)
}

func TestRun_SignalThenServerClosed(t *testing.T) {
	srv := newFakeServer()
	signals := make(chan os.Signal, 1)
	signals <- syscall.SIGTERM

	err := run(srv, signals, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminated")

	select {
	case <-srv.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("Start blocked reporting ErrServerClosed after shutdown")
	}
}

type failingServer struct {
	shutdown bool
}

func (s *failingServer) Start(errChannel chan<- error) {
	errChannel <- errors.New("listen tcp :8080: address already in use")
}

func (s *failingServer) ShutdownGracefully(timeout time.Duration) {
	s.shutdown = true
}

func TestRun_ServerFailure(t *testing.T) {
	srv := &failingServer{}

	err := run(srv, make(chan os.Signal), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
	assert.True(t, srv.shutdown)
}
