package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"proxima/internal/endpoint"
	"proxima/internal/transport"
)

// Service is an endpoint with fake collaborators served on a temp socket.
type Service struct {
	Path      string
	Endpoint  *endpoint.Endpoint
	Server    *transport.Server
	Interface *FakeInterface
	Daemon    *FakeDaemon
	Neighbors *FakeNeighbors
}

// StartService runs an endpoint whose neighbor source reports addresses.
// Callers may set gates on the fakes before issuing requests.
func StartService(t testing.TB, neighbors *FakeNeighbors) *Service {
	t.Helper()
	if neighbors == nil {
		neighbors = NewFakeNeighbors()
	}
	svc := &Service{
		Path:      filepath.Join(t.TempDir(), "p.sock"),
		Interface: &FakeInterface{},
		Daemon:    &FakeDaemon{},
		Neighbors: neighbors,
	}
	ep, err := endpoint.New(context.Background(), endpoint.Options{
		Interface: svc.Interface,
		Daemon:    svc.Daemon,
		Neighbors: svc.Neighbors,
	})
	if err != nil {
		t.Fatalf("endpoint.New: %v", err)
	}
	srv, err := transport.NewServer(context.Background(), svc.Path, ep, nil)
	if err != nil {
		ep.Close()
		t.Fatalf("transport.NewServer: %v", err)
	}
	srv.Serve()
	svc.Endpoint = ep
	svc.Server = srv
	t.Cleanup(svc.Stop)
	return svc
}

// Stop closes the server, severing every client, then the endpoint. It is
// safe to call more than once.
func (s *Service) Stop() {
	s.Server.Close()
	s.Endpoint.Close()
}
