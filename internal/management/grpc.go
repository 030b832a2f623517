package management

import (
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

// HeartbeatInterval is how often this process reports its readiness to
// an external allocator.
const HeartbeatInterval = 2 * time.Second

// Server hosts the management gRPC listener. The relay exposes room and
// member lifecycle operations to its allocator over plain method calls
// on Manager from within the same process group (no protoc toolchain is
// available in this build to generate wire stubs for a remote service,
// see DESIGN.md); the gRPC server here is real and reachable, carrying
// reflection and serving as the transport a generated service would
// attach to.
type Server struct {
	manager  *Manager
	grpc     *grpc.Server
	maxRooms int
}

// NewServer builds a management gRPC server bound to manager.
func NewServer(manager *Manager, maxRooms int) *Server {
	s := grpc.NewServer()
	reflection.Register(s)
	return &Server{manager: manager, grpc: s, maxRooms: maxRooms}
}

// ListenAndServe binds addr and serves until the listener is closed.
func (s *Server) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

// RunHeartbeat calls report every HeartbeatInterval with this process's
// current readiness state, until stop is closed.
func (s *Server) RunHeartbeat(report func(ReadinessState), stop <-chan struct{}) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			report(s.manager.Probe(s.maxRooms))
		}
	}
}
