package server

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/avkviring/cheetah-relay/internal/channel"
	"github.com/avkviring/cheetah-relay/internal/codec"
	"github.com/avkviring/cheetah-relay/internal/frame"
	"github.com/avkviring/cheetah-relay/internal/metrics"
	"github.com/avkviring/cheetah-relay/internal/objectid"
	"github.com/avkviring/cheetah-relay/internal/protocol"
	"github.com/avkviring/cheetah-relay/internal/reliable"
	"github.com/avkviring/cheetah-relay/internal/room"
	"github.com/avkviring/cheetah-relay/pkg/logger"
)

// TickInterval is how often each room flushes pending out-commands, acks,
// and retransmits even absent new input.
const TickInterval = 50 * time.Millisecond

// roomJobQueueSize bounds how many pending jobs a room's worker may
// queue. When it is full, a new datagram job is dropped rather than
// blocking; AddMember, RemoveMember and RoomStats wait for queue space.
const roomJobQueueSize = 256

// ErrUnknownRoom is returned by operations naming a room with no
// running worker.
var ErrUnknownRoom = errors.New("server: unknown room")

// roomJob is one unit of work run on a room's own worker goroutine.
type roomJob func(*RoomRuntime)

// roomWorker owns one RoomRuntime exclusively: every read or mutation
// of its Room or Peers happens inside run, on this worker's single
// goroutine, so RoomRuntime never needs its own lock.
type roomWorker struct {
	rt   *RoomRuntime
	jobs chan roomJob
	stop chan struct{}
}

func newRoomWorker(rt *RoomRuntime) *roomWorker {
	return &roomWorker{rt: rt, jobs: make(chan roomJob, roomJobQueueSize), stop: make(chan struct{})}
}

// Server owns the UDP socket and the room table, dispatching inbound
// datagrams to the room named by their routing header and relaying each
// room's outbound datagrams back out. Each room's state is only ever
// touched by that room's own worker goroutine (see roomWorker); Server
// itself only ever hands that goroutine jobs to run.
type Server struct {
	conn *net.UDPConn

	mu      sync.RWMutex
	rooms   map[room.ID]*RoomRuntime
	workers map[room.ID]*roomWorker
	addrs   map[room.ID]map[objectid.MemberID]*net.UDPAddr

	running bool

	// Metrics is optional; nil leaves instrumentation disabled.
	Metrics *metrics.Metrics
}

// Listen binds addr and returns a Server ready to Run.
func Listen(addr *net.UDPAddr) (*Server, error) {
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		conn:    conn,
		rooms:   make(map[room.ID]*RoomRuntime),
		workers: make(map[room.ID]*roomWorker),
		addrs:   make(map[room.ID]map[objectid.MemberID]*net.UDPAddr),
	}, nil
}

// CreateRoom registers a new room runtime and starts its worker
// goroutine. The returned RoomRuntime is a handle for callers that
// merely want to confirm the room exists; its methods must not be
// called directly from outside this package — use AddMember,
// RemoveMember, and RoomStats, which dispatch onto the room's worker.
func (s *Server) CreateRoom(id room.ID) *RoomRuntime {
	s.mu.Lock()
	rt := NewRoomRuntime(id)
	s.rooms[id] = rt
	s.addrs[id] = make(map[objectid.MemberID]*net.UDPAddr)
	w := newRoomWorker(rt)
	s.workers[id] = w
	if s.Metrics != nil {
		s.Metrics.RoomsActive.Set(float64(len(s.rooms)))
	}
	s.mu.Unlock()

	go s.runRoomWorker(id, w)
	return rt
}

// DeleteRoom stops a room's worker and removes it; its members are
// implicitly disconnected.
func (s *Server) DeleteRoom(id room.ID) {
	s.mu.Lock()
	w, ok := s.workers[id]
	delete(s.rooms, id)
	delete(s.workers, id)
	delete(s.addrs, id)
	if s.Metrics != nil {
		s.Metrics.RoomsActive.Set(float64(len(s.rooms)))
	}
	s.mu.Unlock()

	if ok {
		close(w.stop)
	}
}

func (s *Server) worker(id room.ID) (*roomWorker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[id]
	return w, ok
}

// AddMember registers a connecting member's room and transport state,
// run on id's own worker goroutine so it can never race a concurrent
// datagram or tick for that room.
func (s *Server) AddMember(id room.ID, memberID objectid.MemberID, key [codec.KeySize]byte, groups objectid.AccessGroups, super bool, now time.Time) (*protocol.Peer, error) {
	w, ok := s.worker(id)
	if !ok {
		return nil, ErrUnknownRoom
	}
	type result struct {
		peer *protocol.Peer
		err  error
	}
	res := make(chan result, 1)
	w.jobs <- func(rt *RoomRuntime) {
		peer, err := rt.AddMember(memberID, key, groups, super, now)
		res <- result{peer, err}
	}
	r := <-res
	return r.peer, r.err
}

// RemoveMember disconnects a member, run on id's own worker goroutine.
func (s *Server) RemoveMember(id room.ID, memberID objectid.MemberID) error {
	w, ok := s.worker(id)
	if !ok {
		return ErrUnknownRoom
	}
	done := make(chan struct{})
	w.jobs <- func(rt *RoomRuntime) {
		rt.RemoveMember(memberID)
		close(done)
	}
	<-done
	return nil
}

// RoomStats reports live member/object counts for id, computed on the
// room's own worker goroutine so the read never races with room
// execution.
func (s *Server) RoomStats(id room.ID) (members, objects int, err error) {
	w, ok := s.worker(id)
	if !ok {
		return 0, 0, ErrUnknownRoom
	}
	type result struct{ members, objects int }
	res := make(chan result, 1)
	w.jobs <- func(rt *RoomRuntime) {
		n := 0
		rt.Room.Objects.Range(func(*room.GameObject) bool {
			n++
			return true
		})
		res <- result{members: len(rt.Room.Members), objects: n}
	}
	r := <-res
	return r.members, r.objects, nil
}

// Run starts the receive loop; it blocks until the socket is closed.
// Each room's ticking happens inside its own worker goroutine, started
// by CreateRoom, not here.
func (s *Server) Run() error {
	s.running = true
	return s.listen()
}

func (s *Server) listen() error {
	buf := make([]byte, frame.MaxFrameSize+8)
	for s.running {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if s.running {
				logger.Error("udp read error: %v", err)
			}
			continue
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		go s.handleDatagram(datagram, addr)
	}
	return nil
}

// handleDatagram only peeks the routing header (no decryption, no room
// state touched) and hands the rest of the work to the named room's
// worker goroutine as a job, so concurrent datagrams for the same room
// — or a datagram racing that room's tick — can never both touch its
// RoomRuntime at once.
func (s *Server) handleDatagram(datagram []byte, addr *net.UDPAddr) {
	_, wire, ok := protocol.DecodeDatagram(datagram)
	if !ok {
		return
	}
	memberID, roomID, ok := frame.PeekRouting(wire)
	if !ok {
		return
	}

	w, ok := s.worker(room.ID(roomID))
	if !ok {
		return
	}

	s.mu.Lock()
	if addrs, ok := s.addrs[room.ID(roomID)]; ok {
		addrs[objectid.MemberID(memberID)] = addr
	}
	s.mu.Unlock()

	now := time.Now()
	job := func(rt *RoomRuntime) {
		out, err := rt.HandleDatagram(objectid.MemberID(memberID), datagram, now)
		if err != nil {
			if s.Metrics != nil {
				s.Metrics.RecordDrop("protocol_error")
			}
			logger.Warn("room %d member %d: %v", roomID, memberID, err)
			if errors.Is(err, channel.ErrReorderBufferFull) || errors.Is(err, reliable.ErrTooOldFrame) {
				rt.RemoveMember(objectid.MemberID(memberID))
			}
			return
		}
		if s.Metrics != nil {
			s.Metrics.FramesReceived.Inc()
		}
		s.sendAll(room.ID(roomID), out)
	}

	select {
	case w.jobs <- job:
	default:
		if s.Metrics != nil {
			s.Metrics.RecordDrop("room_queue_full")
		}
		logger.Warn("room %d: worker queue full, dropping datagram from member %d", roomID, memberID)
	}
}

// runRoomWorker is the only goroutine that ever touches w.rt. It
// interleaves queued jobs (inbound datagrams, membership changes) with
// its own periodic tick, which flushes acks, retransmits, and keepalive
// headers even absent new input.
func (s *Server) runRoomWorker(id room.ID, w *roomWorker) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case job := <-w.jobs:
			job(w.rt)
		case now := <-ticker.C:
			out, err := w.rt.Tick(now)
			if err != nil {
				logger.Error("room %d tick: %v", id, err)
				continue
			}
			s.sendAll(id, out)
		}
	}
}

func (s *Server) sendAll(id room.ID, out map[objectid.MemberID][][]byte) {
	s.mu.RLock()
	addrs := s.addrs[id]
	s.mu.RUnlock()
	for memberID, datagrams := range out {
		addr, ok := addrs[memberID]
		if !ok {
			continue
		}
		for _, datagram := range datagrams {
			if _, err := s.conn.WriteToUDP(datagram, addr); err != nil {
				logger.Error("write to %s: %v", addr, err)
				continue
			}
			if s.Metrics != nil {
				s.Metrics.FramesSent.Inc()
			}
		}
	}
}

// Stop closes the socket and every room's worker.
func (s *Server) Stop() {
	s.running = false
	if s.conn != nil {
		s.conn.Close()
	}

	s.mu.Lock()
	workers := make([]*roomWorker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()
	for _, w := range workers {
		close(w.stop)
	}
}
