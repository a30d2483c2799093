package device

import (
	"io"
	"sync"
	"time"

	"spigot/protocol"
)

// Server pumps frames between a connection and a device: inbound bytes
// feed the transport, handlers run against the controller, and queued
// responses flush back out after every dispatch. With FreeRun set, a
// background ticker advances the controller between commands and a
// task list drives periodic status broadcasts.
type Server struct {
	dev  *Device
	conn io.ReadWriteCloser

	// mu serializes controller access: command dispatch in the read
	// loop and the free-run ticker never overlap.
	mu  sync.Mutex
	out *protocol.ScratchOutput
	tr  *protocol.Transport

	tasks TaskList

	stopChan  chan struct{}
	doneChan  chan struct{}
	closeOnce sync.Once
}

// NewServer wires a device to a connection.
func NewServer(dev *Device, conn io.ReadWriteCloser) *Server {
	s := &Server{
		dev:      dev,
		conn:     conn,
		out:      protocol.NewScratchOutput(),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	s.tr = protocol.NewTransport(s.out, dev.Dispatch)
	s.tr.SetFlushCallback(s.flushLocked)
	dev.Attach(s.tr)
	return s
}

// Transport returns the device-side transport, mainly for tests.
func (s *Server) Transport() *protocol.Transport {
	return s.tr
}

// Run blocks, serving the connection until it closes or Close is
// called.
func (s *Server) Run() error {
	defer close(s.doneChan)
	defer s.Close()

	if s.dev.cfg.FreeRun {
		s.startTicker()
	}

	ring := protocol.NewRingBuffer(512)
	buf := make([]byte, 256)

	for {
		select {
		case <-s.stopChan:
			return nil
		default:
		}

		n, err := s.conn.Read(buf)
		if n > 0 {
			ring.Write(buf[:n])
			s.mu.Lock()
			s.tr.Receive(ring)
			s.flushLocked()
			s.mu.Unlock()
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			select {
			case <-s.stopChan:
				return nil
			default:
				return err
			}
		}
	}
}

// Start runs the server in the background. The returned channel closes
// when the loop exits.
func (s *Server) Start() <-chan struct{} {
	go func() { _ = s.Run() }()
	return s.doneChan
}

// Close stops the loop and closes the connection. Closing the
// connection first unblocks a pending Read.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopChan)
		err = s.conn.Close()
	})
	return err
}

// flushLocked writes everything queued in the output buffer to the
// connection. Callers hold s.mu; the transport's flush callback runs
// inside Receive, which the read loop already serializes.
func (s *Server) flushLocked() {
	data := s.out.Result()
	if len(data) == 0 {
		return
	}
	_, _ = s.conn.Write(data)
	s.out.Reset()
}

// startTicker free-runs the controller at the configured rate. Each
// wake advances one tick, dispatches due tasks and flushes whatever
// they queued.
func (s *Server) startTicker() {
	interval := time.Second / time.Duration(s.dev.cfg.TickHz)
	if interval <= 0 {
		interval = time.Microsecond
	}

	if s.dev.cfg.StatusEvery > 0 {
		s.scheduleStatusBroadcast()
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.mu.Lock()
				s.dev.ctrl.Tick()
				s.tasks.Dispatch(uint64(s.dev.ctrl.Ticks()))
				s.flushLocked()
				s.mu.Unlock()
			}
		}
	}()
}

// scheduleStatusBroadcast queues the recurring status frame task.
func (s *Server) scheduleStatusBroadcast() {
	every := uint64(s.dev.cfg.StatusEvery)
	task := &Task{WakeTick: every}
	task.Run = func(t *Task) uint8 {
		data := []byte{}
		_ = s.dev.handleStatusPoll(&data)
		t.WakeTick += every
		return TaskReschedule
	}
	s.tasks.Schedule(task)
}
