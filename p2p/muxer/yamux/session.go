package yamux

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// defaultMaxStreams is the per-Session concurrent stream cap of
// spec.md §4.4. Once it is reached, OpenStream fails with
// ErrTooManyStreams and an inbound SYN is answered with RST.
const defaultMaxStreams = 1000

// maxAggregateWindow bounds the total flow-control credit a Session
// will have outstanding across all streams at once (spec.md §4.4's 48
// MiB aggregate cap), guarding against a peer opening many streams each
// holding the default window open to exhaust memory.
const maxAggregateWindow = 48 * 1024 * 1024

const (
	keepaliveInterval = 30 * time.Second
	keepaliveMisses   = 2
)

// Session is a Yamux MuxedConnection: one underlying net.Conn (normally
// a noise.SecureConn) multiplexing many Streams, per spec.md §4.4.
type Session struct {
	conn      net.Conn
	initiator bool

	writeMu sync.Mutex

	mu          sync.Mutex
	cond        sync.Cond
	streams     map[uint32]*Stream
	nextID      uint32
	err         error
	goAwaySent  bool
	goAwayRecvd bool
	acceptQ     []*Stream
	windowUsed  uint32

	pingMu      sync.Mutex
	pendingPing chan struct{}
	missedPings int

	closeOnce sync.Once
}

// NewSession wraps conn as a Yamux session. initiator controls stream-ID
// parity: the dialing side allocates odd IDs, the accepting side even,
// per spec.md §4.4.
func NewSession(conn net.Conn, initiator bool) *Session {
	s := &Session{
		conn:      conn,
		initiator: initiator,
		streams:   make(map[uint32]*Stream),
	}
	s.cond.L = &s.mu
	if initiator {
		s.nextID = 1
	} else {
		s.nextID = 2
	}
	go s.readLoop()
	go s.keepaliveLoop()
	return s
}

func (s *Session) setErr(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.err = err
	for _, st := range s.streams {
		st.cond.L.Lock()
		st.setErrLocked(err, stateReset)
		st.cond.L.Unlock()
	}
	s.conn.Close()
	s.cond.Broadcast()
	return err
}

// OpenStream allocates a new outbound Stream. No SYN is sent until the
// first Write, matching the lazy-open behavior documented for the
// underlying duplex-stream pattern this package is grounded on.
func (s *Session) OpenStream() (*Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.goAwaySent || s.goAwayRecvd {
		return nil, ErrGoAway
	}
	if len(s.streams) >= defaultMaxStreams {
		return nil, ErrTooManyStreams
	}
	if s.windowUsed+2*initialStreamWindow > maxAggregateWindow {
		return nil, fmt.Errorf("%w: aggregate flow-control window exhausted", ErrTooManyStreams)
	}
	id := s.nextID
	s.nextID += 2
	st := newStream(s, id, stateIdle)
	s.streams[id] = st
	s.windowUsed += 2 * initialStreamWindow
	return st, nil
}

// AcceptStream blocks until a peer-initiated Stream is available.
func (s *Session) AcceptStream() (*Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if len(s.acceptQ) > 0 {
			st := s.acceptQ[0]
			s.acceptQ = s.acceptQ[1:]
			return st, nil
		}
		if s.err != nil {
			return nil, s.err
		}
		if s.goAwayRecvd {
			return nil, ErrGoAway
		}
		s.cond.Wait()
	}
}

// Close gracefully shuts down the session: it sends GO_AWAY, then
// closes the underlying connection.
func (s *Session) Close() error {
	var retErr error
	s.closeOnce.Do(func() {
		s.sendGoAway(goAwayNormal)
		retErr = s.setErr(ErrSessionShutdown)
		if retErr == ErrSessionShutdown {
			retErr = nil
		}
	})
	return retErr
}

func (s *Session) sendGoAway(code uint32) {
	s.mu.Lock()
	if s.goAwaySent {
		s.mu.Unlock()
		return
	}
	s.goAwaySent = true
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = writeFrame(s.conn, header{typ: typeGoAway, length: code}, nil)
}

func (s *Session) forgetStream(id uint32) {
	s.mu.Lock()
	if _, ok := s.streams[id]; ok {
		delete(s.streams, id)
		s.windowUsed -= 2 * initialStreamWindow
	}
	s.mu.Unlock()
}

func (s *Session) sendData(id uint32, payload []byte, f flags) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writeFrame(s.conn, header{typ: typeData, flags: f, streamID: id, length: uint32(len(payload))}, payload)
}

func (s *Session) sendWindowUpdate(id uint32, delta uint32, f flags) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writeFrame(s.conn, header{typ: typeWindowUpdate, flags: f, streamID: id, length: delta}, nil)
}

func (s *Session) sendPing(f flags, value uint32) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writeFrame(s.conn, header{typ: typePing, flags: f, length: value}, nil)
}

// readLoop dispatches incoming frames to their Stream, or handles
// session-level frames (PING, GO_AWAY) directly.
func (s *Session) readLoop() {
	for {
		h, err := readHeader(s.conn)
		if err != nil {
			s.setErr(err)
			return
		}
		switch h.typ {
		case typePing:
			if err := s.handlePing(h); err != nil {
				s.setErr(err)
				return
			}
		case typeGoAway:
			s.mu.Lock()
			s.goAwayRecvd = true
			s.cond.Broadcast()
			s.mu.Unlock()
		case typeData:
			if err := s.handleData(h); err != nil {
				s.setErr(err)
				return
			}
		case typeWindowUpdate:
			s.handleWindowUpdate(h)
		default:
			s.setErr(fmt.Errorf("%w: unknown frame type %d", ErrProtocolError, h.typ))
			return
		}
	}
}

func (s *Session) handlePing(h header) error {
	if h.flags&flagACK != 0 {
		s.pingMu.Lock()
		if s.pendingPing != nil {
			close(s.pendingPing)
			s.pendingPing = nil
		}
		s.missedPings = 0
		s.pingMu.Unlock()
		return nil
	}
	return s.sendPing(flagACK, h.length)
}

func (s *Session) handleData(h header) error {
	payload := make([]byte, h.length)
	if h.length > 0 {
		if _, err := io.ReadFull(s.conn, payload); err != nil {
			return err
		}
	}
	st, isNew, err := s.streamFor(h)
	if err != nil {
		return err
	}
	if st == nil {
		return nil // frame for an already-closed stream; discard
	}
	if isNew {
		s.mu.Lock()
		s.acceptQ = append(s.acceptQ, st)
		s.cond.Broadcast()
		s.mu.Unlock()
	}
	if h.flags&flagRST != 0 {
		st.handleReset()
		s.forgetStream(h.streamID)
		return nil
	}
	return st.handleData(payload, h.flags&flagSYN != 0, h.flags&flagACK != 0, h.flags&flagFIN != 0)
}

func (s *Session) handleWindowUpdate(h header) {
	st, isNew, err := s.streamFor(h)
	if err != nil || st == nil {
		return
	}
	if isNew {
		s.mu.Lock()
		s.acceptQ = append(s.acceptQ, st)
		s.cond.Broadcast()
		s.mu.Unlock()
	}
	if h.flags&flagRST != 0 {
		st.handleReset()
		s.forgetStream(h.streamID)
		return
	}
	st.handleWindowUpdate(h.length, h.flags&flagSYN != 0, h.flags&flagACK != 0, h.flags&flagFIN != 0)
}

// streamFor looks up the stream a data/window-update frame targets,
// creating it (as a new inbound stream, via SYN) if this is the first
// frame seen for that ID.
func (s *Session) streamFor(h header) (st *Stream, isNew bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.streams[h.streamID]; ok {
		return st, false, nil
	}
	if h.flags&flagSYN == 0 {
		return nil, false, nil // unknown, non-SYN frame: stream already closed, ignore
	}
	if len(s.streams) >= defaultMaxStreams || s.windowUsed+2*initialStreamWindow > maxAggregateWindow {
		go s.sendData(h.streamID, nil, flagRST)
		return nil, false, nil
	}
	st = newStream(s, h.streamID, stateSynReceived)
	s.streams[h.streamID] = st
	s.windowUsed += 2 * initialStreamWindow
	return st, true, nil
}

func (s *Session) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		if s.err != nil {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		ch := make(chan struct{})
		s.pingMu.Lock()
		s.pendingPing = ch
		s.pingMu.Unlock()

		if err := s.sendPing(0, uint32(time.Now().Unix())); err != nil {
			s.setErr(err)
			return
		}

		select {
		case <-ch:
		case <-time.After(keepaliveInterval):
			s.pingMu.Lock()
			s.missedPings++
			missed := s.missedPings
			s.pendingPing = nil
			s.pingMu.Unlock()
			if missed >= keepaliveMisses {
				s.setErr(ErrKeepaliveTimeout)
				return
			}
		}
	}
}
