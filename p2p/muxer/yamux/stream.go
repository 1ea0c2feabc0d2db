package yamux

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// initialStreamWindow is the default per-stream flow-control credit
// each side extends at stream open, per spec.md §4.4.
const initialStreamWindow = 256 * 1024

// streamState is the Stream lifecycle of spec.md §4.4: Idle ->
// SynSent/SynReceived -> Established -> HalfClosed{Local,Remote} ->
// Closed, with Reset reachable from any non-terminal state.
type streamState int

const (
	stateIdle streamState = iota
	stateSynSent
	stateSynReceived
	stateEstablished
	stateHalfClosedLocal  // we sent FIN: may still Read, may not Write
	stateHalfClosedRemote // peer sent FIN: may still Write, may not Read
	stateClosed
	stateReset
)

func (s streamState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateSynSent:
		return "syn-sent"
	case stateSynReceived:
		return "syn-received"
	case stateEstablished:
		return "established"
	case stateHalfClosedLocal:
		return "half-closed-local"
	case stateHalfClosedRemote:
		return "half-closed-remote"
	case stateClosed:
		return "closed"
	case stateReset:
		return "reset"
	default:
		return fmt.Sprintf("streamState(%d)", s)
	}
}

// Stream is a single multiplexed, bidirectional, flow-controlled byte
// stream over a Session. It implements net.Conn.
type Stream struct {
	sess *Session
	id   uint32

	cond  sync.Cond // guards all fields below; L is a *sync.Mutex
	state streamState
	err   error // sticky, set on Reset/session shutdown/protocol error

	recvBuf    []byte
	recvWindow uint32 // credit we have told the peer it may still send

	sendWindow uint32 // credit the peer has told us we may still send
	sendCond   sync.Cond

	rd, wd time.Time
}

func newStream(sess *Session, id uint32, state streamState) *Stream {
	s := &Stream{
		sess:       sess,
		id:         id,
		state:      state,
		recvWindow: initialStreamWindow,
		sendWindow: initialStreamWindow,
	}
	s.cond.L = new(sync.Mutex)
	s.sendCond.L = s.cond.L
	return s
}

// ID returns the stream's Yamux stream identifier.
func (s *Stream) ID() uint32 { return s.id }

// State reports the stream's current lifecycle state.
func (s *Stream) State() string {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	return s.state.String()
}

func (s *Stream) setErrLocked(err error, state streamState) {
	if s.err == nil {
		s.err = err
	}
	s.state = state
	s.cond.Broadcast()
	s.sendCond.Broadcast()
}

// handleData is called by the session's read loop when a DATA frame for
// this stream arrives.
func (s *Stream) handleData(payload []byte, syn, ack, fin bool) error {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()

	if uint32(len(payload)) > s.recvWindow {
		s.setErrLocked(fmt.Errorf("%w: peer exceeded advertised window", ErrProtocolError), stateReset)
		return ErrProtocolError
	}
	if syn && s.state == stateIdle {
		s.state = stateSynReceived
	}
	if ack && s.state == stateSynSent {
		s.state = stateEstablished
	}
	s.recvWindow -= uint32(len(payload))
	if len(payload) > 0 {
		s.recvBuf = append(s.recvBuf, payload...)
		s.cond.Broadcast()
	}
	if fin {
		if s.state == stateHalfClosedLocal {
			s.state = stateClosed
		} else if s.state != stateClosed {
			s.state = stateHalfClosedRemote
		}
		s.cond.Broadcast()
	}
	return nil
}

// handleWindowUpdate credits the peer-granted send window.
func (s *Stream) handleWindowUpdate(delta uint32, syn, ack, fin bool) {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	if syn && s.state == stateIdle {
		s.state = stateSynReceived
	}
	if ack && s.state == stateSynSent {
		s.state = stateEstablished
	}
	s.sendWindow += delta
	s.sendCond.Broadcast()
	if fin {
		if s.state == stateHalfClosedLocal {
			s.state = stateClosed
		} else if s.state != stateClosed {
			s.state = stateHalfClosedRemote
		}
		s.cond.Broadcast()
	}
}

// handleReset marks the stream reset by the peer (RST flag).
func (s *Stream) handleReset() {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.setErrLocked(ErrStreamReset, stateReset)
}

// Read implements io.Reader, blocking until data, FIN, or a sticky error.
func (s *Stream) Read(p []byte) (int, error) {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()

	if !s.rd.IsZero() {
		if !time.Now().Before(s.rd) {
			return 0, os.ErrDeadlineExceeded
		}
		timer := time.AfterFunc(time.Until(s.rd), s.cond.Broadcast)
		defer timer.Stop()
	}

	for len(s.recvBuf) == 0 && s.err == nil && s.state != stateHalfClosedRemote && s.state != stateClosed &&
		(s.rd.IsZero() || time.Now().Before(s.rd)) {
		s.cond.Wait()
	}
	if len(s.recvBuf) == 0 {
		if s.err != nil {
			if s.err == ErrStreamClosed {
				return 0, io.EOF
			}
			return 0, s.err
		}
		if s.state == stateHalfClosedRemote || s.state == stateClosed {
			return 0, io.EOF
		}
		return 0, os.ErrDeadlineExceeded
	}

	n := copy(p, s.recvBuf)
	s.recvBuf = s.recvBuf[n:]

	// Replenish the peer's credit for the bytes the application has
	// consumed, once at least half the window has been consumed, per
	// spec.md §4.4's window-update backpressure scheme.
	if consumed := initialStreamWindow - s.recvWindow - uint32(len(s.recvBuf)); consumed >= initialStreamWindow/2 {
		s.recvWindow += consumed
		go s.sess.sendWindowUpdate(s.id, consumed, 0)
	}
	return n, nil
}

// Write implements io.Writer, splitting p into window-bounded DATA
// frames and blocking for send-window credit as needed.
func (s *Stream) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		s.cond.L.Lock()
		for s.sendWindow == 0 && s.err == nil && s.state != stateHalfClosedLocal && s.state != stateClosed &&
			(s.wd.IsZero() || time.Now().Before(s.wd)) {
			s.sendCond.Wait()
		}
		if s.err != nil {
			s.cond.L.Unlock()
			return written, s.err
		}
		if s.state == stateHalfClosedLocal || s.state == stateClosed || s.state == stateReset {
			s.cond.L.Unlock()
			return written, ErrStreamClosed
		}
		if !s.wd.IsZero() && !time.Now().Before(s.wd) {
			s.cond.L.Unlock()
			return written, os.ErrDeadlineExceeded
		}

		chunk := p[written:]
		if uint32(len(chunk)) > s.sendWindow {
			chunk = chunk[:s.sendWindow]
		}
		var sendFlags flags
		switch s.state {
		case stateIdle:
			sendFlags |= flagSYN
			s.state = stateSynSent
		case stateSynReceived:
			sendFlags |= flagACK
			s.state = stateEstablished
		}
		s.sendWindow -= uint32(len(chunk))
		s.cond.L.Unlock()

		if err := s.sess.sendData(s.id, chunk, sendFlags); err != nil {
			s.cond.L.Lock()
			s.setErrLocked(err, stateReset)
			s.cond.L.Unlock()
			return written, err
		}
		written += len(chunk)
	}
	return written, nil
}

// CloseWrite sends a FIN, half-closing the stream for writing.
func (s *Stream) CloseWrite() error {
	s.cond.L.Lock()
	switch s.state {
	case stateClosed, stateReset, stateHalfClosedLocal:
		s.cond.L.Unlock()
		return nil
	}
	prev := s.state
	if prev == stateHalfClosedRemote {
		s.state = stateClosed
	} else {
		s.state = stateHalfClosedLocal
	}
	s.cond.L.Unlock()
	return s.sess.sendData(s.id, nil, flagFIN)
}

// Close ends the stream. If neither side has sent a FIN yet it resets
// the stream with RST; if a FIN has already been sent or received it
// closes gracefully, sending our own FIN first if we have not sent it.
func (s *Stream) Close() error {
	s.cond.L.Lock()
	if s.state == stateClosed || s.state == stateReset {
		s.cond.L.Unlock()
		return nil
	}
	prev := s.state
	graceful := prev == stateHalfClosedLocal || prev == stateHalfClosedRemote
	s.setErrLocked(ErrStreamClosed, stateClosed)
	s.cond.L.Unlock()
	s.sess.forgetStream(s.id)
	if graceful {
		if prev == stateHalfClosedRemote {
			return s.sess.sendData(s.id, nil, flagFIN)
		}
		return nil
	}
	return s.sess.sendData(s.id, nil, flagRST)
}

func (s *Stream) SetDeadline(t time.Time) error {
	s.SetReadDeadline(t)
	s.SetWriteDeadline(t)
	return nil
}

func (s *Stream) SetReadDeadline(t time.Time) error {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.rd = t
	s.cond.Broadcast()
	return nil
}

func (s *Stream) SetWriteDeadline(t time.Time) error {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.wd = t
	s.sendCond.Broadcast()
	return nil
}

// LocalAddr returns the underlying Session connection's local address.
func (s *Stream) LocalAddr() net.Addr { return s.sess.conn.LocalAddr() }

// RemoteAddr returns the underlying Session connection's remote address.
func (s *Stream) RemoteAddr() net.Addr { return s.sess.conn.RemoteAddr() }

var _ net.Conn = (*Stream)(nil)
