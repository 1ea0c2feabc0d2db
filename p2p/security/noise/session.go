package noise

import (
	"context"
	"net"
	"time"

	"github.com/kwilteam/kwil-p2p/core/peer"
)

// SecureConn is a RawConnection (net.Conn) upgraded with the Noise XX
// handshake: it carries local/remote peer identity alongside an
// authenticated, encrypted byte stream, per spec.md §3 "SecureConn
// extends RawConnection".
type SecureConn struct {
	net.Conn
	tr *transport

	localID   peer.ID
	remoteID  peer.ID
	remotePub peer.PublicKey
}

// NewSession runs the Noise XX handshake over raw and, on success,
// returns a SecureConn ready for framed, encrypted application traffic.
// If the handshake itself fails, raw is left open for the caller to
// close; if ctx ends before the handshake completes, NewSession closes
// raw to unblock the handshake and returns ctx.Err().
func NewSession(ctx context.Context, raw net.Conn, local peer.KeyPair, initiator bool) (*SecureConn, error) {
	localID, err := peer.FromPublicKey(local.Pub)
	if err != nil {
		return nil, err
	}

	type result struct {
		hr  *handshakeResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		hr, err := runHandshake(raw, local, initiator)
		done <- result{hr, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return &SecureConn{
			Conn:      raw,
			tr:        newTransport(raw, r.hr.sendCipher, r.hr.recvCipher),
			localID:   localID,
			remoteID:  r.hr.remoteID,
			remotePub: r.hr.remotePubKey,
		}, nil
	case <-ctx.Done():
		_ = raw.Close()
		<-done
		return nil, ctx.Err()
	}
}

func (s *SecureConn) Read(p []byte) (int, error)  { return s.tr.Read(p) }
func (s *SecureConn) Write(p []byte) (int, error) { return s.tr.Write(p) }

// LocalPeer returns the local side's peer ID.
func (s *SecureConn) LocalPeer() peer.ID { return s.localID }

// RemotePeer returns the authenticated remote peer ID.
func (s *SecureConn) RemotePeer() peer.ID { return s.remoteID }

// RemotePublicKey returns the remote's authenticated identity key.
func (s *SecureConn) RemotePublicKey() peer.PublicKey { return s.remotePub }

// SetDeadline, SetReadDeadline and SetWriteDeadline pass through to the
// underlying raw connection; Noise framing has no deadline state of its
// own.
func (s *SecureConn) SetDeadline(t time.Time) error      { return s.Conn.SetDeadline(t) }
func (s *SecureConn) SetReadDeadline(t time.Time) error  { return s.Conn.SetReadDeadline(t) }
func (s *SecureConn) SetWriteDeadline(t time.Time) error { return s.Conn.SetWriteDeadline(t) }

// Close closes the underlying raw connection.
func (s *SecureConn) Close() error { return s.Conn.Close() }
