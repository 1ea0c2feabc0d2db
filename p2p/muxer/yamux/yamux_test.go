package yamux

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newSessionPair(t *testing.T) (*Session, *Session) {
	t.Helper()
	c1, c2 := net.Pipe()
	t.Cleanup(func() { c1.Close(); c2.Close() })
	return NewSession(c1, true), NewSession(c2, false)
}

// TestStreamEcho covers spec.md §8 scenario S1's multiplexing half: one
// stream can carry request/response traffic end to end.
func TestStreamEcho(t *testing.T) {
	client, server := newSessionPair(t)

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		st, err := server.AcceptStream()
		require.NoError(t, err)
		buf := make([]byte, 5)
		_, err = io.ReadFull(st, buf)
		require.NoError(t, err)
		require.Equal(t, "hello", string(buf))
		_, err = st.Write([]byte("world"))
		require.NoError(t, err)
	}()

	cs, err := client.OpenStream()
	require.NoError(t, err)
	_, err = cs.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 5)
	_, err = io.ReadFull(cs, buf)
	require.NoError(t, err)
	require.Equal(t, "world", string(buf))

	<-serverDone
}

// TestStreamIDParity covers spec.md §8 property: initiator-allocated
// stream IDs are odd, responder-allocated IDs are even.
func TestStreamIDParity(t *testing.T) {
	client, server := newSessionPair(t)
	s1, err := client.OpenStream()
	require.NoError(t, err)
	s2, err := client.OpenStream()
	require.NoError(t, err)
	require.Equal(t, uint32(1), s1.ID())
	require.Equal(t, uint32(3), s2.ID())
	s3, err := server.OpenStream()
	require.NoError(t, err)
	require.Equal(t, uint32(2), s3.ID())
}

// TestWindowSaturation is scenario S3: a writer larger than the initial
// window must block until the reader drains and the window is restored,
// rather than being dropped.
func TestWindowSaturation(t *testing.T) {
	client, server := newSessionPair(t)

	payload := make([]byte, initialStreamWindow+1024)
	for i := range payload {
		payload[i] = byte(i)
	}

	serverDone := make(chan []byte, 1)
	go func() {
		st, err := server.AcceptStream()
		require.NoError(t, err)
		buf := make([]byte, len(payload))
		_, err = io.ReadFull(st, buf)
		require.NoError(t, err)
		serverDone <- buf
	}()

	cs, err := client.OpenStream()
	require.NoError(t, err)
	cs.SetWriteDeadline(time.Now().Add(5 * time.Second))

	writeDone := make(chan error, 1)
	go func() {
		_, werr := cs.Write(payload)
		writeDone <- werr
	}()

	select {
	case got := <-serverDone:
		require.Equal(t, payload, got)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for full payload")
	}
	require.NoError(t, <-writeDone)
}

// TestStreamGracefulClose covers a FIN reaching the peer as a clean EOF
// after any buffered data has been delivered.
func TestStreamGracefulClose(t *testing.T) {
	client, server := newSessionPair(t)

	serverGotStream := make(chan *Stream, 1)
	go func() {
		st, err := server.AcceptStream()
		require.NoError(t, err)
		serverGotStream <- st
	}()

	cs, err := client.OpenStream()
	require.NoError(t, err)
	_, err = cs.Write([]byte("x"))
	require.NoError(t, err)

	ss := <-serverGotStream
	require.NoError(t, cs.CloseWrite()) // graceful FIN

	buf := make([]byte, 16)
	n, err := ss.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "x", string(buf[:n]))
	_, err = ss.Read(buf)
	require.ErrorIs(t, err, io.EOF)
}
