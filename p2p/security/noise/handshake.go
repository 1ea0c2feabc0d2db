package noise

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kwilteam/kwil-p2p/core/peer"
)

// maxFrameLen is the largest Noise wire frame, per spec.md §4.3/§6: each
// handshake message and each post-handshake frame is prefixed by a
// 2-byte big-endian length and must fit within it.
const maxFrameLen = 65535

// handshakeResult is everything the caller needs to build the two
// transport-phase AEAD directions and authenticate the remote peer.
type handshakeResult struct {
	remoteID     peer.ID
	remotePubKey peer.PublicKey
	sendCipher   cipherState
	recvCipher   cipherState
}

// runHandshake performs the three-message Noise XX handshake over rw,
// authenticating with local and proving possession of local.Priv.
func runHandshake(rw io.ReadWriter, local peer.KeyPair, initiator bool) (*handshakeResult, error) {
	s, err := generateKeypair25519(rand.Read)
	if err != nil {
		return nil, fmt.Errorf("%w: generating static keypair: %v", ErrHandshakeFailure, err)
	}
	ss := newSymmetricState(nil)

	if initiator {
		return runInitiator(rw, ss, s, local)
	}
	return runResponder(rw, ss, s, local)
}

func runInitiator(rw io.ReadWriter, ss *symmetricState, s keypair25519, local peer.KeyPair) (*handshakeResult, error) {
	// Message 1: -> e
	e, err := generateKeypair25519(rand.Read)
	if err != nil {
		return nil, fmt.Errorf("%w: generating ephemeral: %v", ErrHandshakeFailure, err)
	}
	ss.mixHash(e.pub[:])
	msg1 := append([]byte(nil), e.pub[:]...)
	payload1, err := ss.encryptAndHash(nil)
	if err != nil {
		return nil, err
	}
	msg1 = append(msg1, payload1...)
	if err := writeFrame(rw, msg1); err != nil {
		return nil, fmt.Errorf("%w: writing message 1: %v", ErrHandshakeFailure, err)
	}

	// Message 2: <- e, ee, s, es
	msg2, err := readFrame(rw)
	if err != nil {
		return nil, fmt.Errorf("%w: reading message 2: %v", ErrHandshakeFailure, err)
	}
	if len(msg2) < dhLen {
		return nil, fmt.Errorf("%w: message 2 too short", ErrHandshakeFailure)
	}
	var re [32]byte
	copy(re[:], msg2[:dhLen])
	ss.mixHash(re[:])
	rest := msg2[dhLen:]

	dhEE, err := dh(e.priv, re)
	if err != nil {
		return nil, err
	}
	ss.mixKey(dhEE)

	rsCipher, rest, err := consumeEncrypted(ss, rest, dhLen+16)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypting responder static key: %v", ErrHandshakeFailure, err)
	}
	var rs [32]byte
	copy(rs[:], rsCipher)

	dhES, err := dh(e.priv, rs)
	if err != nil {
		return nil, err
	}
	ss.mixKey(dhES)

	payload2, err := ss.decryptAndHash(rest)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypting message 2 payload: %v", ErrHandshakeFailure, err)
	}
	remoteHandshakePayload, err := UnmarshalNoiseHandshakePayload(payload2)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMarshalling, err)
	}
	remotePub, err := verifyIdentity(remoteHandshakePayload, rs[:])
	if err != nil {
		return nil, err
	}

	// Message 3: -> s, se
	sCipher, err := ss.encryptAndHash(s.pub[:])
	if err != nil {
		return nil, err
	}
	dhSE, err := dh(s.priv, re)
	if err != nil {
		return nil, err
	}
	ss.mixKey(dhSE)

	localPayload, err := buildSignedPayload(local, s.pub[:])
	if err != nil {
		return nil, err
	}
	encPayload3, err := ss.encryptAndHash(localPayload)
	if err != nil {
		return nil, err
	}
	msg3 := append(sCipher, encPayload3...)
	if err := writeFrame(rw, msg3); err != nil {
		return nil, fmt.Errorf("%w: writing message 3: %v", ErrHandshakeFailure, err)
	}

	remoteID, err := peer.FromPublicKey(remotePub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailure, err)
	}

	k1, k2 := ss.split()
	res := &handshakeResult{remoteID: remoteID, remotePubKey: remotePub}
	res.sendCipher.initializeKey(k1[:])
	res.recvCipher.initializeKey(k2[:])
	return res, nil
}

func runResponder(rw io.ReadWriter, ss *symmetricState, s keypair25519, local peer.KeyPair) (*handshakeResult, error) {
	// Message 1: <- e
	msg1, err := readFrame(rw)
	if err != nil {
		return nil, fmt.Errorf("%w: reading message 1: %v", ErrHandshakeFailure, err)
	}
	if len(msg1) < dhLen {
		return nil, fmt.Errorf("%w: message 1 too short", ErrHandshakeFailure)
	}
	var re [32]byte
	copy(re[:], msg1[:dhLen])
	ss.mixHash(re[:])
	if _, err := ss.decryptAndHash(msg1[dhLen:]); err != nil {
		return nil, fmt.Errorf("%w: decrypting message 1 payload: %v", ErrHandshakeFailure, err)
	}

	// Message 2: -> e, ee, s, es
	e, err := generateKeypair25519(rand.Read)
	if err != nil {
		return nil, fmt.Errorf("%w: generating ephemeral: %v", ErrHandshakeFailure, err)
	}
	ss.mixHash(e.pub[:])

	dhEE, err := dh(e.priv, re)
	if err != nil {
		return nil, err
	}
	ss.mixKey(dhEE)

	sCipher, err := ss.encryptAndHash(s.pub[:])
	if err != nil {
		return nil, err
	}

	dhES, err := dh(s.priv, re)
	if err != nil {
		return nil, err
	}
	ss.mixKey(dhES)

	localPayload, err := buildSignedPayload(local, s.pub[:])
	if err != nil {
		return nil, err
	}
	encPayload2, err := ss.encryptAndHash(localPayload)
	if err != nil {
		return nil, err
	}
	msg2 := append(append([]byte(nil), e.pub[:]...), sCipher...)
	msg2 = append(msg2, encPayload2...)
	if err := writeFrame(rw, msg2); err != nil {
		return nil, fmt.Errorf("%w: writing message 2: %v", ErrHandshakeFailure, err)
	}

	// Message 3: <- s, se
	msg3, err := readFrame(rw)
	if err != nil {
		return nil, fmt.Errorf("%w: reading message 3: %v", ErrHandshakeFailure, err)
	}
	rsCipher, rest, err := consumeEncrypted(ss, msg3, dhLen+16)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypting initiator static key: %v", ErrHandshakeFailure, err)
	}
	var rs [32]byte
	copy(rs[:], rsCipher)

	dhSE, err := dh(e.priv, rs)
	if err != nil {
		return nil, err
	}
	ss.mixKey(dhSE)

	payload3, err := ss.decryptAndHash(rest)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypting message 3 payload: %v", ErrHandshakeFailure, err)
	}
	remoteHandshakePayload, err := UnmarshalNoiseHandshakePayload(payload3)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMarshalling, err)
	}
	remotePub, err := verifyIdentity(remoteHandshakePayload, rs[:])
	if err != nil {
		return nil, err
	}

	remoteID, err := peer.FromPublicKey(remotePub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailure, err)
	}

	// Responder's send/recv are mirrored relative to the initiator's split().
	k1, k2 := ss.split()
	res := &handshakeResult{remoteID: remoteID, remotePubKey: remotePub}
	res.sendCipher.initializeKey(k2[:])
	res.recvCipher.initializeKey(k1[:])
	return res, nil
}

func buildSignedPayload(local peer.KeyPair, staticPub []byte) ([]byte, error) {
	sig, err := local.Priv.Sign(signedStaticKeyMessage(staticPub))
	if err != nil {
		return nil, fmt.Errorf("%w: signing static key: %v", ErrHandshakeFailure, err)
	}
	payload := NoiseHandshakePayload{
		IdentityKey: local.Pub.Marshal(),
		IdentitySig: sig,
	}
	return payload.Marshal(), nil
}

// verifyIdentity reconstructs the signed byte string and checks the
// signature with the claimed identity key, per spec.md §4.3. Failure is
// a fatal authentication error (spec.md §8 property 8 / scenario S4).
func verifyIdentity(payload NoiseHandshakePayload, staticPub []byte) (peer.PublicKey, error) {
	pub, err := peer.UnmarshalPublicKey(payload.IdentityKey)
	if err != nil {
		return peer.PublicKey{}, fmt.Errorf("%w: %v", ErrMarshalling, err)
	}
	if err := pub.Verify(signedStaticKeyMessage(staticPub), payload.IdentitySig); err != nil {
		return peer.PublicKey{}, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	return pub, nil
}

func consumeEncrypted(ss *symmetricState, buf []byte, n int) (plain, rest []byte, err error) {
	if len(buf) < n {
		return nil, nil, fmt.Errorf("buffer too short: need %d, have %d", n, len(buf))
	}
	plain, err = ss.decryptAndHash(buf[:n])
	if err != nil {
		return nil, nil, err
	}
	return plain, buf[n:], nil
}

func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxFrameLen {
		return ErrFrameTooLarge
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
