package bridge

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	HandshakeNonceSize = 16
	noncePrefixSize    = 4
)

var ErrReplay = errors.New("replay detected")

// KeyMaterial holds one AEAD key and nonce prefix per direction. The dialer
// seals with the dial key; the listener seals with the listen key.
type KeyMaterial struct {
	DialKey           [chacha20poly1305.KeySize]byte
	ListenKey         [chacha20poly1305.KeySize]byte
	DialNoncePrefix   [noncePrefixSize]byte
	ListenNoncePrefix [noncePrefixSize]byte
}

func NewHandshakeNonce() ([]byte, error) {
	b := make([]byte, HandshakeNonceSize)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("handshake nonce: %w", err)
	}
	return b, nil
}

// DeriveKeys expands the pre-shared key with both handshake nonces as salt.
// Both peers call it with the same argument order, dialer nonce first.
func DeriveKeys(psk string, dialNonce, listenNonce []byte) (KeyMaterial, error) {
	if psk == "" {
		return KeyMaterial{}, errors.New("pre-shared key is empty")
	}
	if len(dialNonce) != HandshakeNonceSize || len(listenNonce) != HandshakeNonceSize {
		return KeyMaterial{}, fmt.Errorf("nonce must be %d bytes", HandshakeNonceSize)
	}
	salt := append(append([]byte{}, dialNonce...), listenNonce...)
	r := hkdf.New(sha256.New, []byte(psk), salt, []byte("tundev-bridge-v1"))
	var km KeyMaterial
	for _, part := range [][]byte{
		km.DialKey[:], km.ListenKey[:],
		km.DialNoncePrefix[:], km.ListenNoncePrefix[:],
	} {
		if _, err := io.ReadFull(r, part); err != nil {
			return KeyMaterial{}, fmt.Errorf("hkdf: %w", err)
		}
	}
	return km, nil
}

// CipherState seals or opens frames for one direction. Receive-side states
// carry a replay window; send-side states carry the counter.
type CipherState struct {
	aead        cipher.AEAD
	noncePrefix [noncePrefixSize]byte
	sendCounter uint64
	replay      *ReplayWindow
}

func NewCipherState(key [chacha20poly1305.KeySize]byte, noncePrefix [noncePrefixSize]byte, replay *ReplayWindow) (*CipherState, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("aead: %w", err)
	}
	return &CipherState{aead: aead, noncePrefix: noncePrefix, replay: replay}, nil
}

// CipherStates returns the send and receive states for one side of the
// link. The dialer seals with the dial key and opens with the listen key;
// the listener is the mirror image. replay guards the receive direction.
func (km KeyMaterial) CipherStates(dialer bool, replay *ReplayWindow) (send, recv *CipherState, err error) {
	sendKey, sendPrefix := km.ListenKey, km.ListenNoncePrefix
	recvKey, recvPrefix := km.DialKey, km.DialNoncePrefix
	if dialer {
		sendKey, recvKey = recvKey, sendKey
		sendPrefix, recvPrefix = recvPrefix, sendPrefix
	}
	send, err = NewCipherState(sendKey, sendPrefix, nil)
	if err != nil {
		return nil, nil, err
	}
	recv, err = NewCipherState(recvKey, recvPrefix, replay)
	if err != nil {
		return nil, nil, err
	}
	return send, recv, nil
}

func (c *CipherState) NextCounter() uint64 {
	return atomic.AddUint64(&c.sendCounter, 1) - 1
}

func (c *CipherState) nonce(counter uint64) [chacha20poly1305.NonceSize]byte {
	var nonce [chacha20poly1305.NonceSize]byte
	copy(nonce[:noncePrefixSize], c.noncePrefix[:])
	binary.BigEndian.PutUint64(nonce[noncePrefixSize:], counter)
	return nonce
}

func (c *CipherState) Seal(dst []byte, counter uint64, aad, plaintext []byte) []byte {
	nonce := c.nonce(counter)
	return c.aead.Seal(dst, nonce[:], plaintext, aad)
}

func (c *CipherState) Open(dst []byte, counter uint64, aad, ciphertext []byte) ([]byte, error) {
	if c.replay != nil && !c.replay.Check(counter) {
		return nil, ErrReplay
	}
	nonce := c.nonce(counter)
	pt, err := c.aead.Open(dst, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, err
	}
	if c.replay != nil {
		c.replay.Mark(counter)
	}
	return pt, nil
}

func (c *CipherState) Overhead() int {
	return c.aead.Overhead()
}
