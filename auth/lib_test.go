package auth

import (
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

func TestAuth(t *testing.T) {
	pub, priv, err := GenKeypair()
	assert.NoError(t, err)

	now := time.Now()

	signer, err := NewSigner(priv)
	assert.NoError(t, err)

	verifierA, err := NewVerifier(pub, "render-a", 5*time.Second, nil)
	assert.NoError(t, err)

	verifierB, err := NewVerifier(pub, "render-b", 5*time.Second, nil)
	assert.NoError(t, err)

	// sign/verify works for same server, same time.
	token := signer(now, "render-a")
	err = verifierA(now, token)
	assert.NoError(t, err)

	// verify succeeds within the liveness window
	err = verifierA(now.Add(4*time.Second), token)
	assert.NoError(t, err)

	// verify succeeds with small clock skew
	err = verifierA(now.Add(-1*time.Second), token)
	assert.NoError(t, err)

	// verify fails if you mutate the claim
	bs, _ := hex.DecodeString(token)
	altered := strings.ReplaceAll(string(bs), "render-a", "render-b")
	badSig := hex.EncodeToString([]byte(altered))
	assert.Error(t, verifierA(now, badSig))
	assert.Error(t, verifierB(now, badSig))

	// verify fails after liveness expires
	assert.Error(t, verifierA(now.Add(6*time.Second), token))

	// verify fails with large clock skew.
	assert.Error(t, verifierA(now.Add(-6*time.Second), token))

	// verify fails if the server does not match
	assert.Error(t, verifierB(now, token))

	// garbage is rejected
	assert.IsError(t, verifierA(now, "not hex"), ErrBadAuth)
}

func TestBadKeys(t *testing.T) {
	_, err := NewSigner("abcd")
	assert.Error(t, err)

	_, err = NewVerifier("zz", "render-a", time.Second, nil)
	assert.Error(t, err)
}
