package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/nacl/sign"
)

const signPrivKeySize = 64
const signPubKeySize = 32

// Header is the request header carrying a token.
const Header = "Authorization"

var ErrBadAuth = fmt.Errorf("Authentication failed")
var timeSlack = 5 * time.Second

// GenKeypair returns a newly generated hex-encoded public and private key.
func GenKeypair() (string, string, error) {
	pub, priv, err := sign.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", err
	}

	return hex.EncodeToString(pub[:]), hex.EncodeToString(priv[:]), nil
}

// parseKey parses a hex-encoded key that is expected to be sz bytes long.
func parseKey(s string, sz int) ([]byte, error) {
	bs, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	if len(bs) != sz {
		return nil, fmt.Errorf("Key is malformed")
	}

	return bs, nil
}

// Signer issues a token for a render server at time now.
type Signer func(now time.Time, server string) string

func NewSigner(hexPrivKey string) (Signer, error) {
	privKeyBs, err := parseKey(hexPrivKey, signPrivKeySize)
	if err != nil {
		return nil, fmt.Errorf("Error parsing private key: %w", err)
	}
	privKey := (*[signPrivKeySize]byte)(privKeyBs)

	return func(now time.Time, server string) string {
		msg := []byte(newClaim(now, server))
		sig := make([]byte, 0, len(msg)+sign.Overhead)
		sig = sign.Sign(sig, msg, privKey)
		return hex.EncodeToString(sig)
	}, nil
}

// newClaim makes a token claim with ts and the server id.
func newClaim(ts time.Time, server string) string {
	return fmt.Sprintf("%d,%s", ts.Unix(), server)
}

// parseClaim parses a token claim into ts and server id.
func parseClaim(claim string) (ts time.Time, server string, err error) {
	unixStr, server, ok := strings.Cut(claim, ",")
	if !ok {
		err = fmt.Errorf("malformed, need two fields")
		return
	}

	unix, err := strconv.ParseInt(unixStr, 10, 64)
	if err != nil {
		err = fmt.Errorf("bad time field: %w", err)
		return
	}

	ts = time.Unix(unix, 0)
	return
}

// Verifier checks a token presented at time now.
type Verifier func(now time.Time, token string) error

// NewVerifier returns a Verifier accepting tokens issued for server
// that are younger than liveness.
func NewVerifier(hexPubKey string, server string, liveness time.Duration, log *zap.Logger) (Verifier, error) {
	pubKeyBs, err := parseKey(hexPubKey, signPubKeySize)
	if err != nil {
		return nil, fmt.Errorf("Error parsing public key: %w", err)
	}
	pubKey := (*[signPubKeySize]byte)(pubKeyBs)
	if log == nil {
		log = zap.NewNop()
	}

	return func(now time.Time, token string) error {
		sig, err := hex.DecodeString(token)
		if err != nil {
			return ErrBadAuth
		}

		claim, ok := sign.Open(nil, sig, pubKey)
		if !ok {
			log.Debug("auth: bad signature")
			return ErrBadAuth
		}

		ts, claimServer, err := parseClaim(string(claim))
		if err != nil {
			log.Debug("auth: bad claim", zap.Error(err))
			return ErrBadAuth
		}

		dt := now.Sub(ts)
		if !(-timeSlack < dt && dt < liveness) {
			log.Debug("auth: bad ts", zap.Time("ts", ts), zap.Duration("dt", dt))
			return ErrBadAuth
		}

		if claimServer != server {
			log.Debug("auth: wrong server", zap.String("claim", claimServer), zap.String("server", server))
			return ErrBadAuth
		}

		return nil
	}, nil
}
