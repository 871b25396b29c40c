package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// ScramClient drives one SASL SCRAM-SHA-256 exchange against a PostgreSQL
// backend: client-first, server-first, client-final, server-final. It
// holds no socket; the protocol engine feeds it server messages and sends
// the byte slices it produces.
type ScramClient struct {
	user            string
	password        string
	clientNonce     string
	clientFirstBare string
	saltedPassword  []byte
	authMessage     string
}

// NewScramClient seeds a new exchange with a random client nonce.
func NewScramClient(user, password string) (*ScramClient, error) {
	nonceBytes := make([]byte, 18)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, fmt.Errorf("auth: generating scram nonce: %w", err)
	}
	return &ScramClient{
		user:        user,
		password:    password,
		clientNonce: base64.StdEncoding.EncodeToString(nonceBytes),
	}, nil
}

// gs2Header is fixed: no channel binding, no authzid.
const gs2Header = "n,,"

// ClientFirstMessage returns the SASLInitialResponse body: the gs2 header
// followed by the client-first-message-bare.
func (c *ScramClient) ClientFirstMessage() []byte {
	c.clientFirstBare = fmt.Sprintf("n=%s,r=%s", escapeUsername(c.user), c.clientNonce)
	return []byte(gs2Header + c.clientFirstBare)
}

// ClientFinalMessage consumes the server-first-message
// ("r=<nonce>,s=<salt>,i=<iterations>") and returns the client-final-message
// to send back, or an error if the server's nonce doesn't extend ours.
func (c *ScramClient) ClientFinalMessage(serverFirstMessage []byte) ([]byte, error) {
	serverNonce, salt, iterations, err := parseServerFirst(string(serverFirstMessage))
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(serverNonce, c.clientNonce) {
		return nil, fmt.Errorf("auth: server nonce does not extend client nonce")
	}

	c.saltedPassword = pbkdf2.Key([]byte(c.password), salt, iterations, 32, sha256.New)
	clientKey := hmacSHA256(c.saltedPassword, []byte("Client Key"))
	storedKey := sha256Sum(clientKey)

	channelBinding := "c=" + base64.StdEncoding.EncodeToString([]byte(gs2Header))
	clientFinalWithoutProof := fmt.Sprintf("%s,r=%s", channelBinding, serverNonce)

	c.authMessage = c.clientFirstBare + "," + string(serverFirstMessage) + "," + clientFinalWithoutProof

	clientSignature := hmacSHA256(storedKey, []byte(c.authMessage))
	clientProof := xorBytes(clientKey, clientSignature)

	final := clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof)
	return []byte(final), nil
}

// VerifyServerFinal checks the server's AuthenticationSASLFinal payload
// ("v=<signature>") against the expected server signature.
func (c *ScramClient) VerifyServerFinal(serverFinalMessage []byte) error {
	serverKey := hmacSHA256(c.saltedPassword, []byte("Server Key"))
	expectedSig := hmacSHA256(serverKey, []byte(c.authMessage))
	expected := "v=" + base64.StdEncoding.EncodeToString(expectedSig)
	if string(serverFinalMessage) != expected {
		return fmt.Errorf("auth: server signature mismatch")
	}
	return nil
}

func parseServerFirst(msg string) (nonce string, salt []byte, iterations int, err error) {
	for _, part := range strings.Split(msg, ",") {
		switch {
		case strings.HasPrefix(part, "r="):
			nonce = part[2:]
		case strings.HasPrefix(part, "s="):
			salt, err = base64.StdEncoding.DecodeString(part[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("auth: decoding scram salt: %w", err)
			}
		case strings.HasPrefix(part, "i="):
			iterations, err = strconv.Atoi(part[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("auth: decoding scram iteration count: %w", err)
			}
		}
	}
	if nonce == "" || salt == nil || iterations == 0 {
		return "", nil, 0, fmt.Errorf("auth: incomplete server-first-message: %q", msg)
	}
	return nonce, salt, iterations, nil
}

// escapeUsername replaces "=" with "=3D" and "," with "=2C" per RFC 5802.
func escapeUsername(user string) string {
	user = strings.ReplaceAll(user, "=", "=3D")
	user = strings.ReplaceAll(user, ",", "=2C")
	return user
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func sha256Sum(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
