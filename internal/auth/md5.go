// Package auth implements the password-derivation primitives consumed by
// the startup/authentication handshake: MD5 challenge-response and SASL
// SCRAM-SHA-256. It never touches the network; the protocol engine reads
// and writes the wire messages and calls into this package only for the
// cryptographic steps.
package auth

import (
	"crypto/md5"
	"encoding/hex"
)

// MD5Password computes the PasswordMessage payload for AuthenticationMD5Password:
// "md5" + hex(md5(hex(md5(password+user)) + salt)).
func MD5Password(user, password string, salt [4]byte) string {
	inner := md5Hex(password + user)
	outer := md5Hex(inner + string(salt[:]))
	return "md5" + outer
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
