package types

import (
	"encoding/hex"
	"strconv"
	"strings"
)

// DecodeBytea parses the textual bytea grammar (spec.md §4.7): a `\x`
// prefix followed by hex-nibble pairs, or the legacy escape format where
// `\NNN` is an octal byte, a doubled backslash is one literal backslash,
// and any other byte is copied through unescaped.
func DecodeBytea(s string) ([]byte, error) {
	if strings.HasPrefix(s, `\x`) {
		return hex.DecodeString(s[2:])
	}
	return decodeByteaEscape(s)
}

func decodeByteaEscape(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	i := 0
	for i < len(s) {
		if s[i] != '\\' {
			out = append(out, s[i])
			i++
			continue
		}
		// s[i] == '\\'
		if i+1 < len(s) && s[i+1] == '\\' {
			out = append(out, '\\')
			i += 2
			continue
		}
		if i+3 < len(s) && isOctalDigit(s[i+1]) && isOctalDigit(s[i+2]) && isOctalDigit(s[i+3]) {
			v, err := strconv.ParseUint(s[i+1:i+4], 8, 8)
			if err != nil {
				return nil, decodeErrorf("invalid octal escape %q: %v", s[i:i+4], err)
			}
			out = append(out, byte(v))
			i += 4
			continue
		}
		return nil, decodeErrorf("invalid bytea escape at offset %d in %q", i, s)
	}
	return out, nil
}

func isOctalDigit(b byte) bool { return b >= '0' && b <= '7' }

// EncodeBytea renders b using the `\x` hex bytea grammar, the canonical
// modern encoding PostgreSQL itself prefers.
func EncodeBytea(b []byte) string {
	return `\x` + hex.EncodeToString(b)
}
