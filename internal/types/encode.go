package types

import (
	"fmt"
	"time"

	goccyjson "github.com/goccy/go-json"
	"github.com/spf13/cast"
)

// EncodedArg is one already-encoded query argument: either SQL NULL, a raw
// byte payload (sent with a binary format code in Bind), or a UTF-8 string
// (sent as text).
type EncodedArg struct {
	Null  bool
	Bytes []byte // non-nil ⇒ binary format
	Text  string // valid when !Null && Bytes == nil
}

// Encode converts a user-supplied argument value to its wire encoding per
// spec.md §4.7: nil → null; []byte passes through as a binary arg;
// time.Time → ISO-8601 with explicit offset; []any → textual array
// grammar; map[string]any → JSON string (no other type is JSON-marshaled);
// everything else falls back to its lexical
// representation via spf13/cast, matching the "all other scalars" rule.
func Encode(v any) (EncodedArg, error) {
	switch t := v.(type) {
	case nil:
		return EncodedArg{Null: true}, nil
	case []byte:
		if t == nil {
			return EncodedArg{Null: true}, nil
		}
		return EncodedArg{Bytes: t}, nil
	case time.Time:
		return EncodedArg{Text: EncodeTimestamp(t)}, nil
	case string:
		return EncodedArg{Text: t}, nil
	case []any:
		s, err := EncodeArray(normalizeArrayForEncode(t))
		if err != nil {
			return EncodedArg{}, err
		}
		return EncodedArg{Text: s}, nil
	case map[string]any:
		b, err := goccyjson.Marshal(t)
		if err != nil {
			return EncodedArg{}, encodeErrorf("marshaling object argument: %v", err)
		}
		return EncodedArg{Text: string(b)}, nil
	default:
		return encodeScalarFallback(v)
	}
}

// normalizeArrayForEncode renders each leaf of a nested []any into the
// string form EncodeArray expects, recursing through nested arrays and
// leaving nil (SQL NULL) and nested []any alone.
func normalizeArrayForEncode(v []any) []any {
	out := make([]any, len(v))
	for i, e := range v {
		switch t := e.(type) {
		case nil:
			out[i] = nil
		case []any:
			out[i] = normalizeArrayForEncode(t)
		case string:
			out[i] = t
		default:
			s, err := encodeScalarFallback(e)
			if err != nil {
				out[i] = fmt.Sprintf("%v", e)
				continue
			}
			out[i] = s.Text
		}
	}
	return out
}

// encodeScalarFallback handles bool/int/float/anything-cast-able by
// rendering its lexical representation with spf13/cast, the pack's
// general-purpose scalar coercion library.
func encodeScalarFallback(v any) (EncodedArg, error) {
	s, err := cast.ToStringE(v)
	if err != nil {
		return EncodedArg{}, encodeErrorf("encoding argument of type %T: %v", v, err)
	}
	return EncodedArg{Text: s}, nil
}
