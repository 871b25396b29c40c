package types

import (
	"strconv"
	"strings"

	goccyjson "github.com/goccy/go-json"
	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
)

// scalarDecoder decodes one column's raw text payload (already decoded to
// a Go string from the wire's UTF-8 bytes) into its native value.
type scalarDecoder func(string) (any, error)

func rawString(s string) (any, error) { return s, nil }

func decodeBool(s string) (any, error) {
	if len(s) == 0 {
		return false, nil
	}
	switch s[0] {
	case 't', 'T', 'y', 'Y', '1':
		return true, nil
	case 'o', 'O':
		return len(s) > 1 && (s[1] == 'n' || s[1] == 'N'), nil
	default:
		return false, nil
	}
}

func decodeInt2(s string) (any, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return nil, decodeErrorf("invalid int2 %q: %v", s, err)
	}
	return v, nil
}

func decodeInt4(s string) (any, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return nil, decodeErrorf("invalid int4 %q: %v", s, err)
	}
	return v, nil
}

func decodeInt8(s string) (any, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil, decodeErrorf("invalid int8 %q: %v", s, err)
	}
	return v, nil
}

func decodeFloat(bitSize int) scalarDecoder {
	return func(s string) (any, error) {
		switch s {
		case "Infinity", "infinity":
			s = "+Inf"
		case "-Infinity", "-infinity":
			s = "-Inf"
		case "NaN", "nan":
			s = "NaN"
		}
		v, err := strconv.ParseFloat(s, bitSize)
		if err != nil {
			return nil, decodeErrorf("invalid float %q: %v", s, err)
		}
		return v, nil
	}
}

func decodeDate(s string) (any, error) {
	return DecodeDate(s)
}

func decodeTimestamp(s string) (any, error) {
	return DecodeTimestamp(s)
}

func decodeJSON(s string) (any, error) {
	var v any
	if err := goccyjson.Unmarshal([]byte(s), &v); err != nil {
		return nil, decodeErrorf("invalid json: %v", err)
	}
	return v, nil
}

func decodeBytea(s string) (any, error) { return DecodeBytea(s) }

func decodePoint(s string) (any, error)   { return DecodePoint(s) }
func decodeBox(s string) (any, error)     { return DecodeBox(s) }
func decodeCircle(s string) (any, error)  { return DecodeCircle(s) }
func decodeLine(s string) (any, error)    { return DecodeLine(s) }
func decodeLseg(s string) (any, error)    { return DecodeLseg(s) }
func decodePath(s string) (any, error)    { return DecodePath(s) }
func decodePolygon(s string) (any, error) { return DecodePolygon(s) }
func decodeTid(s string) (any, error)     { return DecodeTid(s) }

// scalarDecoders is the static OID → decoder table (spec.md §9). A missing
// entry falls through to the "unknown OID" DecodeError in Decode.
var scalarDecoders = map[int32]scalarDecoder{
	OIDText:         rawString,
	OIDName:         rawString,
	OIDChar:         rawString,
	OIDBpchar:       rawString,
	OIDVarchar:      rawString,
	OIDXML:          rawString,
	OIDMacaddr:      rawString,
	OIDInet:         rawString,
	OIDOID:          rawString,
	OIDRegproc:      rawString,
	OIDRegclass:     rawString,
	OIDRegtype:      rawString,
	OIDRegprocedure: rawString,
	OIDNumeric:      rawString,
	OIDUUID:         rawString,
	OIDVoid:         rawString,
	OIDUnknown:      rawString,
	OIDInterval:     rawString,
	OIDTime:         rawString,
	OIDTimetz:       rawString,
	OIDBool:         decodeBool,
	OIDInt2:         decodeInt2,
	OIDInt4:         decodeInt4,
	OIDInt8:         decodeInt8,
	OIDFloat4:       decodeFloat(32),
	OIDFloat8:       decodeFloat(64),
	OIDDate:         decodeDate,
	OIDTimestamp:    decodeTimestamp,
	OIDTimestamptz:  decodeTimestamp,
	OIDJSON:         decodeJSON,
	OIDJSONB:        decodeJSON,
	OIDBytea:        decodeBytea,
	OIDPoint:        decodePoint,
	OIDBox:          decodeBox,
	OIDCircle:       decodeCircle,
	OIDLine:         decodeLine,
	OIDLseg:         decodeLseg,
	OIDPath:         decodePath,
	OIDPolygon:      decodePolygon,
	OIDTid:          decodeTid,
}

// Decode converts a column's raw text-format bytes to its native value
// given the column's type OID. Array OIDs recurse into DecodeArray using
// the corresponding element scalar decoder. An OID with no registered
// decoder raises DecodeError, matching spec.md §4.7's "Don't know how to
// parse column type: <oid>".
func Decode(oid int32, raw []byte) (any, error) {
	s := string(raw)
	if elemOID, ok := arrayElementOID[oid]; ok {
		elemDecoder, ok := scalarDecoders[elemOID]
		if !ok {
			return nil, decodeErrorf("don't know how to parse column type: %d", oid)
		}
		return DecodeArray(s, arraySeparator(elemOID), ElementDecoder(elemDecoder))
	}
	decoder, ok := scalarDecoders[oid]
	if !ok {
		return nil, decodeErrorf("don't know how to parse column type: %d", oid)
	}
	return decoder(s)
}

// DecodeNumeric is a supplemental accessor (SPEC_FULL.md §11) returning an
// arbitrary-precision decimal.Decimal for `numeric`/`decimal` columns,
// alongside the spec-mandated raw-string Decode result for OIDNumeric.
func DecodeNumeric(raw []byte) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Decimal{}, decodeErrorf("invalid numeric %q: %v", raw, err)
	}
	return d, nil
}

// DecodeCivilDate is a supplemental accessor (SPEC_FULL.md §11) returning a
// civil.Date (no timezone, no clock) for `date` columns, alongside the
// spec-mandated time.Time Decode result for OIDDate.
func DecodeCivilDate(raw []byte) (civil.Date, error) {
	t, err := DecodeDate(string(raw))
	if err != nil {
		return civil.Date{}, err
	}
	return civil.DateOf(t), nil
}
