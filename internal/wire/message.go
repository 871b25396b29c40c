package wire

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
)

// Backend message tags (subset relevant to the core protocol engine).
const (
	TagAuthentication   byte = 'R'
	TagBackendKeyData   byte = 'K'
	TagParameterStatus  byte = 'S'
	TagReadyForQuery    byte = 'Z'
	TagRowDescription   byte = 'T'
	TagDataRow          byte = 'D'
	TagCommandComplete  byte = 'C'
	TagErrorResponse    byte = 'E'
	TagNoticeResponse   byte = 'N'
	TagParseComplete    byte = '1'
	TagBindComplete     byte = '2'
	TagNoData           byte = 'n'
	TagPortalSuspended  byte = 's'
	TagEmptyQueryResp   byte = 'I'
)

// Frontend message tags.
const (
	TagQuery       byte = 'Q'
	TagParse       byte = 'P'
	TagBind        byte = 'B'
	TagDescribe    byte = 'D'
	TagExecute     byte = 'E'
	TagSync        byte = 'S'
	TagTerminate   byte = 'X'
	TagPasswordMsg byte = 'p'
)

// Authentication request subcodes (payload of an 'R' message).
const (
	AuthOK                int32 = 0
	AuthCleartextPassword int32 = 3
	AuthMD5Password       int32 = 5
	AuthSASL              int32 = 10
	AuthSASLContinue      int32 = 11
	AuthSASLFinal         int32 = 12
)

// Message is one decoded frame read off the backend stream: a tag byte,
// its raw payload, and a PacketReader positioned at the start of that
// payload for structured field access.
type Message struct {
	Tag     byte
	Payload []byte
	Reader  *PacketReader
}

// ReadMessage reads exactly one framed backend message: 1-byte tag, 4-byte
// big-endian length (includes itself, excludes the tag), then the payload.
func ReadMessage(r io.Reader) (Message, error) {
	var head [5]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return Message{}, err
	}
	tag := head[0]
	length := int32(head[1])<<24 | int32(head[2])<<16 | int32(head[3])<<8 | int32(head[4])
	payloadLen := int(length) - 4
	if payloadLen < 0 {
		return Message{}, newDecodeError("negative payload length %d for tag %q", payloadLen, tag)
	}
	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Message{}, err
		}
	}
	return Message{Tag: tag, Payload: payload, Reader: NewPacketReader(payload)}, nil
}

// Column describes one field of a RowDescription ('T') message.
type Column struct {
	Name        string
	TableOID    int32
	AttrIndex   int16
	TypeOID     int32
	TypeSize    int16
	TypeMod     int32
	Format      int16 // 0 = text, 1 = binary
}

// ParseRowDescription decodes a 'T' message payload.
func ParseRowDescription(r *PacketReader) ([]Column, error) {
	n, err := r.Int16()
	if err != nil {
		return nil, err
	}
	cols := make([]Column, n)
	for i := range cols {
		name, err := r.CString()
		if err != nil {
			return nil, err
		}
		tableOID, err := r.Int32()
		if err != nil {
			return nil, err
		}
		attrIdx, err := r.Int16()
		if err != nil {
			return nil, err
		}
		typeOID, err := r.Int32()
		if err != nil {
			return nil, err
		}
		typeSize, err := r.Int16()
		if err != nil {
			return nil, err
		}
		typeMod, err := r.Int32()
		if err != nil {
			return nil, err
		}
		format, err := r.Int16()
		if err != nil {
			return nil, err
		}
		cols[i] = Column{
			Name: name, TableOID: tableOID, AttrIndex: attrIdx,
			TypeOID: typeOID, TypeSize: typeSize, TypeMod: typeMod, Format: format,
		}
	}
	return cols, nil
}

// ParseDataRow decodes a 'D' message payload into raw per-column bytes.
// A nil entry represents SQL NULL (length -1 on the wire).
func ParseDataRow(r *PacketReader) ([][]byte, error) {
	n, err := r.Int16()
	if err != nil {
		return nil, err
	}
	row := make([][]byte, n)
	for i := range row {
		l, err := r.Int32()
		if err != nil {
			return nil, err
		}
		if l < 0 {
			row[i] = nil
			continue
		}
		b, err := r.Bytes(int(l))
		if err != nil {
			return nil, err
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		row[i] = cp
	}
	return row, nil
}

// BackendKeyData is the 'K' message: the cancellation key pair.
type BackendKeyData struct {
	PID       int32
	SecretKey int32
}

// ParseBackendKeyData decodes a 'K' message payload.
func ParseBackendKeyData(r *PacketReader) (BackendKeyData, error) {
	pid, err := r.Int32()
	if err != nil {
		return BackendKeyData{}, err
	}
	secret, err := r.Int32()
	if err != nil {
		return BackendKeyData{}, err
	}
	return BackendKeyData{PID: pid, SecretKey: secret}, nil
}

// ParseParameterStatus decodes an 'S' message payload into a key/value pair.
func ParseParameterStatus(r *PacketReader) (key, value string, err error) {
	key, err = r.CString()
	if err != nil {
		return "", "", err
	}
	value, err = r.CString()
	if err != nil {
		return "", "", err
	}
	return key, value, nil
}

// Notice carries the single-byte-keyed fields of an ErrorResponse or
// NoticeResponse message, per spec.md §3. Unrecognized codes are ignored.
type Notice struct {
	Severity         string
	Code             string
	Message          string
	Detail           string
	Hint             string
	Position         string
	InternalPosition string
	InternalQuery    string
	Where            string
	Schema           string
	Table            string
	Column           string
	DataType         string
	Constraint       string
	File             string
	Line             string
	Routine          string
}

// ParseNotice decodes an 'E' or 'N' message payload: a sequence of
// (code byte, C-string) pairs terminated by a zero byte.
func ParseNotice(r *PacketReader) (Notice, error) {
	var n Notice
	for {
		code, err := r.Byte()
		if err != nil {
			return n, err
		}
		if code == 0 {
			break
		}
		val, err := r.CString()
		if err != nil {
			return n, err
		}
		switch code {
		case 'S':
			n.Severity = val
		case 'C':
			n.Code = val
		case 'M':
			n.Message = val
		case 'D':
			n.Detail = val
		case 'H':
			n.Hint = val
		case 'P':
			n.Position = val
		case 'p':
			n.InternalPosition = val
		case 'q':
			n.InternalQuery = val
		case 'W':
			n.Where = val
		case 's':
			n.Schema = val
		case 't':
			n.Table = val
		case 'c':
			n.Column = val
		case 'd':
			n.DataType = val
		case 'n':
			n.Constraint = val
		case 'F':
			n.File = val
		case 'L':
			n.Line = val
		case 'R':
			n.Routine = val
		default:
			// unrecognized codes are silently ignored per spec.md §3
		}
	}
	return n, nil
}

var commandTagRE = regexp.MustCompile(`^([A-Za-z]+)(?: (\d+))?(?: (\d+))?`)

// CommandComplete is the parsed form of a 'C' message's tag string.
type CommandComplete struct {
	Command  string
	OID      int32 // set for INSERT, 0 otherwise
	RowCount int64
	HasCount bool
}

// ParseCommandComplete parses the command tag string per the grammar in
// spec.md §4.2: `^([A-Za-z]+)(?: (\d+))?(?: (\d+))?` where, when both
// numeric groups are present, the first is an OID and the second a row
// count; when only one is present it is the row count.
func ParseCommandComplete(tag string) (CommandComplete, error) {
	m := commandTagRE.FindStringSubmatch(tag)
	if m == nil {
		return CommandComplete{}, fmt.Errorf("wire: unparseable command tag %q", tag)
	}
	cc := CommandComplete{Command: m[1]}
	switch {
	case m[2] != "" && m[3] != "":
		oid, err := strconv.ParseInt(m[2], 10, 32)
		if err != nil {
			return CommandComplete{}, fmt.Errorf("wire: bad command tag oid: %w", err)
		}
		count, err := strconv.ParseInt(m[3], 10, 64)
		if err != nil {
			return CommandComplete{}, fmt.Errorf("wire: bad command tag row count: %w", err)
		}
		cc.OID = int32(oid)
		cc.RowCount = count
		cc.HasCount = true
	case m[2] != "":
		count, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return CommandComplete{}, fmt.Errorf("wire: bad command tag row count: %w", err)
		}
		cc.RowCount = count
		cc.HasCount = true
	}
	return cc, nil
}
