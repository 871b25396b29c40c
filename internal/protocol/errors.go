package protocol

import (
	"fmt"

	"github.com/pgwireclient/pgwire/internal/wire"
)

// ConnectionError reports a transport, TLS, or startup failure. The
// Connection is always terminated when this is raised (spec.md §7).
type ConnectionError struct {
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pgwire: connection error: %s: %v", e.Reason, e.Err)
	}
	return "pgwire: connection error: " + e.Reason
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports an unexpected message tag or a truncated frame.
// The Connection is always terminated when this is raised (spec.md §7).
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "pgwire: protocol error: " + e.Reason }

// PostgresError reports a backend ErrorResponse ('E'). It carries the full
// Notice field set and, when known, the query text that produced it. The
// connection remains usable: the protocol engine has already consumed up
// to the next ReadyForQuery before this error is returned.
type PostgresError struct {
	Notice wire.Notice
	Query  string
}

func (e *PostgresError) Error() string {
	if e.Notice.Detail != "" {
		return fmt.Sprintf("pgwire: postgres error [%s] %s: %s", e.Notice.Code, e.Notice.Message, e.Notice.Detail)
	}
	return fmt.Sprintf("pgwire: postgres error [%s] %s", e.Notice.Code, e.Notice.Message)
}
