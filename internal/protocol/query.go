package protocol

import (
	"context"
	"fmt"

	"github.com/pgwireclient/pgwire/internal/types"
	"github.com/pgwireclient/pgwire/internal/wire"
)

// SimpleQuery sends a Query ('Q') message with no parameters and reads
// the response cycle through to ReadyForQuery, per spec.md §4.4.
func (c *Connection) SimpleQuery(ctx context.Context, sql string) (*QueryOutcome, error) {
	w := wire.NewPacketWriter()
	defer w.Release()
	w.CString(sql)
	if _, err := c.conn.Write(w.Flush(wire.TagQuery)); err != nil {
		c.poison()
		return nil, &ConnectionError{Reason: "sending Query", Err: err}
	}
	return c.readSimpleResponse(ctx, sql)
}

func (c *Connection) readSimpleResponse(ctx context.Context, sql string) (*QueryOutcome, error) {
	outcome := &QueryOutcome{}
	for {
		msg, err := c.readMessage(ctx)
		if err != nil {
			return nil, &ConnectionError{Reason: "reading simple query response", Err: err}
		}
		switch msg.Tag {
		case wire.TagRowDescription:
			cols, err := wire.ParseRowDescription(msg.Reader)
			if err != nil {
				c.poison()
				return nil, &ProtocolError{Reason: err.Error()}
			}
			outcome.RowDescription = cols
		case wire.TagDataRow:
			row, err := wire.ParseDataRow(msg.Reader)
			if err != nil {
				c.poison()
				return nil, &ProtocolError{Reason: err.Error()}
			}
			outcome.Rows = append(outcome.Rows, row)
		case wire.TagCommandComplete:
			tag, err := msg.Reader.CString()
			if err != nil {
				c.poison()
				return nil, &ProtocolError{Reason: err.Error()}
			}
			cc, err := wire.ParseCommandComplete(tag)
			if err != nil {
				c.poison()
				return nil, &ProtocolError{Reason: err.Error()}
			}
			outcome.Command = cc
		case wire.TagEmptyQueryResp:
			// no rows, no command tag; continue to ReadyForQuery
		case wire.TagNoticeResponse:
			n, err := wire.ParseNotice(msg.Reader)
			if err != nil {
				c.poison()
				return nil, &ProtocolError{Reason: err.Error()}
			}
			outcome.Warnings = append(outcome.Warnings, n)
		case wire.TagErrorResponse:
			n, err := wire.ParseNotice(msg.Reader)
			if err != nil {
				c.poison()
				return nil, &ProtocolError{Reason: err.Error()}
			}
			if err := c.waitForReady(ctx); err != nil {
				return nil, err
			}
			return nil, &PostgresError{Notice: n, Query: sql}
		case wire.TagReadyForQuery:
			status, err := msg.Reader.Byte()
			if err != nil {
				c.poison()
				return nil, &ProtocolError{Reason: err.Error()}
			}
			c.TxStatus = TxStatus(status)
			return outcome, nil
		default:
			c.poison()
			return nil, &ProtocolError{Reason: fmt.Sprintf("unexpected message tag %q during simple query", msg.Tag)}
		}
	}
}

// waitForReady reads messages until ReadyForQuery, updating tx_status.
// Used by the error paths of both query dialogues, which must drain to
// the synchronization point before surfacing a PostgresError, so the
// connection stays usable for the next query (spec.md §4.6).
func (c *Connection) waitForReady(ctx context.Context) error {
	for {
		msg, err := c.readMessage(ctx)
		if err != nil {
			return &ConnectionError{Reason: "draining to ReadyForQuery", Err: err}
		}
		switch msg.Tag {
		case wire.TagReadyForQuery:
			status, err := msg.Reader.Byte()
			if err != nil {
				c.poison()
				return &ProtocolError{Reason: err.Error()}
			}
			c.TxStatus = TxStatus(status)
			return nil
		case wire.TagErrorResponse, wire.TagNoticeResponse, wire.TagRowDescription,
			wire.TagDataRow, wire.TagCommandComplete, wire.TagParseComplete,
			wire.TagBindComplete, wire.TagNoData, wire.TagPortalSuspended,
			wire.TagEmptyQueryResp:
			// drain and discard; we're only resynchronizing
		default:
			c.poison()
			return &ProtocolError{Reason: fmt.Sprintf("unexpected message tag %q while resynchronizing", msg.Tag)}
		}
	}
}

// ExtendedQuery drives Parse/Bind/Describe/Execute/Sync for a query with
// one or more encoded arguments, per spec.md §4.5. The unnamed statement
// and portal are always used (no prepared-statement caching in the core).
func (c *Connection) ExtendedQuery(ctx context.Context, sql string, args []types.EncodedArg) (*QueryOutcome, error) {
	if err := c.sendExtendedQuery(sql, args); err != nil {
		c.poison()
		return nil, &ConnectionError{Reason: "sending extended query", Err: err}
	}
	return c.readExtendedResponse(ctx, sql)
}

func (c *Connection) sendExtendedQuery(sql string, args []types.EncodedArg) error {
	// Parse: unnamed statement, no parameter type OIDs.
	pw := wire.NewPacketWriter()
	pw.CString("").CString(sql).Int16(0)
	if _, err := c.conn.Write(pw.Flush(wire.TagParse)); err != nil {
		pw.Release()
		return err
	}
	pw.Release()

	// Bind: unnamed portal, unnamed statement.
	bw := wire.NewPacketWriter()
	bw.CString("").CString("")
	hasBinary := false
	for _, a := range args {
		if a.Bytes != nil {
			hasBinary = true
			break
		}
	}
	if hasBinary {
		bw.Int16(int16(len(args)))
		for _, a := range args {
			if a.Bytes != nil {
				bw.Int16(1)
			} else {
				bw.Int16(0)
			}
		}
	} else {
		bw.Int16(0)
	}
	bw.Int16(int16(len(args)))
	for _, a := range args {
		switch {
		case a.Null:
			bw.Int32(-1)
		case a.Bytes != nil:
			bw.Int32(int32(len(a.Bytes))).Bytes(a.Bytes)
		default:
			b := []byte(a.Text)
			bw.Int32(int32(len(b))).Bytes(b)
		}
	}
	bw.Int16(0) // result format: text
	if _, err := c.conn.Write(bw.Flush(wire.TagBind)); err != nil {
		bw.Release()
		return err
	}
	bw.Release()

	// Describe the unnamed portal.
	dw := wire.NewPacketWriter()
	dw.Bytes([]byte{'P'}).CString("")
	if _, err := c.conn.Write(dw.Flush(wire.TagDescribe)); err != nil {
		dw.Release()
		return err
	}
	dw.Release()

	// Execute the unnamed portal with no row limit.
	ew := wire.NewPacketWriter()
	ew.CString("").Int32(0)
	if _, err := c.conn.Write(ew.Flush(wire.TagExecute)); err != nil {
		ew.Release()
		return err
	}
	ew.Release()

	// Sync.
	sw := wire.NewPacketWriter()
	defer sw.Release()
	_, err := c.conn.Write(sw.Flush(wire.TagSync))
	return err
}

func (c *Connection) readExtendedResponse(ctx context.Context, sql string) (*QueryOutcome, error) {
	outcome := &QueryOutcome{}
	for {
		msg, err := c.readMessage(ctx)
		if err != nil {
			return nil, &ConnectionError{Reason: "reading extended query response", Err: err}
		}
		switch msg.Tag {
		case wire.TagParseComplete, wire.TagBindComplete, wire.TagNoData, wire.TagPortalSuspended:
			// acknowledgements; no payload to extract
		case wire.TagRowDescription:
			cols, err := wire.ParseRowDescription(msg.Reader)
			if err != nil {
				c.poison()
				return nil, &ProtocolError{Reason: err.Error()}
			}
			outcome.RowDescription = cols
		case wire.TagDataRow:
			row, err := wire.ParseDataRow(msg.Reader)
			if err != nil {
				c.poison()
				return nil, &ProtocolError{Reason: err.Error()}
			}
			outcome.Rows = append(outcome.Rows, row)
		case wire.TagCommandComplete:
			tag, err := msg.Reader.CString()
			if err != nil {
				c.poison()
				return nil, &ProtocolError{Reason: err.Error()}
			}
			cc, err := wire.ParseCommandComplete(tag)
			if err != nil {
				c.poison()
				return nil, &ProtocolError{Reason: err.Error()}
			}
			outcome.Command = cc
		case wire.TagEmptyQueryResp:
			// no rows, no command tag
		case wire.TagNoticeResponse:
			n, err := wire.ParseNotice(msg.Reader)
			if err != nil {
				c.poison()
				return nil, &ProtocolError{Reason: err.Error()}
			}
			outcome.Warnings = append(outcome.Warnings, n)
		case wire.TagErrorResponse:
			n, err := wire.ParseNotice(msg.Reader)
			if err != nil {
				c.poison()
				return nil, &ProtocolError{Reason: err.Error()}
			}
			// Sync has already been sent as part of the pipelined
			// request, so we only need to drain to ReadyForQuery.
			if err := c.waitForReady(ctx); err != nil {
				return nil, err
			}
			return nil, &PostgresError{Notice: n, Query: sql}
		case wire.TagReadyForQuery:
			status, err := msg.Reader.Byte()
			if err != nil {
				c.poison()
				return nil, &ProtocolError{Reason: err.Error()}
			}
			c.TxStatus = TxStatus(status)
			return outcome, nil
		default:
			c.poison()
			return nil, &ProtocolError{Reason: fmt.Sprintf("unexpected message tag %q during extended query", msg.Tag)}
		}
	}
}
