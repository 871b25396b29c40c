// Package protocol implements the PostgreSQL v3 frontend/backend protocol
// engine: startup/authentication handshake, the simple-query dialogue, the
// extended-query (parse/bind/describe/execute/sync) dialogue, and error
// recovery to the next synchronization point.
package protocol

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/pgwireclient/pgwire/internal/auth"
	"github.com/pgwireclient/pgwire/internal/wire"
)

const (
	protoVersion30 = int32(3)<<16 | int32(0)
	sslRequestCode = int32(80877103)
)

// TxStatus mirrors the single-byte status reported by every
// ReadyForQuery message.
type TxStatus byte

const (
	TxIdle          TxStatus = 'I'
	TxInTransaction TxStatus = 'T'
	TxFailed        TxStatus = 'E'
)

// StartupParams carries everything the handshake needs, already resolved
// from a ConnectionConfig by the caller.
type StartupParams struct {
	Database         string
	User             string
	Password         string
	ApplicationName  string
	Options          map[string]string
	TLSEnabled       bool
	TLSEnforce       bool
	TLSConfig        *tls.Config
}

// QueryOutcome is the raw result of one simple or extended query cycle:
// column metadata, raw per-row column bytes (nil entry == SQL NULL), the
// parsed command-complete tag, and any notices collected along the way.
// The session layer materializes this into a typed QueryResult using the
// value codec.
type QueryOutcome struct {
	RowDescription []wire.Column
	Rows           [][][]byte
	Command        wire.CommandComplete
	Warnings       []wire.Notice
}

// Connection drives the protocol state machine for one backend socket. It
// is not safe for concurrent use: callers (the session layer) must
// serialize query submission, matching spec.md §5's single-threaded
// cooperative model per connection.
type Connection struct {
	ID     uuid.UUID
	conn   net.Conn
	r      *bufio.Reader
	w      *wire.PacketWriter
	logger *slog.Logger

	BackendPID        int32
	BackendSecretKey  int32
	BackendParameters map[string]string
	TxStatus          TxStatus
	Connected         bool
	PacketCount       int64
}

// Open performs the SSL negotiation (if requested), the startup message,
// and the authentication dialogue over conn, returning a ready Connection
// once the backend sends ReadyForQuery. conn is replaced by its TLS
// upgrade in-place when TLS negotiation succeeds.
func Open(ctx context.Context, conn net.Conn, params StartupParams, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connection{
		ID:                uuid.New(),
		conn:              conn,
		r:                 bufio.NewReader(conn),
		w:                 wire.NewPacketWriter(),
		logger:            logger,
		BackendParameters: map[string]string{},
	}

	if params.TLSEnabled {
		if err := c.negotiateTLS(params); err != nil {
			c.poison()
			return nil, &ConnectionError{Reason: "TLS negotiation", Err: err}
		}
	}

	if err := c.sendStartupMessage(params); err != nil {
		c.poison()
		return nil, &ConnectionError{Reason: "sending startup message", Err: err}
	}

	if err := c.runStartupLoop(ctx, params); err != nil {
		c.poison()
		return nil, err
	}

	c.Connected = true
	c.logger.Info("pgwire connection established", "conn_id", c.ID, "backend_pid", c.BackendPID)
	return c, nil
}

func (c *Connection) negotiateTLS(params StartupParams) error {
	w := wire.NewPacketWriter()
	defer w.Release()
	w.Int32(sslRequestCode)
	frame := w.Flush(0)
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("writing SSLRequest: %w", err)
	}

	resp := make([]byte, 1)
	if _, err := c.r.Read(resp); err != nil {
		return fmt.Errorf("reading SSLRequest response: %w", err)
	}
	switch resp[0] {
	case 'S':
		tlsConn := tls.Client(c.conn, params.TLSConfig)
		if err := tlsConn.HandshakeContext(context.Background()); err != nil {
			return fmt.Errorf("TLS handshake: %w", err)
		}
		c.conn = tlsConn
		c.r = bufio.NewReader(tlsConn)
		return nil
	case 'N':
		if params.TLSEnforce {
			return fmt.Errorf("backend refused TLS and tls.enforce is set")
		}
		return nil
	default:
		return fmt.Errorf("unexpected SSLRequest response byte %q", resp[0])
	}
}

func (c *Connection) sendStartupMessage(params StartupParams) error {
	w := wire.NewPacketWriter()
	defer w.Release()
	w.Int32(protoVersion30)
	w.CString("user").CString(params.User)
	w.CString("database").CString(params.Database)
	w.CString("application_name").CString(params.ApplicationName)
	w.CString("client_encoding").CString("utf-8")
	for k, v := range params.Options {
		w.CString(k).CString(v)
	}
	w.Bytes([]byte{0})
	frame := w.Flush(0)
	_, err := c.conn.Write(frame)
	return err
}

func (c *Connection) runStartupLoop(ctx context.Context, params StartupParams) error {
	for {
		msg, err := c.readMessage(ctx)
		if err != nil {
			return &ConnectionError{Reason: "reading startup response", Err: err}
		}
		switch msg.Tag {
		case wire.TagAuthentication:
			done, err := c.handleAuth(msg, params)
			if err != nil {
				return &ConnectionError{Reason: "authentication", Err: err}
			}
			if done {
				continue
			}
		case wire.TagBackendKeyData:
			kd, err := wire.ParseBackendKeyData(msg.Reader)
			if err != nil {
				return &ProtocolError{Reason: err.Error()}
			}
			c.BackendPID = kd.PID
			c.BackendSecretKey = kd.SecretKey
		case wire.TagParameterStatus:
			k, v, err := wire.ParseParameterStatus(msg.Reader)
			if err != nil {
				return &ProtocolError{Reason: err.Error()}
			}
			c.BackendParameters[k] = v
		case wire.TagErrorResponse:
			n, err := wire.ParseNotice(msg.Reader)
			if err != nil {
				return &ProtocolError{Reason: err.Error()}
			}
			return &PostgresError{Notice: n}
		case wire.TagReadyForQuery:
			b, err := msg.Reader.Byte()
			if err != nil {
				return &ProtocolError{Reason: err.Error()}
			}
			c.TxStatus = TxStatus(b)
			return nil
		default:
			return &ProtocolError{Reason: fmt.Sprintf("unexpected message tag %q during startup", msg.Tag)}
		}
	}
}

// handleAuth dispatches one Authentication ('R') message. It returns
// done=true for AuthenticationOk (the startup loop keeps reading for
// BackendKeyData/ParameterStatus/ReadyForQuery); for every other subcode
// it drives the corresponding challenge-response and returns done=false
// so the startup loop continues reading (the backend sends AuthenticationOk
// once the exchange completes).
func (c *Connection) handleAuth(msg wire.Message, params StartupParams) (bool, error) {
	subcode, err := msg.Reader.Int32()
	if err != nil {
		return false, err
	}
	switch subcode {
	case wire.AuthOK:
		return true, nil
	case wire.AuthCleartextPassword:
		return false, c.sendPasswordMessage(params.Password)
	case wire.AuthMD5Password:
		saltBytes, err := msg.Reader.Bytes(4)
		if err != nil {
			return false, err
		}
		var salt [4]byte
		copy(salt[:], saltBytes)
		return false, c.sendPasswordMessage(auth.MD5Password(params.User, params.Password, salt))
	case wire.AuthSASL:
		return false, c.runSASL(params)
	default:
		return false, fmt.Errorf("unsupported authentication subcode %d", subcode)
	}
}

func (c *Connection) sendPasswordMessage(password string) error {
	w := wire.NewPacketWriter()
	defer w.Release()
	w.String(password)
	frame := w.Flush(wire.TagPasswordMsg)
	_, err := c.conn.Write(frame)
	return err
}

func (c *Connection) runSASL(params StartupParams) error {
	client, err := auth.NewScramClient(params.User, params.Password)
	if err != nil {
		return err
	}
	clientFirst := client.ClientFirstMessage()

	w := wire.NewPacketWriter()
	defer w.Release()
	w.CString("SCRAM-SHA-256")
	w.Int32(int32(len(clientFirst)))
	w.Bytes(clientFirst)
	if _, err := c.conn.Write(w.Flush(wire.TagPasswordMsg)); err != nil {
		return fmt.Errorf("sending SASLInitialResponse: %w", err)
	}

	cont, err := c.readMessage(context.Background())
	if err != nil {
		return err
	}
	if cont.Tag != wire.TagAuthentication {
		return fmt.Errorf("expected AuthenticationSASLContinue, got tag %q", cont.Tag)
	}
	subcode, err := cont.Reader.Int32()
	if err != nil {
		return err
	}
	if subcode != wire.AuthSASLContinue {
		return fmt.Errorf("expected SASLContinue (11), got subcode %d", subcode)
	}
	serverFirst := cont.Reader.Rest()

	clientFinal, err := client.ClientFinalMessage(serverFirst)
	if err != nil {
		return err
	}

	w2 := wire.NewPacketWriter()
	defer w2.Release()
	w2.Bytes(clientFinal)
	if _, err := c.conn.Write(w2.Flush(wire.TagPasswordMsg)); err != nil {
		return fmt.Errorf("sending SASLResponse: %w", err)
	}

	final, err := c.readMessage(context.Background())
	if err != nil {
		return err
	}
	if final.Tag != wire.TagAuthentication {
		return fmt.Errorf("expected AuthenticationSASLFinal, got tag %q", final.Tag)
	}
	fsubcode, err := final.Reader.Int32()
	if err != nil {
		return err
	}
	if fsubcode != wire.AuthSASLFinal {
		return fmt.Errorf("expected SASLFinal (12), got subcode %d", fsubcode)
	}
	return client.VerifyServerFinal(final.Reader.Rest())
}

// readMessage reads one backend message, honoring ctx cancellation. A
// canceled context poisons the connection (closes it) rather than
// attempting a CancelRequest, per spec.md §5.
func (c *Connection) readMessage(ctx context.Context) (wire.Message, error) {
	type result struct {
		msg wire.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := wire.ReadMessage(c.r)
		ch <- result{msg, err}
	}()
	select {
	case <-ctx.Done():
		c.poison()
		return wire.Message{}, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			c.poison()
			return wire.Message{}, res.err
		}
		c.PacketCount++
		return res.msg, nil
	}
}

func (c *Connection) poison() {
	c.Connected = false
	_ = c.conn.Close()
}

// Close sends Terminate and closes the socket. Idempotent. The
// Terminate write is given a short deadline rather than blocking
// forever on an unresponsive or backed-up peer.
func (c *Connection) Close() error {
	if !c.Connected {
		return nil
	}
	w := wire.NewPacketWriter()
	defer w.Release()
	frame := w.Flush(wire.TagTerminate)
	_ = c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, _ = c.conn.Write(frame)
	c.Connected = false
	return c.conn.Close()
}

// Healthy reports whether the connection believes itself usable: it must
// still be marked connected and idle (not mid-transaction) to be handed
// back out by a pool's liveness check.
func (c *Connection) Healthy() bool {
	return c.Connected && c.TxStatus == TxIdle
}
