package pgwire

import (
	"bufio"
	"net"
	"strings"
	"testing"

	"github.com/pgwireclient/pgwire/internal/wire"
)

// testBackend is a minimal scripted PostgreSQL v3 backend listening on a
// real loopback address, so Connect/Pool.Connect exercise their actual
// net.Dialer.DialContext code paths instead of a pre-wired net.Conn.
type testBackend struct {
	ln net.Listener
}

func startTestBackend(t *testing.T) *testBackend {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	b := &testBackend{ln: ln}
	go b.acceptLoop(t)
	t.Cleanup(func() { ln.Close() })
	return b
}

func (b *testBackend) addr() (string, int) {
	tcp := b.ln.Addr().(*net.TCPAddr)
	return tcp.IP.String(), tcp.Port
}

func (b *testBackend) acceptLoop(t *testing.T) {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}
		go serveTestConn(t, conn)
	}
}

// serveTestConn drives the plaintext startup handshake and then a small
// SQL dispatcher sufficient to exercise Session, Transaction, and Pool
// without a real server: BEGIN/COMMIT/ROLLBACK/SAVEPOINT bookkeeping and
// a couple of recognized SELECTs.
func serveTestConn(t *testing.T, conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	if err := readStartupMessage(r); err != nil {
		return
	}
	if err := sendMsg(conn, wire.TagAuthentication, func(w *wire.PacketWriter) { w.Int32(wire.AuthOK) }); err != nil {
		return
	}
	if err := sendMsg(conn, wire.TagBackendKeyData, func(w *wire.PacketWriter) { w.Int32(1111).Int32(2222) }); err != nil {
		return
	}
	if err := sendMsg(conn, wire.TagReadyForQuery, func(w *wire.PacketWriter) { w.Bytes([]byte{'I'}) }); err != nil {
		return
	}

	inTx := false
	for {
		msg, err := wire.ReadMessage(r)
		if err != nil {
			return
		}
		switch msg.Tag {
		case wire.TagTerminate:
			return
		case wire.TagQuery:
			sql, err := msg.Reader.CString()
			if err != nil {
				return
			}
			if err := dispatchTestSQL(conn, sql, &inTx); err != nil {
				return
			}
		default:
			return
		}
	}
}

func dispatchTestSQL(conn net.Conn, sql string, inTx *bool) error {
	upper := strings.ToUpper(strings.TrimSpace(sql))

	switch {
	case strings.HasPrefix(upper, "BEGIN"):
		*inTx = true
		return finishCommand(conn, "BEGIN", false, 0, *inTx)
	case strings.HasPrefix(upper, "SET TRANSACTION SNAPSHOT"):
		return finishCommand(conn, "SET", false, 0, *inTx)
	case strings.HasPrefix(upper, "COMMIT"):
		chain := strings.Contains(upper, "CHAIN")
		if !chain {
			*inTx = false
		}
		return finishCommand(conn, "COMMIT", false, 0, *inTx)
	case strings.HasPrefix(upper, "ROLLBACK TO"):
		return finishCommand(conn, "ROLLBACK", false, 0, *inTx)
	case strings.HasPrefix(upper, "ROLLBACK"):
		chain := strings.Contains(upper, "CHAIN")
		if !chain {
			*inTx = false
		}
		return finishCommand(conn, "ROLLBACK", false, 0, *inTx)
	case strings.HasPrefix(upper, "SAVEPOINT"):
		return finishCommand(conn, "SAVEPOINT", false, 0, *inTx)
	case strings.HasPrefix(upper, "RELEASE SAVEPOINT"):
		return finishCommand(conn, "RELEASE", false, 0, *inTx)
	case strings.Contains(upper, "PG_EXPORT_SNAPSHOT"):
		return respondSingleRow(conn, "pg_export_snapshot", "00000003-1", *inTx)
	case strings.HasPrefix(upper, "SELECT FAIL"):
		return respondError(conn, *inTx)
	default:
		return respondSingleRow(conn, "n", "1", *inTx)
	}
}

func txStatusByte(inTx bool) byte {
	if inTx {
		return 'T'
	}
	return 'I'
}

func finishCommand(conn net.Conn, command string, hasCount bool, rowCount int, inTx bool) error {
	tag := command
	if hasCount {
		tag = command + " " + itoaTB(rowCount)
	}
	if err := sendMsg(conn, wire.TagCommandComplete, func(w *wire.PacketWriter) { w.CString(tag) }); err != nil {
		return err
	}
	return sendMsg(conn, wire.TagReadyForQuery, func(w *wire.PacketWriter) { w.Bytes([]byte{txStatusByte(inTx)}) })
}

func respondSingleRow(conn net.Conn, col, val string, inTx bool) error {
	if err := sendMsg(conn, wire.TagRowDescription, func(w *wire.PacketWriter) {
		w.Int16(1)
		w.CString(col).Int32(0).Int16(0).Int32(25).Int16(-1).Int32(-1).Int16(0)
	}); err != nil {
		return err
	}
	if err := sendMsg(conn, wire.TagDataRow, func(w *wire.PacketWriter) {
		w.Int16(1)
		w.Int32(int32(len(val))).Bytes([]byte(val))
	}); err != nil {
		return err
	}
	if err := sendMsg(conn, wire.TagCommandComplete, func(w *wire.PacketWriter) { w.CString("SELECT 1") }); err != nil {
		return err
	}
	return sendMsg(conn, wire.TagReadyForQuery, func(w *wire.PacketWriter) { w.Bytes([]byte{txStatusByte(inTx)}) })
}

func respondError(conn net.Conn, inTx bool) error {
	if err := sendMsg(conn, wire.TagErrorResponse, func(w *wire.PacketWriter) {
		w.Bytes([]byte{'S'}).CString("ERROR")
		w.Bytes([]byte{'C'}).CString("42601")
		w.Bytes([]byte{'M'}).CString("simulated failure")
		w.Bytes([]byte{0})
	}); err != nil {
		return err
	}
	return sendMsg(conn, wire.TagReadyForQuery, func(w *wire.PacketWriter) { w.Bytes([]byte{txStatusByte(inTx)}) })
}

func sendMsg(conn net.Conn, tag byte, build func(w *wire.PacketWriter)) error {
	w := wire.NewPacketWriter()
	defer w.Release()
	build(w)
	_, err := conn.Write(w.Flush(tag))
	return err
}

func readStartupMessage(r *bufio.Reader) error {
	var lenBuf [4]byte
	if _, err := readFullTB(r, lenBuf[:]); err != nil {
		return err
	}
	length := int32(lenBuf[0])<<24 | int32(lenBuf[1])<<16 | int32(lenBuf[2])<<8 | int32(lenBuf[3])
	body := make([]byte, int(length)-4)
	_, err := readFullTB(r, body)
	return err
}

func readFullTB(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func itoaTB(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func testConfig(t *testing.T, b *testBackend) *ConnectionConfig {
	t.Helper()
	host, port := b.addr()
	cfg, err := NewConnectionConfig(ConnectionConfig{
		Database: "testdb",
		User:     "tester",
		Host:     host,
		Port:     port,
	})
	if err != nil {
		t.Fatalf("NewConnectionConfig: %v", err)
	}
	return cfg
}
