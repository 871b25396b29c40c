package wire

import "testing"

func TestPacketReaderInt16Int32(t *testing.T) {
	buf := []byte{0x00, 0x2a, 0x00, 0x00, 0x01, 0x00}
	r := NewPacketReader(buf)

	v16, err := r.Int16()
	if err != nil {
		t.Fatal(err)
	}
	if v16 != 42 {
		t.Errorf("Int16() = %d, want 42", v16)
	}

	v32, err := r.Int32()
	if err != nil {
		t.Fatal(err)
	}
	if v32 != 256 {
		t.Errorf("Int32() = %d, want 256", v32)
	}
}

func TestPacketReaderCString(t *testing.T) {
	r := NewPacketReader([]byte("hello\x00world\x00"))

	s1, err := r.CString()
	if err != nil {
		t.Fatal(err)
	}
	if s1 != "hello" {
		t.Errorf("CString() = %q, want %q", s1, "hello")
	}

	s2, err := r.CString()
	if err != nil {
		t.Fatal(err)
	}
	if s2 != "world" {
		t.Errorf("CString() = %q, want %q", s2, "world")
	}
}

func TestPacketReaderCStringUnterminated(t *testing.T) {
	r := NewPacketReader([]byte("noterm"))
	if _, err := r.CString(); err == nil {
		t.Error("expected an error for an unterminated c-string")
	}
}

func TestPacketReaderNeedsMoreBytes(t *testing.T) {
	r := NewPacketReader([]byte{0x01})
	if _, err := r.Int32(); err == nil {
		t.Error("expected an error reading Int32 from a 1-byte buffer")
	}
}

func TestPacketReaderBytesAndRemaining(t *testing.T) {
	r := NewPacketReader([]byte{1, 2, 3, 4, 5})
	if r.Remaining() != 5 {
		t.Fatalf("Remaining() = %d, want 5", r.Remaining())
	}
	b, err := r.Bytes(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 3 || b[0] != 1 || b[2] != 3 {
		t.Errorf("Bytes(3) = %v", b)
	}
	if r.Remaining() != 2 {
		t.Errorf("Remaining() after Bytes(3) = %d, want 2", r.Remaining())
	}
}

func TestPacketReaderRest(t *testing.T) {
	r := NewPacketReader([]byte{1, 2, 3})
	r.Byte()
	rest := r.Rest()
	if len(rest) != 2 || rest[0] != 2 || rest[1] != 3 {
		t.Errorf("Rest() = %v, want [2 3]", rest)
	}
	if r.Remaining() != 0 {
		t.Errorf("Remaining() after Rest() = %d, want 0", r.Remaining())
	}
}
