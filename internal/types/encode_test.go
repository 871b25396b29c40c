package types

import (
	"testing"
	"time"
)

func TestEncodeNil(t *testing.T) {
	got, err := Encode(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Null {
		t.Errorf("Encode(nil) = %+v, want Null=true", got)
	}
}

func TestEncodeNilByteSlice(t *testing.T) {
	var b []byte
	got, err := Encode(b)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Null {
		t.Errorf("Encode(nil []byte) = %+v, want Null=true", got)
	}
}

func TestEncodeBytesIsBinary(t *testing.T) {
	got, err := Encode([]byte{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if got.Bytes == nil {
		t.Fatal("Encode([]byte) should set Bytes for binary format")
	}
}

func TestEncodeString(t *testing.T) {
	got, err := Encode("hello")
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "hello" || got.Null || got.Bytes != nil {
		t.Errorf("Encode(%q) = %+v", "hello", got)
	}
}

func TestEncodeScalarFallback(t *testing.T) {
	got, err := Encode(42)
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "42" {
		t.Errorf("Encode(42) = %+v, want Text=42", got)
	}

	got, err = Encode(true)
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "true" {
		t.Errorf("Encode(true) = %+v, want Text=true", got)
	}
}

func TestEncodeTime(t *testing.T) {
	tm := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	got, err := Encode(tm)
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "2024-01-02T03:04:05+00:00" {
		t.Errorf("Encode(time.Time) = %q, want 2024-01-02T03:04:05+00:00", got.Text)
	}
}

func TestEncodeArrayArgument(t *testing.T) {
	got, err := Encode([]any{"a", "b", nil})
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != `{"a","b",NULL}` {
		t.Errorf("Encode([]any{...}) = %q", got.Text)
	}
}

func TestEncodeNestedArrayArgument(t *testing.T) {
	got, err := Encode([]any{[]any{"a", "b"}, []any{"c"}})
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != `{{"a","b"},{"c"}}` {
		t.Errorf("Encode(nested []any) = %q", got.Text)
	}
}

func TestEncodeObjectArgument(t *testing.T) {
	got, err := Encode(map[string]any{"a": float64(1)})
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != `{"a":1}` {
		t.Errorf("Encode(map) = %q, want {\"a\":1}", got.Text)
	}
}
