package pgwire

import "testing"

func TestNewQueryDefaultsToArrayMode(t *testing.T) {
	q := NewQuery("select 1")
	if q.ResultMode != ResultArray {
		t.Errorf("ResultMode = %v, want ResultArray", q.ResultMode)
	}
}

func TestWithObjectMode(t *testing.T) {
	q := NewQuery("select 1").WithObjectMode(true)
	if q.ResultMode != ResultObject || !q.Camelcase {
		t.Errorf("WithObjectMode(true) = %+v", q)
	}
}

func TestWithFieldsValidatesNames(t *testing.T) {
	if _, err := NewQuery("select 1,2").WithFields("a", "2bad"); err == nil {
		t.Error("expected an error for a field name that doesn't match the identifier rule")
	}
}

func TestWithFieldsRejectsDuplicates(t *testing.T) {
	if _, err := NewQuery("select 1,2").WithFields("a", "a"); err == nil {
		t.Error("expected an error for duplicate field names")
	}
}

func TestWithFieldsSetsObjectMode(t *testing.T) {
	q, err := NewQuery("select 1,2").WithFields("a", "b")
	if err != nil {
		t.Fatal(err)
	}
	if q.ResultMode != ResultObject {
		t.Error("WithFields should switch to ResultObject")
	}
	if len(q.Fields) != 2 || q.Fields[0] != "a" || q.Fields[1] != "b" {
		t.Errorf("q.Fields = %v", q.Fields)
	}
}

func TestQueryFromTemplateRewritesPlaceholders(t *testing.T) {
	q, err := QueryFromTemplate("select * from t where id = {{id}} and name = {{name}}", map[string]any{
		"id":   1,
		"name": "alice",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "select * from t where id = $1 and name = $2"
	if q.Text != want {
		t.Errorf("Text = %q, want %q", q.Text, want)
	}
	if len(q.Args) != 2 || q.Args[0] != 1 || q.Args[1] != "alice" {
		t.Errorf("Args = %v", q.Args)
	}
}

func TestQueryFromTemplateReusesRepeatedPlaceholder(t *testing.T) {
	q, err := QueryFromTemplate("{{x}} = {{x}}", map[string]any{"x": 7})
	if err != nil {
		t.Fatal(err)
	}
	if q.Text != "$1 = $1" {
		t.Errorf("Text = %q, want %q", q.Text, "$1 = $1")
	}
	if len(q.Args) != 1 {
		t.Errorf("Args = %v, want a single bound value reused for both placeholders", q.Args)
	}
}

func TestQueryFromTemplateMissingBinding(t *testing.T) {
	if _, err := QueryFromTemplate("{{missing}}", map[string]any{}); err == nil {
		t.Error("expected an error for a placeholder with no bound value")
	}
}

func TestQueryFromTemplateUnterminatedPlaceholder(t *testing.T) {
	if _, err := QueryFromTemplate("{{oops", map[string]any{}); err == nil {
		t.Error("expected an error for an unterminated template placeholder")
	}
}

func TestEncodeArgsEmpty(t *testing.T) {
	q := NewQuery("select 1")
	args, err := q.encodeArgs()
	if err != nil {
		t.Fatal(err)
	}
	if args != nil {
		t.Errorf("encodeArgs() with no args = %v, want nil", args)
	}
}

func TestEncodeArgsOrderPreserved(t *testing.T) {
	q := NewQuery("select $1, $2", "a", 42)
	args, err := q.encodeArgs()
	if err != nil {
		t.Fatal(err)
	}
	if len(args) != 2 {
		t.Fatalf("expected 2 encoded args, got %d", len(args))
	}
	if args[0].Text != "a" {
		t.Errorf("args[0].Text = %q, want %q", args[0].Text, "a")
	}
	if args[1].Text != "42" {
		t.Errorf("args[1].Text = %q, want %q", args[1].Text, "42")
	}
}
