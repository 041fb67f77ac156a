package output

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type row struct {
	ID      int           `json:"id"`
	State   string        `json:"state"`
	Uptime  time.Duration `json:"uptime"`
	Binds   []string      `json:"binds"`
	private int
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "json": FormatJSON, "yaml": FormatYAML, "table": FormatTable} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) succeeded")
	}
}

func TestTableFormatter_Slice(t *testing.T) {
	var buf bytes.Buffer
	rows := []row{
		{ID: 0, State: "running", Uptime: 1500 * time.Millisecond, Binds: []string{"a", "b"}},
		{ID: 1, State: "", Uptime: time.Second},
	}
	if err := NewFormatter(FormatTable).Format(&buf, rows); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if f := strings.Fields(lines[0]); strings.Join(f, " ") != "ID STATE UPTIME BINDS" {
		t.Errorf("header = %q", lines[0])
	}
	if f := strings.Fields(lines[1]); strings.Join(f, " ") != "0 running 1.5s a,b" {
		t.Errorf("row 0 = %q", lines[1])
	}
	if f := strings.Fields(lines[2]); strings.Join(f, " ") != "1 - 1s -" {
		t.Errorf("row 1 = %q", lines[2])
	}
}

func TestTableFormatter_Struct(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, &row{ID: 7, State: "paused"}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"FIELD", "id", "7", "state", "paused"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "private") {
		t.Error("unexported field rendered")
	}
}

func TestTableFormatter_FallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, []int{1, 2}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "[\n  1,\n  2\n]") {
		t.Errorf("fallback output = %q", buf.String())
	}
}

func TestTable_Render(t *testing.T) {
	tb := &Table{Headers: []string{"A", "LONGER"}}
	tb.AddRow("x", "y")
	var buf bytes.Buffer
	if err := tb.Render(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "A  LONGER\nx  y\n" {
		t.Errorf("Render() = %q", buf.String())
	}
}

func TestJSONAndYAML(t *testing.T) {
	data := row{ID: 2, State: "running", Uptime: time.Second}

	var js bytes.Buffer
	if err := NewFormatter(FormatJSON).Format(&js, data); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(js.String(), `"state": "running"`) {
		t.Errorf("json = %s", js.String())
	}

	var ym bytes.Buffer
	if err := NewFormatter(FormatYAML).Format(&ym, data); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"id: 2", "state: running", "uptime: 1000000000"} {
		if !strings.Contains(ym.String(), want) {
			t.Errorf("yaml missing %q:\n%s", want, ym.String())
		}
	}
}

func TestSpinner(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner(&buf, "stopping")
	s.Start()
	time.Sleep(150 * time.Millisecond)
	s.Stop("stopped")
	s.Stop("again")

	out := buf.String()
	if !strings.Contains(out, "stopping") || !strings.HasSuffix(out, "stopped\n") {
		t.Errorf("spinner output = %q", out)
	}
}
