package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		format   Format
		wantType string
	}{
		{FormatJSON, "*output.JSONFormatter"},
		{FormatTable, "*output.TableFormatter"},
		{"unknown", "*output.TableFormatter"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			f := New(tt.format)
			if f == nil {
				t.Fatal("New returned nil")
			}
			switch tt.format {
			case FormatJSON:
				if _, ok := f.(*JSONFormatter); !ok {
					t.Error("expected JSONFormatter")
				}
			default:
				if _, ok := f.(*TableFormatter); !ok {
					t.Error("expected TableFormatter")
				}
			}
		})
	}
}

func TestJSONFormatter_Format(t *testing.T) {
	f := &JSONFormatter{}
	var buf bytes.Buffer

	data := struct {
		Name string `json:"name"`
	}{Name: "test"}

	if err := f.Format(&buf, data); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"name": "test"`) {
		t.Errorf("Format() = %q, missing name field", buf.String())
	}
}

func TestTableFormatter_Format(t *testing.T) {
	f := &TableFormatter{}
	var buf bytes.Buffer

	tbl := &Table{Headers: []string{"A", "B"}}
	tbl.AddRow("1", "2")

	if err := f.Format(&buf, tbl); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "A") || !strings.Contains(out, "1") {
		t.Errorf("Format() = %q, missing table content", out)
	}
}

func TestTableFormatter_FallsBackToJSON(t *testing.T) {
	f := &TableFormatter{}
	var buf bytes.Buffer

	if err := f.Format(&buf, "raw string result"); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if !strings.Contains(buf.String(), "raw string result") {
		t.Errorf("Format() = %q", buf.String())
	}
}
