package messageloop_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/a-h/icode/messageloop"
)

func TestReader_DecodesLineDelimitedFrames(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"ping","id":1}`,
		`{"type":"exec","id":2,"command":"ls","args":["-a"],"cwd":"/tmp"}`,
	}, "\n") + "\n"

	r := messageloop.NewReader(strings.NewReader(input))

	first, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first.Type != messageloop.TypePing || first.ID != 1 {
		t.Errorf("first = %+v, want ping/1", first)
	}

	second, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if second.Type != messageloop.TypeExec || second.Command != "ls" || len(second.Args) != 1 || second.Args[0] != "-a" {
		t.Errorf("second = %+v, want exec ls -a", second)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Errorf("third Next err = %v, want io.EOF", err)
	}
}

func TestWriter_WritesOneJSONObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	w := messageloop.NewWriter(&buf)

	if err := w.Write(messageloop.Outbound{Type: messageloop.TypeReady, NodeVersion: "v20.11.0"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(messageloop.Outbound{Type: messageloop.TypeStdout, ID: 1, Data: "hi\n"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"type":"ready"`) {
		t.Errorf("line 0 = %q, want a ready frame", lines[0])
	}
	if !strings.Contains(lines[1], `"type":"stdout"`) || !strings.Contains(lines[1], `"id":1`) {
		t.Errorf("line 1 = %q, want a stdout frame with id 1", lines[1])
	}
}
