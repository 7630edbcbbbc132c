package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"testing/iotest"
)

func TestEncodeAppendsNewline(t *testing.T) {
	data, err := Encode(Response{Success: true, Message: "ok"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.HasSuffix(data, []byte("\n")) {
		t.Errorf("encoded frame %q should end in \\n", data)
	}
	if bytes.Count(data, []byte("\n")) != 1 {
		t.Errorf("encoded frame %q should contain exactly one \\n", data)
	}
}

func TestDecoderSplitsLines(t *testing.T) {
	in := `{"action":"register","username":"alice"}` + "\n" +
		`{"action":"login","username":"alice"}` + "\n"
	dec := NewDecoder(strings.NewReader(in))

	for _, want := range []string{"register", "login"} {
		line, err := dec.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			t.Fatalf("unmarshal %q: %v", line, err)
		}
		if string(req.Action) != want {
			t.Errorf("action = %q, want %q", req.Action, want)
		}
	}
	if _, err := dec.Next(); err == nil {
		t.Error("Next after EOF should fail")
	}
}

func TestDecoderSkipsBlankLines(t *testing.T) {
	in := "\n\r\n   \n" + `{"action":"register"}` + "\n\n"
	dec := NewDecoder(strings.NewReader(in))

	line, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(line) != `{"action":"register"}` {
		t.Errorf("line = %q", line)
	}
}

func TestDecoderStripsCRLF(t *testing.T) {
	dec := NewDecoder(strings.NewReader("{\"action\":\"login\"}\r\n"))
	line, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(line) != `{"action":"login"}` {
		t.Errorf("line = %q", line)
	}
}

func TestDecoderReassemblesAcrossReads(t *testing.T) {
	// One byte per read exercises the rolling-buffer path.
	in := `{"action":"send_message","recipient":"bob","message":"hi"}` + "\n"
	dec := NewDecoder(iotest.OneByteReader(strings.NewReader(in)))

	line, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Recipient != "bob" || req.Message != "hi" {
		t.Errorf("req = %+v", req)
	}
}

func TestDecoderHandlesLinesLongerThanChunk(t *testing.T) {
	// A chunked-file frame is typically ~64 KiB, far past one read chunk.
	payload := strings.Repeat("A", 4*ReadChunkSize)
	in := `{"action":"send_file_chunk","data":"` + payload + `"}` + "\n"
	dec := NewDecoder(strings.NewReader(in))

	line, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(req.Data) != 4*ReadChunkSize {
		t.Errorf("data length = %d, want %d", len(req.Data), 4*ReadChunkSize)
	}
}

func TestDecoderDropsUnterminatedTail(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`{"action":"login"`))
	if _, err := dec.Next(); err == nil {
		t.Error("unterminated final line should not be returned")
	}
}
