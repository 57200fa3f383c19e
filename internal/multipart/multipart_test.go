// SPDX-License-Identifier: MIT

package multipart

import (
	"bytes"
	"fmt"
	"strconv"
	"testing"
)

func TestEncodeLayout(t *testing.T) {
	chunk := FrameChunk(4, FrameUnknown, MaskTypeRLE, []byte(`{"frame_index":4}`))
	got := Encode("frame", chunk)

	want := "--frame\r\n" +
		"Content-Type: application/json; charset=utf-8\r\n" +
		"Frame-Current: 4\r\n" +
		"Frame-Total: -1\r\n" +
		"Mask-Type: RLE[]\r\n" +
		"\r\n" +
		`{"frame_index":4}` + "\r\n"
	if string(got) != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	const n = 5
	var stream bytes.Buffer
	bodies := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		body := []byte(fmt.Sprintf(`{"frame_index":%d,"results":[{"mask":"abc%d"}]}`, i, i))
		bodies = append(bodies, body)
		stream.Write(Encode("frame", FrameChunk(i, FrameUnknown, MaskTypeRLE, body)))
	}

	chunks, err := Split(stream.Bytes(), "frame")
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if len(chunks) != n {
		t.Fatalf("Split() returned %d chunks, want %d", len(chunks), n)
	}

	required := []string{HeaderContentType, HeaderFrameCurrent, HeaderFrameTotal, HeaderMaskType}
	for i, c := range chunks {
		if !bytes.Equal(c.Body, bodies[i]) {
			t.Errorf("chunk %d body = %q, want %q", i, c.Body, bodies[i])
		}
		keys := make(map[string]string, len(c.Headers))
		for _, h := range c.Headers {
			keys[h.Key] = h.Value
		}
		for _, k := range required {
			if _, ok := keys[k]; !ok {
				t.Errorf("chunk %d missing required header %s", i, k)
			}
		}
		if got := keys[HeaderFrameCurrent]; got != strconv.Itoa(i) {
			t.Errorf("chunk %d Frame-Current = %q, want %q", i, got, strconv.Itoa(i))
		}
		if got := keys[HeaderFrameTotal]; got != "-1" {
			t.Errorf("chunk %d Frame-Total = %q, want -1", i, got)
		}
		if got := keys[HeaderMaskType]; got != MaskTypeRLE {
			t.Errorf("chunk %d Mask-Type = %q, want %q", i, got, MaskTypeRLE)
		}
	}
}

func TestSplitRejectsGarbagePrefix(t *testing.T) {
	stream := append([]byte("noise"), Encode("frame", FrameChunk(0, -1, MaskTypeRLE, []byte("{}")))...)
	if _, err := Split(stream, "frame"); err == nil {
		t.Error("Split() accepted a stream that does not begin with the boundary")
	}
}

func TestSplitEmptyStream(t *testing.T) {
	chunks, err := Split(nil, "frame")
	if err != nil {
		t.Fatalf("Split(nil) error: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("Split(nil) = %d chunks, want 0", len(chunks))
	}
}

func TestMediaType(t *testing.T) {
	if got, want := MediaType("frame"), "multipart/x-savi-stream; boundary=frame"; got != want {
		t.Errorf("MediaType() = %q, want %q", got, want)
	}
}

func TestHeaderOrderPreserved(t *testing.T) {
	chunk := Chunk{
		Headers: []Header{{"B", "2"}, {"A", "1"}},
		Body:    []byte("x"),
	}
	chunks, err := Split(Encode("b", chunk), "b")
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if len(chunks) != 1 || len(chunks[0].Headers) != 2 {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
	if chunks[0].Headers[0].Key != "B" || chunks[0].Headers[1].Key != "A" {
		t.Errorf("header order not preserved: %+v", chunks[0].Headers)
	}
}
