// SPDX-License-Identifier: MIT

// Package multipart frames per-frame propagation results into a
// self-describing boundary-delimited byte stream (multipart/x-savi-stream).
//
// Each chunk is the boundary marker on its own line, one "Key: Value" line
// per header, a blank line, then the raw body. There is no length prefix;
// receivers split on the boundary, so body payloads must not contain the
// literal boundary marker. Mask encodings satisfy this by construction.
package multipart

import (
	"bytes"
	"fmt"
	"strconv"
)

// Header keys required on every frame chunk.
const (
	HeaderContentType  = "Content-Type"
	HeaderFrameCurrent = "Frame-Current"
	HeaderFrameTotal   = "Frame-Total"
	HeaderMaskType     = "Mask-Type"
)

// ContentTypeJSON is the body content type of a frame result chunk.
const ContentTypeJSON = "application/json; charset=utf-8"

// FrameUnknown marks a frame index or total that is unknown at the codec
// boundary.
const FrameUnknown = -1

// MaskTypeRLE tags the run-length-encoded mask payload format.
const MaskTypeRLE = "RLE[]"

const streamContentType = "multipart/x-savi-stream"

// Header is a single ordered chunk header.
type Header struct {
	Key   string
	Value string
}

// Chunk is one self-delimited unit of the framed stream.
type Chunk struct {
	Headers []Header
	Body    []byte
}

// FrameChunk assembles a chunk carrying one frame result with the four
// required headers in canonical order.
func FrameChunk(frameCurrent, frameTotal int, maskType string, body []byte) Chunk {
	return Chunk{
		Headers: []Header{
			{HeaderContentType, ContentTypeJSON},
			{HeaderFrameCurrent, strconv.Itoa(frameCurrent)},
			{HeaderFrameTotal, strconv.Itoa(frameTotal)},
			{HeaderMaskType, maskType},
		},
		Body: body,
	}
}

// MediaType returns the response content type for a stream using boundary.
func MediaType(boundary string) string {
	return streamContentType + "; boundary=" + boundary
}

// Encode serializes one chunk. Header keys and values must not contain CR or
// LF; that is the caller's responsibility.
func Encode(boundary string, c Chunk) []byte {
	var buf bytes.Buffer
	buf.Grow(len(c.Body) + 128)
	buf.WriteString("--")
	buf.WriteString(boundary)
	buf.WriteString("\r\n")
	for _, h := range c.Headers {
		buf.WriteString(h.Key)
		buf.WriteString(": ")
		buf.WriteString(h.Value)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	buf.Write(c.Body)
	buf.WriteString("\r\n")
	return buf.Bytes()
}

// Split is the inverse of Encode: it cuts a byte stream on the boundary
// marker and recovers the chunks with headers and bodies intact.
func Split(stream []byte, boundary string) ([]Chunk, error) {
	delim := []byte("--" + boundary + "\r\n")
	parts := bytes.Split(stream, delim)
	chunks := make([]Chunk, 0, len(parts))
	for i, part := range parts {
		if len(part) == 0 {
			if i == 0 {
				continue // stream begins with the boundary marker
			}
			return nil, fmt.Errorf("chunk %d: empty part", i)
		}
		if i == 0 {
			return nil, fmt.Errorf("stream does not begin with boundary %q", boundary)
		}
		c, err := parseChunk(part)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

func parseChunk(part []byte) (Chunk, error) {
	sep := []byte("\r\n\r\n")
	idx := bytes.Index(part, sep)
	if idx < 0 {
		return Chunk{}, fmt.Errorf("missing header terminator")
	}
	var c Chunk
	for _, line := range bytes.Split(part[:idx], []byte("\r\n")) {
		key, value, ok := bytes.Cut(line, []byte(": "))
		if !ok {
			return Chunk{}, fmt.Errorf("malformed header line %q", line)
		}
		c.Headers = append(c.Headers, Header{Key: string(key), Value: string(value)})
	}
	body := part[idx+len(sep):]
	c.Body = bytes.TrimSuffix(body, []byte("\r\n"))
	return c, nil
}
