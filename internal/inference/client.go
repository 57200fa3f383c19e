// SPDX-License-Identifier: MIT

package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client talks to an inference engine over HTTP. The engine answers
// propagation requests with a stream of newline-delimited JSON frame
// results, which the client exposes lazily so transport backpressure
// reaches the engine connection.
type Client struct {
	base string
	http *http.Client
}

// New returns a client for the engine at base. The underlying HTTP client
// carries no global timeout: propagation streams are long-lived and are
// bounded by the request context instead.
func New(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{},
	}
}

// PropagateInVideo starts propagation on the engine and returns the lazy
// frame result stream. The caller must Close the stream.
func (c *Client) PropagateInVideo(ctx context.Context, req PropagateRequest) (Stream, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/propagate_in_video", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("engine request: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		_ = res.Body.Close()
		return nil, fmt.Errorf("engine returned %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	return &jsonStream{dec: json.NewDecoder(res.Body), body: res.Body}, nil
}

type jsonStream struct {
	dec  *json.Decoder
	body io.ReadCloser
}

func (s *jsonStream) Next() (*FrameResult, error) {
	var fr FrameResult
	if err := s.dec.Decode(&fr); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("decode frame result: %w", err)
	}
	return &fr, nil
}

func (s *jsonStream) Close() error {
	return s.body.Close()
}
