package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pion/webrtc/v4"
)

// HTTPSignaler performs a WHIP-style SDP offer/answer exchange: POST the
// offer's SDP body to roomURL, read the answer SDP back from the response
// body. This is a minimal, concrete Signaler implementation; the room
// SFU's actual signaling protocol is external to this module's scope (see
// the Signaler doc comment in webrtc.go), so this exists only to give
// cmd/gateway something real to construct and is not grounded in a
// specific room SDK's wire format.
type HTTPSignaler struct {
	RoomURL   string
	RoomToken string
	Client    *http.Client
}

// NewHTTPSignaler constructs a signaler with a sane default HTTP client.
func NewHTTPSignaler(roomURL, roomToken string) *HTTPSignaler {
	return &HTTPSignaler{RoomURL: roomURL, RoomToken: roomToken, Client: http.DefaultClient}
}

func (s *HTTPSignaler) Exchange(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.RoomURL, bytes.NewBufferString(offer.SDP))
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("transport: build signaling request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sdp")
	if s.RoomToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.RoomToken)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("transport: signaling request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return webrtc.SessionDescription{}, fmt.Errorf("transport: signaling status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("transport: read signaling answer: %w", err)
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: string(body)}, nil
}
