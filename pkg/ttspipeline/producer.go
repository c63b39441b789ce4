// Package ttspipeline implements the TTS streaming pipeline: a blocking
// HTTP PCM producer feeding a bounded queue, and a single-threaded consumer
// that prebuffers and then paces frames onto the transport at 20ms
// intervals. Grounded on the teacher's pkg/providers/tts/lokutor.go
// streaming idiom (StreamSynthesize's onChunk callback over a persistent
// connection), adapted from its websocket transport to the HTTP contract
// named in SPEC_FULL.md §6, and on pkg/orchestrator/managed_stream.go's
// goroutine/context/sync.Once discipline for the consumer side.
package ttspipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lokutor-ai/lokutor-voicegateway/pkg/gatewaysession"
)

const frameBytes = 1920 // 20ms of 48kHz mono PCM16

// Frame is one queue element. A nil Data marks end-of-stream (the
// sentinel); the producer always enqueues exactly one sentinel, even on
// error, per SPEC_FULL.md §4.4.
type Frame struct {
	Data []byte
}

// Producer issues one streaming HTTP TTS request per utterance and slices
// the response into exact 1920-byte frames.
type Producer struct {
	client *http.Client
	cfg    gatewaysession.Config
	logger gatewaysession.Logger
}

// NewProducer constructs a Producer bound to cfg's TTS HTTP knobs.
func NewProducer(cfg gatewaysession.Config, logger gatewaysession.Logger) *Producer {
	if logger == nil {
		logger = gatewaysession.NoOpLogger{}
	}
	return &Producer{
		client: &http.Client{},
		cfg:    cfg,
		logger: logger,
	}
}

// Run issues the TTS request for text and streams aligned 1920-byte frames
// into out, blocking when out is full (this is the pipeline's
// backpressure). Exactly one sentinel Frame{Data: nil} is enqueued when Run
// returns, whatever the outcome. stop, when closed, abandons the read loop
// early (the stop flag from the distilled spec's consumer cleanup path).
func (p *Producer) Run(ctx context.Context, voiceID, text string, out chan<- Frame, metrics *Metrics, stop <-chan struct{}) {
	defer func() { out <- Frame{Data: nil} }()

	metrics.RequestSentAt = time.Now()

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		p.logger.Error("tts_producer_marshal_error", "err", err)
		return
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s/stream?output_format=pcm_48000", p.cfg.TTSBaseURL, voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		p.logger.Error("tts_producer_request_error", "err", err)
		return
	}
	req.Header.Set("xi-api-key", p.cfg.XIAPIKey)
	req.Header.Set("content-type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Error("tts_producer_http_error", "err", err)
		return
	}
	defer resp.Body.Close()
	metrics.HeadersReceivedAt = time.Now()

	if resp.StatusCode != http.StatusOK {
		p.logger.Error("tts_producer_http_error", "status", resp.StatusCode)
		return
	}

	totalDeadline := time.Now().Add(time.Duration(p.cfg.TTSTotalTimeoutSec) * time.Second)
	chunkTimeout := time.Duration(p.cfg.TTSReadTimeoutSec) * time.Second

	var align []byte // holds a trailing odd byte between reads
	var totalRead int64
	buf := make([]byte, 32*1024)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}
		if time.Now().After(totalDeadline) {
			p.logger.Warn("tts_read_timeout", "reason", "total_timeout")
			return
		}

		n, err := readWithTimeout(resp.Body, buf, chunkTimeout)
		if n > 0 {
			if metrics.FirstChunkAt.IsZero() {
				metrics.FirstChunkAt = time.Now()
			}
			totalRead += int64(n)
			if totalRead > p.cfg.TTSMaxBytes {
				p.logger.Warn("tts_truncated", "reason", "max_bytes_exceeded")
				return
			}
			metrics.TotalChunks++
			metrics.TotalBytes += n

			align = append(align, buf[:n]...)
			nFrames := len(align) / frameBytes
			for i := 0; i < nFrames; i++ {
				frame := make([]byte, frameBytes)
				copy(frame, align[i*frameBytes:(i+1)*frameBytes])
				if metrics.FirstFrameQueuedAt.IsZero() {
					metrics.FirstFrameQueuedAt = time.Now()
				}
				select {
				case out <- Frame{Data: frame}:
				case <-stop:
					return
				case <-ctx.Done():
					return
				}
			}
			align = align[nFrames*frameBytes:]
		}
		if err != nil {
			if err != io.EOF {
				p.logger.Warn("tts_read_timeout_or_error", "err", err)
			}
			return
		}
	}
}

// readWithTimeout reads once from r with a bound on how long the read may
// take, since http.Response.Body offers no per-read deadline. A timed-out
// read's goroutine is abandoned rather than joined; the caller treats a
// timeout identically to end-of-stream.
func readWithTimeout(r io.Reader, buf []byte, timeout time.Duration) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := r.Read(buf)
		ch <- result{n, err}
	}()
	select {
	case res := <-ch:
		return res.n, res.err
	case <-time.After(timeout):
		return 0, errReadTimeout
	}
}

var errReadTimeout = fmt.Errorf("tts read timeout")
