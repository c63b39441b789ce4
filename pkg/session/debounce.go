package session

import (
	"strings"
	"sync"
	"time"
)

// ttsDebouncer accumulates orchestrator-streamed LLM sentence fragments
// and flushes them as one phrase after debounceMS of silence, restarting
// the timer on every new fragment. Grounded on
// original_source/gateway/main.py's _on_start_tts/_flush_tts_accum pair
// (state['tts_accum_buf'] + a cancel-and-restart asyncio task), translated
// into a restartable time.Timer.
type ttsDebouncer struct {
	mu     sync.Mutex
	buf    []string
	timer  *time.Timer
	delay  time.Duration
	onFlush func(phrase string)
}

func newTTSDebouncer(delay time.Duration, onFlush func(phrase string)) *ttsDebouncer {
	return &ttsDebouncer{delay: delay, onFlush: onFlush}
}

// Add appends text to the accumulator and (re)starts the flush timer.
func (d *ttsDebouncer) Add(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf = append(d.buf, text)
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *ttsDebouncer) flush() {
	d.mu.Lock()
	buf := d.buf
	d.buf = nil
	d.mu.Unlock()

	phrase := strings.TrimSpace(strings.Join(buf, " "))
	if phrase == "" {
		return
	}
	d.onFlush(phrase)
}

// Stop cancels any pending flush without invoking the callback.
func (d *ttsDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.buf = nil
}
