package gatewaysession

import "testing"

func TestNewStateDefaults(t *testing.T) {
	s := NewState("sess-1", DefaultConfig())
	if s.SessionID() != "sess-1" {
		t.Errorf("expected session id 'sess-1', got %q", s.SessionID())
	}
	if s.IsSpeaking() {
		t.Errorf("expected not speaking initially")
	}
}

func TestStateSpeakingTransitions(t *testing.T) {
	s := NewState("sess-2", DefaultConfig())
	s.SetSpeaking(true)
	if !s.IsSpeaking() {
		t.Errorf("expected speaking after SetSpeaking(true)")
	}
	s.SetSpeaking(false)
	if s.IsSpeaking() {
		t.Errorf("expected not speaking after SetSpeaking(false)")
	}
}

func TestNextSeqMonotonic(t *testing.T) {
	s := NewState("sess-3", DefaultConfig())
	a := s.NextSeq()
	b := s.NextSeq()
	if b != a+1 {
		t.Errorf("expected monotonic sequence, got %d then %d", a, b)
	}
}

func TestNewObserverEventStamping(t *testing.T) {
	s := NewState("sess-4", DefaultConfig())
	s.SetUtteranceID("utt-1")
	ev := s.NewObserverEvent(ObserverVADStart, nil)
	if ev.SessionID != "sess-4" {
		t.Errorf("expected session id stamped, got %q", ev.SessionID)
	}
	if ev.UtteranceID != "utt-1" {
		t.Errorf("expected utterance id stamped, got %q", ev.UtteranceID)
	}
	if ev.Seq == 0 {
		t.Errorf("expected non-zero sequence number")
	}
}
