package orchestratorclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lokutor-ai/lokutor-voicegateway/pkg/ttspipeline"
)

func TestSendSessionOpenDeliversOverStream(t *testing.T) {
	received := make(chan outboundEvent, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		var ev outboundEvent
		if err := wsjson.Read(r.Context(), conn, &ev); err != nil {
			return
		}
		received <- ev
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := New(strings.TrimPrefix(srv.URL, "http://"), "sess-1", nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	c.SendSessionOpen("https://room.example/abc")

	select {
	case ev := <-received:
		if ev.SessionOpen == nil || ev.SessionOpen.RoomURL != "https://room.example/abc" {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if ev.SessionID != "sess-1" {
			t.Errorf("expected session id sess-1, got %s", ev.SessionID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session_open")
	}
}

func TestArmBargeInCommandInvokesCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		wsjson.Write(r.Context(), conn, inboundCommand{ArmBargeIn: &armBargeInCmd{GuardMS: 1200, MinRMS: 1500}})
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := New(strings.TrimPrefix(srv.URL, "http://"), "sess-2", nil)
	got := make(chan [2]int, 1)
	c.OnArmBargeIn = func(guardMS, minRMS int) { got <- [2]int{guardMS, minRMS} }
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	select {
	case g := <-got:
		if g[0] != 1200 || g[1] != 1500 {
			t.Errorf("expected [1200 1500], got %v", g)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for arm_barge_in dispatch")
	}
}

func TestFeatureCoalescingSendsOnlyOnSignificantChange(t *testing.T) {
	eventsCh := make(chan outboundEvent, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			var ev outboundEvent
			if err := wsjson.Read(r.Context(), conn, &ev); err != nil {
				return
			}
			eventsCh <- ev
		}
	}))
	defer srv.Close()

	c := New(strings.TrimPrefix(srv.URL, "http://"), "sess-3", nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	c.SetRMS(100.0)
	c.SetRMS(100.05) // below the 1.0 epsilon, should not trigger a second send

	select {
	case ev := <-eventsCh:
		if ev.Feature == nil || ev.Feature.RMS != 100.05 {
			t.Fatalf("expected coalesced feature with latest value, got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feature send")
	}

	select {
	case ev := <-eventsCh:
		t.Fatalf("unexpected second feature send within epsilon: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSendTTSStoppedCarriesReason(t *testing.T) {
	eventsCh := make(chan outboundEvent, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			var ev outboundEvent
			if err := wsjson.Read(r.Context(), conn, &ev); err != nil {
				return
			}
			eventsCh <- ev
		}
	}))
	defer srv.Close()

	c := New(strings.TrimPrefix(srv.URL, "http://"), "sess-4", nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	c.SendTTSStopped(ttspipeline.ReasonInterrupted, map[string]interface{}{"ignored": true})

	select {
	case ev := <-eventsCh:
		if ev.TTS == nil || ev.TTS.Type != "stopped" || ev.TTS.Reason != "interrupted" {
			t.Fatalf("unexpected tts event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tts stopped event")
	}
}
