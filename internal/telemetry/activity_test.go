package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/paddy-dryer-core/internal/auth"
)

type fakeSignaler struct {
	kinds []string
	err   error
}

func (s *fakeSignaler) Signal(_ context.Context, kind string) (bool, error) {
	s.kinds = append(s.kinds, kind)
	return auth.IsInteraction(kind), s.err
}

func TestActivityHandler(t *testing.T) {
	sig := &fakeSignaler{}
	handle := ActivityHandler(sig, "kiosk-1")

	if err := handle("paddydryer/terminal/kiosk-1/activity", []byte(`{"kind":"keydown"}`)); err != nil {
		t.Errorf("handler error = %v", err)
	}
	if err := handle("paddydryer/terminal/kiosk-2/activity", []byte(`{"kind":"keydown"}`)); err != nil {
		t.Errorf("other terminal error = %v", err)
	}
	if err := handle("paddydryer/terminal/kiosk-1/activity", []byte(`not json`)); err == nil {
		t.Error("bad payload should return an error")
	}
	if err := handle("paddydryer/dryer/1/status", []byte(`{}`)); err == nil {
		t.Error("wrong topic should return an error")
	}

	if len(sig.kinds) != 1 || sig.kinds[0] != "keydown" {
		t.Errorf("signals = %v, want [keydown]", sig.kinds)
	}
}

func TestActivityHandler_AnyTerminal(t *testing.T) {
	sig := &fakeSignaler{}
	handle := ActivityHandler(sig, "")

	for _, id := range []string{"kiosk-1", "kiosk-2"} {
		if err := handle("paddydryer/terminal/"+id+"/activity", []byte(`{"kind":"scroll"}`)); err != nil {
			t.Fatal(err)
		}
	}
	if len(sig.kinds) != 2 {
		t.Errorf("signals = %v, want two", sig.kinds)
	}
}

func TestActivityHandler_SignalError(t *testing.T) {
	cause := errors.New("kv store unavailable")
	handle := ActivityHandler(&fakeSignaler{err: cause}, "kiosk-1")

	err := handle("paddydryer/terminal/kiosk-1/activity", []byte(`{"kind":"pointerdown"}`))
	if !errors.Is(err, cause) {
		t.Errorf("handler error = %v, want wrapped cause", err)
	}
}

func TestForcedLogoutAnnouncer(t *testing.T) {
	pub := &fakePublisher{}
	announce := ForcedLogoutAnnouncer(pub, "kiosk-1", func() time.Time { return testNow }, nil)

	announce(auth.EndInactive)

	msgs := pub.byTopic("paddydryer/terminal/kiosk-1/session")
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	var got SessionMessage
	if err := json.Unmarshal(msgs[0].payload, &got); err != nil {
		t.Fatal(err)
	}
	want := SessionMessage{Event: "forced_logout", Reason: "inactive", At: "2025-10-29T10:00:00Z"}
	if got != want {
		t.Errorf("message = %+v, want %+v", got, want)
	}
}
