package eventbridge

import (
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kingrea/focus/internal/metrics"
)

type note struct {
	ID   string
	Body string
}

func TestRouterDeliversToKeyAndWildcard(t *testing.T) {
	router := NewRouter[note]("test-keyed", RouterWithSubscriberCapacity(4))
	alpha := router.Subscribe(" alpha ")
	defer alpha.Close()
	all := router.Subscribe(Wildcard)
	defer all.Close()
	beta := router.Subscribe("beta")
	defer beta.Close()

	if n := router.Route("alpha", note{ID: "1"}); n != 2 {
		t.Fatalf("expected two deliveries, got %d", n)
	}
	if got := <-alpha.Events; got.ID != "1" {
		t.Fatalf("unexpected keyed event %+v", got)
	}
	if got := <-all.Events; got.ID != "1" {
		t.Fatalf("unexpected wildcard event %+v", got)
	}
	select {
	case got := <-beta.Events:
		t.Fatalf("beta should not see alpha events, got %+v", got)
	default:
	}
}

func TestRouterKeysAreCaseSensitive(t *testing.T) {
	router := NewRouter[note]("test-case")
	upper := router.Subscribe("Focus")
	defer upper.Close()
	lower := router.Subscribe("focus")
	defer lower.Close()

	if n := router.Route("focus", note{ID: "lower"}); n != 1 {
		t.Fatalf("expected one delivery, got %d", n)
	}
	select {
	case got := <-upper.Events:
		t.Fatalf("Focus subscriber received %+v routed to focus", got)
	default:
	}
	if got := <-lower.Events; got.ID != "lower" {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestRouterDoesNotReplay(t *testing.T) {
	router := NewRouter[note]("test-replay")
	router.Route("alpha", note{ID: "early"})
	sub := router.Subscribe("alpha")
	defer sub.Close()
	select {
	case got := <-sub.Events:
		t.Fatalf("late subscriber must not see %+v", got)
	default:
	}
}

func TestRouterDropsSlowSubscriber(t *testing.T) {
	const name = "test-drop"
	router := NewRouter[note](name, RouterWithSubscriberCapacity(1))
	slow := router.Subscribe("alpha")
	fast := router.Subscribe("alpha")
	defer fast.Close()

	router.Route("alpha", note{ID: "1"})
	<-fast.Events
	router.Route("alpha", note{ID: "2"})

	if got := <-fast.Events; got.ID != "2" {
		t.Fatalf("fast subscriber should keep receiving, got %+v", got)
	}
	if got := <-slow.Events; got.ID != "1" {
		t.Fatalf("slow subscriber keeps what it buffered, got %+v", got)
	}
	if _, open := <-slow.Events; open {
		t.Fatalf("slow subscriber channel should be closed")
	}
	if router.Subscribers() != 1 {
		t.Fatalf("expected one remaining subscriber, got %d", router.Subscribers())
	}
	if drops := testutil.ToFloat64(metrics.SubscriberDropCounter(name)); drops != 1 {
		t.Fatalf("expected one recorded drop, got %v", drops)
	}
	slow.Close()
}

func TestRouterCloseEndsSubscriptions(t *testing.T) {
	router := NewRouter[note]("test-close")
	sub := router.Subscribe("alpha")
	router.Close()
	if _, open := <-sub.Events; open {
		t.Fatalf("expected closed channel")
	}
	sub.Close()
	late := router.Subscribe("alpha")
	if _, open := <-late.Events; open {
		t.Fatalf("subscriptions after close should start closed")
	}
	if n := router.Route("alpha", note{ID: "x"}); n != 0 {
		t.Fatalf("closed router must not deliver")
	}
}

func TestSequencerWrap(t *testing.T) {
	seq := NewSequencer()
	first, err := seq.Wrap("setting.changed", "timer", note{ID: "1", Body: "hi"})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	second, err := seq.Wrap("setting.changed", "timer", note{ID: "2"})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if first.Sequence != 1 || second.Sequence != 2 || first.EventID == second.EventID {
		t.Fatalf("unexpected envelopes %+v %+v", first, second)
	}
	if err := first.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	var decoded note
	if err := json.Unmarshal(first.Payload, &decoded); err != nil || decoded.Body != "hi" {
		t.Fatalf("unexpected payload %s", first.Payload)
	}
	first.Version = 99
	if err := first.Validate(); err == nil {
		t.Fatalf("expected version error")
	}
}
