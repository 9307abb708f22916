package event

import (
	"context"
	"errors"
	"testing"
)

type recorder struct {
	got []Event
	err error
}

func (r *recorder) Publish(_ context.Context, e Event) error {
	r.got = append(r.got, e)
	return r.err
}

func TestFanoutDeliversToAll(t *testing.T) {
	failing := &recorder{err: errors.New("broker down")}
	ok := &recorder{}

	err := Fanout{failing, ok}.Publish(context.Background(), Event{Type: ResultCreated, ExamID: "e1"})
	if err == nil {
		t.Fatal("expected the failing publisher's error")
	}
	if len(ok.got) != 1 || len(failing.got) != 1 {
		t.Fatalf("every publisher must receive the event: ok=%d failing=%d", len(ok.got), len(failing.got))
	}
}

func TestNopPublisher(t *testing.T) {
	if err := (Nop{}).Publish(context.Background(), Event{}); err != nil {
		t.Fatalf("nop publish: %v", err)
	}
}
