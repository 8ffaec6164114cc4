package resolution

import (
	"reflect"
	"testing"
)

func TestSessionDismissIsIdempotent(t *testing.T) {
	t.Parallel()

	session := NewSession()
	session.Dismiss(41)
	session.Dismiss(12)
	session.Dismiss(41)

	if session.Len() != 2 {
		t.Fatalf("len = %d, want 2", session.Len())
	}
	if !session.Dismissed(41) || !session.Dismissed(12) {
		t.Fatal("dismissed ids not recorded")
	}
	if session.Dismissed(99) {
		t.Fatal("unknown id reported as dismissed")
	}
	if !reflect.DeepEqual(session.IDs(), []int64{41, 12}) {
		t.Fatalf("ids = %v, want dismissal order preserved", session.IDs())
	}
}

func TestSessionNilReceiver(t *testing.T) {
	t.Parallel()

	var session *Session
	if session.Dismissed(1) {
		t.Fatal("nil session reported a dismissal")
	}
	if ids := session.IDs(); len(ids) != 0 {
		t.Fatalf("nil session ids = %v", ids)
	}
	if session.Len() != 0 {
		t.Fatalf("nil session len = %d", session.Len())
	}
}
