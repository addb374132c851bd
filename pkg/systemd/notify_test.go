package systemd

import (
	"errors"
	"testing"
)

func TestNotifierMessages(t *testing.T) {
	t.Parallel()
	var got []string
	n := &Notifier{send: func(state string) (bool, error) {
		got = append(got, state)
		return true, nil
	}}
	if err := n.Ready(); err != nil {
		t.Fatal(err)
	}
	if err := n.Status("connected; %d unsent", 3); err != nil {
		t.Fatal(err)
	}
	if err := n.Stopping(); err != nil {
		t.Fatal(err)
	}
	want := []string{"READY=1", "STATUS=connected; 3 unsent", "STOPPING=1"}
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("message %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNotifierErrorAndNil(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	n := &Notifier{send: func(string) (bool, error) { return false, boom }}
	if err := n.Ready(); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	var nilN *Notifier
	if err := nilN.Ready(); err != nil {
		t.Fatalf("nil notifier err = %v", err)
	}
}
