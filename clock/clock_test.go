package clock

import (
	"testing"
	"time"

	"github.com/playgraph/tiger/mediatime"
)

func TestInitialState(t *testing.T) {
	sc := New()
	master, err := sc.GetClock(RoleMaster)
	if err != nil {
		t.Fatal(err)
	}
	slave, err := sc.GetClock(RoleSlave)
	if err != nil {
		t.Fatal(err)
	}

	for _, c := range []*Clock{master, slave} {
		if c.Get().Microseconds() != 0 {
			t.Fatalf("expected 0, got %v", c.Get())
		}
		if !c.IsPaused() {
			t.Fatal("expected paused")
		}
		if c.Speed() != 1.0 {
			t.Fatalf("expected speed 1.0, got %v", c.Speed())
		}
	}
}

func TestOnlyOneMaster(t *testing.T) {
	sc := New()
	_, err := sc.GetClock(RoleMaster)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sc.GetClock(RoleMaster); err != ErrMasterExists {
		t.Fatalf("expected ErrMasterExists, got %v", err)
	}
}

func TestSetPropagatesToAllObservers(t *testing.T) {
	sc := New()
	master, _ := sc.GetClock(RoleMaster)
	slave, _ := sc.GetClock(RoleSlave)

	sc.Set(mediatime.FromMicroseconds(500))
	if got := master.Get().Microseconds(); got != 500 {
		t.Fatalf("master.Get() = %d, want 500", got)
	}
	if got := slave.Get().Microseconds(); got != 500 {
		t.Fatalf("slave.Get() = %d, want 500", got)
	}
}

func TestStartThenMasterUpdateAdvancesAllObservers(t *testing.T) {
	sc := New()
	master, _ := sc.GetClock(RoleMaster)
	slave, _ := sc.GetClock(RoleSlave)

	sc.Start()
	master.Start()
	master.Update(mediatime.FromMicroseconds(1000))

	time.Sleep(5 * time.Millisecond)

	if got := master.Get().Microseconds(); got < 1000 {
		t.Fatalf("master.Get() = %d, want >= 1000", got)
	}
	if got := slave.Get().Microseconds(); got < 1000 {
		t.Fatalf("slave.Get() = %d, want >= 1000", got)
	}
}

func TestMasterReleaseFreesSlot(t *testing.T) {
	sc := New()
	master, _ := sc.GetClock(RoleMaster)
	master.Release()

	if _, err := sc.GetClock(RoleMaster); err != nil {
		t.Fatalf("expected new master after release, got %v", err)
	}
}

func TestListenerFiresOnStateChanges(t *testing.T) {
	sc := New()
	slave, _ := sc.GetClock(RoleSlave)

	var got []State
	slave.SetListener(func(s State) { got = append(got, s) })

	sc.Start()
	sc.Set(mediatime.FromMicroseconds(10))
	sc.Pause()

	want := []State{StateTicking, StateTimeChanged, StatePaused}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
