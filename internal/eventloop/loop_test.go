package eventloop

import (
	"context"
	"testing"
	"time"
)

func TestLoop_RunsInPostOrder(t *testing.T) {
	l := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	var got []int
	for i := 0; i < 50; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	if err := l.Do(waitCtx, func() {}); err != nil {
		t.Fatalf("Do: %v", err)
	}

	if len(got) != 50 {
		t.Fatalf("len=%d, erwartet 50", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d]=%d, Reihenfolge verletzt", i, v)
		}
	}
}

func TestLoop_SurvivesPanic(t *testing.T) {
	l := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	l.Post(func() { panic("boom") })

	ran := false
	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	if err := l.Do(waitCtx, func() { ran = true }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !ran {
		t.Fatalf("Loop hat nach Panik nicht weitergearbeitet")
	}
}

func TestLoop_PostAfterCloseIsDropped(t *testing.T) {
	l := New(nil)
	l.Close()
	l.Post(func() { t.Fatalf("darf nicht laufen") })
	select {
	case <-l.Done():
	default:
		t.Fatalf("Done sollte geschlossen sein")
	}
}

func TestInline_NestedPostsKeepFIFO(t *testing.T) {
	in := NewInline()
	var order []string
	in.Post(func() {
		order = append(order, "a")
		in.Post(func() { order = append(order, "c") })
		order = append(order, "b")
	})
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("order=%v, erwartet [a b c]", order)
	}
}
