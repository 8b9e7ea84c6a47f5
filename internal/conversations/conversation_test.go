package conversations

import (
	"fmt"
	"testing"
)

func TestReplaceIsScopedToAccount(t *testing.T) {
	c := NewCache()
	c.Replace("acc1", []Conversation{{ID: "conv1", AccountID: "acc1"}})
	c.Replace("acc2", []Conversation{{ID: "conv2", AccountID: "acc2"}})

	c.Replace("acc1", []Conversation{{ID: "conv3", AccountID: "acc1"}})

	if _, ok := c.Get("acc1", "conv1"); ok {
		t.Error("conv1 survived the replace")
	}
	if _, ok := c.Get("acc1", "conv3"); !ok {
		t.Error("conv3 missing after replace")
	}
	if got := len(c.List("acc2")); got != 1 {
		t.Errorf("acc2 count = %d, want 1 (untouched by acc1 replace)", got)
	}
}

func TestReplaceNeverExposesPartialState(t *testing.T) {
	c := NewCache()
	c.Replace("acc1", []Conversation{{ID: "conv0", AccountID: "acc1"}})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			id := fmt.Sprintf("conv%d", i)
			c.Replace("acc1", []Conversation{{ID: id, AccountID: "acc1"}})
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		if got := len(c.List("acc1")); got != 1 {
			t.Fatalf("reader saw %d conversations mid-replace, want 1", got)
		}
	}
}
