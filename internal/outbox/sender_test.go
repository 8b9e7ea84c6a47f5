package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/gettogether/peersync/internal/bridge"
	"github.com/gettogether/peersync/internal/messages"
)

type fakeAppender struct {
	msgs []messages.Message
}

func (f *fakeAppender) Append(_ string, msg messages.Message) {
	f.msgs = append(f.msgs, msg)
}

type fakeBans struct {
	calls [][]string
}

func (f *fakeBans) RefreshBanStatus(_ context.Context, _ string, uris []string) {
	f.calls = append(f.calls, uris)
}

// newTestSender returns a sender with an instant, recorded sleep.
func newTestSender(b bridge.Bridge, app *fakeAppender, bans *fakeBans, delays *[]time.Duration) *Sender {
	holder := bridge.NewHolder()
	holder.Attach(b)
	// A typed-nil *fakeBans must become a nil interface, or the sender's
	// nil check passes and the nil fake gets called.
	var refresher BanRefresher
	if bans != nil {
		refresher = bans
	}
	s := NewSender(holder, app, refresher, nil, zap.NewNop(), DefaultOptions())
	s.sleep = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return s
}

func TestSendSuccessAppendsOptimistic(t *testing.T) {
	app := &fakeAppender{}
	var delays []time.Duration
	s := newTestSender(&bridge.Fake{
		SendMessageFunc: func(context.Context, string, string, string, string) (string, error) {
			return "srv-1", nil
		},
	}, app, nil, &delays)

	msg, err := s.Send(context.Background(), "acc1", "conv1", "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.ID != "srv-1" || msg.Status != messages.StatusSent || msg.Body != "hello" {
		t.Errorf("optimistic message = %+v", msg)
	}
	if len(app.msgs) != 1 {
		t.Errorf("appended %d messages, want 1", len(app.msgs))
	}
	if len(delays) != 0 {
		t.Errorf("success slept %d times", len(delays))
	}
}

func TestNonBanErrorFailsImmediately(t *testing.T) {
	attempts := 0
	var delays []time.Duration
	app := &fakeAppender{}
	s := newTestSender(&bridge.Fake{
		SendMessageFunc: func(context.Context, string, string, string, string) (string, error) {
			attempts++
			return "", errors.New("network unreachable")
		},
	}, app, nil, &delays)

	if _, err := s.Send(context.Background(), "acc1", "conv1", "hello"); err == nil {
		t.Fatal("Send succeeded, want failure")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry)", attempts)
	}
	if len(delays) != 0 {
		t.Errorf("slept %d times, want 0", len(delays))
	}
	if len(app.msgs) != 0 {
		t.Errorf("appended on failure: %d", len(app.msgs))
	}
}

func TestBanErrorRetriesWithBackoff(t *testing.T) {
	attempts := 0
	var delays []time.Duration
	bans := &fakeBans{}
	s := newTestSender(&bridge.Fake{
		SendMessageFunc: func(context.Context, string, string, string, string) (string, error) {
			attempts++
			return "", errors.New("Permission Denied")
		},
		GetConversationMembersFunc: func(context.Context, string, string) ([]bridge.Member, error) {
			return []bridge.Member{{URI: "peer1"}, {URI: "peer2"}}, nil
		},
	}, &fakeAppender{}, bans, &delays)

	_, err := s.Send(context.Background(), "acc1", "conv1", "hello")
	if !errors.Is(err, ErrSendRejected) {
		t.Fatalf("err = %v, want ErrSendRejected", err)
	}
	if attempts != 4 {
		t.Errorf("attempts = %d, want 1 initial + 3 retries", attempts)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for n := range want {
		if delays[n] != want[n] {
			t.Errorf("delay %d = %v, want %v", n, delays[n], want[n])
		}
	}
	if len(bans.calls) != 3 {
		t.Errorf("ban refreshes = %d, want one per retry", len(bans.calls))
	}
	if len(bans.calls) > 0 && len(bans.calls[0]) != 2 {
		t.Errorf("ban refresh uris = %v, want both members", bans.calls[0])
	}
}

func TestBanErrorRecoversMidRetry(t *testing.T) {
	attempts := 0
	var delays []time.Duration
	app := &fakeAppender{}
	s := newTestSender(&bridge.Fake{
		SendMessageFunc: func(context.Context, string, string, string, string) (string, error) {
			attempts++
			if attempts < 3 {
				return "", errors.New("you are blocked")
			}
			return "srv-9", nil
		},
	}, app, nil, &delays)

	msg, err := s.Send(context.Background(), "acc1", "conv1", "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.ID != "srv-9" {
		t.Errorf("msg.ID = %q", msg.ID)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if len(delays) != 2 {
		t.Errorf("slept %d times, want 2", len(delays))
	}
}

func TestRetryCancelledByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	holder := bridge.NewHolder()
	holder.Attach(&bridge.Fake{
		SendMessageFunc: func(context.Context, string, string, string, string) (string, error) {
			return "", errors.New("forbidden")
		},
	})
	s := NewSender(holder, nil, nil, nil, zap.NewNop(), DefaultOptions())
	s.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	if _, err := s.Send(ctx, "acc1", "conv1", "hello"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestBanKeywordMatching(t *testing.T) {
	for _, text := range []string{
		"ban detected", "peer Blocked you", "operation not allowed",
		"403 Forbidden", "permission denied by policy",
	} {
		if !isBanError(errors.New(text)) {
			t.Errorf("%q not detected as ban error", text)
		}
	}
	for _, text := range []string{"timeout", "connection refused"} {
		if isBanError(errors.New(text)) {
			t.Errorf("%q wrongly detected as ban error", text)
		}
	}
}
