package callsession

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"amora-platform/internal/callstore"
)

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func (e *env) status(t *testing.T, callID string) callstore.Status {
	t.Helper()
	rec, err := e.calls.Get(context.Background(), callID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	return rec.Status
}

func TestOutgoingCall_FullLifecycle(t *testing.T) {
	e := newEnv(10_000)
	ctx := context.Background()

	callerClosed := make(chan EndReason, 1)
	calleeClosed := make(chan EndReason, 1)
	notices := &noticeLog{}
	ring := &fakeRingtone{}

	caller := e.session(notices, callerClosed, nil)
	callee := e.session(nil, calleeClosed, ring)

	if err := caller.StartOutgoing(ctx, "caller", "callee"); err != nil {
		t.Fatalf("start outgoing: %v", err)
	}
	if caller.State() != StateRinging {
		t.Fatalf("caller state = %s, want ringing", caller.State())
	}
	callID := caller.Record().ID

	if err := callee.AttachIncoming(ctx, callID, "callee"); err != nil {
		t.Fatalf("attach incoming: %v", err)
	}

	// Only the callee may answer.
	if err := caller.Accept(ctx); !errors.Is(err, ErrNotCallee) {
		t.Fatalf("caller accept: %v, want ErrNotCallee", err)
	}
	if err := callee.Accept(ctx); err != nil {
		t.Fatalf("accept: %v", err)
	}

	waitFor(t, "both sides in call", func() bool {
		return caller.State() == StateInCall && callee.State() == StateInCall
	})
	if !ring.wasStopped() {
		t.Fatalf("ringtone still playing after accept")
	}

	// Connect charge plus ticks; only the caller is metered.
	waitFor(t, "three charges", func() bool { return e.wallet.charges() >= 3 })
	if callee.CoinsUsed() != 0 {
		t.Fatalf("callee was charged %d coins", callee.CoinsUsed())
	}

	caller.Hangup()

	waitFor(t, "record ended", func() bool { return e.status(t, callID) == callstore.StatusEnded })
	waitFor(t, "both sessions ended", func() bool {
		return caller.State() == StateEnded && callee.State() == StateEnded
	})

	if r := <-callerClosed; r != ReasonEnded {
		t.Fatalf("caller close reason = %q", r)
	}
	<-calleeClosed

	// Metering stops with the session.
	time.Sleep(60 * time.Millisecond)
	n := e.wallet.charges()
	time.Sleep(120 * time.Millisecond)
	if e.wallet.charges() != n {
		t.Fatalf("charges kept running after hangup: %d -> %d", n, e.wallet.charges())
	}

	// The summary counter matches the ledger.
	if caller.CoinsUsed() != e.wallet.total() {
		t.Fatalf("coins used %d, ledger sum %d", caller.CoinsUsed(), e.wallet.total())
	}

	// Every acquired resource is released.
	e.provider.mu.Lock()
	clients := append([]*fakeClient(nil), e.provider.clients...)
	tracks := append([]*fakeTrack(nil), e.provider.tracks...)
	e.provider.mu.Unlock()
	for _, cl := range clients {
		if !cl.hasLeft() {
			t.Fatalf("a client never left its channel")
		}
	}
	for _, tr := range tracks {
		if !tr.released() {
			t.Fatalf("a microphone track was not released")
		}
	}
}

func TestDecline_NoJoinNoCharges(t *testing.T) {
	e := newEnv(10_000)
	ctx := context.Background()

	callerClosed := make(chan EndReason, 1)
	ring := &fakeRingtone{}
	caller := e.session(nil, callerClosed, nil)
	callee := e.session(nil, nil, ring)

	if err := caller.StartOutgoing(ctx, "caller", "callee"); err != nil {
		t.Fatalf("start outgoing: %v", err)
	}
	callID := caller.Record().ID
	if err := callee.AttachIncoming(ctx, callID, "callee"); err != nil {
		t.Fatalf("attach incoming: %v", err)
	}

	if err := callee.Decline(ctx); err != nil {
		t.Fatalf("decline: %v", err)
	}

	waitFor(t, "caller sees rejection", func() bool { return caller.State() == StateEnded })
	if r := <-callerClosed; r != ReasonRejected {
		t.Fatalf("close reason = %q, want rejected", r)
	}
	if got := e.status(t, callID); got != callstore.StatusRejected {
		t.Fatalf("record status = %s, want rejected", got)
	}
	if e.wallet.charges() != 0 {
		t.Fatalf("declined call produced %d charges", e.wallet.charges())
	}
	if e.provider.clientCount() != 0 {
		t.Fatalf("declined call joined the media channel")
	}
	if !ring.wasStopped() {
		t.Fatalf("ringtone not stopped on decline")
	}
}

func TestRingTimeout_WritesTimeoutStatus(t *testing.T) {
	e := newEnv(10_000)
	closed := make(chan EndReason, 1)
	caller := New(Deps{
		Calls:     e.calls,
		Wallet:    e.wallet,
		Directory: e.people,
		Provider:  e.provider,
		Tokens:    e.tokens,
	}, Config{
		AppID:       "app-test",
		CallCost:    150,
		RingTimeout: 50 * time.Millisecond,
		EndDelay:    5 * time.Millisecond,
		OnClosed:    func(r EndReason) { closed <- r },
	})

	if err := caller.StartOutgoing(context.Background(), "caller", "callee"); err != nil {
		t.Fatalf("start outgoing: %v", err)
	}
	callID := caller.Record().ID

	waitFor(t, "session timed out", func() bool { return caller.State() == StateEnded })
	if r := <-closed; r != ReasonTimeout {
		t.Fatalf("close reason = %q, want timeout", r)
	}
	if got := e.status(t, callID); got != callstore.StatusTimeout {
		t.Fatalf("record status = %s, want timeout", got)
	}
	if e.wallet.charges() != 0 {
		t.Fatalf("unanswered call produced charges")
	}
}

func TestStart_RefusedWithoutFunds(t *testing.T) {
	// 100 coins against a 150-coin first minute.
	e := newEnv(100)
	caller := e.session(nil, nil, nil)

	err := caller.StartOutgoing(context.Background(), "caller", "callee")
	if !errors.Is(err, callstore.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if caller.State() != StateEnded {
		t.Fatalf("state = %s after refused start", caller.State())
	}
}

func TestOutOfCoinsMidCall_ForcesEnd(t *testing.T) {
	// Enough for exactly two charges; the third tick fails.
	e := newEnv(300)
	ctx := context.Background()

	callerClosed := make(chan EndReason, 1)
	notices := &noticeLog{}
	caller := e.session(notices, callerClosed, nil)
	callee := e.session(nil, nil, nil)

	if err := caller.StartOutgoing(ctx, "caller", "callee"); err != nil {
		t.Fatalf("start outgoing: %v", err)
	}
	callID := caller.Record().ID
	if err := callee.AttachIncoming(ctx, callID, "callee"); err != nil {
		t.Fatalf("attach incoming: %v", err)
	}
	if err := callee.Accept(ctx); err != nil {
		t.Fatalf("accept: %v", err)
	}

	waitFor(t, "forced end", func() bool { return caller.State() == StateEnded })
	if r := <-callerClosed; r != ReasonOutOfCoins {
		t.Fatalf("close reason = %q, want out of coins", r)
	}
	if !notices.contains(string(ReasonOutOfCoins)) {
		t.Fatalf("missing out-of-coins notice, got %v", notices.msgs)
	}
	if got := e.status(t, callID); got != callstore.StatusEnded {
		t.Fatalf("record status = %s, want ended", got)
	}
	if caller.CoinsUsed() != 300 || e.wallet.total() != 300 {
		t.Fatalf("coins used %d / ledger %d, want 300 each", caller.CoinsUsed(), e.wallet.total())
	}
}

func TestSimultaneousHangup_Converges(t *testing.T) {
	e := newEnv(10_000)
	ctx := context.Background()

	caller := e.session(nil, nil, nil)
	callee := e.session(nil, nil, nil)

	if err := caller.StartOutgoing(ctx, "caller", "callee"); err != nil {
		t.Fatalf("start outgoing: %v", err)
	}
	callID := caller.Record().ID
	if err := callee.AttachIncoming(ctx, callID, "callee"); err != nil {
		t.Fatalf("attach incoming: %v", err)
	}
	if err := callee.Accept(ctx); err != nil {
		t.Fatalf("accept: %v", err)
	}
	waitFor(t, "both in call", func() bool {
		return caller.State() == StateInCall && callee.State() == StateInCall
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); caller.Hangup() }()
	go func() { defer wg.Done(); callee.Hangup() }()
	wg.Wait()

	waitFor(t, "both ended", func() bool {
		return caller.State() == StateEnded && callee.State() == StateEnded
	})
	if got := e.status(t, callID); got != callstore.StatusEnded {
		t.Fatalf("record status = %s, want ended", got)
	}

	// A second close is a no-op.
	caller.Close()
	callee.Close()
}

func TestRemoteLeft_EndsSession(t *testing.T) {
	e := newEnv(10_000)
	ctx := context.Background()

	callerClosed := make(chan EndReason, 1)
	caller := e.session(nil, callerClosed, nil)
	callee := e.session(nil, nil, nil)

	if err := caller.StartOutgoing(ctx, "caller", "callee"); err != nil {
		t.Fatalf("start outgoing: %v", err)
	}
	if err := callee.AttachIncoming(ctx, caller.Record().ID, "callee"); err != nil {
		t.Fatalf("attach incoming: %v", err)
	}
	if err := callee.Accept(ctx); err != nil {
		t.Fatalf("accept: %v", err)
	}
	waitFor(t, "caller in call", func() bool { return caller.State() == StateInCall })

	waitFor(t, "caller client joined", func() bool { return e.provider.clientFor("caller") != nil })
	e.provider.clientFor("caller").fireRemoteLeft("callee")

	waitFor(t, "caller ended", func() bool { return caller.State() == StateEnded })
	if r := <-callerClosed; r != ReasonRemoteLeft {
		t.Fatalf("close reason = %q, want remote left", r)
	}
}

func TestJoinFailure_ForcesRecordEnded(t *testing.T) {
	e := newEnv(10_000)
	e.provider.joinErr = errJoinRefused
	ctx := context.Background()

	callerClosed := make(chan EndReason, 1)
	notices := &noticeLog{}
	caller := e.session(notices, callerClosed, nil)
	callee := e.session(nil, nil, nil)

	if err := caller.StartOutgoing(ctx, "caller", "callee"); err != nil {
		t.Fatalf("start outgoing: %v", err)
	}
	callID := caller.Record().ID
	if err := callee.AttachIncoming(ctx, callID, "callee"); err != nil {
		t.Fatalf("attach incoming: %v", err)
	}
	if err := callee.Accept(ctx); err != nil {
		t.Fatalf("accept: %v", err)
	}

	waitFor(t, "caller ended after join failure", func() bool { return caller.State() == StateEnded })
	if r := <-callerClosed; r != ReasonJoinFailed {
		t.Fatalf("close reason = %q, want join failed", r)
	}
	if !notices.contains(string(ReasonJoinFailed)) {
		t.Fatalf("missing connect-failure notice")
	}
	if got := e.status(t, callID); got != callstore.StatusEnded {
		t.Fatalf("record status = %s, want ended", got)
	}
}
