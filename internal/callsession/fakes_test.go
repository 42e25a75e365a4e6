package callsession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"amora-platform/internal/callstore"
	"amora-platform/internal/coins"
	"amora-platform/internal/directory"
	"amora-platform/internal/rtc"
)

// fakeWallet is both the metering Wallet and the callstore BalanceReader, so
// the funds precheck and the charges drain the same balance.
type fakeWallet struct {
	mu      sync.Mutex
	balance int64
	entries map[string]int64
}

func newFakeWallet(balance int64) *fakeWallet {
	return &fakeWallet{balance: balance, entries: map[string]int64{}}
}

func (w *fakeWallet) ChargeCall(ctx context.Context, userID, callID string, seq int, amount int64) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := fmt.Sprintf("call:%s:%d", callID, seq)
	if _, ok := w.entries[key]; ok {
		return w.balance, nil
	}
	if w.balance < amount {
		return w.balance, coins.ErrInsufficientFunds
	}
	w.balance -= amount
	w.entries[key] = amount
	return w.balance, nil
}

func (w *fakeWallet) CoinBalance(ctx context.Context, userID string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance, nil
}

func (w *fakeWallet) charges() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

func (w *fakeWallet) total() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	var sum int64
	for _, amt := range w.entries {
		sum += amt
	}
	return sum
}

type fakePeople struct{ users map[string]directory.User }

func (p *fakePeople) GetUser(ctx context.Context, id string) (directory.User, error) {
	u, ok := p.users[id]
	if !ok {
		return directory.User{}, directory.ErrNotFound
	}
	return u, nil
}

type noBlocks struct{}

func (noBlocks) IsBlockedEither(ctx context.Context, a, b string) (bool, error) { return false, nil }

type fixedCost int64

func (c fixedCost) CostPerMinute(ctx context.Context, at time.Time) (int64, error) {
	return int64(c), nil
}

type fakeRingtone struct {
	mu      sync.Mutex
	playing bool
	stopped bool
}

func (r *fakeRingtone) Play() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playing = true
	return nil
}

func (r *fakeRingtone) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.playing {
		r.stopped = true
	}
	r.playing = false
}

func (r *fakeRingtone) wasStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

type fakeTrack struct {
	mu      sync.Mutex
	stopped bool
	closed  bool
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTrack) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

func (t *fakeTrack) released() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped && t.closed
}

type fakeClient struct {
	mu          sync.Mutex
	joinErr     error
	joined      bool
	left        bool
	channel     string
	identity    string
	onPublished func(rtc.RemoteUser)
	onLeft      func(rtc.RemoteUser)
}

func (c *fakeClient) OnRemotePublished(fn func(rtc.RemoteUser)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPublished = fn
}

func (c *fakeClient) OnRemoteLeft(fn func(rtc.RemoteUser)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLeft = fn
}

func (c *fakeClient) Join(ctx context.Context, appID, channel, token, identity string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.joinErr != nil {
		return c.joinErr
	}
	c.joined = true
	c.channel = channel
	c.identity = identity
	return nil
}

func (c *fakeClient) joinedAs() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *fakeClient) Publish(ctx context.Context, track rtc.Track) error { return nil }

func (c *fakeClient) SubscribeRemote(ctx context.Context, user rtc.RemoteUser) error { return nil }

func (c *fakeClient) Leave(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.left = true
	return nil
}

func (c *fakeClient) hasLeft() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.left
}

func (c *fakeClient) fireRemoteLeft(id string) {
	c.mu.Lock()
	fn := c.onLeft
	c.mu.Unlock()
	if fn != nil {
		fn(rtc.RemoteUser{ID: id})
	}
}

type fakeProvider struct {
	mu      sync.Mutex
	joinErr error
	clients []*fakeClient
	tracks  []*fakeTrack
}

func (p *fakeProvider) CreateClient() rtc.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := &fakeClient{joinErr: p.joinErr}
	p.clients = append(p.clients, c)
	return c
}

func (p *fakeProvider) CreateMicrophoneTrack(ctx context.Context) (rtc.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tr := &fakeTrack{}
	p.tracks = append(p.tracks, tr)
	return tr, nil
}

func (p *fakeProvider) clientCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// clientFor finds the client that joined as identity. Both sides share one
// provider, so tests must not assume a creation order.
func (p *fakeProvider) clientFor(identity string) *fakeClient {
	p.mu.Lock()
	clients := append([]*fakeClient(nil), p.clients...)
	p.mu.Unlock()
	for _, c := range clients {
		if c.joinedAs() == identity {
			return c
		}
	}
	return nil
}

// noticeLog collects OnNotice messages.
type noticeLog struct {
	mu   sync.Mutex
	msgs []string
}

func (n *noticeLog) add(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *noticeLog) contains(msg string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.msgs {
		if m == msg {
			return true
		}
	}
	return false
}

var errJoinRefused = errors.New("join refused")

// env bundles one call's shared infrastructure: a store, a wallet and a
// media provider both sides use.
type env struct {
	calls    *callstore.Service
	wallet   *fakeWallet
	provider *fakeProvider
	people   *fakePeople
	tokens   *rtc.TokenBuilder
}

func newEnv(balance int64) *env {
	wallet := newFakeWallet(balance)
	store := callstore.NewMemoryStore()
	tokens, _ := rtc.NewTokenBuilder("app-test", "cert-test", time.Hour)
	return &env{
		calls:    callstore.NewService(store, noBlocks{}, wallet, fixedCost(150), nil, nil),
		wallet:   wallet,
		provider: &fakeProvider{},
		people: &fakePeople{users: map[string]directory.User{
			"caller": {ID: "caller", Name: "Asha"},
			"callee": {ID: "callee", Name: "Ravi"},
		}},
		tokens: tokens,
	}
}

// session builds a controller against the shared env with fast timings.
func (e *env) session(notices *noticeLog, closed chan EndReason, ring *fakeRingtone) *Controller {
	cfg := Config{
		AppID:         "app-test",
		CallCost:      150,
		MeterInterval: 50 * time.Millisecond,
		RingTimeout:   2 * time.Second,
		EndDelay:      5 * time.Millisecond,
	}
	if notices != nil {
		cfg.OnNotice = notices.add
	}
	if closed != nil {
		cfg.OnClosed = func(r EndReason) {
			select {
			case closed <- r:
			default:
			}
		}
	}
	var tone Ringtone
	if ring != nil {
		tone = ring
	}
	return New(Deps{
		Calls:     e.calls,
		Wallet:    e.wallet,
		Directory: e.people,
		Provider:  e.provider,
		Tokens:    e.tokens,
		Ringtone:  tone,
	}, cfg)
}
