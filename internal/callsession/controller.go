package callsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"amora-platform/internal/callstore"
	"amora-platform/internal/coins"
	"amora-platform/internal/directory"
	"amora-platform/internal/rtc"
)

// Calls is the slice of the call store the session drives.
type Calls interface {
	StartCall(ctx context.Context, from, to string) (callstore.Record, error)
	Get(ctx context.Context, id string) (callstore.Record, error)
	SetStatus(ctx context.Context, id string, status callstore.Status) error
	Accept(ctx context.Context, id string) error
	EndIfActive(ctx context.Context, id string) error
	Subscribe(ctx context.Context, id string) (<-chan *callstore.Record, func(), error)
}

// Wallet debits the caller. seq makes each tick's charge idempotent per call.
type Wallet interface {
	ChargeCall(ctx context.Context, userID, callID string, seq int, amount int64) (int64, error)
}

// People resolves participants before a session may start.
type People interface {
	GetUser(ctx context.Context, id string) (directory.User, error)
}

// Ringtone is the local alert played on the callee side while ringing.
type Ringtone interface {
	Play() error
	Stop()
}

// Deps are the session's collaborators.
type Deps struct {
	Calls     Calls
	Wallet    Wallet
	Directory People
	Provider  rtc.Provider
	Tokens    *rtc.TokenBuilder
	Ringtone  Ringtone
	Log       *slog.Logger
}

// Config tunes one session. Durations are injectable so tests run in
// milliseconds; zero values take the production defaults.
type Config struct {
	AppID    string
	CallCost int64

	// MeterInterval is the billing tick; one charge at connect, then one per
	// interval while connected.
	MeterInterval time.Duration
	// RingTimeout is how long the caller waits before writing timeout.
	RingTimeout time.Duration
	// EndDelay holds the session in ending so the end reason stays visible
	// before the final state is reported.
	EndDelay time.Duration

	// OnNotice receives short user-visible messages (out of coins, coin
	// summary). Optional.
	OnNotice func(msg string)
	// OnClosed fires exactly once when the session reaches ended. Optional.
	OnClosed func(reason EndReason)
}

const (
	defaultMeterInterval = time.Minute
	defaultRingTimeout   = 45 * time.Second
	defaultEndDelay      = 1500 * time.Millisecond

	opTimeout = 10 * time.Second
)

var (
	ErrSessionUsed = errors.New("session already started")
	ErrNotRinging  = errors.New("call is not ringing")
	ErrNotCallee   = errors.New("only the callee may answer")
	ErrCallOver    = errors.New("call already over")
)

// Controller runs one call session end to end: it creates or attaches to a
// call record, mirrors every remote status write into a local state machine,
// joins the media channel on accept, meters the caller's coins while
// connected, and tears everything down exactly once on any terminal path.
//
// A Controller is single-use. All methods are safe for concurrent use.
type Controller struct {
	deps  Deps
	cfg   Config
	clock func() time.Time

	mu          sync.Mutex
	state       State
	role        Role
	localID     string
	rec         callstore.Record
	client      rtc.Client
	track       rtc.Track
	unsubscribe func()
	ringTimer   *time.Timer
	meterStop   chan struct{}
	chargeSeq   int
	coinsUsed   int64
	connectedAt time.Time
	closed      bool
}

func New(deps Deps, cfg Config) *Controller {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if cfg.MeterInterval <= 0 {
		cfg.MeterInterval = defaultMeterInterval
	}
	if cfg.RingTimeout <= 0 {
		cfg.RingTimeout = defaultRingTimeout
	}
	if cfg.EndDelay <= 0 {
		cfg.EndDelay = defaultEndDelay
	}
	return &Controller{
		deps:  deps,
		cfg:   cfg,
		clock: time.Now,
		state: StateIdle,
	}
}

// State returns the current local state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Role returns which side of the call this session is.
func (c *Controller) Role() Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// Record returns the last observed call record.
func (c *Controller) Record() callstore.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec
}

// CoinsUsed returns the coins charged so far in this session.
func (c *Controller) CoinsUsed() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coinsUsed
}

// StartOutgoing places a call from localID to remoteID. Both participants are
// resolved first; no record is created if either is missing, the pair is
// blocked, or the caller cannot afford the first minute.
func (c *Controller) StartOutgoing(ctx context.Context, localID, remoteID string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrSessionUsed
	}
	c.setStateLocked(StateInitializing)
	c.role = RoleCaller
	c.localID = localID
	c.mu.Unlock()

	if _, err := c.deps.Directory.GetUser(ctx, localID); err != nil {
		return c.abortStart(fmt.Errorf("resolve caller: %w", err))
	}
	if _, err := c.deps.Directory.GetUser(ctx, remoteID); err != nil {
		return c.abortStart(fmt.Errorf("resolve callee: %w", err))
	}

	rec, err := c.deps.Calls.StartCall(ctx, localID, remoteID)
	if err != nil {
		return c.abortStart(err)
	}

	ch, cancel, err := c.deps.Calls.Subscribe(ctx, rec.ID)
	if err != nil {
		// The record exists but cannot be observed; close it out.
		c.endRecord(rec.ID)
		return c.abortStart(err)
	}

	c.mu.Lock()
	c.rec = rec
	c.unsubscribe = cancel
	c.setStateLocked(StateRinging)
	c.ringTimer = time.AfterFunc(c.cfg.RingTimeout, c.onRingTimeout)
	c.mu.Unlock()

	go c.watch(ch)
	return nil
}

// AttachIncoming joins an existing ringing call as localID, typically the
// callee reacting to a push. The ringtone plays only on the callee device.
func (c *Controller) AttachIncoming(ctx context.Context, callID, localID string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrSessionUsed
	}
	c.setStateLocked(StateInitializing)
	c.role = RoleCallee
	c.localID = localID
	c.mu.Unlock()

	rec, err := c.deps.Calls.Get(ctx, callID)
	if err != nil {
		return c.abortStart(err)
	}
	if rec.Status.Terminal() {
		return c.abortStart(ErrCallOver)
	}

	ch, cancel, err := c.deps.Calls.Subscribe(ctx, rec.ID)
	if err != nil {
		return c.abortStart(err)
	}

	c.mu.Lock()
	c.rec = rec
	c.unsubscribe = cancel
	c.setStateLocked(StateRinging)
	if rec.To == localID && c.deps.Ringtone != nil {
		if err := c.deps.Ringtone.Play(); err != nil {
			c.deps.Log.Warn("ringtone failed", "err", err)
		}
	}
	c.mu.Unlock()

	go c.watch(ch)

	// The record may already be past ringing by the time we attached.
	if rec.Status == callstore.StatusAccepted {
		c.onRecord(rec)
	}
	return nil
}

// Accept answers a ringing call. Only the callee may accept; the state does
// not change here, it follows the accepted record push like every other
// observer.
func (c *Controller) Accept(ctx context.Context) error {
	c.mu.Lock()
	if c.role != RoleCallee {
		c.mu.Unlock()
		return ErrNotCallee
	}
	if c.state != StateRinging {
		c.mu.Unlock()
		return ErrNotRinging
	}
	id := c.rec.ID
	c.mu.Unlock()

	err := c.deps.Calls.Accept(ctx, id)
	if errors.Is(err, callstore.ErrAlreadyTerminal) {
		return ErrCallOver
	}
	return err
}

// Decline rejects a ringing call and tears the session down.
func (c *Controller) Decline(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRinging {
		c.mu.Unlock()
		return ErrNotRinging
	}
	id := c.rec.ID
	c.mu.Unlock()

	if err := c.deps.Calls.SetStatus(ctx, id, callstore.StatusRejected); err != nil {
		return err
	}
	c.terminate(ReasonRejected)
	return nil
}

// Hangup ends the call from this side at any point after it started.
func (c *Controller) Hangup() {
	c.terminate(ReasonEnded)
}

// Close releases everything the session holds. It is the unmount path and is
// identical to a hangup; calling it on an already-ended session is a no-op.
func (c *Controller) Close() {
	c.terminate(ReasonEnded)
}

// watch mirrors record pushes into the local state machine until the
// subscription is cancelled by teardown.
func (c *Controller) watch(ch <-chan *callstore.Record) {
	for rec := range ch {
		if rec == nil {
			c.terminate(ReasonGone)
			return
		}
		c.onRecord(*rec)
	}
}

func (c *Controller) onRecord(rec callstore.Record) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.rec = rec

	switch rec.Status {
	case callstore.StatusRinging:
		c.mu.Unlock()
	case callstore.StatusAccepted:
		if c.state != StateRinging {
			c.mu.Unlock()
			return
		}
		c.stopRingingLocked()
		c.mu.Unlock()
		c.join(rec)
	case callstore.StatusRejected:
		c.mu.Unlock()
		c.terminate(ReasonRejected)
	case callstore.StatusTimeout:
		c.mu.Unlock()
		c.terminate(ReasonTimeout)
	case callstore.StatusEnded:
		c.mu.Unlock()
		c.terminate(ReasonEnded)
	default:
		c.mu.Unlock()
		c.deps.Log.Warn("ignoring unknown call status", "call_id", rec.ID, "status", rec.Status)
	}
}

// join connects to the media channel after accept: handlers first, then join,
// then publish the microphone. Any failure forces the record to ended so the
// other side does not hang.
func (c *Controller) join(rec callstore.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	client := c.deps.Provider.CreateClient()
	client.OnRemotePublished(func(u rtc.RemoteUser) {
		if err := client.SubscribeRemote(context.Background(), u); err != nil {
			c.deps.Log.Warn("subscribe remote audio failed", "call_id", rec.ID, "remote", u.ID, "err", err)
		}
	})
	client.OnRemoteLeft(func(rtc.RemoteUser) {
		c.terminate(ReasonRemoteLeft)
	})

	token, err := c.deps.Tokens.Build(rec.ID, c.localID)
	if err != nil {
		c.joinFailed(rec.ID, err)
		return
	}
	if err := client.Join(ctx, c.cfg.AppID, rec.ID, token, c.localID); err != nil {
		c.joinFailed(rec.ID, err)
		return
	}
	track, err := c.deps.Provider.CreateMicrophoneTrack(ctx)
	if err != nil {
		_ = client.Leave(context.Background())
		c.joinFailed(rec.ID, err)
		return
	}
	if err := client.Publish(ctx, track); err != nil {
		track.Stop()
		track.Close()
		_ = client.Leave(context.Background())
		c.joinFailed(rec.ID, err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		track.Stop()
		track.Close()
		_ = client.Leave(context.Background())
		return
	}
	c.client = client
	c.track = track
	c.connectedAt = c.clock()
	c.setStateLocked(StateInCall)
	if c.role == RoleCaller {
		stop := make(chan struct{})
		c.meterStop = stop
		go c.meter(stop)
	}
	c.mu.Unlock()
}

func (c *Controller) joinFailed(callID string, err error) {
	c.deps.Log.Error("media join failed", "call_id", callID, "err", err)
	c.notice(string(ReasonJoinFailed))
	c.mu.Lock()
	c.setStateLocked(StateError)
	c.mu.Unlock()
	c.endRecord(callID)
	c.terminate(ReasonJoinFailed)
}

// meter charges the caller once at connect and once per interval after. The
// total for a call connected T seconds is 1 + floor(T/interval) charges.
func (c *Controller) meter(stop <-chan struct{}) {
	if !c.charge() {
		return
	}
	ticker := time.NewTicker(c.cfg.MeterInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !c.charge() {
				return
			}
		}
	}
}

func (c *Controller) charge() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	seq := c.chargeSeq
	c.chargeSeq++
	callID := c.rec.ID
	userID := c.localID
	amount := c.cfg.CallCost
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := c.deps.Wallet.ChargeCall(ctx, userID, callID, seq, amount); err != nil {
		if errors.Is(err, coins.ErrInsufficientFunds) {
			c.notice(string(ReasonOutOfCoins))
			c.endRecord(callID)
			c.terminate(ReasonOutOfCoins)
			return false
		}
		c.deps.Log.Error("call charge failed", "call_id", callID, "seq", seq, "err", err)
		c.endRecord(callID)
		c.terminate(ReasonEnded)
		return false
	}

	c.mu.Lock()
	c.coinsUsed += amount
	c.mu.Unlock()
	return true
}

// onRingTimeout fires on the caller side when nobody answered.
func (c *Controller) onRingTimeout() {
	c.mu.Lock()
	if c.closed || c.state != StateRinging {
		c.mu.Unlock()
		return
	}
	callID := c.rec.ID
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := c.deps.Calls.SetStatus(ctx, callID, callstore.StatusTimeout); err != nil {
		c.deps.Log.Warn("timeout write failed", "call_id", callID, "err", err)
	}
	c.terminate(ReasonTimeout)
}

// terminate is the single teardown path. The first caller wins; every later
// caller, on any goroutine, returns immediately. Resources are released in
// the reverse order they were acquired, then the record is closed out with a
// guarded ended write so converging teardowns never overwrite each other.
func (c *Controller) terminate(reason EndReason) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.setStateLocked(StateEnding)

	c.stopRingingLocked()
	if c.meterStop != nil {
		close(c.meterStop)
		c.meterStop = nil
	}
	track := c.track
	c.track = nil
	client := c.client
	c.client = nil
	unsub := c.unsubscribe
	c.unsubscribe = nil
	callID := c.rec.ID
	used := c.coinsUsed
	c.mu.Unlock()

	if track != nil {
		track.Stop()
		track.Close()
	}
	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		if err := client.Leave(ctx); err != nil {
			c.deps.Log.Warn("channel leave failed", "call_id", callID, "err", err)
		}
		cancel()
	}
	if unsub != nil {
		unsub()
	}
	if callID != "" {
		c.endRecord(callID)
	}

	if used > 0 {
		c.notice(fmt.Sprintf("%s · %d coins used", reason, used))
	}

	time.AfterFunc(c.cfg.EndDelay, func() {
		c.mu.Lock()
		c.setStateLocked(StateEnded)
		c.mu.Unlock()
		if c.cfg.OnClosed != nil {
			c.cfg.OnClosed(reason)
		}
	})
}

// endRecord writes the final ended status. Runs on a background context so a
// cancelled request cannot leave the record dangling.
func (c *Controller) endRecord(callID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := c.deps.Calls.EndIfActive(ctx, callID); err != nil {
		c.deps.Log.Warn("final status write failed", "call_id", callID, "err", err)
	}
}

func (c *Controller) abortStart(err error) error {
	c.mu.Lock()
	c.closed = true
	c.setStateLocked(StateError)
	c.setStateLocked(StateEnded)
	c.mu.Unlock()
	return err
}

func (c *Controller) stopRingingLocked() {
	if c.ringTimer != nil {
		c.ringTimer.Stop()
		c.ringTimer = nil
	}
	if c.deps.Ringtone != nil {
		c.deps.Ringtone.Stop()
	}
}

func (c *Controller) setStateLocked(next State) {
	if c.state == next {
		return
	}
	if !c.state.CanTransitionTo(next) {
		c.deps.Log.Warn("invalid state transition", "from", c.state, "to", next)
		return
	}
	c.state = next
}

func (c *Controller) notice(msg string) {
	if c.cfg.OnNotice != nil {
		c.cfg.OnNotice(msg)
	}
}
