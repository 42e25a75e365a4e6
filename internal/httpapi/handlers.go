package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"amora-platform/internal/audit"
	"amora-platform/internal/auth"
	"amora-platform/internal/callstore"
	"amora-platform/internal/coins"
	"amora-platform/internal/directory"
	"amora-platform/internal/messaging"
	"amora-platform/internal/payments"
	"amora-platform/internal/reporting"
	"amora-platform/internal/rtc"
	"amora-platform/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth     *auth.Manager
	Users    *directory.Service
	Coins    *coins.Service
	Calls    *callstore.Service
	Messages *messaging.Service
	Payments *payments.Service
	Reports  *reporting.Service
	Audit    *audit.Service
	Tokens   *rtc.TokenBuilder
	Hub      *ws.Hub
	Log      *slog.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Mobile clients connect from app webviews; origin is not meaningful here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// Login issues a JWT token pair and creates the profile on first login.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate an OTP or
// a provider identity token before issuing anything.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	ctx := c.Request.Context()
	u, err := h.Users.GetUser(ctx, req.UserID)
	if errors.Is(err, directory.ErrNotFound) {
		u = directory.User{ID: req.UserID, Name: req.Name}
		if err := h.Users.UpsertUser(ctx, u); err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "profile create failed"})
			return
		}
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "profile lookup failed"})
		return
	}

	pair, err := h.Auth.IssuePair(time.Now(), u.ID, u.Certified)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a refresh token for a new pair. The certification flag is
// re-read from the profile so revocations take effect at refresh time.
func (h Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	claims, err := h.Auth.Verify(req.RefreshToken, auth.TokenTypeRefresh, time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	certified := false
	if u, err := h.Users.GetUser(c.Request.Context(), claims.UserID); err == nil {
		certified = u.Certified
	}
	pair, err := h.Auth.IssuePair(time.Now(), claims.UserID, certified)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Profiles ---

func (h Handlers) Me(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	u, err := h.Users.GetUser(c.Request.Context(), uid)
	if err != nil {
		h.userError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

type updateProfileRequest struct {
	Name      string `json:"name"`
	Gender    string `json:"gender"`
	AvatarURL string `json:"avatar_url"`
	Bio       string `json:"bio"`
	Locale    string `json:"locale"`
}

func (h Handlers) UpdateProfile(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	u := directory.User{
		ID:        uid,
		Name:      req.Name,
		Gender:    req.Gender,
		AvatarURL: req.AvatarURL,
		Bio:       req.Bio,
		Locale:    req.Locale,
	}
	if err := h.Users.UpsertUser(c.Request.Context(), u); err != nil {
		h.userError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h Handlers) Discover(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	users, err := h.Users.Discover(c.Request.Context(), uid, limit)
	if err != nil {
		h.userError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h Handlers) GetUser(c *gin.Context) {
	id := c.Param("user_id")
	u, err := h.Users.GetUser(c.Request.Context(), id)
	if err != nil {
		h.userError(c, err)
		return
	}
	online, _ := h.Users.IsOnline(c.Request.Context(), id)
	c.JSON(http.StatusOK, gin.H{"user": u, "online": online})
}

func (h Handlers) Block(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	if err := h.Users.Block(c.Request.Context(), uid, c.Param("user_id")); err != nil {
		h.userError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h Handlers) Unblock(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	if err := h.Users.Unblock(c.Request.Context(), uid, c.Param("user_id")); err != nil {
		h.userError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Heartbeat marks the caller online for the presence window.
func (h Handlers) Heartbeat(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	if err := h.Users.TouchPresence(c.Request.Context(), uid); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "presence update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Coins ---

func (h Handlers) GetBalance(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	bal, err := h.Coins.CoinBalance(c.Request.Context(), uid)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "balance lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"coins": bal})
}

func (h Handlers) GetLedger(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := h.Coins.Ledger(c.Request.Context(), uid, limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "ledger lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type adminAdjustRequest struct {
	UserID         string `json:"user_id"`
	Coins          int64  `json:"coins"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

// AdminAdjustCoins posts a signed staff adjustment (positive credits,
// negative claws back) with an audit row.
func (h Handlers) AdminAdjustCoins(c *gin.Context) {
	adminID, _ := auth.UserID(c.Request.Context())
	var req adminAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	_, _, bal, err := h.Coins.AdminAdjust(c.Request.Context(), req.UserID, adminID, coins.AdminAdjustRequest{
		Coins:          req.Coins,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
	})
	if errors.Is(err, coins.ErrInsufficientFunds) {
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "insufficient coins for clawback"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.Audit != nil {
		if err := h.Audit.LogAdminAction(c.Request.Context(), adminID, req.UserID, c.ClientIP(), "manual coin adjustment", ""); err != nil {
			h.Log.Warn("audit append failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, bal)
}

type certifyRequest struct {
	Certified bool `json:"certified"`
}

func (h Handlers) AdminCertify(c *gin.Context) {
	var req certifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Users.Certify(c.Request.Context(), c.Param("user_id"), req.Certified); err != nil {
		h.userError(c, err)
		return
	}
	if h.Audit != nil {
		adminID, _ := auth.UserID(c.Request.Context())
		if err := h.Audit.LogCertification(c.Request.Context(), adminID, c.Param("user_id"), c.ClientIP(), req.Certified); err != nil {
			h.Log.Warn("audit append failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Calls ---

type startCallRequest struct {
	To string `json:"to"`
}

// StartCall creates a ringing call record and pushes it to the callee.
func (h Handlers) StartCall(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.To == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to required"})
		return
	}

	rec, err := h.Calls.StartCall(c.Request.Context(), uid, req.To)
	if err != nil {
		h.callError(c, err)
		return
	}

	if h.Hub != nil {
		h.Hub.NotifyIncomingCall(rec)
		h.Hub.WatchCall(h.Calls, rec)
	}
	c.JSON(http.StatusCreated, rec)
}

func (h Handlers) GetCall(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	rec, err := h.Calls.Get(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		h.callError(c, err)
		return
	}
	if rec.From != uid && rec.To != uid {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

type callStatusRequest struct {
	Status string `json:"status"`
}

// SetCallStatus applies a participant's status write. Accept is guarded so a
// terminal record cannot be resurrected; the other writes follow the store's
// last-writer-wins contract.
func (h Handlers) SetCallStatus(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	callID := c.Param("call_id")

	var req callStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	status := callstore.Status(req.Status)
	if !status.Valid() || status == callstore.StatusRinging {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	ctx := c.Request.Context()
	rec, err := h.Calls.Get(ctx, callID)
	if err != nil {
		h.callError(c, err)
		return
	}
	if rec.From != uid && rec.To != uid {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	switch status {
	case callstore.StatusAccepted:
		if rec.To != uid {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "only the callee may accept"})
			return
		}
		err = h.Calls.Accept(ctx, callID)
		if errors.Is(err, callstore.ErrAlreadyTerminal) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call already over"})
			return
		}
	case callstore.StatusEnded:
		err = h.Calls.EndIfActive(ctx, callID)
	default:
		err = h.Calls.SetStatus(ctx, callID, status)
	}
	if err != nil {
		h.callError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RTCToken issues a channel token for an active call the user participates in.
func (h Handlers) RTCToken(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	callID := c.Param("call_id")

	rec, err := h.Calls.Get(c.Request.Context(), callID)
	if err != nil {
		h.callError(c, err)
		return
	}
	if rec.From != uid && rec.To != uid {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}
	if rec.Status.Terminal() {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call already over"})
		return
	}

	token, err := h.Tokens.Build(callID, uid)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "channel": callID})
}

// --- Messaging ---

type sendMessageRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

func (h Handlers) SendMessage(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	msg, err := h.Messages.Send(c.Request.Context(), uid, req.To, req.Body)
	switch {
	case errors.Is(err, messaging.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid message"})
	case errors.Is(err, messaging.ErrBlocked):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "blocked"})
	case errors.Is(err, messaging.ErrInsufficientFunds):
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "insufficient coins"})
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "send failed"})
	default:
		if h.Hub != nil {
			h.Hub.SendToUser(msg.To, "message.new", msg)
		}
		c.JSON(http.StatusCreated, msg)
	}
}

func (h Handlers) Conversation(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	msgs, err := h.Messages.Conversation(c.Request.Context(), uid, c.Param("user_id"), limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "conversation lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// --- Reports ---

// reportRange parses from/to query params, defaulting to the last 30 days.
func reportRange(c *gin.Context) (reporting.TimeRange, bool) {
	now := time.Now().UTC()
	rng := reporting.TimeRange{From: now.AddDate(0, 0, -30), To: now}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return reporting.TimeRange{}, false
		}
		rng.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return reporting.TimeRange{}, false
		}
		rng.To = t
	}
	return rng, true
}

func (h Handlers) CallsReport(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	rng, ok := reportRange(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from/to must be RFC3339"})
		return
	}
	sum, err := h.Reports.CallsSummary(c.Request.Context(), uid, rng)
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h Handlers) SpendReport(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	rng, ok := reportRange(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from/to must be RFC3339"})
		return
	}
	sum, err := h.Reports.SpendSummary(c.Request.Context(), uid, rng)
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// --- Payments ---

func (h Handlers) ListPacks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"packs": h.Payments.Packs()})
}

type createTopupRequest struct {
	PackID string `json:"pack_id"`
}

func (h Handlers) CreateTopup(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	var req createTopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	order, err := h.Payments.CreateTopup(c.Request.Context(), uid, req.PackID)
	if errors.Is(err, payments.ErrUnknownPack) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown pack"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "order creation failed"})
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h Handlers) ListTopups(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	orders, err := h.Payments.Orders(c.Request.Context(), uid, limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "orders lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// RazorpayWebhook applies gateway events. Public, authenticated by signature.
func (h Handlers) RazorpayWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	sig := c.GetHeader("X-Razorpay-Signature")

	err = h.Payments.HandleWebhook(c.Request.Context(), body, sig)
	switch {
	case errors.Is(err, payments.ErrBadSignature):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad signature"})
	case errors.Is(err, payments.ErrMalformedPayload), errors.Is(err, payments.ErrOrderNotFound):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "bad payload"})
	case err != nil:
		// 5xx so the gateway redelivers; the credit is idempotent.
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook apply failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// --- WebSocket ---

// Connect upgrades to a websocket and blocks for the life of the connection.
func (h Handlers) Connect(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	h.Hub.Register(uid, conn)
}

// --- error mapping ---

func (h Handlers) userError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, directory.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, directory.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	case errors.Is(err, directory.ErrBlocked):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "blocked"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "request failed"})
	}
}

func (h Handlers) callError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, callstore.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
	case errors.Is(err, callstore.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	case errors.Is(err, callstore.ErrBlocked):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "blocked"})
	case errors.Is(err, callstore.ErrInsufficientFunds):
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "insufficient coins"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "request failed"})
	}
}

// RequireAdmin gates staff endpoints to a configured allowlist.
func RequireAdmin(adminIDs []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		allowed[id] = struct{}{}
	}
	return func(c *gin.Context) {
		uid, err := auth.UserID(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		if _, ok := allowed[uid]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}
