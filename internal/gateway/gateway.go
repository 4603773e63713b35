package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rollhaus/casino/internal/affiliate"
	"github.com/rollhaus/casino/internal/auth"
	"github.com/rollhaus/casino/internal/bonus"
	"github.com/rollhaus/casino/internal/chat"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/games"
	"github.com/rollhaus/casino/internal/infra"
	"github.com/rollhaus/casino/internal/promo"
	"github.com/rollhaus/casino/internal/repository"
	"github.com/rollhaus/casino/internal/settings"
	"github.com/rollhaus/casino/internal/wallet"
)

// commandTimeout bounds one command's handler, DB work included.
const commandTimeout = 30 * time.Second

// Deps bundles everything the gateway routes commands to.
type Deps struct {
	Pool      *pgxpool.Pool
	Requests  repository.RequestRepository
	Rounds    *repository.RoundsRepository
	Promos    repository.PromoRepository
	Auth      *auth.Service
	Wallet    *wallet.Service
	Deposits  *wallet.DepositService
	Withdraws *wallet.WithdrawService
	Webhooks  *wallet.WebhookService
	Promo     *promo.Service
	Bonus     *bonus.Service
	Chat      *chat.Service
	Affiliate *affiliate.Service
	Settings  *settings.Cache
	Dice      *games.Dice
	Crash     *games.Crash
	Wheel     *games.Wheel
	Jackpot   *games.Jackpot
	Coinflip  *games.Coinflip
	Battle    *games.Battle
	Metrics   *infra.Metrics
	Logger    *slog.Logger
}

// Gateway owns the hub, the router and the upgrade endpoint.
type Gateway struct {
	deps     Deps
	hub      *Hub
	router   *Router
	upgrader websocket.Upgrader

	// base context for command handlers; set by Start.
	ctx context.Context
}

// New assembles the gateway, registers every command route and subscribes
// the hub to the event bus via Hub.BroadcastEvent (done by the caller).
func New(deps Deps, allowedOrigins []string) *Gateway {
	g := &Gateway{
		deps:   deps,
		hub:    NewHub(deps.Metrics, deps.Logger),
		router: NewRouter(),
		ctx:    context.Background(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
	g.hub.OnCountChange(g.broadcastOnline)
	g.registerRoutes()
	return g
}

// Hub exposes the fan-out side for bus wiring.
func (g *Gateway) Hub() *Hub { return g.hub }

// Start pins the base context commands run under.
func (g *Gateway) Start(ctx context.Context) { g.ctx = ctx }

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// ServeWS upgrades the request and starts the connection pumps. A ?token=
// query parameter authenticates the socket up front; per-frame auth can
// change it later.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.deps.Logger.Warn("ws upgrade failed", "error", err)
		return
	}

	c := newConn(g.hub, ws, g.deps.Logger)
	if token := r.URL.Query().Get("token"); token != "" {
		if userID, claims, err := g.deps.Auth.ValidateAccess(token); err == nil {
			c.setUser(userID, claims.Username)
		}
	}

	g.hub.add(c)
	go c.writePump()
	go c.readPump(g.dispatch)
}

// broadcastOnline pushes the recomputed connection count to every socket.
// It is ephemeral state, so it bypasses the outbox.
func (g *Gateway) broadcastOnline(count int) {
	event := domain.NewEvent(domain.EventChatOnline, domain.AggregateChat, "online",
		int64(count), map[string]any{"count": count})
	raw, err := json.Marshal(eventResponse(event))
	if err != nil {
		return
	}
	g.hub.mu.RLock()
	defer g.hub.mu.RUnlock()
	for c := range g.hub.conns {
		c.enqueue(raw)
	}
}

// dispatch runs one frame through the full pipeline in its own goroutine so
// a slow command never blocks the socket's read loop.
func (g *Gateway) dispatch(c *Conn, raw []byte) {
	go func() {
		ctx, cancel := context.WithTimeout(g.ctx, commandTimeout)
		defer cancel()
		g.handleFrame(ctx, c, raw)
	}()
}

func (g *Gateway) handleFrame(ctx context.Context, c *Conn, raw []byte) {
	g.deps.Metrics.Inc("ws_commands_total")

	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Type == "" {
		c.sendResponse(errorResponse("unknown", syntheticRequestID(),
			domain.ErrValidation("malformed frame")))
		return
	}

	cmdType, rt, found := g.router.Resolve(frame.Type)
	frame.Type = cmdType
	requestID := frame.RequestID
	if requestID == "" {
		requestID = syntheticRequestID()
	}

	if !found {
		c.sendResponse(errorResponse(cmdType, requestID,
			domain.ErrNotFound("command", cmdType)))
		return
	}

	// Per-frame auth. A presented token that fails validation clears the
	// connection's auth; an absent token leaves it untouched.
	if frame.Auth != nil && frame.Auth.AccessToken != "" {
		userID, claims, err := g.deps.Auth.ValidateAccess(frame.Auth.AccessToken)
		if err != nil {
			c.clearUser()
			c.sendResponse(errorResponse(cmdType, requestID, err))
			return
		}
		c.setUser(userID, claims.Username)
	}

	var user *domain.User
	if userID, ok := c.UserID(); ok {
		var err error
		user, err = g.deps.Auth.Me(ctx, userID)
		if err != nil {
			// The row vanished under a live token; drop the auth.
			c.clearUser()
			user = nil
		}
	}
	if rt.authRequired && user == nil {
		c.sendResponse(errorResponse(cmdType, requestID,
			domain.ErrUnauthorized("authentication required")))
		return
	}

	if rt.mutating && frame.RequestID == "" {
		c.sendResponse(errorResponse(cmdType, requestID,
			domain.ErrValidation("requestId is required")))
		return
	}

	identity := c.Identity()
	if rt.mutating {
		rec, inserted, err := g.deps.Requests.Begin(ctx, g.deps.Pool, identity, frame.RequestID, cmdType)
		if err != nil {
			c.sendResponse(errorResponse(cmdType, requestID, domain.ErrInternal("request ledger", err)))
			return
		}
		if !inserted {
			switch rec.Status {
			case domain.RequestProcessing:
				c.sendResponse(errorResponse(cmdType, requestID, domain.ErrRequestInProgress()))
			case domain.RequestCompleted:
				// Replay the stored envelope verbatim.
				c.enqueue(rec.Response)
				g.deps.Metrics.Inc("ws_replays_total")
			default:
				c.sendResponse(errorResponse(cmdType, requestID, domain.ErrDuplicateRequest()))
			}
			return
		}
	}

	data, err := g.invoke(ctx, rt, &Request{Conn: c, Frame: &frame, User: user})
	if err != nil {
		if rt.mutating {
			if ferr := g.deps.Requests.Fail(ctx, g.deps.Pool, identity, frame.RequestID); ferr != nil {
				g.deps.Logger.Error("request ledger fail", "request_id", frame.RequestID, "error", ferr)
			}
		}
		g.logCommandError(cmdType, err)
		c.sendResponse(errorResponse(cmdType, requestID, err))
		return
	}

	resp := successResponse(cmdType, requestID, data)
	rawResp, merr := json.Marshal(resp)
	if merr != nil {
		g.deps.Logger.Error("marshal command response", "type", cmdType, "error", merr)
		c.sendResponse(errorResponse(cmdType, requestID, domain.ErrInternal("encode response", merr)))
		return
	}
	if rt.mutating {
		if cerr := g.deps.Requests.Complete(ctx, g.deps.Pool, identity, frame.RequestID, rawResp); cerr != nil {
			g.deps.Logger.Error("request ledger complete", "request_id", frame.RequestID, "error", cerr)
		}
	}
	c.enqueue(rawResp)
}

// invoke runs the handler with panic isolation: a handler panic must not
// take the process down, it becomes INTERNAL_ERROR.
func (g *Gateway) invoke(ctx context.Context, rt route, req *Request) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			g.deps.Logger.Error("command handler panicked", "type", req.Frame.Type, "panic", r)
			err = domain.ErrInternal("handler panic", nil)
		}
	}()
	return rt.handler(ctx, req)
}

func (g *Gateway) logCommandError(cmdType string, err error) {
	appErr, ok := domain.AsAppError(err)
	if !ok || appErr.Code == "INTERNAL_ERROR" {
		g.deps.Logger.Error("command failed", "type", cmdType, "error", err)
		g.deps.Metrics.Inc("ws_internal_errors_total")
		return
	}
	g.deps.Logger.Debug("command rejected", "type", cmdType, "code", appErr.Code)
}

// registerRoutes wires the full command catalog plus the legacy aliases.
func (g *Gateway) registerRoutes() {
	r := g.router

	// auth
	r.HandleMutating("auth.register", g.handleRegister)
	r.HandleMutating("auth.login", g.handleLogin)
	r.HandleMutating("auth.refresh", g.handleRefresh)
	r.HandleMutating("auth.logout", g.handleLogout)
	r.HandleAuthed("auth.me", g.handleMe)
	r.HandleAuthed("auth.sessions.list", g.handleSessionsList)
	r.HandleAuthedMutating("auth.sessions.revoke", g.handleSessionsRevoke)

	// wallet
	r.HandleAuthed("wallet.balance.get", g.handleBalanceGet)
	r.HandleAuthed("wallet.ledger.list", g.handleLedgerList)
	r.Handle("wallet.deposit.methods", g.handleDepositMethods)
	r.HandleAuthedMutating("wallet.deposit.staticAddress", g.handleDepositStaticAddress)
	r.HandleAuthedMutating("wallet.deposit.invoice", g.handleDepositInvoice)
	r.HandleAuthedMutating("wallet.withdraw.request", g.handleWithdrawRequest)
	r.HandleAuthedMutating("wallet.exchange", g.handleExchange)

	// promo & bonus
	r.HandleAuthedMutating("promo.redeem", g.handlePromoRedeem)
	r.HandleAuthed("bonus.getWheel", g.handleBonusWheel)
	r.HandleAuthedMutating("bonus.spin", g.handleBonusSpin)

	// games
	r.Handle("dice.subscribe", g.subscribeHandler("dice", g.diceSnapshot))
	r.Handle("dice.snapshot.get", g.snapshotHandler(g.diceSnapshot))
	r.HandleAuthedMutating("dice.bet", g.handleDiceBet)

	r.Handle("crash.subscribe", g.subscribeHandler("crash", g.crashSnapshot))
	r.Handle("crash.snapshot.get", g.snapshotHandler(g.crashSnapshot))
	r.HandleAuthedMutating("crash.bet", g.handleCrashBet)
	r.HandleAuthedMutating("crash.cashout", g.handleCrashCashout)

	r.Handle("wheel.subscribe", g.subscribeHandler("wheel", g.wheelSnapshot))
	r.Handle("wheel.snapshot.get", g.snapshotHandler(g.wheelSnapshot))
	r.HandleAuthedMutating("wheel.bet", g.handleWheelBet)

	r.Handle("jackpot.room.subscribe", g.subscribeHandler("jackpot", g.jackpotSnapshot))
	r.Handle("jackpot.snapshot.get", g.snapshotHandler(g.jackpotSnapshot))
	r.HandleAuthedMutating("jackpot.bet", g.handleJackpotBet)

	r.Handle("coinflip.subscribe", g.subscribeHandler("coinflip", g.coinflipSnapshot))
	r.Handle("coinflip.list", g.snapshotHandler(g.coinflipSnapshot))
	r.HandleAuthedMutating("coinflip.create", g.handleCoinflipCreate)
	r.HandleAuthedMutating("coinflip.join", g.handleCoinflipJoin)
	r.HandleAuthedMutating("coinflip.cancel", g.handleCoinflipCancel)

	r.Handle("battle.subscribe", g.subscribeHandler("battle", g.battleSnapshot))
	r.Handle("battle.snapshot.get", g.snapshotHandler(g.battleSnapshot))
	r.HandleAuthedMutating("battle.bet", g.handleBattleBet)

	// chat, fairness, affiliate
	r.Handle("chat.subscribe", g.subscribeHandler("chat", g.chatSnapshot))
	r.Handle("chat.history", g.snapshotHandler(g.chatSnapshot))
	r.HandleAuthedMutating("chat.send", g.handleChatSend)
	r.Handle("fair.check", g.handleFairCheck)
	r.HandleAuthed("affiliate.stats", g.handleAffiliateStats)
	r.Handle("affiliate.visit", g.handleAffiliateVisit)

	// admin
	r.HandleAuthed("admin.settings.get", g.adminOnly(g.handleAdminSettingsGet))
	r.HandleAuthedMutating("admin.settings.save", g.adminOnly(g.handleAdminSettingsSave))
	r.HandleAuthedMutating("admin.rooms.save", g.adminOnly(g.handleAdminRoomSave))
	r.HandleAuthedMutating("admin.promo.create", g.adminOnly(g.handleAdminPromoCreate))

	// Legacy wire names kept for old frontends.
	r.Alias("dice_bet", "dice.bet")
	r.Alias("dice_subscribe", "dice.subscribe")
	r.Alias("crash_bet", "crash.bet")
	r.Alias("crash_cashout", "crash.cashout")
	r.Alias("wheel_bet", "wheel.bet")
	r.Alias("jackpot_bet", "jackpot.bet")
	r.Alias("battle_bet", "battle.bet")
	r.Alias("coinflip_newBet", "coinflip.create")
	r.Alias("coinflip_join", "coinflip.join")
	r.Alias("promo_redeem", "promo.redeem")
	r.Alias("chat_message", "chat.send")
	r.Alias("fair_check", "fair.check")
}

// adminOnly guards a handler behind the admin role.
func (g *Gateway) adminOnly(fn HandlerFunc) HandlerFunc {
	return func(ctx context.Context, r *Request) (any, error) {
		if r.User == nil || !r.User.HasRole(domain.RoleAdmin) {
			return nil, domain.ErrForbidden("admin role required")
		}
		return fn(ctx, r)
	}
}

// snapshotFunc produces the current public view of a feature.
type snapshotFunc func(ctx context.Context) (any, error)

// subscribeHandler tags the connection and returns the feature snapshot so
// a resubscribing client catches up immediately.
func (g *Gateway) subscribeHandler(tag string, snap snapshotFunc) HandlerFunc {
	return func(ctx context.Context, r *Request) (any, error) {
		r.Conn.Subscribe(tag)
		return snap(ctx)
	}
}

// snapshotHandler serves the snapshot without touching subscriptions.
func (g *Gateway) snapshotHandler(snap snapshotFunc) HandlerFunc {
	return func(ctx context.Context, r *Request) (any, error) {
		return snap(ctx)
	}
}

func (g *Gateway) diceSnapshot(ctx context.Context) (any, error) {
	return g.deps.Dice.Snapshot(ctx), nil
}

func (g *Gateway) crashSnapshot(ctx context.Context) (any, error) {
	return g.deps.Crash.Snapshot(ctx), nil
}

func (g *Gateway) wheelSnapshot(ctx context.Context) (any, error) {
	return g.deps.Wheel.Snapshot(ctx), nil
}

func (g *Gateway) jackpotSnapshot(ctx context.Context) (any, error) {
	return g.deps.Jackpot.Snapshot(ctx), nil
}

func (g *Gateway) battleSnapshot(ctx context.Context) (any, error) {
	return g.deps.Battle.Snapshot(ctx), nil
}

func (g *Gateway) coinflipSnapshot(ctx context.Context) (any, error) {
	open, err := g.deps.Coinflip.List(ctx, 50)
	if err != nil {
		return nil, err
	}
	return map[string]any{"games": open}, nil
}

func (g *Gateway) chatSnapshot(ctx context.Context) (any, error) {
	history, err := g.deps.Chat.History(ctx, 50)
	if err != nil {
		return nil, err
	}
	return map[string]any{"messages": history, "online": g.hub.Count()}, nil
}

// parseID parses a uuid field, mapping failure to a validation error.
func parseID(field, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, domain.ErrValidation(field + " must be a valid id")
	}
	return id, nil
}
