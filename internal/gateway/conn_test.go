package gateway

import (
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/infra"
	"github.com/stretchr/testify/assert"
)

func newTestConn() *Conn {
	return newConn(nil, nil, slog.Default())
}

func TestConn_IdentityAnonymous(t *testing.T) {
	c := newTestConn()

	_, authed := c.UserID()
	assert.False(t, authed)
	assert.NotEqual(t, uuid.Nil, c.Identity())
}

func TestConn_IdentitySwitchesOnAuth(t *testing.T) {
	c := newTestConn()
	anonIdentity := c.Identity()

	userID := uuid.New()
	c.setUser(userID, "alice")
	assert.Equal(t, userID, c.Identity())

	c.clearUser()
	assert.Equal(t, anonIdentity, c.Identity())
}

func TestWantsEvent_UserTargeted(t *testing.T) {
	userID := uuid.New()
	event := domain.NewUserEvent("wallet.balance.updated", "wallet", userID.String(), 1, userID, nil)

	mine := newTestConn()
	mine.setUser(userID, "alice")
	assert.True(t, mine.wantsEvent(event))

	theirs := newTestConn()
	theirs.setUser(uuid.New(), "bob")
	assert.False(t, theirs.wantsEvent(event))

	anon := newTestConn()
	// even with a wildcard subscription, targeted events stay private
	anon.Subscribe("*")
	assert.False(t, anon.wantsEvent(event))
}

func TestWantsEvent_WildcardSubscription(t *testing.T) {
	c := newTestConn()
	c.Subscribe("*")
	assert.True(t, c.wantsEvent(domain.NewEvent("crash.tick", "crash", "r1", 1, nil)))
}

func TestWantsEvent_AggregateTypeSubscription(t *testing.T) {
	c := newTestConn()
	c.Subscribe("crash")

	assert.True(t, c.wantsEvent(domain.NewEvent("crash.tick", "crash", "r1", 1, nil)))
	assert.False(t, c.wantsEvent(domain.NewEvent("wheel.spin", "wheel", "r2", 1, nil)))
}

func TestWantsEvent_ExactTypeSubscription(t *testing.T) {
	c := newTestConn()
	c.Subscribe("chat.message")

	assert.True(t, c.wantsEvent(domain.NewEvent("chat.message", "chat", "m1", 1, nil)))
	assert.False(t, c.wantsEvent(domain.NewEvent("chat.online", "chat", "m2", 1, nil)))
}

func TestWantsEvent_NoSubscription(t *testing.T) {
	c := newTestConn()
	assert.False(t, c.wantsEvent(domain.NewEvent("crash.tick", "crash", "r1", 1, nil)))
}

func TestConn_Unsubscribe(t *testing.T) {
	c := newTestConn()
	c.Subscribe("dice", "wheel")
	c.Unsubscribe("dice")

	assert.False(t, c.wantsEvent(domain.NewEvent("dice.bet", "dice", "g1", 1, nil)))
	assert.True(t, c.wantsEvent(domain.NewEvent("wheel.spin", "wheel", "r1", 1, nil)))
}

func TestConn_EnqueueDropsOnFullBuffer(t *testing.T) {
	c := newTestConn()
	for i := 0; i < sendBufferSize+10; i++ {
		c.enqueue([]byte("x"))
	}
	assert.Equal(t, sendBufferSize, len(c.send))
}

func TestConn_EnqueueAfterCloseDrops(t *testing.T) {
	c := newTestConn()
	c.enqueue([]byte("before"))
	c.closeSend()

	// A command goroutine finishing after the disconnect must not panic.
	assert.NotPanics(t, func() { c.enqueue([]byte("late")) })
	assert.NotPanics(t, c.closeSend)
}

func TestHub_RemoveThenEnqueueIsNoop(t *testing.T) {
	hub := NewHub(infra.NewMetrics(), slog.Default())
	c := newConn(hub, nil, slog.Default())
	hub.add(c)
	assert.Equal(t, 1, hub.Count())

	hub.remove(c)
	assert.Zero(t, hub.Count())
	assert.NotPanics(t, func() { c.enqueue([]byte("late")) })
	assert.NotPanics(t, func() { hub.remove(c) })
}
