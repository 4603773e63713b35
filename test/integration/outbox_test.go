//go:build integration

package integration

import (
	"encoding/json"
	"testing"

	"github.com/rollhaus/casino/test/integration/testutil"
	"github.com/stretchr/testify/assert"
)

// Bigserial ids commit out of order under concurrent writers: a transaction
// holding a lower id can commit after a higher id was already delivered.
// Delivery must key off the published stamp, not an id cursor, or the late
// row is skipped forever.
func TestOutbox_DeliversRowsCommittedOutOfIdOrder(t *testing.T) {
	env := testutil.NewTestEnv(t)
	watcher := env.Dial("")
	watcher.CallOK("coinflip.subscribe", "", json.RawMessage(`{}`))

	highEvent := testutil.NewRequestID()
	env.InsertOutboxEvent(5000, highEvent, "coinflip.created", "coinflip")
	got := watcher.WaitEvent("coinflip.created")
	assert.Equal(t, highEvent, got.EventID)

	lowEvent := testutil.NewRequestID()
	env.InsertOutboxEvent(4999, lowEvent, "coinflip.created", "coinflip")
	got = watcher.WaitEvent("coinflip.created")
	assert.Equal(t, lowEvent, got.EventID)
}

func TestOutbox_DoesNotRedeliverPublishedRows(t *testing.T) {
	env := testutil.NewTestEnv(t)
	watcher := env.Dial("")
	watcher.CallOK("coinflip.subscribe", "", json.RawMessage(`{}`))

	first := testutil.NewRequestID()
	env.InsertOutboxEvent(6000, first, "coinflip.created", "coinflip")
	assert.Equal(t, first, watcher.WaitEvent("coinflip.created").EventID)

	// The next event observed must be the new row, not a replay of the first.
	second := testutil.NewRequestID()
	env.InsertOutboxEvent(6001, second, "coinflip.created", "coinflip")
	assert.Equal(t, second, watcher.WaitEvent("coinflip.created").EventID)
}
