//go:build integration

package integration

import (
	"encoding/json"
	"testing"

	"github.com/rollhaus/casino/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_GrantsDemoBalance(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")

	user, tokens := c.Register("fresh_player")

	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, float64(100), user.BalanceMain)
	testutil.AssertBalance(t, env, user.ID, testutil.Coins(100))
}

func TestRegister_DuplicateUsername(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	c.Register("taken_name")

	resp := c.Call("auth.register", "", map[string]any{
		"username": "taken_name", "password": "password123",
	})
	require.False(t, resp.OK)
	assert.Equal(t, "CONFLICT", resp.Error.Code)
}

func TestRegister_RejectsBadUsername(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")

	resp := c.Call("auth.register", "", map[string]any{
		"username": "x", "password": "password123",
	})
	require.False(t, resp.OK)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestLogin_WrongPassword(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	c.Register("login_user")

	resp := c.Call("auth.login", "", map[string]any{
		"username": "login_user", "password": "wrong-password",
	})
	require.False(t, resp.OK)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
}

func TestAuthMe_RequiresToken(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")

	resp := c.Call("auth.me", "", json.RawMessage(`{}`))
	require.False(t, resp.OK)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
}

func TestAuthMe_PerFrameToken(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	user, tokens := c.Register("me_user")

	// A second socket with no query-token auths per frame.
	c2 := env.Dial("")
	resp := c2.CallOK("auth.me", tokens.AccessToken, json.RawMessage(`{}`))

	var out struct {
		User testutil.User `json:"user"`
	}
	resp.Bind(t, &out)
	assert.Equal(t, user.ID, out.User.ID)
	assert.Equal(t, "me_user", out.User.Username)
}

func TestRefresh_RotatesToken(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	_, tokens := c.Register("refresh_user")

	resp := c.CallOK("auth.refresh", "", map[string]any{"refreshToken": tokens.RefreshToken})
	var out struct {
		Tokens testutil.Tokens `json:"tokens"`
	}
	resp.Bind(t, &out)
	assert.NotEmpty(t, out.Tokens.RefreshToken)
	assert.NotEqual(t, tokens.RefreshToken, out.Tokens.RefreshToken)
	assert.Equal(t, tokens.SessionID, out.Tokens.SessionID)
}

func TestRefresh_ReuseRevokesSession(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	_, tokens := c.Register("reuse_user")

	first := c.CallOK("auth.refresh", "", map[string]any{"refreshToken": tokens.RefreshToken})
	var rotated struct {
		Tokens testutil.Tokens `json:"tokens"`
	}
	first.Bind(t, &rotated)

	// Replaying the rotated-away token must fail and kill the session.
	reuse := c.Call("auth.refresh", "", map[string]any{"refreshToken": tokens.RefreshToken})
	require.False(t, reuse.OK)
	assert.Equal(t, "UNAUTHORIZED", reuse.Error.Code)

	// The rotated token is dead too: the whole session was revoked.
	after := c.Call("auth.refresh", "", map[string]any{"refreshToken": rotated.Tokens.RefreshToken})
	require.False(t, after.OK)
	assert.Equal(t, "UNAUTHORIZED", after.Error.Code)
}

func TestLogout_EndsSession(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	_, tokens := c.Register("logout_user")

	c.CallOK("auth.logout", "", map[string]any{"refreshToken": tokens.RefreshToken})

	resp := c.Call("auth.refresh", "", map[string]any{"refreshToken": tokens.RefreshToken})
	require.False(t, resp.OK)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
}

func TestSessions_ListAndRevoke(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	_, tokens := c.Register("sessions_user")

	// Open a second session.
	c.CallOK("auth.login", "", map[string]any{
		"username": "sessions_user", "password": "password123",
	})

	list := c.CallOK("auth.sessions.list", tokens.AccessToken, json.RawMessage(`{}`))
	var out struct {
		Sessions []struct {
			ID string `json:"id"`
		} `json:"sessions"`
	}
	list.Bind(t, &out)
	require.Len(t, out.Sessions, 2)

	c.CallOK("auth.sessions.revoke", tokens.AccessToken,
		map[string]any{"sessionId": tokens.SessionID})

	resp := c.Call("auth.refresh", "", map[string]any{"refreshToken": tokens.RefreshToken})
	require.False(t, resp.OK)
}
