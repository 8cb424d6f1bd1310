package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInboxDropsWhenFull(t *testing.T) {
	t.Parallel()

	in := NewInbox()
	delivered := 0
	for i := 0; i < inboxDepth*2; i++ {
		if in.Send(Message{Kind: MsgHazard}) {
			delivered++
		}
	}
	assert.Equal(t, inboxDepth, delivered)
	assert.Len(t, in.Drain(), inboxDepth)
	assert.Empty(t, in.Drain())
}

func TestExchangeRouting(t *testing.T) {
	t.Parallel()

	ex := NewExchange()
	a := ex.Register("a")
	b := ex.Register("b")

	require.True(t, ex.Send("b", Message{Kind: MsgBraking, From: "a"}))
	require.False(t, ex.Send("nobody", Message{Kind: MsgBraking}))

	got := b.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, MsgBraking, got[0].Kind)
	assert.Equal(t, "a", got[0].From)
	assert.Empty(t, a.Drain())
}

func TestExchangeBroadcastSkipsSender(t *testing.T) {
	t.Parallel()

	ex := NewExchange()
	a := ex.Register("a")
	b := ex.Register("b")
	c := ex.Register("c")

	ex.Broadcast([]string{"a", "b", "c"}, Message{Kind: MsgHazard, From: "a"})

	assert.Empty(t, a.Drain())
	assert.Len(t, b.Drain(), 1)
	assert.Len(t, c.Drain(), 1)
}

func TestExchangeUnregister(t *testing.T) {
	t.Parallel()

	ex := NewExchange()
	ex.Register("a")
	ex.Unregister("a")
	assert.False(t, ex.Send("a", Message{Kind: MsgHazard}))
}
