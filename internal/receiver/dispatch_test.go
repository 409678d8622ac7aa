package receiver

import (
	"bytes"
	"context"
	logx "pushrelay/pkg/logx"
	"testing"

	"github.com/stretchr/testify/require"

	"pushrelay/internal/message"
	"pushrelay/internal/notification"
	"pushrelay/internal/storage"
)

func TestDispatchCallsEveryReceiver(t *testing.T) {
	g := New(Deps{})
	rs := []*countingReceiver{{handle: false}, {handle: true}, {handle: false}, {handle: true}}
	for _, r := range rs {
		g.Register(r)
	}

	require.True(t, g.Dispatch(context.Background(), &message.RawMessage{}))
	require.True(t, g.DispatchPayload(context.Background(), notification.Payload{}))
	for i, r := range rs {
		require.EqualValues(t, 1, r.messages.Load(), "receiver %d message calls", i)
		require.EqualValues(t, 1, r.payloads.Load(), "receiver %d payload calls", i)
	}
}

func TestDispatchNoneHandled(t *testing.T) {
	g := New(Deps{})
	g.Register(&countingReceiver{})
	g.Register(&countingReceiver{})
	require.False(t, g.Dispatch(context.Background(), &message.RawMessage{}))
	require.False(t, New(Deps{}).Dispatch(context.Background(), &message.RawMessage{}))
}

func TestDispatchRecoversPanics(t *testing.T) {
	g := New(Deps{})
	g.Register(Funcs{Message: func(context.Context, *message.RawMessage) bool { panic("bad receiver") }})
	after := &countingReceiver{}
	g.Register(after)

	require.False(t, g.Dispatch(context.Background(), &message.RawMessage{}))
	require.EqualValues(t, 1, after.messages.Load())
	require.EqualValues(t, 1, g.Stats().Panics)
}

type ctxKey struct{}

func TestDispatchPassesContext(t *testing.T) {
	g := New(Deps{})
	var got any
	g.Register(Funcs{Message: func(ctx context.Context, _ *message.RawMessage) bool {
		got = ctx.Value(ctxKey{})
		return true
	}})
	ctx := context.WithValue(context.Background(), ctxKey{}, "v")
	require.True(t, g.Dispatch(ctx, &message.RawMessage{}))
	require.Equal(t, "v", got)
}

func TestPayloadStageLastWriteWins(t *testing.T) {
	g := New(Deps{})
	set := func(v string) Receiver {
		return Funcs{Payload: func(_ context.Context, p notification.Payload) bool {
			p[notification.KeyTitle] = v
			return false
		}}
	}
	g.Register(set("first"))
	g.Register(set("second"))

	p := notification.Payload{notification.KeyTitle: "orig"}
	require.False(t, g.DispatchPayload(context.Background(), p))
	require.Equal(t, "second", p[notification.KeyTitle])
}

func TestBuiltins(t *testing.T) {
	cat := NewCatalog()
	AddBuiltins(cat, nopLog())
	require.True(t, cat.IsRevivable(IDAudit))
	require.False(t, cat.IsRevivable(IDSilent))

	g := New(Deps{Catalog: cat})
	EnableBuiltins(context.Background(), g, map[string]bool{"silent": true, "audit": true}, nopLog())
	EnableBuiltins(context.Background(), g, map[string]bool{"audit": true}, nopLog())
	require.Len(t, g.CurrentReceivers(context.Background()), 2)

	require.True(t, g.Dispatch(context.Background(), &message.RawMessage{Data: map[string]string{"silent": "TRUE"}}))
	require.False(t, g.Dispatch(context.Background(), &message.RawMessage{Data: map[string]string{"silent": "no"}}))
	require.False(t, g.DispatchPayload(context.Background(), notification.Payload{}))
}

func TestEnableBuiltinsTwiceKeepsOneOfEach(t *testing.T) {
	cat := NewCatalog()
	AddBuiltins(cat, nopLog())
	g := New(Deps{Store: storage.NewMemory(), Catalog: cat})

	on := map[string]bool{"silent": true, "audit": true}
	EnableBuiltins(context.Background(), g, on, nopLog())
	EnableBuiltins(context.Background(), g, map[string]bool{}, nopLog())
	EnableBuiltins(context.Background(), g, on, nopLog())
	require.Len(t, g.CurrentReceivers(context.Background()), 2)
}

func TestAuditEnabledWhileStoreUnavailableIsNotRevivedAgain(t *testing.T) {
	var built int
	cat := NewCatalog()
	cat.AddRevivable(IDAudit, func(context.Context) (Receiver, error) {
		built++
		return NewAudit(nopLog()), nil
	})
	d := storage.NewDeferred()
	g := New(Deps{Store: d, Catalog: cat})

	require.ErrorIs(t, g.Initialize(context.Background()), storage.ErrUnavailable)
	EnableBuiltins(context.Background(), g, map[string]bool{"audit": true}, nopLog())

	d.Attach(storage.NewMemory("audit"))
	g.Dispatch(context.Background(), &message.RawMessage{MessageID: "m1"})

	require.Len(t, g.CurrentReceivers(context.Background()), 1)
	require.Zero(t, built)
	require.Equal(t, []string{"audit"}, storedIDs(t, d))
}

func TestAuditLogsEncodedMessageAtDebug(t *testing.T) {
	var buf bytes.Buffer
	a := NewAudit(logx.NewWriter(&buf, "debug"))
	require.False(t, a.HandleMessage(&message.RawMessage{MessageID: "m1", Data: map[string]string{"k": "v"}}))
	require.Contains(t, buf.String(), `"message body"`)
	require.Contains(t, buf.String(), `\"k\":\"v\"`)

	buf.Reset()
	a = NewAudit(logx.NewWriter(&buf, "info"))
	a.HandleMessage(&message.RawMessage{MessageID: "m1"})
	require.NotContains(t, buf.String(), "message body")
}
