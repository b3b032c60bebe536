package bridge_test

import (
	"bytes"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gaurav-Gosain/eduvpn/internal/bridge"
	"github.com/Gaurav-Gosain/eduvpn/internal/enginetest"
)

const session = "org.eduvpn.app.linux"

type recorder struct {
	mu     sync.Mutex
	events []bridge.Event
	ids    []string
}

func (r *recorder) dispatch(id string, ev bridge.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() ([]string, []bridge.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...), append([]bridge.Event(nil), r.events...)
}

func newBridge(t *testing.T, opts bridge.Options) (*bridge.Bridge, *enginetest.Engine) {
	t.Helper()
	engine := enginetest.New()
	if opts.NewCallback == nil {
		opts.NewCallback = engine.NewCallback
	}
	b, err := bridge.New(engine.Natives(), opts)
	require.NoError(t, err)
	return b, engine
}

func register(t *testing.T, b *bridge.Bridge, id string) {
	t.Helper()
	errText, err := b.CallError(bridge.OpRegister, id, "configs", b.Trampoline(id), 0)
	require.NoError(t, err)
	require.Empty(t, errText)
}

// ============================================================================
// Construction
// ============================================================================

type missingSymbols struct{ looked []string }

func (m *missingSymbols) Lookup(name string) (uintptr, error) {
	m.looked = append(m.looked, name)
	return 0, errors.New("undefined symbol")
}

func TestBindReportsMissingSymbol(t *testing.T) {
	syms := &missingSymbols{}
	natives, err := bridge.Bind(syms)
	require.Error(t, err)
	assert.Nil(t, natives)
	assert.Contains(t, err.Error(), bridge.OpGetOrganizationsList)
	assert.Contains(t, err.Error(), "undefined symbol")
	assert.Equal(t, []string{"GetOrganizationsList"}, syms.looked)
}

func TestNewRejectsIncompleteTable(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(bridge.Natives)
		want   string
	}{
		{
			name:   "missing free",
			mutate: func(n bridge.Natives) { delete(n, "FreeString") },
			want:   "missing entry point FreeString",
		},
		{
			name:   "wrong type",
			mutate: func(n bridge.Natives) { n["GetIdentifier"] = bridge.UnaryFunc(func(*byte) uintptr { return 0 }) },
			want:   "entry point GetIdentifier",
		},
		{
			name:   "nil function",
			mutate: func(n bridge.Natives) { n["Register"] = bridge.RegisterFunc(nil) },
			want:   "entry point Register",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			natives := enginetest.New().Natives()
			tt.mutate(natives)
			_, err := bridge.New(natives, bridge.Options{Logger: zerolog.Nop()})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOperationsTable(t *testing.T) {
	seen := make(map[string]bool)
	for _, op := range bridge.Operations {
		assert.False(t, seen[op.Symbol], "duplicate symbol %s", op.Symbol)
		seen[op.Symbol] = true

		got, ok := bridge.Lookup(op.Name)
		require.True(t, ok, op.Name)
		assert.Equal(t, op.Symbol, got.Symbol)
	}
	assert.Len(t, bridge.Operations, 16)

	op, _ := bridge.Lookup(bridge.OpRegister)
	assert.Equal(t, []bridge.Kind{bridge.KindString, bridge.KindString, bridge.KindCallback, bridge.KindInt}, op.Args)
	assert.Equal(t, 4, op.Arity())
}

// ============================================================================
// Ownership transfer
// ============================================================================

func TestNullPointersAreNotFreed(t *testing.T) {
	b, engine := newBridge(t, bridge.Options{Logger: zerolog.Nop()})
	register(t, b, session)

	res, err := b.CallData(bridge.OpGetIdentifier, session)
	require.NoError(t, err)

	data, errText := res.Values()
	assert.Empty(t, data)
	assert.Empty(t, errText)
	assert.Zero(t, engine.Heap.Allocs())
	assert.Zero(t, engine.Heap.TotalFrees())
}

func TestNonNullPointersAreFreedOnce(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"ascii", "client-42"},
		{"multibyte", "héllo wörld ✓ 🎉"},
		{"cjk", "教育网络"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, engine := newBridge(t, bridge.Options{Logger: zerolog.Nop()})
			register(t, b, session)

			errText, err := b.CallError(bridge.OpSetIdentifier, session, tt.value)
			require.NoError(t, err)
			require.Empty(t, errText)

			res, err := b.CallData(bridge.OpGetIdentifier, session)
			require.NoError(t, err)
			assert.Equal(t, tt.value, res.Data)
			assert.Empty(t, res.Error)

			assert.Equal(t, 1, engine.Heap.Allocs())
			assert.Equal(t, 1, engine.Heap.TotalFrees())
			assert.Zero(t, engine.Heap.DoubleFrees())
			assert.Zero(t, engine.Heap.InvalidFrees())
			assert.Zero(t, engine.Heap.Outstanding())
		})
	}
}

func TestInvalidUTF8DecodesToEmpty(t *testing.T) {
	var logs bytes.Buffer
	b, engine := newBridge(t, bridge.Options{Logger: zerolog.New(&logs)})
	register(t, b, session)

	_, err := b.CallError(bridge.OpSetIdentifier, session, "\xff\xfebad")
	require.NoError(t, err)

	res, err := b.CallData(bridge.OpGetIdentifier, session)
	require.NoError(t, err)
	assert.Empty(t, res.Data)
	assert.Equal(t, uint64(1), b.DecodeFailures())
	assert.Contains(t, logs.String(), "not valid UTF-8")

	// The buffer is still released.
	assert.Zero(t, engine.Heap.Outstanding())
	assert.Zero(t, engine.Heap.DoubleFrees())
}

// ============================================================================
// Result shapes
// ============================================================================

func TestDataResultIsTwoTuple(t *testing.T) {
	b, engine := newBridge(t, bridge.Options{Logger: zerolog.Nop()})
	register(t, b, session)

	res, err := b.Invoke(bridge.OpGetOrganizationsList, session)
	require.NoError(t, err)
	assert.Equal(t, bridge.ShapeData, res.Shape)
	assert.Equal(t, []string{enginetest.DefaultOrganizations, ""}, res.Values())
	assert.Len(t, res.Values(), res.Shape.Fields())
	assert.Zero(t, engine.Heap.Outstanding())
}

func TestMultipleDataResultIsThreeTuple(t *testing.T) {
	b, engine := newBridge(t, bridge.Options{Logger: zerolog.Nop()})
	engine.AddServer("https://vpn.example.com/", enginetest.Server{
		Config:     "[Interface]\nPrivateKey = abc",
		ConfigType: "wireguard",
	})
	register(t, b, session)

	res, err := b.CallMultipleData(bridge.OpGetConfigCustomServer, session, "https://vpn.example.com/", 0)
	require.NoError(t, err)

	data, other, errText := res.Values()
	assert.Equal(t, "[Interface]\nPrivateKey = abc", data)
	assert.Equal(t, "wireguard", other)
	assert.Empty(t, errText)
	assert.Zero(t, engine.Heap.Outstanding())
	assert.Zero(t, engine.Heap.DoubleFrees())
}

func TestUnreachableServerReturnsOnlyError(t *testing.T) {
	b, engine := newBridge(t, bridge.Options{Logger: zerolog.Nop()})
	engine.AddServer("https://down.example.com/", enginetest.Server{Unreachable: true})
	register(t, b, session)

	res, err := b.Invoke(bridge.OpGetConfigCustomServer, session, "https://down.example.com/", 0)
	require.NoError(t, err)

	values := res.Values()
	require.Len(t, values, 3)
	assert.Empty(t, values[0])
	assert.Empty(t, values[1])
	assert.NotEmpty(t, values[2])
	assert.Equal(t, 1, engine.Heap.TotalFrees())
}

func TestErrorShapeDecodesReturnedPointer(t *testing.T) {
	b, engine := newBridge(t, bridge.Options{Logger: zerolog.Nop()})

	res, err := b.Invoke(bridge.OpDeregister, "never-registered")
	require.NoError(t, err)
	require.Len(t, res.Values(), 1)
	assert.Contains(t, res.Error, "never-registered")
	assert.Equal(t, 1, engine.Heap.TotalFrees())
}

func TestGetConfigFlags(t *testing.T) {
	b, engine := newBridge(t, bridge.Options{Logger: zerolog.Nop()})
	engine.AddServer("https://vpn.example.com/", enginetest.Server{Config: "remote vpn", ConfigType: "openvpn"})
	register(t, b, session)

	for _, flags := range []any{1, int32(1)} {
		_, err := b.CallMultipleData(bridge.OpGetConfigInstituteAccess, session, "https://vpn.example.com/", flags)
		require.NoError(t, err)
		st, ok := engine.Session(session)
		require.True(t, ok)
		assert.Equal(t, int32(1), st.LastFlags)
	}
}

// ============================================================================
// Marshaling errors
// ============================================================================

// wideFlags does not fit the C int flags argument.
var wideFlags int64 = math.MaxInt32 + 1

func TestInvokeRejectsBadArguments(t *testing.T) {
	tests := []struct {
		name string
		op   string
		args []any
		want error
	}{
		{"unknown", "connect", []any{session}, bridge.ErrUnknownOperation},
		{"free string", bridge.OpFreeString, []any{uintptr(1)}, bridge.ErrNotInvocable},
		{"too few", bridge.OpSetProfileID, []any{session}, bridge.ErrArity},
		{"too many", bridge.OpGetServersList, []any{session, "x"}, bridge.ErrArity},
		{"int for string", bridge.OpGetServersList, []any{42}, bridge.ErrArgKind},
		{"string for int", bridge.OpGetConfigSecureInternet, []any{session, "u", "1"}, bridge.ErrArgKind},
		{"int above int32", bridge.OpGetConfigCustomServer, []any{session, "u", int(wideFlags)}, bridge.ErrArgKind},
		{"int below int32", bridge.OpGetConfigCustomServer, []any{session, "u", int(-wideFlags - 1)}, bridge.ErrArgKind},
		{"raw callback", bridge.OpRegister, []any{session, "c", uintptr(1), 0}, bridge.ErrArgKind},
		{"nul byte", bridge.OpSetIdentifier, []any{session, "a\x00b"}, bridge.ErrEmbeddedNUL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, engine := newBridge(t, bridge.Options{Logger: zerolog.Nop()})
			_, err := b.Invoke(tt.op, tt.args...)
			require.ErrorIs(t, err, tt.want)

			if op, ok := bridge.Lookup(tt.op); ok {
				assert.Zero(t, engine.Calls(op.Symbol), "entry point must not be called")
			}
		})
	}
}

func TestTypedHelpersCheckShape(t *testing.T) {
	b, _ := newBridge(t, bridge.Options{Logger: zerolog.Nop()})

	_, err := b.CallData(bridge.OpDeregister, session)
	require.ErrorIs(t, err, bridge.ErrShape)

	_, err = b.CallMultipleData(bridge.OpGetIdentifier, session)
	require.ErrorIs(t, err, bridge.ErrShape)

	_, err = b.CallError(bridge.OpGetConfigCustomServer, session, "u", 0)
	require.ErrorIs(t, err, bridge.ErrShape)
}

// ============================================================================
// Trampolines
// ============================================================================

func TestTrampolineCachedPerSession(t *testing.T) {
	b, _ := newBridge(t, bridge.Options{Logger: zerolog.Nop()})

	first := b.Trampoline("a")
	assert.Equal(t, first, b.Trampoline("a"))
	assert.NotEqual(t, first, b.Trampoline("b"))
}

func TestTrampolineDeliversFourStrings(t *testing.T) {
	rec := &recorder{}
	b, engine := newBridge(t, bridge.Options{Logger: zerolog.Nop(), Dispatch: rec.dispatch})
	register(t, b, session)

	require.True(t, engine.Emit(session, "Chosen_Server", "OAuth_Started", "https://idp.example.com/authorize", ""))
	require.True(t, engine.Emit(session, "OAuth_Started", "No_Server", "", "oauth cancelled"))
	require.True(t, engine.Emit(session, "", "", "", ""))

	ids, events := rec.snapshot()
	assert.Equal(t, []string{session, session, session}, ids)
	assert.Equal(t, []bridge.Event{
		{OldState: "Chosen_Server", NewState: "OAuth_Started", Data: "https://idp.example.com/authorize"},
		{OldState: "OAuth_Started", NewState: "No_Server", Error: "oauth cancelled"},
		{},
	}, events)

	// Callback strings are borrowed; only the engine frees them.
	assert.Zero(t, engine.Heap.DoubleFrees())
	assert.Zero(t, engine.Heap.Outstanding())
}

func TestTrampolineRecoversDispatchPanic(t *testing.T) {
	var logs bytes.Buffer
	b, engine := newBridge(t, bridge.Options{
		Logger:   zerolog.New(&logs),
		Dispatch: func(string, bridge.Event) { panic("listener exploded") },
	})
	register(t, b, session)

	assert.NotPanics(t, func() {
		engine.Emit(session, "A", "B", "", "")
	})
	assert.Contains(t, logs.String(), "listener exploded")
}

func TestTrampolineInvalidUTF8(t *testing.T) {
	rec := &recorder{}
	b, engine := newBridge(t, bridge.Options{Logger: zerolog.Nop(), Dispatch: rec.dispatch})
	register(t, b, session)

	engine.Emit(session, "A", "B", "\xc3\x28", "")

	_, events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, bridge.Event{OldState: "A", NewState: "B"}, events[0])
	assert.Equal(t, uint64(1), b.DecodeFailures())
}
