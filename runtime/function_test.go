package runtime

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/clips-runtime/errors"
	"github.com/wippyai/clips-runtime/transcoder"
)

func AddNumbers(xs ...int) int {
	sum := 0
	for _, x := range xs {
		sum += x
	}
	return sum
}

type mathHost struct {
	calls int
}

func (h *mathHost) Double(x int) int {
	h.calls++
	return 2 * x
}

func (h *mathHost) GetHTTPCode() int {
	return 200
}

func (h *mathHost) Describe(name string, scale float64) string {
	return fmt.Sprintf("%s*%g", name, scale)
}

type namedSet struct{}

func (namedSet) Functions() map[string]any {
	return map[string]any{
		"greet": func(s string) string { return "hi " + s },
		"ping":  func() transcoder.Symbol { return "pong" },
	}
}

type account struct {
	balance int
}

func TestDefineFunctionAdds(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.env.DefineFunction(func(a, b int) int { return a + b }, "go-add"))

	assert.Equal(t, int64(5), f.eval(t, "(go-add 2 3)"))
	assert.Equal(t, []string{"go-add"}, f.env.Functions())
}

func TestDefineFunctionDerivesName(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.env.DefineFunction(AddNumbers))

	assert.Equal(t, int64(6), f.eval(t, "(add-numbers 1 2 3)"))
	assert.Equal(t, int64(0), f.eval(t, "(add-numbers)"))

	err := f.env.DefineFunction(func() {})
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindInvalidInput, e.Kind)

	err = f.env.DefineFunction(42, "answer")
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindTypeMismatch, e.Kind)

	err = f.env.DefineFunction(func() (int, int) { return 1, 2 }, "pair")
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindRegistration, e.Kind)
	assert.NotContains(t, f.env.Functions(), "pair")
}

func TestDefineFunctionsFromMethods(t *testing.T) {
	f := newFixture(t)
	host := &mathHost{}
	require.NoError(t, f.env.DefineFunctions(host))

	assert.Equal(t, int64(8), f.eval(t, "(double 4)"))
	assert.Equal(t, int64(200), f.eval(t, "(get-http-code)"))
	assert.Equal(t, "box*1.5", f.eval(t, "(describe box 1.5)"))
	assert.Equal(t, 1, host.calls)
	assert.ElementsMatch(t, []string{"double", "get-http-code", "describe"}, f.env.Functions())
}

func TestDefineFunctionsFromSet(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.env.DefineFunctions(namedSet{}))

	assert.Equal(t, "hi bob", f.eval(t, `(greet "bob")`))
	assert.Equal(t, transcoder.Symbol("pong"), f.eval(t, "(ping)"))
}

func TestRedefineFunctionReplaces(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.env.DefineFunction(func() int { return 1 }, "v"))
	require.NoError(t, f.env.DefineFunction(func() int { return 2 }, "v"))

	assert.Equal(t, int64(2), f.eval(t, "(v)"))
	assert.Equal(t, []string{"v"}, f.env.Functions())
}

func TestFunctionResults(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.env.DefineFunction(func() {}, "nothing"))
	require.NoError(t, f.env.DefineFunction(func() error { return nil }, "fine"))
	require.NoError(t, f.env.DefineFunction(func() (string, error) { return "ok", nil }, "pair"))
	require.NoError(t, f.env.DefineFunction(func() []any { return []any{1, "x", transcoder.Symbol("y")} }, "list"))
	require.NoError(t, f.env.DefineFunction(func() any { return nil }, "null"))
	require.NoError(t, f.env.DefineFunction(func() bool { return true }, "yes"))

	tests := []struct {
		expr string
		want any
	}{
		{"(nothing)", transcoder.Nil},
		{"(fine)", transcoder.Nil},
		{"(pair)", "ok"},
		{"(list)", []any{int64(1), "x", transcoder.Symbol("y")}},
		{"(null)", transcoder.Nil},
		{"(yes)", transcoder.True},
		{"(length$ (list))", int64(3)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, f.eval(t, tt.expr)); diff != "" {
				t.Errorf("Eval(%s) mismatch (-want +got):\n%s", tt.expr, diff)
			}
		})
	}
}

func TestFunctionArguments(t *testing.T) {
	f := newFixture(t)
	var got []any
	require.NoError(t, f.env.DefineFunction(func(s string, sym transcoder.Symbol, n int64, x float64, anything any) {
		got = []any{s, sym, n, x, anything}
	}, "take"))

	f.eval(t, `(take "str" sym 7 2.5 [inst])`)
	want := []any{"str", transcoder.Symbol("sym"), int64(7), 2.5, transcoder.InstanceName("inst")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("arguments mismatch (-want +got):\n%s", diff)
	}

	// A symbol converts to a string parameter.
	require.NoError(t, f.env.DefineFunction(func(s string) int { return len(s) }, "size"))
	assert.Equal(t, int64(4), f.eval(t, "(size abcd)"))
}

func TestFunctionArgumentErrors(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.env.DefineFunction(func(x int) int { return x }, "ident"))
	require.NoError(t, f.env.DefineFunction(func(x int8) int8 { return x }, "small"))

	_, err := f.env.Eval("(ident abc)")
	require.ErrorIs(t, err, errors.ErrCall)
	assert.ErrorIs(t, f.env.ErrorState(), errors.ErrValue)
	f.env.ClearErrorState()

	_, err = f.env.Eval("(ident 1 2)")
	require.ErrorIs(t, err, errors.ErrCall)
	var e *errors.Error
	require.ErrorAs(t, f.env.ErrorState(), &e)
	assert.Equal(t, errors.KindInvalidInput, e.Kind)
	f.env.ClearErrorState()

	_, err = f.env.Eval("(small 1000)")
	require.Error(t, err)
	require.ErrorAs(t, f.env.ErrorState(), &e)
	assert.Equal(t, errors.KindValue, e.Kind)
	assert.Contains(t, e.Error(), "overflows int8")
}

func TestFunctionErrorSetsErrorState(t *testing.T) {
	f := newFixture(t)
	boom := stderrors.New("boom")
	require.NoError(t, f.env.DefineFunction(func() error { return boom }, "fail"))

	_, err := f.env.Eval("(fail)")
	require.ErrorIs(t, err, errors.ErrCall)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "[GOCODEFUN1]")

	state := f.env.ErrorState()
	require.Error(t, state)
	assert.Contains(t, state.Error(), "boom")

	// The error state outlives successful calls until cleared.
	assert.Equal(t, int64(3), f.eval(t, "(+ 1 2)"))
	assert.Equal(t, boom, f.env.ErrorState())
	assert.Equal(t, boom, f.eval(t, "(get-error)"))

	f.env.ClearErrorState()
	assert.NoError(t, f.env.ErrorState())
}

func TestErrorStateFromRules(t *testing.T) {
	f := newFixture(t)
	f.eval(t, `(set-error "custom")`)

	state := f.env.ErrorState()
	require.ErrorIs(t, state, errors.ErrCall)
	assert.Contains(t, state.Error(), "custom")

	f.env.ClearErrorState()
	assert.NoError(t, f.env.ErrorState())
}

func TestFunctionPanicIsolated(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.env.DefineFunction(func() int { panic("kaput") }, "explode"))

	_, err := f.env.Eval("(explode)")
	require.ErrorIs(t, err, errors.ErrCall)

	state := f.env.ErrorState()
	require.Error(t, state)
	assert.Equal(t, "kaput", state.Error())

	out := f.stderr.String()
	assert.Contains(t, out, "[GOCODEFUN1] panic: kaput")
	assert.Contains(t, out, "goroutine")

	// The environment stays usable.
	f.env.ClearErrorState()
	assert.Equal(t, int64(2), f.eval(t, "(+ 1 1)"))
}

func TestFunctionPanicStopsRun(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.env.DefineFunction(func(x int) { panic(fmt.Sprintf("bad %d", x)) }, "explode"))
	f.build(t, "(defrule r (item ?x) => (explode ?x))")
	for _, s := range []string{"(item 1)", "(item 2)"} {
		_, err := f.env.AssertString(s)
		require.NoError(t, err)
	}

	n, err := f.env.Run(-1)
	require.ErrorIs(t, err, errors.ErrCall)
	assert.Equal(t, int64(1), n)
	assert.Contains(t, err.Error(), "[PRCCODE4]")
	assert.Len(t, f.env.Activations(), 1)
}

func TestFunctionReceivesProxies(t *testing.T) {
	f := newFixture(t)
	f.build(t, "(deftemplate person (slot name))")
	require.NoError(t, f.env.DefineFunction(func(p *Fact) (string, error) {
		v, err := p.Slot("name")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%v", v), nil
	}, "person-name"))

	_, err := f.env.AssertString(`(person (name "ada"))`)
	require.NoError(t, err)
	assert.Equal(t, "ada", f.eval(t, "(person-name (nth$ 1 (get-fact-list)))"))
}

func TestFunctionCallsBackIntoEnvironment(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.env.DefineFunction(func(expr string) (any, error) {
		return f.env.Eval(expr)
	}, "nested"))

	assert.Equal(t, int64(9), f.eval(t, `(nested "(* 3 3)")`))

	_, err := f.env.Eval(`(nested "(+ a 1)")`)
	require.ErrorIs(t, err, errors.ErrCall)
	assert.Contains(t, err.Error(), "[ARGACCES2]", "inner diagnostic reaches the outer call")
	assert.Equal(t, 1, strings.Count(f.stderr.String(), "[ARGACCES2]"))
	assert.Contains(t, f.stderr.String(), "[GOCODEFUN1] call: nested eval failed")

	var inner *errors.Error
	require.ErrorAs(t, f.env.ErrorState(), &inner)
	assert.True(t, inner.Reported)
	assert.Contains(t, inner.Detail, "[ARGACCES2]")
}

func TestErrorStateSurvivesClear(t *testing.T) {
	f := newFixture(t)
	boom := stderrors.New("boom")
	require.NoError(t, f.env.DefineFunction(func() error { return boom }, "fail"))

	_, err := f.env.Eval("(fail)")
	require.Error(t, err)
	require.NoError(t, f.env.Clear())
	assert.Equal(t, boom, f.env.ErrorState())

	// A second failure replaces the recorded error; the first one is no
	// longer kept.
	other := stderrors.New("other")
	require.NoError(t, f.env.DefineFunction(func() error { return other }, "fail-again"))
	_, err = f.env.Eval("(fail-again)")
	require.Error(t, err)
	require.NoError(t, f.env.Clear())
	assert.Equal(t, other, f.env.ErrorState())

	f.env.ClearErrorState()
	require.NoError(t, f.env.Clear())
	assert.NoError(t, f.env.ErrorState())
}

func TestCapsulesRoundTrip(t *testing.T) {
	f := newFixture(t)
	acct := &account{balance: 10}
	require.NoError(t, f.env.DefineFunction(func() *account { return acct }, "open-account"))
	require.NoError(t, f.env.DefineFunction(func(a *account, n int) int {
		a.balance += n
		return a.balance
	}, "deposit"))

	assert.Equal(t, int64(15), f.eval(t, "(deposit (open-account) 5)"))
	assert.Equal(t, 15, acct.balance)

	got := f.eval(t, "(open-account)")
	assert.Same(t, acct, got)
	assert.Equal(t, transcoder.True, f.eval(t, "(pointerp (open-account))"))

	require.NoError(t, f.env.Clear())
	_, err := f.env.Eval("(go-function deposit (go-function open-account) 1)")
	require.NoError(t, err, "functions survive a clear")
}

func TestToKebabCase(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"FirstName", "first-name"},
		{"ID", "id"},
		{"XMLParser", "xml-parser"},
		{"GetHTTPCode", "get-http-code"},
		{"simple", "simple"},
		{"CamelCase", "camel-case"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := toKebabCase(tt.input)
			if result != tt.expected {
				t.Errorf("toKebabCase(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
