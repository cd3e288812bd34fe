package sim

import (
	"cmp"
	"math"
	"strings"

	"github.com/wippyai/clips-runtime/engine"
)

type builtin struct {
	fn  func(env *environment, args []engine.Value) engine.Value
	min int
	max int
}

var builtins map[string]builtin

func init() {
	unbounded := engine.Unbounded
	builtins = map[string]builtin{
		// arithmetic
		"+":       {arith("+", func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b }), 1, unbounded},
		"-":       {arith("-", func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b }), 1, unbounded},
		"*":       {arith("*", func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b }), 1, unbounded},
		"/":       {divide, 1, unbounded},
		"div":     {intDivide, 1, unbounded},
		"mod":     {modulo, 2, 2},
		"abs":     {abs, 1, 1},
		"min":     {extreme("min", func(a, b float64) bool { return a < b }), 1, unbounded},
		"max":     {extreme("max", func(a, b float64) bool { return a > b }), 1, unbounded},
		"**":      {floatFn("**", 2, math.Pow), 2, 2},
		"sqrt":    {floatFn("sqrt", 1, func(a, _ float64) float64 { return math.Sqrt(a) }), 1, 1},
		"exp":     {floatFn("exp", 1, func(a, _ float64) float64 { return math.Exp(a) }), 1, 1},
		"log":     {floatFn("log", 1, func(a, _ float64) float64 { return math.Log(a) }), 1, 1},
		"round":   {round, 1, 1},
		"integer": {toInteger, 1, 1},
		"float":   {toFloat, 1, 1},

		// comparison and logic
		"=":   {numCompare("=", func(c int) bool { return c == 0 }), 1, unbounded},
		"<>":  {numCompare("<>", func(c int) bool { return c != 0 }), 1, unbounded},
		">":   {numCompare(">", func(c int) bool { return c > 0 }), 1, unbounded},
		">=":  {numCompare(">=", func(c int) bool { return c >= 0 }), 1, unbounded},
		"<":   {numCompare("<", func(c int) bool { return c < 0 }), 1, unbounded},
		"<=":  {numCompare("<=", func(c int) bool { return c <= 0 }), 1, unbounded},
		"eq":  {eq, 1, unbounded},
		"neq": {neq, 1, unbounded},
		"not": {not, 1, 1},

		// predicates
		"numberp":           {typeIs(engine.INTEGER, engine.FLOAT), 1, 1},
		"integerp":          {typeIs(engine.INTEGER), 1, 1},
		"floatp":            {typeIs(engine.FLOAT), 1, 1},
		"symbolp":           {typeIs(engine.SYMBOL), 1, 1},
		"stringp":           {typeIs(engine.STRING), 1, 1},
		"lexemep":           {typeIs(engine.SYMBOL, engine.STRING), 1, 1},
		"multifieldp":       {typeIs(engine.MULTIFIELD), 1, 1},
		"pointerp":          {typeIs(engine.EXTERNAL_ADDRESS), 1, 1},
		"fact-addressp":     {typeIs(engine.FACT_ADDRESS), 1, 1},
		"instance-addressp": {typeIs(engine.INSTANCE_ADDRESS), 1, 1},
		"instance-namep":    {typeIs(engine.INSTANCE_NAME), 1, 1},
		"instancep":         {typeIs(engine.INSTANCE_ADDRESS, engine.INSTANCE_NAME), 1, 1},
		"evenp":             {parity(0), 1, 1},
		"oddp":              {parity(1), 1, 1},
		"type":              {typeOf, 1, 1},

		// strings
		"str-cat":     {strCat, 0, unbounded},
		"sym-cat":     {symCat, 0, unbounded},
		"str-length":  {strLength, 1, 1},
		"upcase":      {caseFn(strings.ToUpper), 1, 1},
		"lowcase":     {caseFn(strings.ToLower), 1, 1},
		"sub-string":  {subString, 3, 3},
		"str-index":   {strIndex, 2, 2},
		"str-compare": {strCompare, 2, 2},

		// multifields
		"create$":  {createMF, 0, unbounded},
		"nth$":     {nth, 2, 2},
		"length$":  {length, 1, 1},
		"first$":   {first, 1, 1},
		"rest$":    {rest, 1, 1},
		"member$":  {member, 2, 2},
		"subseq$":  {subseq, 3, 3},
		"delete$":  {deleteMF, 3, 3},
		"insert$":  {insertMF, 3, unbounded},
		"implode$": {implode, 1, 1},
		"explode$": {explode, 1, 1},
		"expand$":  {expandMF, 1, 1},

		// I/O
		"printout": {printout, 1, unbounded},
		"read":     {readToken, 0, 1},
		"readline": {readLine, 0, 1},

		// facts
		"retract":         {retractFn, 1, unbounded},
		"fact-index":      {factIndex, 1, 1},
		"fact-slot-value": {factSlotValue, 2, 2},
		"fact-existp":     {factExistp, 1, 1},
		"fact-relation":   {factRelation, 1, 1},
		"fact-slot-names": {factSlotNames, 1, 1},
		"facts":           {listFacts, 0, 1},
		"get-fact-list":   {getFactList, 0, 1},

		"deftemplate-slot-names": {templateSlotNames, 1, 1},

		// objects
		"send":             {sendFn, 2, unbounded},
		"instance-name":    {instanceName, 1, 1},
		"instance-address": {instanceAddress, 1, 1},
		"class":            {classOf, 1, 1},
		"unmake-instance":  {unmakeFn, 1, unbounded},
		"instance-existp":  {instanceExistp, 1, 1},

		"class-abstractp":    {classAbstractp, 1, 1},
		"class-slots":        {classSlots, 1, 2},
		"class-superclasses": {classSuperclasses, 1, 2},

		// files
		"load-facts":        {loadFactsFn, 1, 1},
		"save-facts":        {saveFactsFn, 1, 2},
		"load-instances":    {fileFn("load-instances", func(env *environment, p string) int64 { return env.loadInstances(p, false) }), 1, 1},
		"restore-instances": {fileFn("restore-instances", func(env *environment, p string) int64 { return env.loadInstances(p, true) }), 1, 1},
		"save-instances":    {fileFn("save-instances", (*environment).saveInstances), 1, 2},
		"bload-instances":   {fileFn("bload-instances", (*environment).bloadInstances), 1, 1},
		"bsave-instances":   {fileFn("bsave-instances", (*environment).bsaveInstances), 1, 2},

		// agenda and modules
		"focus":                   {focusFn, 1, unbounded},
		"get-focus":               {getFocus, 0, 0},
		"pop-focus":               {popFocusFn, 0, 0},
		"get-focus-stack":         {getFocusStack, 0, 0},
		"clear-focus-stack":       {clearFocusStack, 0, 0},
		"get-current-module":      {getCurrentModule, 0, 0},
		"set-current-module":      {setCurrentModuleFn, 1, 1},
		"get-defmodule-list":      {getDefmoduleList, 0, 0},
		"get-strategy":            {getStrategy, 0, 0},
		"set-strategy":            {setStrategyFn, 1, 1},
		"get-salience-evaluation": {getSalienceEvaluation, 0, 0},
		"set-salience-evaluation": {setSalienceEvaluationFn, 1, 1},
		"refresh-agenda":          {refreshAgendaFn, 0, 1},
		"undefrule":               {undefFn(engine.DefruleKind, "undefrule"), 1, 1},
		"undeftemplate":           {undefFn(engine.DeftemplateKind, "undeftemplate"), 1, 1},
		"undefclass":              {undefFn(engine.DefclassKind, "undefclass"), 1, 1},
		"undeffunction":           {undefFn(engine.DeffunctionKind, "undeffunction"), 1, 1},
		"undefglobal":             {undefFn(engine.DefglobalKind, "undefglobal"), 1, 1},
		"undeffacts":              {undefFn(engine.DeffactsKind, "undeffacts"), 1, 1},

		// environment
		"run":         {runFn, 0, 1},
		"halt":        {halt, 0, 0},
		"reset":       {resetFn, 0, 0},
		"clear":       {clearFn, 0, 0},
		"gensym":      {gensym, 0, 0},
		"gensym*":     {gensym, 0, 0},
		"eval":        {evalFn, 1, 1},
		"build":       {buildFn, 1, 1},
		"get-error":   {getError, 0, 0},
		"set-error":   {setError, 1, 1},
		"clear-error": {clearError, 0, 0},
		"exit":        {exit, 0, 1},
	}
}

func numeric(v engine.Value) (f float64, i int64, isInt, ok bool) {
	if i, ok := v.Integer(); ok {
		return float64(i), i, true, true
	}
	if f, ok := v.Float(); ok {
		return f, 0, false, true
	}
	return 0, 0, false, false
}

func (env *environment) badArg(name string, n int, want string) engine.Value {
	return env.fail("ARGACCES2", "Function '%s' expected argument #%d to be of type %s.", name, n, want)
}

func arith(name string, iop func(a, b int64) int64, fop func(a, b float64) float64) func(*environment, []engine.Value) engine.Value {
	return func(env *environment, args []engine.Value) engine.Value {
		f, i, isInt, ok := numeric(args[0])
		if !ok {
			return env.badArg(name, 1, "integer or float")
		}
		if len(args) == 1 && name == "-" {
			if isInt {
				return engine.Integer(-i)
			}
			return engine.Float(-f)
		}
		for n, a := range args[1:] {
			bf, bi, bInt, ok := numeric(a)
			if !ok {
				return env.badArg(name, n+2, "integer or float")
			}
			if isInt && bInt {
				i = iop(i, bi)
				f = float64(i)
				continue
			}
			if isInt {
				f = float64(i)
				isInt = false
			}
			f = fop(f, bf)
		}
		if isInt {
			return engine.Integer(i)
		}
		return engine.Float(f)
	}
}

func divide(env *environment, args []engine.Value) engine.Value {
	f, _, _, ok := numeric(args[0])
	if !ok {
		return env.badArg("/", 1, "integer or float")
	}
	if len(args) == 1 {
		args = append([]engine.Value{engine.Float(1)}, args...)
		f = 1
	}
	for n, a := range args[1:] {
		b, _, _, ok := numeric(a)
		if !ok {
			return env.badArg("/", n+2, "integer or float")
		}
		if b == 0 {
			return env.fail("PRNTUTIL7", "Attempt to divide by zero in '/' function.")
		}
		f /= b
	}
	return engine.Float(f)
}

func intDivide(env *environment, args []engine.Value) engine.Value {
	var acc int64
	for n, a := range args {
		f, i, isInt, ok := numeric(a)
		if !ok {
			return env.badArg("div", n+1, "integer or float")
		}
		if !isInt {
			i = int64(f)
		}
		if n == 0 {
			acc = i
			continue
		}
		if i == 0 {
			return env.fail("PRNTUTIL7", "Attempt to divide by zero in 'div' function.")
		}
		acc /= i
	}
	return engine.Integer(acc)
}

func modulo(env *environment, args []engine.Value) engine.Value {
	af, ai, aInt, ok := numeric(args[0])
	if !ok {
		return env.badArg("mod", 1, "integer or float")
	}
	bf, bi, bInt, ok := numeric(args[1])
	if !ok {
		return env.badArg("mod", 2, "integer or float")
	}
	if bf == 0 {
		return env.fail("PRNTUTIL7", "Attempt to divide by zero in 'mod' function.")
	}
	if aInt && bInt {
		return engine.Integer(ai % bi)
	}
	return engine.Float(math.Mod(af, bf))
}

func abs(env *environment, args []engine.Value) engine.Value {
	f, i, isInt, ok := numeric(args[0])
	switch {
	case !ok:
		return env.badArg("abs", 1, "integer or float")
	case isInt && i < 0:
		return engine.Integer(-i)
	case isInt:
		return args[0]
	}
	return engine.Float(math.Abs(f))
}

func extreme(name string, better func(a, b float64) bool) func(*environment, []engine.Value) engine.Value {
	return func(env *environment, args []engine.Value) engine.Value {
		best := args[0]
		bf, _, _, ok := numeric(best)
		if !ok {
			return env.badArg(name, 1, "integer or float")
		}
		for n, a := range args[1:] {
			f, _, _, ok := numeric(a)
			if !ok {
				return env.badArg(name, n+2, "integer or float")
			}
			if better(f, bf) {
				best, bf = a, f
			}
		}
		return best
	}
}

func floatFn(name string, arity int, op func(a, b float64) float64) func(*environment, []engine.Value) engine.Value {
	return func(env *environment, args []engine.Value) engine.Value {
		var xs [2]float64
		for n := 0; n < arity; n++ {
			f, _, _, ok := numeric(args[n])
			if !ok {
				return env.badArg(name, n+1, "integer or float")
			}
			xs[n] = f
		}
		return engine.Float(op(xs[0], xs[1]))
	}
}

func round(env *environment, args []engine.Value) engine.Value {
	f, i, isInt, ok := numeric(args[0])
	switch {
	case !ok:
		return env.badArg("round", 1, "integer or float")
	case isInt:
		return engine.Integer(i)
	}
	return engine.Integer(int64(math.Round(f)))
}

func toInteger(env *environment, args []engine.Value) engine.Value {
	f, i, isInt, ok := numeric(args[0])
	switch {
	case !ok:
		return env.badArg("integer", 1, "integer or float")
	case isInt:
		return engine.Integer(i)
	}
	return engine.Integer(int64(f))
}

func toFloat(env *environment, args []engine.Value) engine.Value {
	f, _, _, ok := numeric(args[0])
	if !ok {
		return env.badArg("float", 1, "integer or float")
	}
	return engine.Float(f)
}

func numCompare(name string, accept func(c int) bool) func(*environment, []engine.Value) engine.Value {
	return func(env *environment, args []engine.Value) engine.Value {
		prev, pi, pInt, ok := numeric(args[0])
		if !ok {
			return env.badArg(name, 1, "integer or float")
		}
		result := true
		for n, a := range args[1:] {
			f, i, isInt, ok := numeric(a)
			if !ok {
				return env.badArg(name, n+2, "integer or float")
			}
			var c int
			switch {
			case pInt && isInt:
				c = cmp.Compare(pi, i)
			default:
				c = cmp.Compare(prev, f)
			}
			if !accept(c) {
				result = false
			}
			if name != "<>" {
				prev, pi, pInt = f, i, isInt
			}
		}
		return boolValue(result)
	}
}

func eq(_ *environment, args []engine.Value) engine.Value {
	for _, a := range args[1:] {
		if !a.Equal(args[0]) {
			return symFalse
		}
	}
	return symTrue
}

func neq(_ *environment, args []engine.Value) engine.Value {
	for _, a := range args[1:] {
		if a.Equal(args[0]) {
			return symFalse
		}
	}
	return symTrue
}

func not(_ *environment, args []engine.Value) engine.Value {
	return boolValue(isFalse(args[0]))
}

func typeIs(types ...engine.Type) func(*environment, []engine.Value) engine.Value {
	return func(_ *environment, args []engine.Value) engine.Value {
		for _, t := range types {
			if args[0].Type() == t {
				return symTrue
			}
		}
		return symFalse
	}
}

func parity(want int64) func(*environment, []engine.Value) engine.Value {
	return func(env *environment, args []engine.Value) engine.Value {
		i, ok := args[0].Integer()
		if !ok {
			return env.badArg("evenp", 1, "integer")
		}
		return boolValue((i%2+2)%2 == want)
	}
}

func typeOf(env *environment, args []engine.Value) engine.Value {
	v := args[0]
	switch v.Type() {
	case engine.FLOAT:
		return engine.Symbol("FLOAT")
	case engine.INTEGER:
		return engine.Symbol("INTEGER")
	case engine.SYMBOL:
		return engine.Symbol("SYMBOL")
	case engine.STRING:
		return engine.Symbol("STRING")
	case engine.MULTIFIELD:
		return engine.Symbol("MULTIFIELD")
	case engine.EXTERNAL_ADDRESS:
		return engine.Symbol("EXTERNAL-ADDRESS")
	case engine.FACT_ADDRESS:
		return engine.Symbol("FACT-ADDRESS")
	case engine.INSTANCE_NAME:
		return engine.Symbol("INSTANCE-NAME")
	case engine.INSTANCE_ADDRESS:
		if ins := env.resolveInstance(v); ins != nil {
			return engine.Symbol(ins.class.name)
		}
		return engine.Symbol("INSTANCE-ADDRESS")
	}
	return engine.Symbol("VOID")
}

func (env *environment) concat(args []engine.Value) string {
	var b strings.Builder
	for _, a := range args {
		if s, ok := a.Lexeme(); ok {
			b.WriteString(s)
			continue
		}
		b.WriteString(env.printForm(a, false))
	}
	return b.String()
}

func strCat(env *environment, args []engine.Value) engine.Value {
	return engine.String(env.concat(args))
}

func symCat(env *environment, args []engine.Value) engine.Value {
	return engine.Symbol(env.concat(args))
}

func strLength(env *environment, args []engine.Value) engine.Value {
	s, ok := args[0].Lexeme()
	if !ok {
		return env.badArg("str-length", 1, "symbol, string, or instance name")
	}
	return engine.Integer(int64(len([]rune(s))))
}

func caseFn(conv func(string) string) func(*environment, []engine.Value) engine.Value {
	return func(env *environment, args []engine.Value) engine.Value {
		v := args[0]
		s, ok := v.Lexeme()
		if !ok {
			return v
		}
		switch v.Type() {
		case engine.STRING:
			return engine.String(conv(s))
		case engine.INSTANCE_NAME:
			return engine.InstanceName(conv(s))
		}
		return engine.Symbol(conv(s))
	}
}

func subString(env *environment, args []engine.Value) engine.Value {
	start, ok1 := args[0].Integer()
	end, ok2 := args[1].Integer()
	s, ok3 := args[2].Lexeme()
	if !ok1 || !ok2 || !ok3 {
		return env.badArg("sub-string", 1, "integer, integer, lexeme")
	}
	r := []rune(s)
	if start < 1 {
		start = 1
	}
	if end > int64(len(r)) {
		end = int64(len(r))
	}
	if start > end {
		return engine.String("")
	}
	return engine.String(string(r[start-1 : end]))
}

func strIndex(env *environment, args []engine.Value) engine.Value {
	needle, ok1 := args[0].Lexeme()
	hay, ok2 := args[1].Lexeme()
	if !ok1 || !ok2 {
		return env.badArg("str-index", 1, "lexeme")
	}
	i := strings.Index(hay, needle)
	if i < 0 {
		return symFalse
	}
	return engine.Integer(int64(len([]rune(hay[:i])) + 1))
}

func strCompare(env *environment, args []engine.Value) engine.Value {
	a, ok1 := args[0].Lexeme()
	b, ok2 := args[1].Lexeme()
	if !ok1 || !ok2 {
		return env.badArg("str-compare", 1, "lexeme")
	}
	return engine.Integer(int64(strings.Compare(a, b)))
}

// flatten splices multifield arguments into one multifield.
func flatten(vals []engine.Value) engine.Value {
	var out []engine.Value
	for _, v := range vals {
		if fields, ok := v.Fields(); ok {
			out = append(out, fields...)
			continue
		}
		out = append(out, v)
	}
	return engine.Multifield(out...)
}

func createMF(_ *environment, args []engine.Value) engine.Value {
	return flatten(args)
}

func (env *environment) fieldsArg(name string, n int, v engine.Value) ([]engine.Value, bool) {
	fields, ok := v.Fields()
	if !ok {
		env.badArg(name, n, "multifield")
	}
	return fields, ok
}

// expandMF is spliced by evalArgs inside calls; evaluated on its own it
// returns its argument.
func expandMF(_ *environment, args []engine.Value) engine.Value {
	return args[0]
}

func nth(env *environment, args []engine.Value) engine.Value {
	i, ok := args[0].Integer()
	if !ok {
		return env.badArg("nth$", 1, "integer")
	}
	fields, ok := env.fieldsArg("nth$", 2, args[1])
	if !ok {
		return symFalse
	}
	if i < 1 || i > int64(len(fields)) {
		return symNil
	}
	return fields[i-1]
}

func length(env *environment, args []engine.Value) engine.Value {
	if s, ok := args[0].Lexeme(); ok {
		return engine.Integer(int64(len([]rune(s))))
	}
	fields, ok := env.fieldsArg("length$", 1, args[0])
	if !ok {
		return symFalse
	}
	return engine.Integer(int64(len(fields)))
}

func first(env *environment, args []engine.Value) engine.Value {
	fields, ok := env.fieldsArg("first$", 1, args[0])
	if !ok {
		return symFalse
	}
	if len(fields) == 0 {
		return engine.Multifield()
	}
	return engine.Multifield(fields[0])
}

func rest(env *environment, args []engine.Value) engine.Value {
	fields, ok := env.fieldsArg("rest$", 1, args[0])
	if !ok {
		return symFalse
	}
	if len(fields) == 0 {
		return engine.Multifield()
	}
	return engine.Multifield(fields[1:]...)
}

func member(env *environment, args []engine.Value) engine.Value {
	fields, ok := env.fieldsArg("member$", 2, args[1])
	if !ok {
		return symFalse
	}
	for i, f := range fields {
		if f.Equal(args[0]) {
			return engine.Integer(int64(i + 1))
		}
	}
	return symFalse
}

func span(env *environment, name string, args []engine.Value) ([]engine.Value, int, int, bool) {
	fields, ok := env.fieldsArg(name, 1, args[0])
	if !ok {
		return nil, 0, 0, false
	}
	start, ok1 := args[1].Integer()
	end, ok2 := args[2].Integer()
	if !ok1 || !ok2 {
		env.badArg(name, 2, "integer")
		return nil, 0, 0, false
	}
	if start < 1 {
		start = 1
	}
	if end > int64(len(fields)) {
		end = int64(len(fields))
	}
	return fields, int(start), int(end), true
}

func subseq(env *environment, args []engine.Value) engine.Value {
	fields, start, end, ok := span(env, "subseq$", args)
	if !ok {
		return symFalse
	}
	if start > end {
		return engine.Multifield()
	}
	return engine.Multifield(fields[start-1 : end]...)
}

func deleteMF(env *environment, args []engine.Value) engine.Value {
	fields, start, end, ok := span(env, "delete$", args)
	if !ok {
		return symFalse
	}
	if start > end {
		return engine.Multifield(fields...)
	}
	out := append(append([]engine.Value{}, fields[:start-1]...), fields[end:]...)
	return engine.Multifield(out...)
}

func insertMF(env *environment, args []engine.Value) engine.Value {
	fields, ok := env.fieldsArg("insert$", 1, args[0])
	if !ok {
		return symFalse
	}
	at, ok := args[1].Integer()
	if !ok || at < 1 || at > int64(len(fields))+1 {
		return env.badArg("insert$", 2, "integer in range")
	}
	ins, _ := flatten(args[2:]).Fields()
	out := append([]engine.Value{}, fields[:at-1]...)
	out = append(out, ins...)
	out = append(out, fields[at-1:]...)
	return engine.Multifield(out...)
}

func implode(env *environment, args []engine.Value) engine.Value {
	fields, ok := env.fieldsArg("implode$", 1, args[0])
	if !ok {
		return symFalse
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = env.printForm(f, true)
	}
	return engine.String(strings.Join(parts, " "))
}

func explode(env *environment, args []engine.Value) engine.Value {
	s, ok := args[0].Str()
	if !ok {
		return env.badArg("explode$", 1, "string")
	}
	forms, err := parse(s)
	if err != nil {
		return engine.Multifield()
	}
	out := make([]engine.Value, 0, len(forms))
	for _, f := range forms {
		if f.isList {
			out = append(out, engine.String(f.String()))
			continue
		}
		out = append(out, atomValue(f.tok))
	}
	return engine.Multifield(out...)
}

func printout(env *environment, args []engine.Value) engine.Value {
	name, ok := args[0].Lexeme()
	if !ok {
		return env.badArg("printout", 1, "symbol or string")
	}
	for _, a := range args[1:] {
		var text string
		switch s, _ := a.Symbol(); {
		case a.Type() != engine.SYMBOL:
			text = env.printForm(a, false)
		case s == "crlf":
			text = "\n"
		case s == "tab":
			text = "\t"
		case s == "vtab":
			text = "\v"
		case s == "ff":
			text = "\f"
		default:
			text = s
		}
		env.writeString(name, text)
	}
	return engine.Void()
}

func inputArg(args []engine.Value) string {
	if len(args) == 0 {
		return engine.STDIN
	}
	if s, ok := args[0].Lexeme(); ok {
		return s
	}
	return engine.STDIN
}

func readToken(env *environment, args []engine.Value) engine.Value {
	name := inputArg(args)
	c := env.readChar(name)
	for c == ' ' || c == '\t' || c == '\n' || c == '\r' {
		c = env.readChar(name)
	}
	if c < 0 {
		return engine.Symbol("EOF")
	}
	var b strings.Builder
	if c == '"' {
		b.WriteByte('"')
		for {
			c = env.readChar(name)
			if c < 0 {
				break
			}
			b.WriteByte(byte(c))
			if c == '"' {
				break
			}
			if c == '\\' {
				if c = env.readChar(name); c >= 0 {
					b.WriteByte(byte(c))
				}
			}
		}
	} else {
		for c >= 0 && !isDelimiter(byte(c)) {
			b.WriteByte(byte(c))
			c = env.readChar(name)
		}
		if c >= 0 {
			env.unreadChar(name, c)
		}
		if b.Len() == 0 {
			b.WriteByte(byte(c))
			env.readChar(name)
		}
	}
	forms, err := parse(b.String())
	if err != nil || len(forms) != 1 || forms[0].isList {
		return engine.String(b.String())
	}
	return atomValue(forms[0].tok)
}

func readLine(env *environment, args []engine.Value) engine.Value {
	name := inputArg(args)
	var b strings.Builder
	c := env.readChar(name)
	if c < 0 {
		return engine.Symbol("EOF")
	}
	for c >= 0 && c != '\n' {
		b.WriteByte(byte(c))
		c = env.readChar(name)
	}
	return engine.String(strings.TrimSuffix(b.String(), "\r"))
}

func retractFn(env *environment, args []engine.Value) engine.Value {
	for n, a := range args {
		if s, ok := a.Symbol(); ok && s == "*" {
			for len(env.facts) > 0 {
				env.retract(env.facts[0])
			}
			continue
		}
		f := env.targetFact(a)
		if f == nil {
			if a.Type() != engine.FACT_ADDRESS && a.Type() != engine.INTEGER {
				return env.badArg("retract", n+1, "fact-address or integer")
			}
			continue
		}
		env.retract(f)
	}
	return engine.Void()
}

func (env *environment) factArg(name string, v engine.Value) *fact {
	if v.Type() != engine.FACT_ADDRESS {
		env.badArg(name, 1, "fact-address")
		return nil
	}
	f := env.targetFact(v)
	if f == nil {
		env.fail("PRNTUTIL11", "The fact referenced in function %s has been retracted.", name)
	}
	return f
}

func factIndex(env *environment, args []engine.Value) engine.Value {
	if f := env.factArg("fact-index", args[0]); f != nil {
		return engine.Integer(f.index)
	}
	return engine.Integer(-1)
}

func factSlotValue(env *environment, args []engine.Value) engine.Value {
	f := env.targetFact(args[0])
	if f == nil {
		return env.fail("PRNTUTIL11", "The fact referenced in function fact-slot-value has been retracted.")
	}
	slot, _ := args[1].Lexeme()
	v, code := f.get(slot)
	if code != engine.GetSlotNoError {
		return env.fail("FACTMNGR1", "Invalid slot %s for fact f-%d.", slot, f.index)
	}
	return v
}

func factExistp(env *environment, args []engine.Value) engine.Value {
	return boolValue(env.targetFact(args[0]) != nil)
}

func factRelation(env *environment, args []engine.Value) engine.Value {
	if f := env.targetFact(args[0]); f != nil {
		return engine.Symbol(f.tmpl.name)
	}
	return symFalse
}

func factSlotNames(env *environment, args []engine.Value) engine.Value {
	f := env.targetFact(args[0])
	if f == nil {
		return symFalse
	}
	if f.tmpl.implied {
		return engine.Multifield(engine.Symbol("implied"))
	}
	out := make([]engine.Value, len(f.tmpl.slots))
	for i, s := range f.tmpl.slots {
		out[i] = engine.Symbol(s.name)
	}
	return engine.Multifield(out...)
}

func templateSlotNames(env *environment, args []engine.Value) engine.Value {
	name, _ := args[0].Symbol()
	t := env.templates[name]
	if t == nil {
		return env.fail("PRNTUTIL1", "Unable to find deftemplate %s.", name)
	}
	if t.implied {
		return engine.Multifield(engine.Symbol("implied"))
	}
	out := make([]engine.Value, len(t.slots))
	for i, s := range t.slots {
		out[i] = engine.Symbol(s.name)
	}
	return engine.Multifield(out...)
}

func listFacts(env *environment, _ []engine.Value) engine.Value {
	env.listFacts()
	return engine.Void()
}

func getFactList(env *environment, _ []engine.Value) engine.Value {
	out := make([]engine.Value, len(env.facts))
	for i, f := range env.facts {
		out[i] = engine.FactAddress(f.ptr)
	}
	return engine.Multifield(out...)
}

func sendFn(env *environment, args []engine.Value) engine.Value {
	ins := env.resolveInstance(args[0])
	msg, ok := args[1].Symbol()
	if !ok {
		return env.badArg("send", 2, "symbol")
	}
	return env.send(ins, msg, args[2:])
}

func instanceName(env *environment, args []engine.Value) engine.Value {
	if ins := env.resolveInstance(args[0]); ins != nil {
		return engine.InstanceName(ins.name)
	}
	return env.fail("INSFUN4", "Invalid instance in function instance-name.")
}

func instanceAddress(env *environment, args []engine.Value) engine.Value {
	if ins := env.resolveInstance(args[0]); ins != nil {
		return engine.InstanceAddress(ins.ptr)
	}
	return env.fail("INSFUN4", "Invalid instance in function instance-address.")
}

func classOf(env *environment, args []engine.Value) engine.Value {
	if ins := env.resolveInstance(args[0]); ins != nil {
		return engine.Symbol(ins.class.name)
	}
	return typeOf(env, args)
}

func (env *environment) classArg(name string, args []engine.Value) (*class, bool) {
	cname, ok := lexemeArg(env, name, args, 0)
	if !ok {
		return nil, false
	}
	c := env.classes[cname]
	if c == nil {
		env.fail("PRNTUTIL1", "Unable to find class %s.", cname)
		return nil, false
	}
	inherit := len(args) > 1 && args[1].Equal(engine.Symbol("inherit"))
	return c, inherit
}

func classAbstractp(env *environment, args []engine.Value) engine.Value {
	c, _ := env.classArg("class-abstractp", args)
	return boolValue(c != nil && c.abstract)
}

func symbols(names []string) engine.Value {
	out := make([]engine.Value, len(names))
	for i, n := range names {
		out[i] = engine.Symbol(n)
	}
	return engine.Multifield(out...)
}

func classSlots(env *environment, args []engine.Value) engine.Value {
	c, inherit := env.classArg("class-slots", args)
	if c == nil {
		return symFalse
	}
	return symbols(c.slotNames(inherit))
}

func classSuperclasses(env *environment, args []engine.Value) engine.Value {
	c, inherit := env.classArg("class-superclasses", args)
	if c == nil {
		return symFalse
	}
	return symbols(c.superclasses(inherit))
}

func unmakeFn(env *environment, args []engine.Value) engine.Value {
	ok := true
	for _, a := range args {
		if s, isSym := a.Symbol(); isSym && s == "*" {
			for len(env.instances) > 0 {
				env.unmake(env.instances[0])
			}
			continue
		}
		if !env.unmake(env.resolveInstance(a)) {
			ok = false
		}
	}
	return boolValue(ok)
}

func instanceExistp(env *environment, args []engine.Value) engine.Value {
	return boolValue(env.resolveInstance(args[0]) != nil)
}

func runFn(env *environment, args []engine.Value) engine.Value {
	limit := int64(-1)
	if len(args) == 1 {
		i, ok := args[0].Integer()
		if !ok {
			return env.badArg("run", 1, "integer")
		}
		limit = i
	}
	env.run(limit)
	return engine.Void()
}

func halt(env *environment, _ []engine.Value) engine.Value {
	env.halted = true
	return engine.Void()
}

func resetFn(env *environment, _ []engine.Value) engine.Value {
	if env.running {
		return env.fail("PRNTUTIL1", "reset may not be called while rules are executing.")
	}
	env.reset()
	return engine.Void()
}

func clearFn(env *environment, _ []engine.Value) engine.Value {
	if env.running {
		return env.fail("PRNTUTIL1", "clear may not be called while rules are executing.")
	}
	env.clear()
	return engine.Void()
}

func gensym(env *environment, _ []engine.Value) engine.Value {
	return engine.Symbol(env.nextGensym("gen"))
}

func evalFn(env *environment, args []engine.Value) engine.Value {
	s, ok := args[0].Lexeme()
	if !ok {
		return env.badArg("eval", 1, "string or symbol")
	}
	v, code := env.evalString(s)
	if code != engine.EvalNoError {
		env.evalError = true
		return symFalse
	}
	return v
}

func buildFn(env *environment, args []engine.Value) engine.Value {
	s, ok := args[0].Lexeme()
	if !ok {
		return env.badArg("build", 1, "string or symbol")
	}
	return boolValue(env.build(s) == engine.BuildNoError)
}

func getError(env *environment, _ []engine.Value) engine.Value {
	return env.errorValue
}

func setError(env *environment, args []engine.Value) engine.Value {
	env.errorValue = args[0]
	return engine.Void()
}

func clearError(env *environment, _ []engine.Value) engine.Value {
	v := env.errorValue
	env.errorValue = symFalse
	return v
}

// exit notifies router exit handlers and halts execution. The host
// process is left running.
func exit(env *environment, args []engine.Value) engine.Value {
	code := 0
	if len(args) == 1 {
		if i, ok := args[0].Integer(); ok {
			code = int(i)
		}
	}
	env.exitRouters(code)
	env.halted = true
	return engine.Void()
}

// evalString parses and evaluates a single expression.
func (env *environment) evalString(text string) (engine.Value, engine.EvalError) {
	n, err := parseOne(text)
	if err != nil {
		env.reportParseError(err)
		return symFalse, engine.EvalParsingError
	}
	if isConstruct(n) {
		env.diagnostic("EVALUATN2", "Constructs must be defined with build.")
		return symFalse, engine.EvalParsingError
	}
	if err := env.validate(n, ""); err != nil {
		env.reportParseError(err)
		return symFalse, engine.EvalParsingError
	}
	v := env.eval(n, newScope(nil))
	env.returning = false
	env.breaking = false
	if env.evalError {
		return v, engine.EvalProcessingError
	}
	return v, engine.EvalNoError
}
