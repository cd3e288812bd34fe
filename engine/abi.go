package engine

// Env is an opaque engine environment handle. Zero is the NULL environment.
type Env uintptr

// Ptr is an opaque engine object handle (fact, instance, fact builder,
// external address). Zero is NULL.
type Ptr uintptr

// Unbounded is the maximum argument count for variadic user functions.
const Unbounded = -1

// Well-known router logical names.
const (
	STDOUT = "stdout"
	STDERR = "stderr"
	STDWRN = "stdwrn"
	STDIN  = "stdin"
	// T aliases stdout for output and stdin for input.
	T = "t"
)

// LoadError is returned by Load.
type LoadError int

const (
	LoadNoError LoadError = iota
	LoadOpenFileError
	LoadParsingError
)

// BuildError is returned by Build.
type BuildError int

const (
	BuildNoError BuildError = iota
	BuildCouldNotBuildError
	BuildConstructNotFoundError
	BuildParsingError
)

// EvalError is returned by Eval.
type EvalError int

const (
	EvalNoError EvalError = iota
	EvalParsingError
	EvalProcessingError
)

// RetractError is returned by Retract.
type RetractError int

const (
	RetractNoError RetractError = iota
	RetractNullPointerError
	RetractCouldNotRetractError
	RetractRuleNetworkError
)

// FactBuilderError is reported by the fact builder.
type FactBuilderError int

const (
	FBNoError FactBuilderError = iota
	FBNullPointerError
	FBDeftemplateNotFoundError
	FBImpliedDeftemplateError
	FBCouldNotAssertError
	FBRuleNetworkError
)

// PutSlotError is returned by slot writes.
type PutSlotError int

const (
	PutSlotNoError PutSlotError = iota
	PutSlotNullPointerError
	PutSlotInvalidTargetError
	PutSlotNotFoundError
	PutSlotTypeError
	PutSlotRangeError
	PutSlotAllowedValuesError
	PutSlotCardinalityError
	PutSlotAllowedClassesError
	PutSlotEvaluationError
	PutSlotRuleNetworkError
)

// GetSlotError is returned by slot reads.
type GetSlotError int

const (
	GetSlotNoError GetSlotError = iota
	GetSlotNullPointerError
	GetSlotInvalidTargetError
	GetSlotNotFoundError
)

// FunctionCallError is returned by FunctionCall.
type FunctionCallError int

const (
	CallNoError FunctionCallError = iota
	CallNullPointerError
	CallFunctionNotFoundError
	CallInvalidFunctionError
	CallArgumentCountError
	CallArgumentTypeError
	CallProcessingError
)

// SaveScope selects which constructs' facts or instances a save covers.
type SaveScope int

const (
	LocalSave SaveScope = iota
	VisibleSave
)

// Strategy is the agenda conflict resolution strategy.
type Strategy int

const (
	DepthStrategy Strategy = iota
	BreadthStrategy
	LexStrategy
	MEAStrategy
	ComplexityStrategy
	SimplicityStrategy
	RandomStrategy
)

// SalienceEvaluation controls when rule salience expressions run.
type SalienceEvaluation int

const (
	WhenDefined SalienceEvaluation = iota
	WhenActivated
	EveryCycle
)

// ConstructKind names a construct type for Undefine.
type ConstructKind int

const (
	DefruleKind ConstructKind = iota
	DeftemplateKind
	DefclassKind
	DeffunctionKind
	DefglobalKind
	DeffactsKind
)

var (
	strategyNames  = []string{"depth", "breadth", "lex", "mea", "complexity", "simplicity", "random"}
	salienceNames  = []string{"when-defined", "when-activated", "every-cycle"}
	constructNames = []string{"defrule", "deftemplate", "defclass", "deffunction", "defglobal", "deffacts"}
)

func enumName(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return "unknown"
	}
	return names[i]
}

func enumIndex(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// String returns the engine's name for the strategy, e.g. "depth".
func (s Strategy) String() string { return enumName(strategyNames, int(s)) }

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool { return s >= DepthStrategy && s <= RandomStrategy }

// ParseStrategy maps an engine strategy name to its Strategy.
func ParseStrategy(name string) (Strategy, bool) {
	i := enumIndex(strategyNames, name)
	return Strategy(i), i >= 0
}

// String returns the engine's name for the mode, e.g. "when-defined".
func (m SalienceEvaluation) String() string { return enumName(salienceNames, int(m)) }

// Valid reports whether m is a known mode.
func (m SalienceEvaluation) Valid() bool { return m >= WhenDefined && m <= EveryCycle }

// ParseSalienceEvaluation maps an engine mode name to its
// SalienceEvaluation.
func ParseSalienceEvaluation(name string) (SalienceEvaluation, bool) {
	i := enumIndex(salienceNames, name)
	return SalienceEvaluation(i), i >= 0
}

// String returns the construct keyword, e.g. "defrule".
func (k ConstructKind) String() string { return enumName(constructNames, int(k)) }

// RouterHandler receives engine-initiated router events. Implementations
// are invoked synchronously on the goroutine that made the engine call.
type RouterHandler interface {
	Query(env Env, logicalName string) bool
	Write(env Env, logicalName, text string)
	// Read returns the next character or -1 at end of input.
	Read(env Env, logicalName string) int
	Unread(env Env, logicalName string, ch int) int
	Exit(env Env, code int)
}

// UDF is a user-defined function implementation. It runs on the calling
// goroutine of the engine operation that invoked it.
type UDF func(env Env, args []Value) Value

// Activation is one agenda entry.
type Activation struct {
	Rule     string
	Salience int
	Basis    string
}

// Native is the engine ABI the bindings consume. Every method is
// synchronous; handles must not be used after DestroyEnvironment.
// Sentinel returns follow the engine: a zero Ptr is NULL, error codes
// are the enums above.
type Native interface {
	CreateEnvironment() Env
	DestroyEnvironment(env Env) bool

	// Constructs and commands
	Build(env Env, construct string) BuildError
	Eval(env Env, expr string) (Value, EvalError)
	Load(env Env, path string) LoadError
	Bload(env Env, path string) bool
	Save(env Env, path string) bool
	Bsave(env Env, path string) bool
	BatchStar(env Env, path string) bool
	Reset(env Env)
	Clear(env Env) bool
	Run(env Env, limit int64) int64

	// User functions
	AddUDF(env Env, name string, minArgs, maxArgs int, fn UDF) bool
	FunctionCall(env Env, name string, args []Value) (Value, FunctionCallError)

	// Error state
	SetErrorValue(env Env, v Value)
	GetErrorValue(env Env) Value
	ClearErrorValue(env Env)
	SetEvaluationError(env Env, on bool)
	GetEvaluationError(env Env) bool

	// Facts
	AssertString(env Env, text string) Ptr
	Retract(env Env, fact Ptr) RetractError
	RetainFact(env Env, fact Ptr)
	ReleaseFact(env Env, fact Ptr)
	FactIndex(env Env, fact Ptr) int64
	FactExistp(env Env, fact Ptr) bool
	FactTemplate(env Env, fact Ptr) string
	FactImplied(env Env, fact Ptr) bool
	// GetFactSlot reads a slot; the empty slot name addresses the
	// implied multifield of an ordered fact.
	GetFactSlot(env Env, fact Ptr, slot string) (Value, GetSlotError)
	FactSlotNames(env Env, fact Ptr) []string
	Facts(env Env) []Ptr
	FactPPForm(env Env, fact Ptr) string

	CreateFactBuilder(env Env, template string) Ptr
	FBPutSlot(env Env, fb Ptr, slot string, v Value) PutSlotError
	FBAssert(env Env, fb Ptr) Ptr
	FBDispose(env Env, fb Ptr)
	FBError(env Env) FactBuilderError

	Templates(env Env) []string
	TemplateSlotNames(env Env, template string) ([]string, bool)

	// Fact files. SaveFacts returns the number of facts written or -1.
	LoadFacts(env Env, path string) bool
	LoadFactsFromString(env Env, text string) bool
	SaveFacts(env Env, path string, scope SaveScope) int64

	// Instances
	MakeInstance(env Env, text string) Ptr
	FindInstance(env Env, name string) Ptr
	RetainInstance(env Env, ins Ptr)
	ReleaseInstance(env Env, ins Ptr)
	ValidInstanceAddress(env Env, ins Ptr) bool
	InstanceName(env Env, ins Ptr) string
	InstanceClass(env Env, ins Ptr) string
	DirectGetSlot(env Env, ins Ptr, slot string) (Value, GetSlotError)
	DirectPutSlot(env Env, ins Ptr, slot string, v Value) PutSlotError
	UnmakeInstance(env Env, ins Ptr) bool
	Send(env Env, ins Ptr, message, args string) Value
	Instances(env Env) []Ptr
	InstancePPForm(env Env, ins Ptr) string

	// Instance files. Each returns the number of instances handled or -1.
	// Restore skips message handlers; Load sends init to each instance.
	LoadInstances(env Env, path string) int64
	LoadInstancesFromString(env Env, text string) int64
	RestoreInstances(env Env, path string) int64
	RestoreInstancesFromString(env Env, text string) int64
	SaveInstances(env Env, path string, scope SaveScope) int64
	BinaryLoadInstances(env Env, path string) int64
	BinarySaveInstances(env Env, path string, scope SaveScope) int64

	// Classes. The list includes the system classes the backend defines.
	Classes(env Env) []string
	ClassAbstract(env Env, class string) (abstract, ok bool)
	ClassSlots(env Env, class string, inherit bool) ([]string, bool)
	ClassSuperclasses(env Env, class string, inherit bool) ([]string, bool)

	// Routers
	AddRouter(env Env, name string, priority int, h RouterHandler) bool
	DeleteRouter(env Env, name string) bool
	ActivateRouter(env Env, name string) bool
	DeactivateRouter(env Env, name string) bool
	WriteString(env Env, logicalName, text string)
	WriteValue(env Env, logicalName string, v Value)
	ReadRouter(env Env, logicalName string) int
	UnreadRouter(env Env, logicalName string, ch int) int

	// Agenda. Activations lists the current module's agenda.
	Rules(env Env) []string
	Activations(env Env) []Activation
	RefreshAgenda(env Env)
	ClearAgenda(env Env)
	GetStrategy(env Env) Strategy
	// SetStrategy returns the previous strategy.
	SetStrategy(env Env, s Strategy) Strategy
	GetSalienceEvaluation(env Env) SalienceEvaluation
	SetSalienceEvaluation(env Env, mode SalienceEvaluation) SalienceEvaluation
	Undefine(env Env, kind ConstructKind, name string) bool

	// Modules and focus
	Modules(env Env) []string
	CurrentModule(env Env) string
	SetCurrentModule(env Env, module string) bool
	Focus(env Env, module string) bool
	// GetFocus returns "" when the focus stack is empty.
	GetFocus(env Env) string
	ClearFocusStack(env Env)

	// Globals
	GetDefglobalValue(env Env, name string) (Value, bool)
	SetDefglobalValue(env Env, name string, v Value) bool
}
