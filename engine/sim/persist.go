package sim

import (
	"bytes"
	"os"
	"strings"

	"github.com/wippyai/clips-runtime/engine"
)

// saveFacts writes every fact in printed form, one per line, and returns
// the count or -1.
func (env *environment) saveFacts(path string) int64 {
	var b strings.Builder
	for _, f := range env.facts {
		b.WriteString(env.ppFact(f))
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		env.diagnostic("FILECOM1", "Unable to open file %s.", path)
		return -1
	}
	return int64(len(env.facts))
}

func (env *environment) loadFacts(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		env.diagnostic("FILECOM1", "Unable to open file %s.", path)
		return false
	}
	return env.loadFactsText(string(data))
}

// loadFactsText asserts each fact form in text. Facts asserted before a
// failing form stay in working memory.
func (env *environment) loadFactsText(text string) bool {
	forms, err := parse(text)
	if err != nil {
		env.reportParseError(err)
		return false
	}
	if err := structural["assert"](env, forms, ""); err != nil {
		env.reportParseError(err)
		return false
	}
	env.evalError = false
	for _, n := range forms {
		if env.factFromNode(n, newScope(nil)) == nil {
			return false
		}
	}
	return true
}

func (env *environment) instanceForms() []string {
	out := make([]string, len(env.instances))
	for i, ins := range env.instances {
		out[i] = "(" + env.ppInstance(ins) + ")"
	}
	return out
}

// saveInstances writes every instance as a ([name] of class (slot v)...)
// form and returns the count or -1.
func (env *environment) saveInstances(path string) int64 {
	forms := env.instanceForms()
	text := strings.Join(forms, "\n")
	if len(forms) > 0 {
		text += "\n"
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		env.diagnostic("FILECOM1", "Unable to open file %s.", path)
		return -1
	}
	return int64(len(forms))
}

func (env *environment) bsaveInstances(path string) int64 {
	forms := env.instanceForms()
	if err := os.WriteFile(path, writeImage(instancesMagic, forms), 0o644); err != nil {
		env.diagnostic("BSAVE1", "Unable to open file %s.", path)
		return -1
	}
	return int64(len(forms))
}

func (env *environment) loadInstances(path string, restore bool) int64 {
	data, err := os.ReadFile(path)
	if err != nil {
		env.diagnostic("FILECOM1", "Unable to open file %s.", path)
		return -1
	}
	if bytes.HasPrefix(data, []byte(instancesMagic)) {
		env.diagnostic("INSFILE2", "File %s is a binary instance file.", path)
		return -1
	}
	return env.loadInstancesText(string(data), restore)
}

func (env *environment) bloadInstances(path string) int64 {
	data, err := os.ReadFile(path)
	if err != nil {
		env.diagnostic("BLOAD1", "Unable to open file %s.", path)
		return -1
	}
	forms, ok := readImage(bytes.NewReader(data), instancesMagic)
	if !ok {
		env.diagnostic("INSFILE3", "File %s is not a binary instances file.", path)
		return -1
	}
	return env.loadInstancesText(strings.Join(forms, "\n"), true)
}

// loadInstancesText creates an instance per form. Restoring skips init
// handlers; loading runs them.
func (env *environment) loadInstancesText(text string, restore bool) int64 {
	forms, err := parse(text)
	if err != nil {
		env.reportParseError(err)
		return -1
	}
	env.evalError = false
	env.restoring = restore
	defer func() { env.restoring = false }()

	var count int64
	for _, n := range forms {
		if !n.isList {
			env.fail("INSFILE1", "Expected an instance definition, found %s.", n.String())
			return -1
		}
		if err := structural["make-instance"](env, n.list, ""); err != nil {
			env.reportParseError(err)
			return -1
		}
		if _, ok := env.makeInstanceForm(n.list, newScope(nil)).InstanceName(); !ok {
			return -1
		}
		count++
	}
	return count
}

func fileFn(name string, do func(env *environment, path string) int64) func(*environment, []engine.Value) engine.Value {
	return func(env *environment, args []engine.Value) engine.Value {
		path, ok := lexemeArg(env, name, args, 0)
		if !ok {
			return symFalse
		}
		if len(args) > 1 {
			scope, _ := args[1].Symbol()
			if scope != "local" && scope != "visible" {
				return env.badArg(name, 2, "symbol with value local or visible")
			}
		}
		return engine.Integer(do(env, path))
	}
}

func loadFactsFn(env *environment, args []engine.Value) engine.Value {
	path, ok := lexemeArg(env, "load-facts", args, 0)
	if !ok {
		return symFalse
	}
	return boolValue(env.loadFacts(path))
}

func saveFactsFn(env *environment, args []engine.Value) engine.Value {
	v := fileFn("save-facts", (*environment).saveFacts)(env, args)
	n, ok := v.Integer()
	return boolValue(ok && n >= 0)
}
