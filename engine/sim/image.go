package sim

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"strings"

	"github.com/wippyai/clips-runtime/engine"
)

const (
	imageMagic     = "CLIPSSIM"
	instancesMagic = "CLIPSINS"
	imageVersion   = 1
)

func (env *environment) sources() []string {
	out := make([]string, 0, len(env.order))
	for _, c := range env.order {
		if src := env.constructSource(c); src != "" {
			out = append(out, src)
		}
	}
	return out
}

// save writes every construct as source text.
func (env *environment) save(path string) bool {
	var b strings.Builder
	for _, src := range env.sources() {
		b.WriteString(src)
		b.WriteString("\n\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		env.diagnostic("FILECOM1", "Unable to open file %s.", path)
		return false
	}
	return true
}

// writeImage encodes a binary image: magic, version, count, then each
// form as a length-prefixed source string.
func writeImage(magic string, srcs []string) []byte {
	var buf bytes.Buffer
	buf.WriteString(magic)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(imageVersion))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(srcs)))
	for _, src := range srcs {
		_ = binary.Write(&buf, binary.LittleEndian, uint32(len(src)))
		buf.WriteString(src)
	}
	return buf.Bytes()
}

// bsave writes every construct as a binary image.
func (env *environment) bsave(path string) bool {
	if err := os.WriteFile(path, writeImage(imageMagic, env.sources()), 0o644); err != nil {
		env.diagnostic("BSAVE1", "Unable to open file %s.", path)
		return false
	}
	return true
}

func readImage(r io.Reader, want string) ([]string, bool) {
	magic := make([]byte, len(want))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != want {
		return nil, false
	}
	var version, count uint32
	if binary.Read(r, binary.LittleEndian, &version) != nil || version != imageVersion {
		return nil, false
	}
	if binary.Read(r, binary.LittleEndian, &count) != nil {
		return nil, false
	}
	out := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		var n uint32
		if binary.Read(r, binary.LittleEndian, &n) != nil {
			return nil, false
		}
		src := make([]byte, n)
		if _, err := io.ReadFull(r, src); err != nil {
			return nil, false
		}
		out = append(out, string(src))
	}
	return out, true
}

// bload replaces every construct with those in a binary image.
func (env *environment) bload(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		env.diagnostic("BLOAD1", "Unable to open file %s.", path)
		return false
	}
	srcs, ok := readImage(bytes.NewReader(data), imageMagic)
	if !ok {
		env.diagnostic("BLOAD2", "File %s is not a binary construct file.", path)
		return false
	}
	env.clear()
	for _, src := range srcs {
		n, err := parseOne(src)
		if err != nil {
			env.reportParseError(err)
			return false
		}
		if err := env.define(n); err != nil {
			env.reportParseError(err)
			return false
		}
	}
	return true
}

// load defines every construct in a source file.
func (env *environment) load(path string) engine.LoadError {
	data, err := os.ReadFile(path)
	if err != nil {
		env.diagnostic("FILECOM1", "Unable to open file %s.", path)
		return engine.LoadOpenFileError
	}
	if bytes.HasPrefix(data, []byte(imageMagic)) {
		env.diagnostic("CSTRCPSR1", "Expected the beginning of a construct.")
		return engine.LoadParsingError
	}
	forms, err := parse(string(data))
	if err != nil {
		env.reportParseError(err)
		return engine.LoadParsingError
	}
	code := engine.LoadNoError
	for _, n := range forms {
		if !isConstruct(n) {
			env.diagnostic("CSTRCPSR1", "Expected the beginning of a construct.")
			code = engine.LoadParsingError
			continue
		}
		if err := env.define(n); err != nil {
			env.reportParseError(err)
			code = engine.LoadParsingError
		}
	}
	return code
}

// batchStar runs each form in a file, defining constructs and evaluating
// commands in order.
func (env *environment) batchStar(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		env.diagnostic("FILECOM1", "Unable to open file %s.", path)
		return false
	}
	forms, err := parse(string(data))
	if err != nil {
		env.reportParseError(err)
		return false
	}
	ok := true
	for _, n := range forms {
		if isConstruct(n) {
			if err := env.define(n); err != nil {
				env.reportParseError(err)
				ok = false
			}
			continue
		}
		if err := env.validate(n, ""); err != nil {
			env.reportParseError(err)
			ok = false
			continue
		}
		env.evalError = false
		env.eval(n, newScope(nil))
		env.returning = false
		env.breaking = false
		if env.evalError {
			ok = false
		}
	}
	return ok
}
