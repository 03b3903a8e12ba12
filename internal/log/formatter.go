package log

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	DefaultPattern    = "%time [%level] %caller: %msg %field\n"
	DefaultTimeLayout = "2006-01-02 15:04:05.000"
)

// callerSkip is the stack depth from Format to the logging call site when
// logrus caller reporting is off.
const callerSkip = 8

// patternFormatter renders entries with a printf-like pattern. Supported
// tokens: %time %level %field %msg %caller %func %goroutine.
type patternFormatter struct {
	pattern string
	time    string
	tokens  []string
}

var patternTokens = []string{"%time", "%level", "%field", "%msg", "%caller", "%func", "%goroutine"}

func newFormatter(pattern, timeLayout string) *patternFormatter {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if timeLayout == "" {
		timeLayout = DefaultTimeLayout
	}
	f := &patternFormatter{pattern: pattern, time: timeLayout}
	for _, tok := range patternTokens {
		if strings.Contains(pattern, tok) {
			f.tokens = append(f.tokens, tok)
		}
	}
	return f
}

// Format implements logrus.Formatter. Each token is substituted once, and only
// tokens present in the pattern are computed.
func (f *patternFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	out := f.pattern
	for _, tok := range f.tokens {
		out = strings.Replace(out, tok, f.render(tok, entry), 1)
	}
	return []byte(out), nil
}

func (f *patternFormatter) render(tok string, entry *logrus.Entry) string {
	switch tok {
	case "%time":
		return entry.Time.Format(f.time)
	case "%level":
		return entry.Level.String()
	case "%field":
		return buildFields(entry)
	case "%msg":
		return entry.Message
	case "%caller":
		return callerOf(entry)
	case "%func":
		return funcOf(entry)
	case "%goroutine":
		return goroutineID()
	}
	return tok
}

// callerOf returns "pkg/file.go:line".
func callerOf(entry *logrus.Entry) string {
	var file, function string
	var line int
	if entry.HasCaller() {
		file, function, line = entry.Caller.File, entry.Caller.Function, entry.Caller.Line
	} else {
		pc, f, l, ok := runtime.Caller(callerSkip)
		if !ok {
			return "unknown"
		}
		file, line = f, l
		if fn := runtime.FuncForPC(pc); fn != nil {
			function = fn.Name()
		}
	}
	return fmt.Sprintf("%s/%s:%d", packageOf(function), baseName(file), line)
}

func funcOf(entry *logrus.Entry) string {
	if entry.HasCaller() {
		return lastDotted(entry.Caller.Function)
	}
	pc, _, _, ok := runtime.Caller(callerSkip)
	if !ok {
		return "unknown"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknown"
	}
	return lastDotted(fn.Name())
}

// packageOf extracts "decoder" from "firestige.xyz/vesper/internal/core/decoder.(*Decoder).Decode".
func packageOf(function string) string {
	if function == "" {
		return "unknown"
	}
	if i := strings.LastIndex(function, "/"); i >= 0 {
		function = function[i+1:]
	}
	if i := strings.Index(function, "."); i >= 0 {
		function = function[:i]
	}
	return function
}

func baseName(file string) string {
	if i := strings.LastIndex(file, "/"); i >= 0 && i+1 < len(file) {
		return file[i+1:]
	}
	return file
}

func lastDotted(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 && i+1 < len(name) {
		return name[i+1:]
	}
	return name
}

// goroutineID parses the id out of the runtime.Stack header.
func goroutineID() string {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(strings.TrimPrefix(string(buf[:n]), "goroutine "))
	if len(fields) > 0 {
		return fields[0]
	}
	return "unknown"
}

// buildFields renders entry data as k=v pairs in key order.
func buildFields(entry *logrus.Entry) string {
	if len(entry.Data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]string, len(keys))
	for i, k := range keys {
		switch v := entry.Data[k].(type) {
		case string:
			fields[i] = k + "=" + v
		case error:
			fields[i] = k + "=" + v.Error()
		default:
			fields[i] = k + "=" + fmt.Sprint(v)
		}
	}
	return strings.Join(fields, ",")
}
