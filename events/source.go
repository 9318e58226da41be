package events

import (
	"fmt"
	"runtime"
)

const maxBacktraceDepth = 32

// SourceContext locates the origin of an issue: the source position that
// raised it and, optionally, the call stack captured at that moment.
type SourceContext struct {
	File      string
	Line      int
	Function  string
	Backtrace []uintptr
}

// CaptureSource records the caller's source position and backtrace.
// skip counts stack frames above the caller to omit, as in runtime.Caller.
func CaptureSource(skip int) *SourceContext {
	sc := &SourceContext{}
	if pc, file, line, ok := runtime.Caller(skip + 1); ok {
		sc.File = file
		sc.Line = line
		if fn := runtime.FuncForPC(pc); fn != nil {
			sc.Function = fn.Name()
		}
	}
	buf := make([]uintptr, maxBacktraceDepth)
	n := runtime.Callers(skip+2, buf)
	sc.Backtrace = buf[:n]
	return sc
}

func (sc *SourceContext) String() string {
	if sc == nil || sc.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d", sc.File, sc.Line)
}
