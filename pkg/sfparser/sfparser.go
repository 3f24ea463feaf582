// Package sfparser parses the Stream/Function string form spec §6 names
// ("S6F11W", "S1F13", "S99F0"), the reverse direction of
// StreamFunction.String's formatting. It is grounded in the teacher
// library's regex-based lexer (pkg/parser/sml/lexer.go), which tokenizes
// the same stream/function syntax but never turns it back into a parsed
// (stream, function, w) triple on its own.
package sfparser

import (
	"fmt"
	"regexp"
	"strconv"
)

// pattern is exactly the regex spec §6 specifies.
var pattern = regexp.MustCompile(`^S([0-9]+)(/?)F([0-9]+)(W|\[W\])?$`)

// StreamFunction is a parsed Stream/Function designator.
type StreamFunction struct {
	Stream   int
	Function int
	W        bool
}

// String formats sf back to its canonical form, e.g. "S6F11W".
func (sf StreamFunction) String() string {
	if sf.W {
		return fmt.Sprintf("S%dF%dW", sf.Stream, sf.Function)
	}
	return fmt.Sprintf("S%dF%d", sf.Stream, sf.Function)
}

// Parse parses s against the regex `S[0-9]+(/?)F[0-9]+(W|\[W\])?`, then
// validates stream is in 1..255 and function is in 0..255, per spec §6.
func Parse(s string) (StreamFunction, error) {
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return StreamFunction{}, fmt.Errorf("sfparser: %q does not match stream/function syntax", s)
	}

	stream, err := strconv.Atoi(m[1])
	if err != nil {
		return StreamFunction{}, fmt.Errorf("sfparser: invalid stream in %q: %w", s, err)
	}
	function, err := strconv.Atoi(m[3])
	if err != nil {
		return StreamFunction{}, fmt.Errorf("sfparser: invalid function in %q: %w", s, err)
	}
	if stream < 1 || stream > 255 {
		return StreamFunction{}, fmt.Errorf("sfparser: stream %d out of range 1..255 in %q", stream, s)
	}
	if function < 0 || function > 255 {
		return StreamFunction{}, fmt.Errorf("sfparser: function %d out of range 0..255 in %q", function, s)
	}

	return StreamFunction{Stream: stream, Function: function, W: m[4] != ""}, nil
}
