//go:build seqdebug

package sequencer

import "fmt"

// assertf panics when cond is false. Enabled with -tags seqdebug.
func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
