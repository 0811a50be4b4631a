package core

import (
	"fmt"
	"os"
)

// assertf reports a fatal programming error. The condition describes a
// contract of the scheduler or allocator; a violation is never recoverable,
// so the message is flushed to stderr and the process traps via panic.
func assertf(condition bool, format string, args ...any) {
	if condition {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, msg)
	os.Stderr.Sync()
	panic(msg)
}
