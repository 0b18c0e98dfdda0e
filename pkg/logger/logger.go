// Package logger provides a plain prefixed logger for startup diagnostics
// emitted before the configured structured logger exists.
package logger

import (
	"fmt"
	"log"
	"os"
)

// New returns a stderr logger tagged with the component name.
func New(component string) *log.Logger {
	prefix := fmt.Sprintf("[%s] ", component)
	return log.New(os.Stderr, prefix, log.LstdFlags)
}
