// Package debug holds the cold-path log helpers shared by the shmtable
// commands. Nothing here is meant for per-operation hot paths unless the
// caller has opted into verbose output.
package debug

import (
	"io"
	"log"
	"os"
)

var logger = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)

// SetOutput redirects all helpers to w.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// DropError logs "<prefix>: <error>", or just the prefix when err is nil.
func DropError(prefix string, err error) {
	if err != nil {
		logger.Print(prefix + ": " + err.Error())
	} else {
		logger.Print(prefix)
	}
}

// DropMessage logs "<prefix>: <message>".
// Used for setup, teardown and verbose worker traces.
func DropMessage(prefix, message string) {
	logger.Print(prefix + ": " + message)
}
