package logging

import (
	"fmt"
	"log"
	"os"
)

// Logger prefixes every line with a node id.
type Logger struct {
	nodeID string
	out    *log.Logger
}

// New creates a Logger writing to stderr, prefixed with nodeID.
func New(nodeID string) *Logger {
	return &Logger{nodeID: nodeID, out: log.New(os.Stderr, "", log.LstdFlags)}
}

func (l *Logger) Printf(format string, args ...interface{}) {
	l.out.Printf("[%s] %s", l.nodeID, fmt.Sprintf(format, args...))
}

func (l *Logger) Println(args ...interface{}) {
	l.out.Println(append([]interface{}{"[" + l.nodeID + "]"}, args...)...)
}
