package app

import "go.uber.org/zap"

// LoggerFactory hands out named children of the root logger. It serves
// "~logger"; the name comes from the "@subject" binding of the requester.
type LoggerFactory struct {
	root *zap.Logger
}

func NewLoggerFactory(root *zap.Logger) *LoggerFactory {
	if root == nil {
		root = zap.NewNop()
	}
	return &LoggerFactory{root: root}
}

// Named is the factory method behind "~logger".
func (f *LoggerFactory) Named(subject string) *zap.Logger {
	if subject == "" {
		return f.root
	}
	return f.root.Named(subject)
}
