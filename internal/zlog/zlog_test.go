package zlog

import "testing"

func TestNopDiscardsWithoutPanicking(t *testing.T) {
	var l Logger = Nop{}
	l.Debug("x", Fields{"a": 1})
	l.Info("x", nil)
	l.Warn("x", Fields{})
	l.Error("x", Fields{"err": "boom"})
}

func TestNewLogrusImplementsLogger(t *testing.T) {
	var l Logger = NewLogrus()
	l.Info("session established", Fields{"remote_pid": "abcd"})
}
