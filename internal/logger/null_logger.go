package logger

import "github.com/sirupsen/logrus"

type nullLogger struct{}

// NewNullLogger returns a Logger that drops everything.
func NewNullLogger() Logger { return nullLogger{} }

func (d nullLogger) WithFields(map[string]interface{}) Logger { return d }
func (d nullLogger) WithField(string, interface{}) Logger     { return d }
func (d nullLogger) WithError(error) Logger                   { return d }
func (nullLogger) Debug(...interface{})                       {}
func (nullLogger) Info(...interface{})                        {}
func (nullLogger) Warn(...interface{})                        {}
func (nullLogger) Error(...interface{})                       {}
func (nullLogger) Log(logrus.Level, ...interface{})           {}
