// Package logx is the logger every pushrelay package takes as a dependency.
//
// A Logger is a value: pass it by copy, derive scoped loggers with With, and
// leave it zero when nothing should be written. Loggers handed out by a
// Service follow its configuration, so a config reload that changes the level
// or the log file reaches components that were built before the reload.
//
// Console lines are human oriented; the log file gets one JSON object per
// line.
package logx
