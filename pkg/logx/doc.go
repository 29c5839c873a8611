// Package logx provides the bot's structured logging.
//
// It wraps zerolog behind a small Logger value type plus a Service that owns
// the active sinks (console and optional file) and can swap level/outputs at
// runtime via Apply. Loggers handed out by the Service stay live across
// Apply calls.
package logx
