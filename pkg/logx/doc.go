// Package logx configures cadencebot's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output as "[timestamp] message" lines (or JSON when asked)
//   - An in-memory feed for display (min-level + optional rate limiting)
package logx
