// Package logx is remindbot's structured logger.
//
// A thin wrapper (logx.Logger) over zerolog:
//   - console output is human readable (short timestamp, file:line caller)
//   - file output stays JSON
//   - an optional chat sink mirrors warnings and errors to a log chat, throttled
package logx
