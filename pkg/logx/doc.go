// Package logx configures the hub's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional bus sink (min-level + rate limiting) so warnings surface
//     on the event bus for the monitoring UI
package logx
