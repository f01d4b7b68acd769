// Package logger wraps zap for the updater:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithCore),
//   - an optional rolling file sink backed by lumberjack,
//   - a Journal core that keeps every entry of one run in memory so the run
//     log can be flushed to disk and attached to failure notifications.
//
// All services accept a context and extract the logger from it.
package logger
