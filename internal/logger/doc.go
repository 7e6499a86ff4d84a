// Package logger wraps zap to give every component of camwatch:
//   - a global sugared logger with a console or JSON encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level and format parsing for configuration and flags,
//   - key-value convenience functions (InfoKV, ErrorKV, etc.).
//
// Components receive a context and extract the logger from it, so a cycle or a
// chat command carries its scoped fields through every call it makes.
package logger
