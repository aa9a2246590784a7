// Package logging wraps log/slog with credential redaction and an
// asynchronous output stage.
//
// The proxy handles Www-Authenticate challenges and mirror Basic
// credentials on every authenticated pull, so Bearer tokens, Basic auth
// headers, and password-shaped values are the secrets most likely to
// leak into a log line. When Config.RedactPII is set, a handler-level
// redactor rewrites those attributes before they reach the output
// handler. Because redaction lives in the slog.Handler chain it also
// covers packages that log through slog.Default(), provided the serve
// command installs Logger.Slog() as the process default.
//
// Output is decoupled from the request path by a bounded line buffer: a
// full buffer drops the line and counts it rather than blocking.
//
//	logger, _ := logging.New(logging.Config{
//	    Level:     "info",
//	    Format:    logging.FormatJSON,
//	    RedactPII: true,
//	})
//	defer logger.Shutdown()
//	slog.SetDefault(logger.Slog())
package logging
