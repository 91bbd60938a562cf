// Package log is the process-wide leveled logger of wlt.
//
// Debugf, Infof, Warnf and Errorf write one tagged line each ([DBG], [INF],
// [WRN], [ERR]). Debug lines only appear after SetVerbose(true), which the
// commands call when general.verbose or --verbose is set. Errors go to stderr,
// everything else to stdout.
//
// Subcommands that print data on stdout (status, list and self-check) turn on
// SetForceStdErr so log lines never mix with their output:
//
//	log.SetForceStdErr(true)
//	log.Infof("Reading entry of %s", addr)
//
// Tests capture lines with SetOutput, which also drops the ANSI colors:
//
//	var out, errOut bytes.Buffer
//	log.SetOutput(&out, &errOut)
//	defer log.SetOutput(nil, nil)
//
// # Third-party loggers
//
// WithPrefix adapts the package to libraries that expect a Printf or an
// io.Writer. The SSH server hands it to the wish logging middleware, so every
// connect and disconnect is logged at debug level as "[ssh] ...":
//
//	logging.MiddlewareWithLogger(log.WithPrefix("ssh"))
//
// Writes are serialized, so lines from concurrent sessions and requests
// never interleave.
package log
