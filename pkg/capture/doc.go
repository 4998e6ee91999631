// Package capture runs external log producers and turns their output into
// bounded, pattern-aware results.
//
// Every acquisition call owns exactly one Session. The Session spawns the
// producer in its own process group, splits stdout and stderr into lines and
// is reaped before the call returns, whichever of natural exit, line cap,
// time budget or first match ends the call.
package capture
