package device

// DebugWriter sinks one debug line.
type DebugWriter func(string)

var (
	// debugPrintln routes debug output; platforms point it at UART or
	// stderr. No-op by default.
	debugPrintln DebugWriter = func(string) {}

	// Disabled by default so the tick loop stays quiet.
	debugEnabled bool
)

// SetDebugWriter installs the platform debug sink.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled switches debug output on or off.
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled reports whether debug output is active.
func IsDebugEnabled() bool {
	return debugEnabled
}

// DebugPrintln writes one line through the installed sink.
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}
