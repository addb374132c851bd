package app

// StopReason is logged when the app stops.
type StopReason string

const (
	StopSignal     StopReason = "signal"
	StopInputEOF   StopReason = "input_eof"
	StopFatalError StopReason = "fatal_error"
)
