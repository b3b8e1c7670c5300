package app

// StopReason labels why the app is shutting down. It only feeds the final
// log lines, so adding values is always safe.
type StopReason string

const (
	StopUnknown  StopReason = "unknown"
	StopSignal   StopReason = "signal"
	StopMenuExit StopReason = "menu_exit"
	StopFatal    StopReason = "fatal_error"
)
