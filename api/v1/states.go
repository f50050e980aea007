package v1

// Device states as reported by the status board and stored in last_state.
// never_polled appears only in the aggregated view, for devices with no
// snapshot yet.
const (
	StateNeverPolled  = "never_polled"
	StateOffline      = "offline"
	StateNoBaseline   = "no_baseline"
	StateOK           = "ok"
	StateMismatch     = "mismatch"
	StateFilesChanged = "files_changed"
)
