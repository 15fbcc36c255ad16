package plan

// Status is the outcome recorded for a step.
type Status string

const (
	StatusPass     Status = "PASS"
	StatusFail     Status = "FAIL"
	StatusCrash    Status = "CRASH"
	StatusSkipped  Status = "SKIPPED"
	StatusWarning  Status = "WARNING"
	StatusExecuted Status = "EXECUTED"
)

// LogEntry is one immutable execution log record.
type LogEntry struct {
	Step    string `json:"step"`
	Status  Status `json:"status"`
	Details string `json:"details"`
}

func Pass(step, details string) LogEntry     { return LogEntry{step, StatusPass, details} }
func Fail(step, details string) LogEntry     { return LogEntry{step, StatusFail, details} }
func Crash(step, details string) LogEntry    { return LogEntry{step, StatusCrash, details} }
func Skipped(step, details string) LogEntry  { return LogEntry{step, StatusSkipped, details} }
func Warning(step, details string) LogEntry  { return LogEntry{step, StatusWarning, details} }
func Executed(step, details string) LogEntry { return LogEntry{step, StatusExecuted, details} }

// Failed reports whether the entry records a failure.
func (e LogEntry) Failed() bool {
	return e.Status == StatusFail || e.Status == StatusCrash
}
