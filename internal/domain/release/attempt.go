package release

// AttemptsTable is the store table holding update attempt records.
const AttemptsTable = "versions"

// AttemptKey addresses the attempt record of one target version.
type AttemptKey struct {
	// Target is the version the update is trying to reach.
	Target string
}

// ID returns the identifier of the record inside AttemptsTable.
func (k AttemptKey) ID() string {
	return "version-" + k.Target
}

// AttemptRecord bounds retries for a single target version.
type AttemptRecord struct {
	// From is the version that was running when the attempt started.
	From string `yaml:"from"`
	// To is the target version.
	To string `yaml:"to"`
	// Attempts counts tries, starting at 1.
	Attempts int `yaml:"attempts"`
	// Notified is set once the failure has been reported.
	Notified bool `yaml:"notified"`
}

// Key returns the store key of the record.
func (r AttemptRecord) Key() AttemptKey {
	return AttemptKey{Target: r.To}
}

// Exhausted reports whether the record reached the attempt cap.
func (r AttemptRecord) Exhausted(maxAttempts int) bool {
	return r.Attempts >= maxAttempts
}

// Outcomes reported for an update attempt.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)
