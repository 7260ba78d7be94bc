package quota

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration matches every *ConfigurationError via errors.Is.
	ErrConfiguration = errors.New("quota configuration error")
	// ErrQuery matches every *QueryError via errors.Is.
	ErrQuery = errors.New("order store query failed")
)

// ConfigurationError reports invalid quota settings. It is surfaced to the operator and
// never silently defaulted.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid quota setting %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// QueryError wraps an order store failure (unreachable store or malformed query).
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

func (e *QueryError) Is(target error) bool { return target == ErrQuery }

// StaleCacheWarning reports a cached count that disagrees with the order store, i.e. an
// invalidation was missed. It is a diagnostic, not a failure of the enforcement path.
type StaleCacheWarning struct {
	SubjectID int64
	Cached    int
	Actual    int
}

func (w *StaleCacheWarning) Error() string {
	return fmt.Sprintf("stale cached order count for user %d: cached=%d actual=%d", w.SubjectID, w.Cached, w.Actual)
}

// SettingsWarning reports follow-up steps that failed after new settings were saved.
// The settings are in effect; callers should surface the warnings, not fail the update.
type SettingsWarning struct {
	Errs []error
}

func (w *SettingsWarning) Error() string {
	return "quota settings saved with warnings: " + strings.Join(w.Messages(), "; ")
}

func (w *SettingsWarning) Unwrap() []error { return w.Errs }

// Messages returns the text of each warning.
func (w *SettingsWarning) Messages() []string {
	out := make([]string, 0, len(w.Errs))
	for _, err := range w.Errs {
		out = append(out, err.Error())
	}
	return out
}
