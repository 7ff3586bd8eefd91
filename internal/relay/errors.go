package relay

import "fmt"

// ConfigurationError is returned before any network I/O when a required
// relay setting is missing.
type ConfigurationError struct {
	Missing string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("relay configuration: %s is not defined", e.Missing)
}

// RelayError describes a failed relay call. StatusCode is zero for transport
// failures, in which case Err holds the cause.
type RelayError struct {
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *RelayError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("relay request failed: %v", e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("relay responded %s", e.Status)
	}
	return fmt.Sprintf("relay responded %s: %s", e.Status, e.Body)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}
