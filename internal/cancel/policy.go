package cancel

import "fmt"

// Policy selects what the [Worker] does with a cancel event.
type Policy string

const (
	// PolicyStop asks the running operation to stop and keeps the shell alive.
	PolicyStop Policy = "stop"
	// PolicyExit prints a notice and terminates the process.
	PolicyExit Policy = "exit"
)

// ParsePolicy converts a config string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyStop, PolicyExit:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("invalid cancel policy %q: must be stop or exit", s)
	}
}
