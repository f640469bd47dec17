package harness

import (
	"fmt"
	"slices"
	"strings"
)

// ExpectationError describes one unmet expectation.
type ExpectationError struct {
	Field    string // Expectation that failed, e.g. "instances.present"
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *ExpectationError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Expectation failed: %s\n", e.Field)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// evaluateExpect checks the scenario's expectations against the finished
// run and returns one message per failure.
func evaluateExpect(h *Harness, result *Result, expect Expect) []string {
	var errs []string
	fail := func(e *ExpectationError) {
		errs = append(errs, e.Error())
	}

	if expect.Keyframes != nil && *expect.Keyframes != len(result.Keyframes) {
		fail(&ExpectationError{
			Field:    "keyframes",
			Expected: fmt.Sprintf("%d saved keyframes", *expect.Keyframes),
			Actual:   fmt.Sprintf("%d", len(result.Keyframes)),
		})
	}

	for _, name := range expect.Instances.Present {
		key, ok := h.keys[name]
		if !ok {
			fail(&ExpectationError{
				Field:    "instances.present",
				Expected: fmt.Sprintf("instance %q live in player", name),
				Actual:   "no instance with that name was created",
			})
			continue
		}
		if _, live := h.player.Instance(key); !live {
			fail(&ExpectationError{
				Field:    "instances.present",
				Expected: fmt.Sprintf("instance %q (key %d) live in player", name, key),
				Actual:   "not live",
			})
		}
	}

	for _, name := range expect.Instances.Absent {
		key, ok := h.keys[name]
		if !ok {
			continue // never created, so absent
		}
		if _, live := h.player.Instance(key); live {
			fail(&ExpectationError{
				Field:    "instances.absent",
				Expected: fmt.Sprintf("instance %q (key %d) absent from player", name, key),
				Actual:   "live",
			})
		}
	}

	for _, name := range expect.UserTransforms {
		if _, ok := h.player.UserTransform(name); !ok {
			fail(&ExpectationError{
				Field:    "user_transforms",
				Expected: fmt.Sprintf("user transform %q known to player", name),
				Actual:   "unknown",
			})
		}
	}

	if !slices.Equal(expect.Violations, result.Violations) {
		fail(&ExpectationError{
			Field:    "violations",
			Expected: fmt.Sprintf("%v", expect.Violations),
			Actual:   fmt.Sprintf("%v", result.Violations),
		})
	}

	return errs
}
