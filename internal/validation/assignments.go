// Package validation checks an external tunable assignment list against a
// tunable space's declared structure (spec.md §3 "Tunable", §6 logical
// schema) before it is used to seed a trial, grounded on the teacher's
// AssignmentError/CheckAssignments shape in internal/validation/assignments.go
// but reworked around tunable.Tunable/tunable.Groups instead of a Kubernetes
// CRD's Parameter/Trial types.
package validation

import (
	"fmt"
	"strings"

	"github.com/benchtune/benchtune/internal/tunable"
)

// Assignment is one external (name, value) pair, the form a CLI-loaded seed
// file or trial request supplies before it is resolved against a Groups.
type Assignment struct {
	Name  string
	Value tunable.Value
}

// AssignmentError reports every problem found with an assignment list in
// one pass, rather than failing on the first.
type AssignmentError struct {
	// Unassigned holds tunable names present in the space but missing from
	// the assignment list.
	Unassigned []string
	// Undefined holds assignment names with no corresponding tunable.
	Undefined []string
	// OutOfBounds holds assignment names whose value is outside the
	// tunable's domain.
	OutOfBounds []string
	// Duplicated holds names assigned more than once in the list.
	Duplicated []string
}

func (e *AssignmentError) Error() string {
	var parts []string
	if len(e.Unassigned) > 0 {
		parts = append(parts, fmt.Sprintf("unassigned: %s", strings.Join(e.Unassigned, ", ")))
	}
	if len(e.Undefined) > 0 {
		parts = append(parts, fmt.Sprintf("undefined: %s", strings.Join(e.Undefined, ", ")))
	}
	if len(e.OutOfBounds) > 0 {
		parts = append(parts, fmt.Sprintf("out of bounds: %s", strings.Join(e.OutOfBounds, ", ")))
	}
	if len(e.Duplicated) > 0 {
		parts = append(parts, fmt.Sprintf("duplicated: %s", strings.Join(e.Duplicated, ", ")))
	}
	return "invalid tunable assignments (" + strings.Join(parts, "; ") + ")"
}

// CheckAssignments ensures assignments fully and exactly covers g's tunable
// space: every tunable named once, every name declared, every value within
// its tunable's domain. Used to validate a complete seed file before it
// replaces a trial's assignment wholesale, as opposed to config.TunableValues'
// partial-overlay resolution.
func CheckAssignments(assignments []Assignment, g *tunable.Groups) error {
	errs := &AssignmentError{}

	seen := make(map[string]tunable.Value, len(assignments))
	for _, a := range assignments {
		if _, ok := seen[a.Name]; ok {
			errs.Duplicated = append(errs.Duplicated, a.Name)
			continue
		}
		seen[a.Name] = a.Value
	}

	for _, name := range g.TunableNames() {
		t, _ := g.Lookup(name)
		v, ok := seen[name]
		if !ok {
			errs.Unassigned = append(errs.Unassigned, name)
			continue
		}
		if !t.InDomain(v) {
			errs.OutOfBounds = append(errs.OutOfBounds, name)
		}
		delete(seen, name)
	}
	for name := range seen {
		errs.Undefined = append(errs.Undefined, name)
	}

	if len(errs.Unassigned) == 0 && len(errs.Undefined) == 0 && len(errs.OutOfBounds) == 0 && len(errs.Duplicated) == 0 {
		return nil
	}
	return errs
}
