package tab

import "github.com/tabtriage/tabtriage/internal/errors"

// Target selects which forwarding operation a triage decision routes to.
// The set is closed: anything else is rejected at the boundary.
type Target string

const (
	TargetLinks       Target = "links"        // append to the links collection
	TargetBacklog     Target = "backlog"      // create a backlog card
	TargetProject     Target = "project"      // append bookmark to an existing project
	TargetTodoToday   Target = "todo-today"   // create a task due today
	TargetTodoSomeday Target = "todo-someday" // create a task due someday
)

// ParseTarget validates a forwarding target string. The empty string means
// "no forwarding" and parses to "".
func ParseTarget(s string) (Target, error) {
	switch Target(s) {
	case "", TargetLinks, TargetBacklog, TargetProject, TargetTodoToday, TargetTodoSomeday:
		return Target(s), nil
	}
	return "", errors.NewUnknownTarget(s)
}
