package schema

import "fmt"

// IntrospectionError is returned when structural metadata cannot be read from
// a live instance. It is fatal to the whole run: no plan is produced from a
// partial snapshot.
type IntrospectionError struct {
	Instance string // environment label, e.g. "production"
	Table    string // empty for instance-level failures
	Op       string // which metadata read failed
	Err      error
}

func (e *IntrospectionError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("introspection failed on %s: %s for table %s: %v", e.Instance, e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("introspection failed on %s: %s: %v", e.Instance, e.Op, e.Err)
}

func (e *IntrospectionError) Unwrap() error {
	return e.Err
}
