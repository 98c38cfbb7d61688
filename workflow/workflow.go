package workflow

// Definition is a named workflow with a typed input. T is stored on the
// run as JSON.
type Definition[T any] struct {
	Name    string
	Handler func(wf *Workflow, input T) error
}

// NewWorkflow creates a typed workflow definition.
func NewWorkflow[T any](name string, handler func(wf *Workflow, input T) error) *Definition[T] {
	return &Definition[T]{Name: name, Handler: handler}
}
