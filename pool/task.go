package pool

import (
	"errors"
	"fmt"
	"reflect"
)

var ErrInvalidBinding = errors.New("invalid task binding")

// Task is a unit of deferred work. A task pushed into a pool is executed
// exactly once, by exactly one worker.
type Task interface {
	// Execute performs the work
	Execute()
}

// FailureHandler is implemented by tasks that want to observe a panic
// recovered while they were executing.
type FailureHandler interface {
	// OnFailure receives the recovered fault, always a *PanicError
	OnFailure(error)
}

// TaskFunc adapts an ordinary func() to a Task. Method values work
// as-is: TaskFunc(obj.Reset).
type TaskFunc func()

// Execute calls f()
func (f TaskFunc) Execute() { f() }

// NamedTask wraps a Task with a name used in logs and spans.
type NamedTask struct {
	name string
	task Task
}

// Named attaches a display name to t.
func Named(name string, t Task) *NamedTask {
	return &NamedTask{name: name, task: t}
}

func (n *NamedTask) Execute() { n.task.Execute() }

func (n *NamedTask) Name() string { return n.name }

// OnFailure forwards to the wrapped task when it handles failures itself.
func (n *NamedTask) OnFailure(err error) {
	if fh, ok := n.task.(FailureHandler); ok {
		fh.OnFailure(err)
	}
}

func taskName(t Task) string {
	if n, ok := t.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", t)
}

// Bind1 captures a by value. Bind a pointer to share state with the caller.
func Bind1[A any](fn func(A), a A) Task {
	return TaskFunc(func() { fn(a) })
}

// Bind2 captures a and b. Each argument is captured independently, so one
// can be a value and the other a pointer. Method expressions bind their
// receiver as the first argument: Bind2((*Counter).Add, c, 5).
func Bind2[A, B any](fn func(A, B), a A, b B) Task {
	return TaskFunc(func() { fn(a, b) })
}

func Bind3[A, B, C any](fn func(A, B, C), a A, b B, c C) Task {
	return TaskFunc(func() { fn(a, b, c) })
}

func Bind4[A, B, C, D any](fn func(A, B, C, D), a A, b B, c C, d D) Task {
	return TaskFunc(func() { fn(a, b, c, d) })
}

// Invoke binds fn to args for call sites that only know their types at
// runtime. The arity and assignability of every argument is checked here,
// so a returned Task never fails to call fn. Values fn returns are discarded.
func Invoke(fn any, args ...any) (Task, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func || fv.IsNil() {
		return nil, fmt.Errorf("%w: %T is not a function", ErrInvalidBinding, fn)
	}

	ft := fv.Type()
	in, err := bindArgs(ft, args)
	if err != nil {
		return nil, err
	}

	return TaskFunc(func() { fv.Call(in) }), nil
}

func bindArgs(ft reflect.Type, args []any) ([]reflect.Value, error) {
	fixed := ft.NumIn()
	if ft.IsVariadic() {
		fixed--
		if len(args) < fixed {
			return nil, fmt.Errorf("%w: %s wants at least %d arguments, got %d", ErrInvalidBinding, ft, fixed, len(args))
		}
	} else if len(args) != fixed {
		return nil, fmt.Errorf("%w: %s wants %d arguments, got %d", ErrInvalidBinding, ft, fixed, len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		want := ft.In(min(i, ft.NumIn()-1))
		if ft.IsVariadic() && i >= fixed {
			want = want.Elem()
		}

		v, err := argValue(arg, want)
		if err != nil {
			return nil, fmt.Errorf("%w: argument %d: %v", ErrInvalidBinding, i, err)
		}
		in[i] = v
	}

	return in, nil
}

func argValue(arg any, want reflect.Type) (reflect.Value, error) {
	if arg == nil {
		switch want.Kind() {
		case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
			return reflect.Zero(want), nil
		}
		return reflect.Value{}, fmt.Errorf("nil is not assignable to %s", want)
	}

	v := reflect.ValueOf(arg)
	if !v.Type().AssignableTo(want) {
		return reflect.Value{}, fmt.Errorf("%s is not assignable to %s", v.Type(), want)
	}
	return v, nil
}
