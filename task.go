package litepool

import "github.com/jirevwe/litepool/packer"

// Task is a job read back from the store, handed to the handler registered
// for its queue.
type Task struct {
	taskid   string
	typeName string
	message  []byte
}

func (t *Task) Id() string      { return t.taskid }
func (t *Task) Type() string    { return t.typeName }
func (t *Task) Payload() []byte { return t.message }

// Decode unpacks the payload written by Server.Enqueue into v.
func (t *Task) Decode(v any) error {
	return packer.Decode(t.message, v)
}

func NewTask(message []byte, queueName string) *Task {
	return &Task{
		typeName: queueName,
		message:  message,
	}
}

func (t *Task) WithTaskId(id string) *Task {
	t.taskid = id
	return t
}
