package device

// Task is a deferred action on the simulation timeline.
type Task struct {
	WakeTick uint64
	Run      func(*Task) uint8
	next     *Task
}

// Task handler return codes.
const (
	TaskDone       = 0
	TaskReschedule = 1
)

// TaskList keeps pending tasks sorted by wake tick. It has no lock of
// its own; the server drives it under its mutex.
type TaskList struct {
	head *Task
}

// Schedule inserts t in wake order.
func (l *TaskList) Schedule(t *Task) {
	if l.head == nil || t.WakeTick < l.head.WakeTick {
		t.next = l.head
		l.head = t
		return
	}

	cur := l.head
	for cur.next != nil && cur.next.WakeTick < t.WakeTick {
		cur = cur.next
	}
	t.next = cur.next
	cur.next = t
}

// Dispatch runs every task due at now, in wake order. A task returning
// TaskReschedule goes back on the list; it must advance its WakeTick
// first or it will run again in the same call.
func (l *TaskList) Dispatch(now uint64) {
	for l.head != nil && l.head.WakeTick <= now {
		t := l.head
		l.head = t.next
		t.next = nil

		if t.Run(t) == TaskReschedule {
			l.Schedule(t)
		}
	}
}

// Empty reports whether any tasks are pending.
func (l *TaskList) Empty() bool {
	return l.head == nil
}

// NextWake returns the earliest pending wake tick.
func (l *TaskList) NextWake() (uint64, bool) {
	if l.head == nil {
		return 0, false
	}
	return l.head.WakeTick, true
}
