package bt

// Task is the work carried by a node.
type Task interface {
	// Initialise is called when the node goes from inactive to active.
	Initialise()
	// Update is called on every tick while the node is active.
	Update() Status
}

// Terminator is implemented by tasks that need to clean up when their node
// finishes or is preempted. Preemption is reported as Invalid.
type Terminator interface {
	Terminate(Status)
}

// Node is a named element of the tree.
type Node struct {
	name     string
	task     Task
	status   Status
	children []*Node
}

// NewNode wraps a leaf task.
func NewNode(name string, task Task) *Node {
	return &Node{name: name, task: task}
}

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Status returns the status of the last tick, or Invalid when the node has
// never run or was stopped.
func (n *Node) Status() Status { return n.status }

// Children returns the child nodes of a composite.
func (n *Node) Children() []*Node { return n.children }

// Task returns the wrapped task.
func (n *Node) Task() Task { return n.task }

// Tick runs one cycle of the node. A task returning Invalid is treated as
// Failure.
func (n *Node) Tick() Status {
	if n.status != Running {
		n.task.Initialise()
	}
	s := n.task.Update()
	if s == Invalid {
		s = Failure
	}
	n.status = s
	if s.Done() {
		n.terminate(s)
	}
	return s
}

// Stop preempts a running node and its running descendants. Stopping an
// inactive node does nothing.
func (n *Node) Stop() {
	if n.status != Running {
		return
	}
	n.terminate(Invalid)
	n.status = Invalid
}

func (n *Node) terminate(s Status) {
	if t, ok := n.task.(Terminator); ok {
		t.Terminate(s)
	}
}

// ActivePath returns the names from n down to the deepest running node.
func (n *Node) ActivePath() []string {
	path := []string{n.name}
	cur := n
	for {
		var next *Node
		for _, c := range cur.children {
			if c.status == Running {
				next = c
				break
			}
		}
		if next == nil {
			return path
		}
		path = append(path, next.name)
		cur = next
	}
}

type funcTask struct {
	init   func()
	update func() Status
}

func (f *funcTask) Initialise() {
	if f.init != nil {
		f.init()
	}
}

func (f *funcTask) Update() Status { return f.update() }

// Action builds a leaf from a function called on every tick.
func Action(name string, update func() Status) *Node {
	return NewNode(name, &funcTask{update: update})
}

// ActionWithInit builds a leaf with an initialisation hook.
func ActionWithInit(name string, init func(), update func() Status) *Node {
	return NewNode(name, &funcTask{init: init, update: update})
}

// Condition builds a leaf that succeeds when check returns true and fails
// otherwise.
func Condition(name string, check func() bool) *Node {
	return Action(name, func() Status {
		if check() {
			return Success
		}
		return Failure
	})
}
