package bt

type sequence struct {
	children []*Node
	index    int
}

// NewSequence runs children in order. A running child is resumed on the next
// tick; the first failure fails the sequence and rewinds it.
func NewSequence(name string, children ...*Node) *Node {
	return &Node{name: name, task: &sequence{children: children}, children: children}
}

func (s *sequence) Initialise() { s.index = 0 }

func (s *sequence) Update() Status {
	for s.index < len(s.children) {
		switch s.children[s.index].Tick() {
		case Running:
			return Running
		case Failure:
			s.index = 0
			return Failure
		}
		s.index++
	}
	s.index = 0
	return Success
}

func (s *sequence) Terminate(st Status) {
	if st == Invalid {
		stopAll(s.children)
	}
	s.index = 0
}

type selector struct {
	children []*Node
	memory   bool
	current  int
}

// NewSelector tries children in priority order until one does not fail.
// Every tick starts again from the first child, so a higher priority child
// that starts succeeding or running preempts a lower priority one.
func NewSelector(name string, children ...*Node) *Node {
	return &Node{name: name, task: &selector{children: children}, children: children}
}

// NewSelectorWithMemory is a selector that resumes at the running child
// instead of re-evaluating higher priority children first.
func NewSelectorWithMemory(name string, children ...*Node) *Node {
	return &Node{name: name, task: &selector{children: children, memory: true}, children: children}
}

func (s *selector) Initialise() { s.current = 0 }

func (s *selector) Update() Status {
	start := 0
	if s.memory {
		start = s.current
	}
	for i := start; i < len(s.children); i++ {
		st := s.children[i].Tick()
		if st == Failure {
			continue
		}
		stopAll(s.children[i+1:])
		if st == Running {
			s.current = i
		} else {
			s.current = 0
		}
		return st
	}
	s.current = 0
	return Failure
}

func (s *selector) Terminate(st Status) {
	if st == Invalid {
		stopAll(s.children)
	}
	s.current = 0
}

// Policy decides when a Parallel node succeeds.
type Policy int

const (
	// SuccessOnAll succeeds once every child succeeds in the same tick and
	// fails as soon as any child fails.
	SuccessOnAll Policy = iota
	// SuccessOnOne succeeds as soon as any child succeeds and fails only
	// when every child fails.
	SuccessOnOne
)

func (p Policy) String() string {
	if p == SuccessOnOne {
		return "success-on-one"
	}
	return "success-on-all"
}

type parallel struct {
	children []*Node
	policy   Policy
}

// NewParallel ticks every child on every cycle and aggregates their status
// according to policy.
func NewParallel(name string, policy Policy, children ...*Node) *Node {
	return &Node{name: name, task: &parallel{children: children, policy: policy}, children: children}
}

func (p *parallel) Initialise() {}

func (p *parallel) Update() Status {
	var success, failure int
	for _, c := range p.children {
		switch c.Tick() {
		case Success:
			success++
		case Failure:
			failure++
		}
	}
	n := len(p.children)
	switch p.policy {
	case SuccessOnOne:
		if success > 0 {
			return Success
		}
		if failure == n {
			return Failure
		}
	default:
		if failure > 0 {
			return Failure
		}
		if success == n {
			return Success
		}
	}
	return Running
}

func (p *parallel) Terminate(Status) { stopAll(p.children) }

func stopAll(nodes []*Node) {
	for _, c := range nodes {
		c.Stop()
	}
}
