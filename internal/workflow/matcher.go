package workflow

import "log"

// RuleSource provides the current set of automation rules.
type RuleSource interface {
	ListEnabledRules() ([]*Rule, error)
}

// EnqueueFunc schedules an independent execution of a rule's task.
type EnqueueFunc func(taskID string)

// Matcher evaluates rules against classified writes.
type Matcher struct {
	rules   RuleSource
	enqueue EnqueueFunc
}

// NewMatcher creates a matcher reading rules from source and handing
// matched task ids to enqueue.
func NewMatcher(rules RuleSource, enqueue EnqueueFunc) *Matcher {
	return &Matcher{rules: rules, enqueue: enqueue}
}

// OnWrite classifies an applied write and enqueues the task of every rule
// whose trigger matches. Errors are logged, never surfaced: automation
// must not fail the original write.
func (m *Matcher) OnWrite(sqlText string, params []any) {
	ev, ok := Classify(sqlText, params)
	if !ok {
		return
	}

	rules, err := m.rules.ListEnabledRules()
	if err != nil {
		log.Printf("workflow: loading rules: %v", err)
		return
	}

	for _, r := range rules {
		if !r.Matches(ev) {
			continue
		}
		log.Printf("workflow: rule %s matched %s, enqueueing task %s", r.ID, ev.Type, r.TaskID)
		if m.enqueue != nil {
			m.enqueue(r.TaskID)
		}
	}
}
