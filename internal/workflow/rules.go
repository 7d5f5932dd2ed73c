// Package workflow evaluates event-triggered automation rules against
// board writes. Matching never blocks or fails the originating write.
package workflow

import "strings"

// TriggerType classifies the shape of a board write.
type TriggerType string

const (
	TriggerCardCreated TriggerType = "card_created"
	TriggerCardMoved   TriggerType = "card_moved"
	TriggerCardTagged  TriggerType = "card_tagged"
)

// Trigger is one declarative trigger on a rule. All filter entries must
// hold for the trigger to fire.
type Trigger struct {
	Type   TriggerType       `json:"type"`
	Filter map[string]string `json:"filter,omitempty"`
}

// Rule is an automation rule attached to a prompt. Rules are read-only to
// the matcher and mutated only through the configuration API.
type Rule struct {
	ID       string
	OwnerID  string
	TaskID   string
	Enabled  bool
	Triggers []Trigger
}

// Event is a classified board write.
type Event struct {
	Type   TriggerType
	CardID string
	ListID string
	Tags   string // comma-separated
}

// Matches reports whether any trigger on the rule fires for the event.
func (r *Rule) Matches(ev Event) bool {
	if !r.Enabled {
		return false
	}
	for _, t := range r.Triggers {
		if t.Type != ev.Type {
			continue
		}
		if filtersHold(t.Filter, ev) {
			return true
		}
	}
	return false
}

func filtersHold(filter map[string]string, ev Event) bool {
	for key, want := range filter {
		switch key {
		case "listId":
			if ev.ListID != want {
				return false
			}
		case "cardId":
			if ev.CardID != want {
				return false
			}
		case "tag":
			if !hasTag(ev.Tags, want) {
				return false
			}
		default:
			// Unknown filter keys never match, so a typo disables the
			// trigger instead of firing it on everything.
			return false
		}
	}
	return true
}

func hasTag(tags, want string) bool {
	for _, t := range strings.Split(tags, ",") {
		if strings.TrimSpace(t) == want {
			return true
		}
	}
	return false
}
