package authz

// Effect is the outcome a matching rule contributes.
type Effect int

const (
	Allow Effect = iota
	Deny
)

// Cond restricts a rule to resources that satisfy it for the actor.
type Cond interface {
	Match(actor Actor, res Resource) bool
}

type anyCond struct{}

func (anyCond) Match(Actor, Resource) bool { return true }

type ownerCond struct{}

func (ownerCond) Match(a Actor, r Resource) bool {
	return a.ID != "" && r.UserID == a.ID
}

type sharedCond struct {
	level Permission
}

// Match requires a single share entry naming the actor with the given level.
// An empty level accepts any entry naming the actor.
func (c sharedCond) Match(a Actor, r Resource) bool {
	if a.ID == "" {
		return false
	}
	for _, s := range r.SharedWith {
		if s.UserID != a.ID {
			continue
		}
		if c.level == "" || s.Permission == c.level {
			return true
		}
	}
	return false
}

var (
	// Any matches every resource.
	Any Cond = anyCond{}
	// Owner matches resources whose UserID is the actor.
	Owner Cond = ownerCond{}
)

// SharedWith matches resources shared with the actor at level. Pass "" for
// any level.
func SharedWith(level Permission) Cond { return sharedCond{level: level} }

// Rule is one entry of an ability set.
type Rule struct {
	Effect  Effect
	Actions []Action
	Kinds   []Kind
	Cond    Cond
}

func (r Rule) matches(action Action, actor Actor, res Resource) bool {
	if !r.matchesAction(action) || !r.matchesKind(res.Kind) {
		return false
	}
	if r.Cond == nil {
		return true
	}
	return r.Cond.Match(actor, res)
}

func (r Rule) matchesAction(action Action) bool {
	for _, a := range r.Actions {
		if a == action || a == ActionManage {
			return true
		}
	}
	return false
}

func (r Rule) matchesKind(kind Kind) bool {
	for _, k := range r.Kinds {
		if k == kind || k == KindAll {
			return true
		}
	}
	return false
}

func allow(actions []Action, kinds []Kind, cond Cond) Rule {
	return Rule{Effect: Allow, Actions: actions, Kinds: kinds, Cond: cond}
}

func deny(actions []Action, kinds []Kind) Rule {
	return Rule{Effect: Deny, Actions: actions, Kinds: kinds, Cond: Any}
}

func acts(a ...Action) []Action { return a }

func kinds(k ...Kind) []Kind { return k }
