package authz

var crud = acts(ActionCreate, ActionRead, ActionUpdate, ActionDelete)

// Abilities is the evaluated rule set of one actor.
type Abilities struct {
	actor Actor
	rules []Rule
}

// DefineAbilities builds the rule set for actor's role. Unknown roles get
// an empty set and are denied everything.
func DefineAbilities(actor Actor) Abilities {
	return Abilities{actor: actor, rules: rulesFor(actor.Role)}
}

func rulesFor(role Role) []Rule {
	switch role {
	case RoleUser:
		return []Rule{
			allow(crud, kinds(KindProfile, KindFinancialData, KindSettings, KindNotification), Owner),
			allow(acts(ActionRead), kinds(KindFinancialData), SharedWith(PermissionRead)),
			allow(acts(ActionRead, ActionUpdate), kinds(KindFinancialData), SharedWith(PermissionWrite)),
		}
	case RoleFamilyMember:
		return []Rule{
			allow(acts(ActionRead), kinds(KindFinancialData), SharedWith("")),
			allow(acts(ActionRead, ActionUpdate), kinds(KindProfile), Owner),
		}
	case RoleSupport:
		return []Rule{
			allow(acts(ActionRead), kinds(KindProfile), Any),
			deny(acts(ActionRead), kinds(KindFinancialData)),
			deny(acts(ActionCreate, ActionUpdate, ActionDelete), kinds(KindAll)),
		}
	case RoleAdmin:
		return []Rule{
			allow(acts(ActionRead), kinds(KindProfile, KindFinancialData, KindAuditLog), Any),
			deny(acts(ActionCreate, ActionUpdate, ActionDelete), kinds(KindProfile, KindFinancialData)),
		}
	case RoleSuperAdmin:
		return []Rule{
			allow(acts(ActionManage), kinds(KindAll), Any),
			deny(acts(ActionDelete), kinds(KindAuditLog)),
		}
	default:
		return nil
	}
}

// Rules returns a copy of the rule list.
func (a Abilities) Rules() []Rule {
	return append([]Rule(nil), a.rules...)
}

// Can reports whether action on res is allowed. Deny rules win over allow
// rules.
func (a Abilities) Can(action Action, res Resource) bool {
	allowed := false
	for _, r := range a.rules {
		if !r.matches(action, a.actor, res) {
			continue
		}
		if r.Effect == Deny {
			return false
		}
		allowed = true
	}
	return allowed
}

// Cannot is the negation of Can.
func (a Abilities) Cannot(action Action, res Resource) bool {
	return !a.Can(action, res)
}

// CheckAbility derives abilities for actor and evaluates one request.
func CheckAbility(actor Actor, action Action, res Resource) bool {
	return DefineAbilities(actor).Can(action, res)
}
