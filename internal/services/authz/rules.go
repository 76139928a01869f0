package authz

import "github.com/killallgit/annotation-api/internal/models"

type decision int

const (
	abstain decision = iota
	allow
	deny
)

// facts is everything a rule may look at
type facts struct {
	subject    Subject
	resource   Resource
	action     Action
	ownerID    uint
	membership *models.ProjectMembership
}

type rule func(f *facts) decision

func defaultRules() []rule {
	return []rule{
		adminRule,
		ownershipRule,
		membershipRule,
		globalRankRule,
	}
}

// evaluate returns the first non-abstaining decision, denying by default
func evaluate(rules []rule, f *facts) bool {
	for _, r := range rules {
		switch r(f) {
		case allow:
			return true
		case deny:
			return false
		}
	}
	return false
}

func adminRule(f *facts) decision {
	if f.subject.IsAdmin() {
		return allow
	}
	return abstain
}

// ownershipRule covers the project owner and an annotation's annotator.
// The owner may read and review annotations but only the annotator edits them.
func ownershipRule(f *facts) decision {
	if f.resource.Kind == KindGlobal {
		return abstain
	}

	if f.resource.Kind == KindAnnotation {
		if f.resource.AnnotatorID != 0 && f.resource.AnnotatorID == f.subject.UserID {
			if f.action == ActionRead || f.action == ActionWrite {
				return allow
			}
		}
		if f.ownerID == f.subject.UserID && (f.action == ActionRead || f.action == ActionReview) {
			return allow
		}
		return abstain
	}

	if f.ownerID == f.subject.UserID {
		return allow
	}
	return abstain
}

func membershipRule(f *facts) decision {
	if f.resource.Kind == KindGlobal || f.membership == nil {
		return abstain
	}
	role := f.membership.Role

	if f.resource.Kind == KindAnnotation {
		// Reading someone else's annotation is a reviewer capability
		if (f.action == ActionRead || f.action == ActionReview) && role.CanReview() {
			return allow
		}
		return abstain
	}

	switch f.action {
	case ActionRead, ActionWrite:
		return allow
	case ActionReview:
		if role.CanReview() {
			return allow
		}
	case ActionManage:
		if role == models.RoleProjectManager {
			return allow
		}
	}
	return abstain
}

// requiredRank is the minimum global role for actions not scoped to a project
var requiredRank = map[Action]models.Role{
	ActionRead:          models.RoleAnnotator,
	ActionCreateProject: models.RoleProjectManager,
	ActionManage:        models.RoleAdmin,
}

func globalRankRule(f *facts) decision {
	if f.resource.Kind != KindGlobal {
		return abstain
	}
	required, ok := requiredRank[f.action]
	if !ok {
		return abstain
	}
	if f.subject.Role.AtLeast(required) {
		return allow
	}
	return abstain
}
