package access

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/chirino/ufdr-service/internal/model"
	registrystore "github.com/chirino/ufdr-service/internal/registry/store"
	"github.com/chirino/ufdr-service/internal/security"
	"github.com/google/uuid"
)

// AssignmentLookup reports case assignments.
type AssignmentLookup interface {
	IsAssigned(ctx context.Context, caseID uuid.UUID, userID string) (bool, error)
}

// Guard combines the policy with the stored case assignments.
type Guard struct {
	policy      *PolicyEngine
	assignments AssignmentLookup
}

// NewGuard returns a Guard evaluating policy with assignments from lookup.
func NewGuard(policy *PolicyEngine, lookup AssignmentLookup) *Guard {
	return &Guard{policy: policy, assignments: lookup}
}

// CallerFromIdentity converts a resolved request identity into a policy Caller.
func CallerFromIdentity(id security.Identity) Caller {
	return Caller{
		UserID:   id.UserID,
		ClientID: id.ClientID,
		IsAdmin:  id.IsAdmin(),
		Roles:    id.RoleNames(),
	}
}

// Authorize returns a ForbiddenError when caller may not query file.
func (g *Guard) Authorize(ctx context.Context, caller Caller, file *model.EvidenceFile) error {
	ev := Evidence{ID: file.ID.String()}
	assigned := false
	if file.CaseID != nil {
		ev.CaseID = file.CaseID.String()
		if !caller.IsAdmin && caller.UserID != "" {
			ok, err := g.assignments.IsAssigned(ctx, *file.CaseID, caller.UserID)
			if err != nil {
				return err
			}
			assigned = ok
		}
	}
	allowed, err := g.policy.IsAllowed(ctx, caller, ev, assigned)
	if err != nil {
		return err
	}
	if !allowed {
		log.Info("Evidence access denied", "user", caller.UserID, "evidenceFileId", ev.ID, "caseId", ev.CaseID)
		return &registrystore.ForbiddenError{}
	}
	return nil
}
