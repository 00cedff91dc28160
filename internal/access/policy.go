// Package access decides whether a caller may query an evidence file.
package access

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/open-policy-agent/opa/rego"
)

const (
	policyFile  = "evidence.rego"
	policyQuery = "data.evidence.authz.allow"
)

// Default built-in policy (used when no policy directory is configured).
const defaultPolicyRego = `
package evidence.authz

import future.keywords.if
import future.keywords.in

default allow = false

# Admins see every evidence file.
allow if {
    input.caller.is_admin
}

# Investigators see the files of cases they are assigned to.
allow if {
    "investigator" in input.caller.roles
    input.evidence.has_case
    input.caller.assigned
}
`

// Caller is the identity a policy decision is made for.
type Caller struct {
	UserID   string
	ClientID string
	IsAdmin  bool
	Roles    []string
}

// Evidence describes the evidence file being accessed.
type Evidence struct {
	ID     string
	CaseID string
}

// PolicyEngine evaluates the evidence access policy.
type PolicyEngine struct {
	mu    sync.RWMutex
	allow *rego.PreparedEvalQuery
	src   string
}

// NewPolicyEngine creates a PolicyEngine. If policyDir is non-empty, evidence.rego is
// loaded from that directory; otherwise the built-in default is used.
func NewPolicyEngine(ctx context.Context, policyDir string) (*PolicyEngine, error) {
	e := &PolicyEngine{}
	if err := e.Reload(ctx, policyDir); err != nil {
		return nil, err
	}
	return e, nil
}

func regoSource(policyDir string) string {
	if policyDir == "" {
		return defaultPolicyRego
	}
	data, err := os.ReadFile(filepath.Join(policyDir, policyFile))
	if err != nil {
		log.Warn("Policy file not found, using built-in default", "file", policyFile, "err", err)
		return defaultPolicyRego
	}
	return string(data)
}

// Reload recompiles the policy from policyDir and swaps it in. Thread-safe.
func (e *PolicyEngine) Reload(ctx context.Context, policyDir string) error {
	src := regoSource(policyDir)
	q, err := prepareQuery(ctx, src)
	if err != nil {
		return fmt.Errorf("access: load policy: %w", err)
	}
	e.mu.Lock()
	e.allow = q
	e.src = src
	e.mu.Unlock()
	return nil
}

// Source returns the active policy text.
func (e *PolicyEngine) Source() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return strings.TrimSpace(e.src)
}

func prepareQuery(ctx context.Context, src string) (*rego.PreparedEvalQuery, error) {
	r := rego.New(
		rego.Query(policyQuery),
		rego.Module(policyFile, src),
	)
	pq, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}
	return &pq, nil
}

// IsAllowed evaluates the policy. assigned reports whether the caller holds a
// case assignment for the file's case.
func (e *PolicyEngine) IsAllowed(ctx context.Context, caller Caller, evidence Evidence, assigned bool) (bool, error) {
	e.mu.RLock()
	q := *e.allow
	e.mu.RUnlock()

	roles := append([]string(nil), caller.Roles...)
	sort.Strings(roles)
	if roles == nil {
		roles = []string{}
	}
	input := map[string]interface{}{
		"caller": map[string]interface{}{
			"user_id":   caller.UserID,
			"client_id": caller.ClientID,
			"is_admin":  caller.IsAdmin,
			"roles":     roles,
			"assigned":  assigned,
		},
		"evidence": map[string]interface{}{
			"id":       evidence.ID,
			"case_id":  evidence.CaseID,
			"has_case": evidence.CaseID != "",
		},
	}
	results, err := q.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("access policy eval: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}
	allow, _ := results[0].Expressions[0].Value.(bool)
	return allow, nil
}
