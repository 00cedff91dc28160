package access

import (
	"context"
	"fmt"
	"testing"

	"github.com/open-policy-agent/opa/rego"
)

const defaultPolicyAssertionsRego = `
package evidence.tests

import future.keywords.if

test_allow_admin_any_file if {
	data.evidence.authz.allow with input as {
		"caller": {"user_id": "root", "is_admin": true, "assigned": false, "roles": ["admin"]},
		"evidence": {"id": "f1", "case_id": "", "has_case": false}
	}
}

test_allow_assigned_investigator if {
	data.evidence.authz.allow with input as {
		"caller": {"user_id": "alice", "is_admin": false, "assigned": true, "roles": []},
		"evidence": {"id": "f1", "case_id": "c1", "has_case": true}
	}
}

test_deny_unassigned_investigator if {
	not data.evidence.authz.allow with input as {
		"caller": {"user_id": "bob", "is_admin": false, "assigned": false, "roles": []},
		"evidence": {"id": "f1", "case_id": "c1", "has_case": true}
	}
}

test_deny_caseless_file_for_non_admin if {
	not data.evidence.authz.allow with input as {
		"caller": {"user_id": "alice", "is_admin": false, "assigned": true, "roles": []},
		"evidence": {"id": "f1", "case_id": "", "has_case": false}
	}
}
`

func TestDefaultPolicyRegoAssertions(t *testing.T) {
	modules := map[string]string{
		"evidence.rego": defaultPolicyRego,
		"tests.rego":    defaultPolicyAssertionsRego,
	}
	testRules := []string{
		"test_allow_admin_any_file",
		"test_allow_assigned_investigator",
		"test_deny_unassigned_investigator",
		"test_deny_caseless_file_for_non_admin",
	}

	for _, rule := range testRules {
		t.Run(rule, func(t *testing.T) {
			query := fmt.Sprintf("data.evidence.tests.%s", rule)
			if !evalRegoBoolean(t, modules, query) {
				t.Fatalf("rego assertion failed: %s", query)
			}
		})
	}
}

func evalRegoBoolean(t *testing.T, modules map[string]string, query string) bool {
	t.Helper()
	opts := []func(*rego.Rego){rego.Query(query)}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	r := rego.New(opts...)
	results, err := r.Eval(context.Background())
	if err != nil {
		t.Fatalf("eval %s: %v", query, err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		t.Fatalf("eval %s: no result", query)
	}
	v, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		t.Fatalf("eval %s: expected bool, got %T", query, results[0].Expressions[0].Value)
	}
	return v
}
