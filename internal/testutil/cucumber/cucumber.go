// Package cucumber provides a godog-based BDD test framework for the HTTP API.
//
// Variables are scoped to the scenario. HTTP response state is stored in the
// user's session, so switching users switches the session.
//
// Variable resolution supports:
//   - ${name}                  → scenario variable lookup
//   - ${name.field}            → nested field access
//   - ${response.field}        → field of the last response body via gojq
//   - ${name | pipe}           → pipe transformations (json, string)
package cucumber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"
	"github.com/itchyny/gojq"
	"github.com/pmezard/go-difflib/difflib"
)

func NewTestSuite() *TestSuite {
	return &TestSuite{
		APIURL: "http://localhost:8080",
		Extra:  map[string]interface{}{},
	}
}

func DefaultOptions() godog.Options {
	return godog.Options{
		Output:      colors.Colored(os.Stdout),
		Format:      "progress",
		Paths:       []string{"features"},
		Randomize:   time.Now().UTC().UnixNano(),
		Concurrency: 1,
	}
}

// ApplyReportOptions writes junit XML into GODOG_REPORT_DIR when it is set.
// The returned func closes the report file.
func ApplyReportOptions(opts *godog.Options, testName string) func() {
	reportDir := os.Getenv("GODOG_REPORT_DIR")
	if reportDir == "" {
		return func() {}
	}
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return func() {}
	}
	f, err := os.Create(filepath.Join(reportDir, strings.ReplaceAll(testName, "/", "-")+".xml"))
	if err != nil {
		return func() {}
	}
	opts.Output = f
	opts.Format = "junit"
	return func() { _ = f.Close() }
}

// TestDB gives steps direct access to the backing datastore so each
// backend can be injected by its test runner.
type TestDB interface {
	// ClearAll wipes every evidence table. Called before each scenario.
	ClearAll(ctx context.Context) error
	// CountArtifacts returns how many artifacts are stored for an evidence file.
	CountArtifacts(ctx context.Context, evidenceFileID string) (int, error)
	// IsSoftDeleted reports whether the evidence file row still exists with deleted_at set.
	IsSoftDeleted(ctx context.Context, evidenceFileID string) (bool, error)
}

// TestSuite holds state shared by every scenario.
type TestSuite struct {
	Context  interface{} // opaque application context
	APIURL   string
	Mu       sync.Mutex
	TestingT *testing.T
	Extra    map[string]interface{}
	DB       TestDB
}

// TestUser is a caller of the API. Subject is sent as the bearer token.
type TestUser struct {
	Name    string
	Subject string
}

// TestScenario holds state for a single scenario. Not accessed concurrently.
type TestScenario struct {
	Suite       *TestSuite
	CurrentUser string
	PathPrefix  string
	sessions    map[string]*TestSession
	Variables   map[string]interface{}
	Users       map[string]*TestUser
}

func (s *TestScenario) Logf(format string, args ...any) {
	s.Suite.TestingT.Logf(format, args...)
}

func (s *TestScenario) User() *TestUser {
	s.Suite.Mu.Lock()
	defer s.Suite.Mu.Unlock()
	return s.Users[s.CurrentUser]
}

func (s *TestScenario) Session() *TestSession {
	result := s.sessions[s.CurrentUser]
	if result == nil {
		result = &TestSession{
			TestUser: s.User(),
			Client:   &http.Client{Timeout: 60 * time.Second},
			Header:   http.Header{},
		}
		s.sessions[s.CurrentUser] = result
	}
	return result
}

func (s *TestScenario) JSONMustMatch(actual, expected string, expand bool) error {
	actualParsed, expectedParsed, err := s.parsePair(actual, expected, expand)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(expectedParsed, actualParsed) {
		return fmt.Errorf("actual does not match expected, diff:\n%s", diff(expectedParsed, actualParsed))
	}
	return nil
}

func (s *TestScenario) JSONMustContain(actual, expected string, expand bool) error {
	actualParsed, expectedParsed, err := s.parsePair(actual, expected, expand)
	if err != nil {
		return err
	}
	if err := jsonSubset(expectedParsed, actualParsed, ""); err != nil {
		return fmt.Errorf("actual does not contain expected.\n  mismatch: %s\n%s", err, diff(expectedParsed, actualParsed))
	}
	return nil
}

func (s *TestScenario) parsePair(actual, expected string, expand bool) (interface{}, interface{}, error) {
	var actualParsed interface{}
	if err := json.Unmarshal([]byte(actual), &actualParsed); err != nil {
		return nil, nil, fmt.Errorf("error parsing actual json: %w\njson was:\n%s", err, actual)
	}
	if expand {
		var err error
		if expected, err = s.Expand(expected); err != nil {
			return nil, nil, err
		}
	}
	if strings.TrimSpace(expected) == "" {
		return nil, nil, fmt.Errorf("expected json not specified, actual json was:\n%s", indent(actualParsed))
	}
	var expectedParsed interface{}
	if err := json.Unmarshal([]byte(expected), &expectedParsed); err != nil {
		return nil, nil, fmt.Errorf("error parsing expected json: %w\njson was:\n%s", err, expected)
	}
	return actualParsed, expectedParsed, nil
}

func indent(v interface{}) string {
	data, _ := json.MarshalIndent(v, "", "  ")
	return string(data)
}

func diff(expected, actual interface{}) string {
	out, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(indent(expected)),
		B:        difflib.SplitLines(indent(actual)),
		FromFile: "Expected",
		ToFile:   "Actual",
		Context:  1,
	})
	return out
}

// jsonSubset checks that every field of expected is present in actual with an
// equal value. Arrays must have the same length.
func jsonSubset(expected, actual interface{}, path string) error {
	switch exp := expected.(type) {
	case nil:
		if actual != nil {
			return fmt.Errorf("at %s: expected null, got %v", pathOrRoot(path), actual)
		}
	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			return fmt.Errorf("at %s: expected object, got %T", pathOrRoot(path), actual)
		}
		for key, expVal := range exp {
			actVal, exists := act[key]
			if !exists {
				return fmt.Errorf("at %s: missing key %q", pathOrRoot(path), key)
			}
			if err := jsonSubset(expVal, actVal, path+"."+key); err != nil {
				return err
			}
		}
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			return fmt.Errorf("at %s: expected array, got %T", pathOrRoot(path), actual)
		}
		if len(exp) != len(act) {
			return fmt.Errorf("at %s: expected array length %d, got %d", pathOrRoot(path), len(exp), len(act))
		}
		for i := range exp {
			if err := jsonSubset(exp[i], act[i], fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	default:
		if !reflect.DeepEqual(expected, actual) {
			return fmt.Errorf("at %s: expected %v (%T), got %v (%T)", pathOrRoot(path), expected, expected, actual, actual)
		}
	}
	return nil
}

func pathOrRoot(path string) string {
	return "$" + path
}

// Expand replaces ${var} in value using scenario variables.
func (s *TestScenario) Expand(value string) (result string, rerr error) {
	return os.Expand(value, func(name string) string {
		res, err := s.ResolveString(name)
		if err != nil {
			rerr = err
			return ""
		}
		return res
	}), rerr
}

func (s *TestScenario) ResolveString(name string) (string, error) {
	value, err := s.Resolve(name)
	if err != nil {
		return "", err
	}
	return ToString(value, name)
}

func ToString(value interface{}, name string) (string, error) {
	switch value := value.(type) {
	case string:
		return value, nil
	case bool:
		return strconv.FormatBool(value), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", value), nil
	case float32, float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", value), "0"), "."), nil
	case nil:
		return "", nil
	case error:
		return "", fmt.Errorf("failed to evaluate selection: %s: %w", name, value)
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *TestScenario) Resolve(name string) (interface{}, error) {
	pipes := strings.Split(name, "|")
	for i := range pipes {
		pipes[i] = strings.TrimSpace(pipes[i])
	}
	name, pipes = pipes[0], pipes[1:]

	if len(name) >= 2 && name[0] == '"' && name[len(name)-1] == '"' {
		return pipeline(pipes, name[1:len(name)-1], nil)
	}

	session := s.Session()
	if name == "response" {
		value, err := session.RespJSON()
		return pipeline(pipes, value, err)
	}
	if strings.HasPrefix(name, "response.") || strings.HasPrefix(name, "response[") {
		value, err := session.Select("." + strings.TrimPrefix(name, "response"))
		return pipeline(pipes, value, err)
	}

	parts := strings.Split(name, ".")
	value, found := s.Variables[parts[0]]
	if !found {
		return pipeline(pipes, nil, fmt.Errorf("variable ${%s} not defined yet", parts[0]))
	}
	for _, part := range parts[1:] {
		var err error
		if value, err = SelectChild(value, part); err != nil {
			return pipeline(pipes, nil, err)
		}
	}
	return pipeline(pipes, value, nil)
}

// SelectChild navigates one map key or slice index into value.
func SelectChild(value any, path string) (any, error) {
	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Map:
		key := reflect.ValueOf(path)
		if v.Type().Key() != key.Type() {
			return nil, fmt.Errorf("cannot select map key %s from %s", path, v.Type())
		}
		v = v.MapIndex(key)
		if !v.IsValid() {
			return nil, fmt.Errorf("map key %s not found", path)
		}
	case reflect.Slice:
		index, err := strconv.Atoi(path)
		if err != nil {
			return nil, fmt.Errorf("cannot select slice index %s from %s", path, v.Type())
		}
		if index < 0 || index >= v.Len() {
			return nil, fmt.Errorf("slice index %s out of range", path)
		}
		v = v.Index(index)
	default:
		return nil, fmt.Errorf("can't navigate to '%s' on type of %s", path, v.Type())
	}
	return v.Interface(), nil
}

func pipeline(pipes []string, value any, err error) (any, error) {
	for _, pipe := range pipes {
		fn := PipeFunctions[pipe]
		if fn == nil {
			return nil, fmt.Errorf("unknown pipe: %s", pipe)
		}
		value, err = fn(value, err)
	}
	return value, err
}

var PipeFunctions = map[string]func(any, error) (any, error){
	"json": func(value any, err error) (any, error) {
		if err != nil {
			return value, err
		}
		buf := bytes.NewBuffer(nil)
		encoder := json.NewEncoder(buf)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(value); err != nil {
			return value, err
		}
		return buf.String(), nil
	},
	"string": func(value any, err error) (any, error) {
		if err != nil {
			return value, err
		}
		return fmt.Sprintf("%v", value), nil
	},
}

// TestSession holds the HTTP context for a user, like a browser.
type TestSession struct {
	TestUser  *TestUser
	Client    *http.Client
	Resp      *http.Response
	RespBytes []byte
	respJSON  interface{}
	Header    http.Header
}

// RespJSON returns the last response body as parsed JSON.
func (s *TestSession) RespJSON() (interface{}, error) {
	if s.respJSON == nil {
		if s.RespBytes == nil {
			return nil, fmt.Errorf("no response body")
		}
		if err := json.Unmarshal(s.RespBytes, &s.respJSON); err != nil {
			return nil, fmt.Errorf("error parsing response json: %w\njson was:\n%s", err, s.RespBytes)
		}
	}
	return s.respJSON, nil
}

// Select runs a gojq expression against the last response body and returns
// its first result.
func (s *TestSession) Select(expr string) (interface{}, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, err
	}
	doc, err := s.RespJSON()
	if err != nil {
		return nil, err
	}
	next, found := query.Run(doc).Next()
	if !found {
		return nil, fmt.Errorf("selection %q not found in json response:\n%s", expr, s.RespBytes)
	}
	if err, ok := next.(error); ok {
		return nil, fmt.Errorf("selection %q failed: %w", expr, err)
	}
	return next, nil
}

func (s *TestSession) SetRespBytes(bytes []byte) {
	s.RespBytes = bytes
	s.respJSON = nil
}

// StepModules registers steps with each new scenario.
var StepModules []func(ctx *godog.ScenarioContext, s *TestScenario)

func (suite *TestSuite) InitializeScenario(ctx *godog.ScenarioContext) {
	s := &TestScenario{
		Suite:     suite,
		Users:     map[string]*TestUser{},
		sessions:  map[string]*TestSession{},
		Variables: map[string]interface{}{},
	}
	for _, module := range StepModules {
		module(ctx, s)
	}
}
