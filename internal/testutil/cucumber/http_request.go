package cucumber

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/cucumber/godog"
)

func init() {
	StepModules = append(StepModules, func(ctx *godog.ScenarioContext, s *TestScenario) {
		ctx.Step(`^the path prefix is "([^"]*)"$`, s.theAPIPrefixIs)
		ctx.Step(`^I (GET|POST|DELETE|OPTIONS) path "([^"]*)"$`, s.sendHTTPRequest)
		ctx.Step(`^I (GET|POST|DELETE) path "([^"]*)" with json body:$`, s.SendHTTPRequestWithJSONBody)
		ctx.Step(`^I upload file "([^"]*)" to path "([^"]*)" with content:$`, s.iUploadFileWithContent)
		ctx.Step(`^I upload file "([^"]*)" to path "([^"]*)" with form field "([^"]*)" = "([^"]*)" and content:$`, s.iUploadFileWithFieldAndContent)
		ctx.Step(`^I wait up to "([^"]*)" seconds for a GET on path "([^"]*)" response "([^"]*)" selection to match "([^"]*)"$`, s.iWaitForSelectionToMatch)
		ctx.Step(`^I set the "([^"]*)" header to "([^"]*)"$`, s.iSetTheHeaderTo)
	})
}

func (s *TestScenario) theAPIPrefixIs(prefix string) error {
	s.PathPrefix = prefix
	return nil
}

func (s *TestScenario) sendHTTPRequest(method, path string) error {
	return s.SendHTTPRequestWithJSONBody(method, path, nil)
}

func (s *TestScenario) SendHTTPRequestWithJSONBody(method, path string, jsonTxt *godog.DocString) error {
	body := &bytes.Buffer{}
	if jsonTxt != nil {
		expanded, err := s.Expand(jsonTxt.Content)
		if err != nil {
			return err
		}
		body.WriteString(expanded)
	}
	return s.send(method, path, body, "application/json")
}

func (s *TestScenario) iUploadFileWithContent(filename, path string, content *godog.DocString) error {
	return s.upload(filename, path, nil, content.Content)
}

func (s *TestScenario) iUploadFileWithFieldAndContent(filename, path, field, value string, content *godog.DocString) error {
	expanded, err := s.Expand(value)
	if err != nil {
		return err
	}
	return s.upload(filename, path, map[string]string{field: expanded}, content.Content)
}

func (s *TestScenario) upload(filename, path string, fields map[string]string, content string) error {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(part, content); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	return s.send(http.MethodPost, path, body, mw.FormDataContentType())
}

func (s *TestScenario) send(method, path string, body io.Reader, contentType string) error {
	session := s.Session()

	expandedPath, err := s.Expand(path)
	if err != nil {
		return err
	}
	fullURL := s.Suite.APIURL + s.PathPrefix + expandedPath
	if u, err := url.Parse(expandedPath); err == nil && u.Scheme != "" {
		fullURL = expandedPath
	}

	session.Resp = nil
	session.SetRespBytes(nil)

	req, err := http.NewRequestWithContext(context.Background(), method, fullURL, body)
	if err != nil {
		return err
	}
	// Headers set by steps apply to the next request only.
	req.Header = session.Header
	session.Header = http.Header{}
	if req.Header.Get("Authorization") == "" && session.TestUser != nil && session.TestUser.Subject != "" {
		req.Header.Set("Authorization", "Bearer "+session.TestUser.Subject)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := session.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	session.Resp = resp
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	session.SetRespBytes(data)
	return nil
}

func (s *TestScenario) iSetTheHeaderTo(name, value string) error {
	expanded, err := s.Expand(value)
	if err != nil {
		return err
	}
	s.Session().Header.Set(name, expanded)
	return nil
}

func (s *TestScenario) iWaitForSelectionToMatch(timeout float64, path, selection, expected string) error {
	deadline := time.Now().Add(time.Duration(timeout * float64(time.Second)))
	var lastErr error
	for {
		lastErr = s.sendHTTPRequest(http.MethodGet, path)
		if lastErr == nil {
			if lastErr = s.theSelectionFromTheResponseShouldMatch(selection, expected); lastErr == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("condition not met after %.f seconds: %w", timeout, lastErr)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
