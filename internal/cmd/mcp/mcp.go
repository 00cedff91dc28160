// Package mcp exposes the ask endpoint of a running ufdr-service to MCP
// clients over stdio.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
)

const toolAskEvidence = "ask_evidence"

// Command returns the mcp sub-command.
func Command() *cli.Command {
	var client AskClient
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve an MCP stdio tool that asks questions about evidence files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "url",
				Sources:     cli.EnvVars("UFDR_SERVICE_URL"),
				Destination: &client.BaseURL,
				Value:       "http://localhost:8080",
				Usage:       "Base URL of the ufdr-service HTTP API",
			},
			&cli.StringFlag{
				Name:        "token",
				Sources:     cli.EnvVars("UFDR_SERVICE_TOKEN"),
				Destination: &client.Token,
				Usage:       "Bearer token sent with every request",
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "api-key",
				Sources:     cli.EnvVars("UFDR_SERVICE_API_KEY"),
				Destination: &client.APIKey,
				Usage:       "API key sent in the X-API-Key header",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Sources: cli.EnvVars("UFDR_SERVICE_MCP_TIMEOUT"),
				Value:   5 * time.Minute,
				Usage:   "Timeout for one ask request",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			client.HTTP = &http.Client{Timeout: cmd.Duration("timeout")}
			// stdout carries the protocol, so logs must not go there.
			log.SetOutput(cmd.Root().ErrWriter)
			return server.ServeStdio(NewServer(&client))
		},
	}
}

// NewServer builds the MCP server with the ask_evidence tool.
func NewServer(client *AskClient) *server.MCPServer {
	s := server.NewMCPServer("ufdr-service", "1.0.0", server.WithToolCapabilities(false))
	s.AddTool(mcp.NewTool(toolAskEvidence,
		mcp.WithDescription("Ask a question about the artifacts extracted from one forensic evidence file. "+
			"Answers are grounded only in that file's artifacts and remember earlier questions from the same user."),
		mcp.WithString("evidenceFileId", mcp.Required(), mcp.Description("UUID of the evidence file")),
		mcp.WithString("question", mcp.Required(), mcp.Description("The investigator's question")),
		mcp.WithNumber("topK", mcp.Description("Maximum number of artifacts to retrieve")),
	), askHandler(client))
	return s
}

func askHandler(client *AskClient) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		fileID, err := req.RequireString("evidenceFileId")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		answer, err := client.Ask(ctx, fileID, question, req.GetInt("topK", 0))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(answer.Answer), nil
	}
}

// AskClient calls the ask endpoint of the HTTP API.
type AskClient struct {
	BaseURL string
	Token   string
	APIKey  string
	HTTP    *http.Client
}

// AskResponse is the subset of the ask response the tool reports.
type AskResponse struct {
	Answer       string `json:"answer"`
	SessionID    string `json:"sessionId"`
	MatchedCount int    `json:"matchedCount"`
}

// Ask posts question about evidence file fileID.
func (c *AskClient) Ask(ctx context.Context, fileID, question string, topK int) (*AskResponse, error) {
	body := map[string]any{"question": question}
	if topK > 0 {
		body["topK"] = topK
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(c.BaseURL, "/") + "/v1/evidence/" + fileID + "/ask"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ask request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read ask response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("ask failed (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("ask failed with status %d", resp.StatusCode)
	}
	var out AskResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode ask response: %w", err)
	}
	return &out, nil
}
