package functional_test

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

// stdioSession wraps an MCP client session talking to a built server binary
// over stdio. Tests skip when the binary hasn't been built, the same way
// the HTTP-transport tests exercise the in-process server directly.
type stdioSession struct {
	session *sdkmcp.ClientSession
	cancel  context.CancelFunc
}

func newStdioSession(t *testing.T) *stdioSession {
	t.Helper()
	return newStdioSessionWithEnv(t, nil)
}

func newStdioSessionWithEnv(t *testing.T, extraEnv []string) *stdioSession {
	t.Helper()

	binaryPath := "./bin/coordbus-server"
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		binaryPath = "../../bin/coordbus-server"
		if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
			t.Skip("server binary not found; build cmd/server first")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	cmd := exec.CommandContext(ctx, binaryPath)
	cmd.Env = append(os.Environ(),
		"COORDBUS_TRANSPORT=stdio",
		"COORDBUS_DB_PATH=:memory:",
		"STORAGE_ROOT="+t.TempDir(),
	)
	if len(extraEnv) > 0 {
		cmd.Env = append(cmd.Env, extraEnv...)
	}

	transport := &sdkmcp.CommandTransport{Command: cmd}

	client := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		cancel()
		t.Fatalf("Failed to connect: %v", err)
	}

	t.Cleanup(func() {
		session.Close()
		cancel()
	})

	return &stdioSession{session: session, cancel: cancel}
}

func (s *stdioSession) callTool(t *testing.T, name string, args map[string]any) json.RawMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := s.session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err, "CallTool %s failed", name)
	require.False(t, result.IsError, "Tool %s returned error", name)
	require.NotEmpty(t, result.Content, "Tool %s returned no content", name)

	for _, content := range result.Content {
		if textContent, ok := content.(*sdkmcp.TextContent); ok {
			return json.RawMessage(textContent.Text)
		}
	}
	t.Fatalf("Tool %s returned no text content", name)
	return nil
}

func TestStdioFunctional_ProjectAndAgentLifecycle(t *testing.T) {
	s := newStdioSession(t)

	ensureResp := s.callTool(t, "ensure_project", map[string]any{"project_key": "stdio/project"})
	require.NotEmpty(t, ensureResp)

	registerResp := s.callTool(t, "register_agent", map[string]any{
		"project_key": "stdio/project",
		"name":        "scout",
		"program":     "claude-code",
		"model":       "test-model",
	})
	var registered struct {
		Agent struct {
			Name string `json:"name"`
		} `json:"agent"`
	}
	require.NoError(t, json.Unmarshal(registerResp, &registered))
	require.Equal(t, "scout", registered.Agent.Name)

	listResp := s.callTool(t, "list_projects", nil)
	require.NotEmpty(t, listResp)
}

func TestStdioFunctional_MessagingRoundtrip(t *testing.T) {
	s := newStdioSession(t)

	s.callTool(t, "ensure_project", map[string]any{"project_key": "stdio/project"})
	s.callTool(t, "register_agent", map[string]any{
		"project_key": "stdio/project", "name": "scout", "program": "claude-code", "model": "test-model",
	})
	s.callTool(t, "register_agent", map[string]any{
		"project_key": "stdio/project", "name": "reviewer", "program": "claude-code", "model": "test-model",
	})

	s.callTool(t, "send_message", map[string]any{
		"project_key": "stdio/project",
		"sender_name": "scout",
		"to":          []string{"reviewer"},
		"subject":     "status",
		"body_md":     "branch is green",
	})

	inboxResp := s.callTool(t, "fetch_inbox", map[string]any{
		"project_key": "stdio/project",
		"agent_name":  "reviewer",
	})
	var inbox struct {
		Items []struct {
			Message struct {
				Subject string `json:"subject"`
			} `json:"message"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(inboxResp, &inbox))
	require.Len(t, inbox.Items, 1)
	require.Equal(t, "status", inbox.Items[0].Message.Subject)
}

func TestStdioFunctional_MCPProtocolCompliance(t *testing.T) {
	s := newStdioSession(t)

	initResult := s.session.InitializeResult()
	require.NotNil(t, initResult)
	require.NotNil(t, initResult.ServerInfo)
	require.Equal(t, "coordbus", initResult.ServerInfo.Name)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tools, err := s.session.ListTools(ctx, nil)
	require.NoError(t, err)
	require.Greater(t, len(tools.Tools), 15, "should have at least 16 tools")

	toolMap := make(map[string]*sdkmcp.Tool)
	for _, tool := range tools.Tools {
		toolMap[tool.Name] = tool
	}

	require.Contains(t, toolMap, "ensure_project")
	require.Contains(t, toolMap, "send_message")
	require.Contains(t, toolMap, "file_reservation_paths")
	require.NotEmpty(t, toolMap["send_message"].Description)
}

func TestStdioFunctional_LogFile(t *testing.T) {
	logPath := t.TempDir() + "/coordbus.log"
	s := newStdioSessionWithEnv(t, []string{
		"COORDBUS_LOG_PATH=" + logPath,
		"COORDBUS_LOG_LEVEL=debug",
	})

	s.callTool(t, "list_projects", nil)

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(logPath)
		if err != nil {
			return false
		}
		return len(data) > 0
	}, 5*time.Second, 100*time.Millisecond)
}

func TestStdioFunctional_DocumentationResources(t *testing.T) {
	s := newStdioSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resources, err := s.session.ListResources(ctx, nil)
	require.NoError(t, err)
	require.NotEmpty(t, resources.Resources)

	uris := make(map[string]*sdkmcp.Resource, len(resources.Resources))
	for _, r := range resources.Resources {
		uris[r.URI] = r
	}

	expected := []string{
		"coordbus://docs/index",
		"coordbus://docs/concepts",
		"coordbus://docs/workflows/messaging",
		"coordbus://docs/workflows/file-reservations",
		"coordbus://docs/workflows/contacts",
	}
	for _, uri := range expected {
		r, ok := uris[uri]
		require.True(t, ok, "missing expected doc resource: %s", uri)
		require.NotEmpty(t, r.Name)
		require.Equal(t, "text/markdown", r.MIMEType)
	}

	read, err := s.session.ReadResource(ctx, &sdkmcp.ReadResourceParams{URI: "coordbus://docs/index"})
	require.NoError(t, err)
	require.NotEmpty(t, read.Contents)
	require.Equal(t, "coordbus://docs/index", read.Contents[0].URI)
}
