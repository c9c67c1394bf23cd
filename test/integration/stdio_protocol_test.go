package integration_test

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

// TestStdioProtocolCompliance verifies the server works correctly over stdio
// transport using the official MCP SDK client. This catches protocol issues
// that a direct in-process Services call wouldn't.
func TestStdioProtocolCompliance(t *testing.T) {
	binaryPath := "./bin/coordbus-server"
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		binaryPath = "../../bin/coordbus-server"
		if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
			t.Skip("server binary not found; build cmd/server first")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, binaryPath)
	cmd.Env = append(os.Environ(),
		"COORDBUS_TRANSPORT=stdio",
		"COORDBUS_DB_PATH=:memory:",
		"STORAGE_ROOT="+t.TempDir(),
	)

	transport := &sdkmcp.CommandTransport{Command: cmd}

	client := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	require.NoError(t, err, "Failed to connect to server")
	defer session.Close()

	t.Run("ServerInfo", func(t *testing.T) {
		initResult := session.InitializeResult()
		require.NotNil(t, initResult)
		require.NotNil(t, initResult.ServerInfo)
		require.Equal(t, "coordbus", initResult.ServerInfo.Name)
		require.Equal(t, "0.1.0", initResult.ServerInfo.Version)
	})

	t.Run("ListTools", func(t *testing.T) {
		tools, err := session.ListTools(ctx, nil)
		require.NoError(t, err, "tools/list failed")
		require.Greater(t, len(tools.Tools), 15, "expected at least 16 tools")

		toolNames := make(map[string]bool)
		for _, tool := range tools.Tools {
			toolNames[tool.Name] = true
		}

		expectedTools := []string{
			"health_check",
			"ensure_project",
			"list_projects",
			"register_agent",
			"whois",
			"send_message",
			"fetch_inbox",
			"file_reservation_paths",
		}
		for _, name := range expectedTools {
			require.True(t, toolNames[name], "missing expected tool: %s", name)
		}
	})

	t.Run("CallHealthCheck", func(t *testing.T) {
		result, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
			Name: "health_check",
		})
		require.NoError(t, err, "tools/call health_check failed")
		require.False(t, result.IsError, "health_check returned error: %v", result)
		require.NotEmpty(t, result.Content, "health_check returned no content")
	})

	t.Run("CallEnsureProject", func(t *testing.T) {
		result, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
			Name:      "ensure_project",
			Arguments: map[string]any{"project_key": "acme/widgets"},
		})
		require.NoError(t, err, "tools/call ensure_project failed")
		require.False(t, result.IsError, "ensure_project returned error: %v", result)
	})

	t.Run("CallListProjects", func(t *testing.T) {
		result, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
			Name: "list_projects",
		})
		require.NoError(t, err, "tools/call list_projects failed")
		require.False(t, result.IsError, "list_projects returned error: %v", result)
		require.NotEmpty(t, result.Content, "list_projects returned no content")
	})
}

// TestStdioProtocol_StdoutHygiene verifies that the server doesn't write
// anything to stdout except valid JSON-RPC messages.
func TestStdioProtocol_StdoutHygiene(t *testing.T) {
	binaryPath := "./bin/coordbus-server"
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		binaryPath = "../../bin/coordbus-server"
		if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
			t.Skip("server binary not found; build cmd/server first")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, binaryPath)
	cmd.Env = append(os.Environ(),
		"COORDBUS_TRANSPORT=stdio",
		"COORDBUS_DB_PATH=:memory:",
		"STORAGE_ROOT="+t.TempDir(),
	)

	stdin, err := cmd.StdinPipe()
	require.NoError(t, err)

	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)

	stderr, err := cmd.StderrPipe()
	require.NoError(t, err)

	err = cmd.Start()
	require.NoError(t, err)

	initReq := `{"jsonrpc":"2.0","method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1.0"}},"id":1}`
	_, err = stdin.Write([]byte(initReq + "\n"))
	require.NoError(t, err)

	done := make(chan struct{})
	var stdoutBytes, stderrBytes []byte

	go func() {
		stdoutBytes, _ = readWithTimeout(stdout, 2*time.Second)
		stderrBytes, _ = readWithTimeout(stderr, 2*time.Second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		cmd.Process.Kill()
		t.Fatal("timeout waiting for server response")
	}

	stdin.Close()
	cmd.Process.Kill()
	cmd.Wait()

	require.NotEmpty(t, stdoutBytes, "server produced no stdout output")
	require.True(t, stdoutBytes[0] == '{', "first character of stdout should be '{', got: %q", string(stdoutBytes[:min(50, len(stdoutBytes))]))

	t.Logf("stderr output (logs): %s", string(stderrBytes))
}

func readWithTimeout(r interface{ Read([]byte) (int, error) }, timeout time.Duration) ([]byte, error) {
	result := make([]byte, 0, 4096)
	buf := make([]byte, 1024)

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		done := make(chan struct{})
		var n int
		var err error
		go func() {
			n, err = r.Read(buf)
			close(done)
		}()

		select {
		case <-done:
			if n > 0 {
				result = append(result, buf[:n]...)
			}
			if err != nil {
				return result, err
			}
		case <-time.After(100 * time.Millisecond):
			if len(result) > 0 {
				return result, nil
			}
		}
	}
	return result, nil
}
