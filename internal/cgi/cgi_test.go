package cgi

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpreterSelection(t *testing.T) {
	assert.Equal(t, "python3", Interpreter("/www/script.py"))
	assert.Equal(t, "php-cgi", Interpreter("/www/script.php"))
	assert.Equal(t, "./cgi_tester", Interpreter("/www/script.bla"))
	assert.Equal(t, "python3", Interpreter("/www/script.unknown"))
}

func TestHeaderEnvKey(t *testing.T) {
	assert.Equal(t, "USER_AGENT", headerEnvKey("user-agent"))
	assert.Equal(t, "HOST", headerEnvKey("Host"))
}

func TestBuildEnvDefaultsContentLength(t *testing.T) {
	req := Request{
		ScriptPath: "/www/cgi/a.py",
		Method:     "GET",
		Query:      "a=1",
		Headers:    map[string]string{"host": "example.com"},
	}
	env := buildEnv(req)

	assertContains(t, env, "REQUEST_METHOD=GET")
	assertContains(t, env, "QUERY_STRING=a=1")
	assertContains(t, env, "CONTENT_LENGTH=0")
	assertContains(t, env, "SCRIPT_FILENAME=/www/cgi/a.py")
	assertContains(t, env, "REDIRECT_STATUS=200")
	assertContains(t, env, "SERVER_PROTOCOL=HTTP/1.1")
	assertContains(t, env, "GATEWAY_INTERFACE=CGI/1.1")
	assertContains(t, env, "HTTP_HOST=example.com")
}

func TestBuildEnvUsesContentLengthHeader(t *testing.T) {
	req := Request{Headers: map[string]string{"content-length": "42"}}
	env := buildEnv(req)
	assertContains(t, env, "CONTENT_LENGTH=42")
}

func requirePython3(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
}

// TestStartPollFinishRunsRealScript exercises the full Start/Poll/Finish
// lifecycle against a real spawned interpreter, matching spec.md §8's
// CGI round-trip scenario: the script reads its body from stdin via
// the temp file and echoes it back on stdout.
func TestStartPollFinishRunsRealScript(t *testing.T) {
	requirePython3(t)

	scriptPath := filepath.Join(t.TempDir(), "echo.py")
	script := "import sys\n" +
		"body = sys.stdin.read()\n" +
		"sys.stdout.write('Status: 200\\r\\nContent-Type: text/plain\\r\\n\\r\\ngot:' + body)\n"
	require.NoError(t, os.WriteFile(scriptPath, []byte(script), 0o755))

	session, err := Start(Request{
		ScriptPath: scriptPath,
		Method:     "POST",
		Body:       []byte("hi"),
		Headers:    map[string]string{},
	})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, session.Poll())
		time.Sleep(10 * time.Millisecond)
	}

	output, failed := session.Finish()
	assert.False(t, failed)
	assert.Contains(t, string(output), "got:hi")
}

// TestKillReapsChildAndLeavesProcessState confirms a timed-out session's
// child is actually reaped by Kill, the precondition for spec.md §8's
// "a CGI session reaped via SIGKILL produces exactly one response"
// invariant (the single TimeoutResponse enqueued by the event loop).
func TestKillReapsChildAndLeavesProcessState(t *testing.T) {
	requirePython3(t)

	scriptPath := filepath.Join(t.TempDir(), "sleep.py")
	require.NoError(t, os.WriteFile(scriptPath, []byte("import time\ntime.sleep(30)\n"), 0o755))

	session, err := Start(Request{ScriptPath: scriptPath, Method: "GET", Headers: map[string]string{}})
	require.NoError(t, err)

	session.Kill()
	require.NotNil(t, session.Cmd.ProcessState)
	assert.False(t, session.Cmd.ProcessState.Success())
}

// TestPollReturnsNilWithoutBlockingWhenChildIsIdle guards against the
// os.File-netpoller-blocking regression Poll must avoid: a script that
// hasn't written anything yet (and hasn't exited) must let Poll return
// immediately rather than parking the caller, since the event loop is
// single-threaded and cannot afford to block on one session's pipe.
func TestPollReturnsNilWithoutBlockingWhenChildIsIdle(t *testing.T) {
	requirePython3(t)

	scriptPath := filepath.Join(t.TempDir(), "idle.py")
	require.NoError(t, os.WriteFile(scriptPath, []byte("import time\ntime.sleep(1)\n"), 0o755))

	session, err := Start(Request{ScriptPath: scriptPath, Method: "GET", Headers: map[string]string{}})
	require.NoError(t, err)
	defer session.Kill()

	done := make(chan error, 1)
	go func() { done <- session.Poll() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Poll blocked instead of returning immediately for an idle pipe")
	}
}

func assertContains(t *testing.T, env []string, want string) {
	t.Helper()
	for _, e := range env {
		if e == want {
			return
		}
	}
	t.Fatalf("env %v does not contain %q", env, want)
}
