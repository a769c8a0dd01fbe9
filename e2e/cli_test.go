package e2e_test

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/arenaengine/internal/api"
	"github.com/mcoot/arenaengine/internal/api/response"
	"github.com/mcoot/arenaengine/internal/config"
	"github.com/mcoot/arenaengine/internal/factory"
	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/protocol"
	"github.com/mcoot/arenaengine/internal/services/auth"
)

var (
	buildOnce sync.Once
	buildErr  error
	buildOut  []byte
)

// cliRunner manages CLI binary execution
type cliRunner struct {
	binaryPath string
	serverURL  string
	tokenFile  string
}

func newCLIRunner(t *testing.T, serverURL string) *cliRunner {
	t.Helper()

	// Find project root (where go.mod is)
	projectRoot := findProjectRoot(t)

	// Build the CLI binary once per test run
	binaryPath := filepath.Join(projectRoot, "bin", "arenactl-test")
	buildOnce.Do(func() {
		cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/arenactl")
		cmd.Dir = projectRoot
		buildOut, buildErr = cmd.CombinedOutput()
	})
	require.NoError(t, buildErr, "failed to build CLI: %s", string(buildOut))

	return &cliRunner{
		binaryPath: binaryPath,
		serverURL:  serverURL,
		tokenFile:  filepath.Join(t.TempDir(), "token"),
	}
}

func (r *cliRunner) command(token string, args ...string) *exec.Cmd {
	fullArgs := []string{
		"--server", r.serverURL,
		"--token-file", r.tokenFile,
		"--output", "json",
	}
	if token != "" {
		fullArgs = append(fullArgs, "--token", token)
	}
	return exec.Command(r.binaryPath, append(fullArgs, args...)...)
}

func (r *cliRunner) run(args ...string) (string, error) {
	output, err := r.command("", args...).CombinedOutput()
	return string(output), err
}

func (r *cliRunner) runWithToken(token string, args ...string) (string, error) {
	output, err := r.command(token, args...).CombinedOutput()
	return string(output), err
}

func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// testServer manages a real HTTP server for e2e tests
type testServer struct {
	app       *factory.App
	url       string
	shutdowns chan struct{}
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg, err := config.LoadFromMap(map[string]string{
		"ARENA_JWT_SECRET": "e2e-test-secret",
		"ARENA_ADDR":       "127.0.0.1:0",
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	app, err := factory.New(cfg, logger)
	require.NoError(t, err)

	ts := &testServer{app: app, shutdowns: make(chan struct{}, 1)}
	server := api.NewServer(app.Router(func() {
		select {
		case ts.shutdowns <- struct{}{}:
		default:
		}
	}), api.ServerConfig{Addr: cfg.Addr, ReadHeaderTimeout: time.Second, ShutdownTimeout: 5 * time.Second}, logger)

	listener, err := net.Listen("tcp", cfg.Addr)
	require.NoError(t, err)
	ts.url = "http://" + listener.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Serve(listener); err != nil {
			t.Logf("server error: %v", err)
		}
	}()
	go func() { _ = app.Supervisor.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = app.Shutdown(shutdownCtx)
		_ = server.Shutdown(shutdownCtx)
		<-done
	})
	return ts
}

func (ts *testServer) token(t *testing.T, playerID, role string) string {
	t.Helper()
	token, err := ts.app.Auth.Issue(model.PlayerID(playerID), role, nil)
	require.NoError(t, err)
	return token.Value
}

// envelopes parses the JSON-lines output of the play command
func envelopes(t *testing.T, output string) []protocol.Envelope {
	t.Helper()
	var out []protocol.Envelope
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		var env protocol.Envelope
		if json.Unmarshal(scanner.Bytes(), &env) == nil && env.Type != "" {
			out = append(out, env)
		}
	}
	return out
}

func lastOfType(envs []protocol.Envelope, typ protocol.MessageType) (protocol.Envelope, bool) {
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Type == typ {
			return envs[i], true
		}
	}
	return protocol.Envelope{}, false
}

func TestCLIHealth(t *testing.T) {
	ts := startTestServer(t)
	cli := newCLIRunner(t, ts.url)

	output, err := cli.run("health")
	require.NoError(t, err, output)

	var health response.Health
	require.NoError(t, json.Unmarshal([]byte(output), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Contains(t, health.GameTypes, model.GameType("tapper"))
}

func TestCLITokenIssueAndSave(t *testing.T) {
	ts := startTestServer(t)
	cli := newCLIRunner(t, ts.url)
	admin := ts.token(t, "ops", auth.RoleAdmin)

	output, err := cli.runWithToken(ts.token(t, "alice", ""), "token", "issue", "bob")
	require.Error(t, err)
	assert.Contains(t, output, "FORBIDDEN")

	output, err = cli.runWithToken(admin, "token", "issue", "bob", "--attr", "region=eu", "--save")
	require.NoError(t, err, output)

	var token response.Token
	require.NoError(t, json.Unmarshal([]byte(output), &token))
	assert.Equal(t, "bob", token.PlayerID)

	saved, err := os.ReadFile(cli.tokenFile)
	require.NoError(t, err)
	assert.Equal(t, token.Token, string(saved))

	// The saved token is picked up without --token
	output, err = cli.run("player", "stats", "bob")
	require.NoError(t, err, output)
	var stats response.PlayerStats
	require.NoError(t, json.Unmarshal([]byte(output), &stats))
	assert.Equal(t, "bob", stats.PlayerID)
	assert.Zero(t, stats.GamesPlayed)
}

func TestCLIPlayTapperToCompletion(t *testing.T) {
	ts := startTestServer(t)
	cli := newCLIRunner(t, ts.url)

	taps := make([]string, 0, 40)
	for range 20 {
		taps = append(taps, "--action", "tap")
	}

	var wg sync.WaitGroup
	outputs := make(map[string]string)
	var mu sync.Mutex
	play := func(player string, extra ...string) {
		defer wg.Done()
		args := append([]string{"play", "tapper", "--stake", "10"}, extra...)
		output, err := cli.runWithToken(ts.token(t, player, ""), args...)
		assert.NoError(t, err, output)
		mu.Lock()
		outputs[player] = output
		mu.Unlock()
	}

	wg.Add(2)
	go play("alice", taps...)
	go play("bob")
	wg.Wait()

	var sessionID model.SessionID
	for _, player := range []string{"alice", "bob"} {
		envs := envelopes(t, outputs[player])
		env, ok := lastOfType(envs, protocol.TypeGameEnded)
		require.True(t, ok, "%s saw no game_ended:\n%s", player, outputs[player])

		var ended protocol.GameEndedPayload
		require.NoError(t, env.DecodePayload(&ended))
		assert.Equal(t, model.EndReasonNormal, ended.Reason)
		require.NotNil(t, ended.Result.Winner)
		assert.Equal(t, model.PlayerID("alice"), *ended.Result.Winner)
		sessionID = ended.SessionID
	}

	token := ts.token(t, "alice", "")
	require.Eventually(t, func() bool {
		output, err := cli.runWithToken(token, "results")
		if err != nil {
			return false
		}
		var results response.ResultList
		return json.Unmarshal([]byte(output), &results) == nil && len(results.Results) == 1
	}, 5*time.Second, 100*time.Millisecond)

	output, err := cli.runWithToken(token, "session", "get", string(sessionID))
	require.NoError(t, err, output)
	var lookup response.SessionLookup
	require.NoError(t, json.Unmarshal([]byte(output), &lookup))
	require.NotNil(t, lookup.Result)
	assert.Equal(t, int64(20), lookup.Result.TotalStake)
}

func TestCLITerminateLiveSession(t *testing.T) {
	ts := startTestServer(t)
	cli := newCLIRunner(t, ts.url)
	admin := ts.token(t, "ops", auth.RoleAdmin)

	player := cli.command(ts.token(t, "alice", ""), "play", "duel")
	var stdout strings.Builder
	player.Stdout = &stdout
	player.Stderr = &stdout
	require.NoError(t, player.Start())

	var sessions response.SessionList
	require.Eventually(t, func() bool {
		output, err := cli.runWithToken(admin, "session", "list", "--status", "waiting")
		return err == nil && json.Unmarshal([]byte(output), &sessions) == nil && len(sessions.Sessions) == 1
	}, 5*time.Second, 100*time.Millisecond)
	id := sessions.Sessions[0].ID

	output, err := cli.runWithToken(ts.token(t, "alice", ""), "session", "terminate", id)
	require.Error(t, err)
	assert.Contains(t, output, "FORBIDDEN")

	output, err = cli.runWithToken(admin, "session", "terminate", id, "--reason", "shutdown")
	require.NoError(t, err, output)
	var result response.Result
	require.NoError(t, json.Unmarshal([]byte(output), &result))
	assert.Equal(t, "aborted", result.Status)

	// The player sees the end and exits on its own
	require.NoError(t, player.Wait())
	env, ok := lastOfType(envelopes(t, stdout.String()), protocol.TypeGameEnded)
	require.True(t, ok, stdout.String())
	var ended protocol.GameEndedPayload
	require.NoError(t, env.DecodePayload(&ended))
	assert.Equal(t, model.EndReasonShutdown, ended.Reason)
}

func TestCLIPlayRejectsBadToken(t *testing.T) {
	ts := startTestServer(t)
	cli := newCLIRunner(t, ts.url)

	output, err := cli.runWithToken("forged", "play", "duel")
	require.Error(t, err)
	assert.Contains(t, output, "authentication rejected")
}

func TestCLIShutdown(t *testing.T) {
	ts := startTestServer(t)
	cli := newCLIRunner(t, ts.url)

	output, err := cli.runWithToken(ts.token(t, "alice", ""), "shutdown")
	require.Error(t, err)
	assert.Contains(t, output, "FORBIDDEN")

	output, err = cli.runWithToken(ts.token(t, "ops", auth.RoleAdmin), "shutdown")
	require.NoError(t, err, output)

	select {
	case <-ts.shutdowns:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown was not requested")
	}
}
