package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harun/orca/pkg/commandqueue"
	"github.com/harun/orca/pkg/commands"
	"github.com/harun/orca/pkg/conversation"
	"github.com/harun/orca/pkg/coretools"
	"github.com/harun/orca/pkg/errpolicy"
	"github.com/harun/orca/pkg/gateway"
	"github.com/harun/orca/pkg/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedGateway replays replies in order, repeating the last one
type scriptedGateway struct {
	replies []string
	errs    map[int]error
	calls   int
	mu      sync.Mutex
}

func (g *scriptedGateway) Complete(ctx context.Context, sess *session.Session) (string, error) {
	g.mu.Lock()
	i := g.calls
	g.calls++
	g.mu.Unlock()

	if err := g.errs[i]; err != nil {
		return "", err
	}
	reply := g.replies[len(g.replies)-1]
	if i < len(g.replies) {
		reply = g.replies[i]
	}
	if err := sess.Conversation.AppendModel(ctx, reply); err != nil {
		return "", err
	}
	return reply, nil
}

func (g *scriptedGateway) Providers() []gateway.Provider { return nil }

type recorder struct {
	errors []string
	mu     sync.Mutex
}

func (r *recorder) Output(string) {}
func (r *recorder) Info(string)   {}
func (r *recorder) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

type fixture struct {
	loop       *Loop
	dispatcher *commands.Dispatcher
	env        *commands.Env
	gateway    *scriptedGateway
	report     *recorder
}

func newFixture(t *testing.T, gw *scriptedGateway, maxSteps int, policy errpolicy.Table) *fixture {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("# hi\n"), 0644))

	files, err := coretools.NewFiles(root)
	require.NoError(t, err)

	conv, err := conversation.Open(filepath.Join(t.TempDir(), "conversation.json"), zerolog.Nop())
	require.NoError(t, err)

	reg, err := commands.NewBuiltinRegistry()
	require.NoError(t, err)

	queue := commandqueue.New(commandqueue.Config{Logger: zerolog.Nop()})
	t.Cleanup(func() { _ = queue.Close() })

	report := &recorder{}
	env := &commands.Env{
		Session: session.New(conv, nil, session.ModeAutomatic),
		Gateway: gw,
		Files:   files,
		Confirm: commands.DenyAll{},
		Report:  report,
	}

	dispatcher, err := commands.NewDispatcher(commands.DispatcherConfig{
		Registry: reg,
		Queue:    queue,
		Env:      env,
		Policy:   policy,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	loop, err := New(Config{
		Dispatcher: dispatcher,
		MaxSteps:   maxSteps,
		Policy:     policy,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	env.Tasks = loop

	return &fixture{loop: loop, dispatcher: dispatcher, env: env, gateway: gw, report: report}
}

func TestLoopDoneAfterOneStep(t *testing.T) {
	f := newFixture(t, &scriptedGateway{replies: []string{"  task_complete \n"}}, 3, nil)

	res, err := f.loop.Run(context.Background(), "say hello")
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 1, res.Steps)
	assert.NotEmpty(t, res.TaskID)

	turns := f.env.Session.Conversation.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, conversation.RoleUser, turns[0].Role)
	assert.Contains(t, turns[0].Content, "Goal: say hello")
	assert.Contains(t, turns[0].Content, "TASK_COMPLETE")
	assert.Equal(t, conversation.RoleModel, turns[1].Role)
}

func TestLoopMaxSteps(t *testing.T) {
	f := newFixture(t, &scriptedGateway{replies: []string{"still thinking"}}, 3, nil)

	res, err := f.loop.Run(context.Background(), "never finish")
	require.NoError(t, err)
	assert.Equal(t, StateMaxSteps, res.State)
	assert.Equal(t, 3, res.Steps)
	assert.Equal(t, 3, f.gateway.calls)
	assert.Nil(t, res.Err)
}

func TestLoopAbortsOnProviderError(t *testing.T) {
	boom := errors.New("both providers down")
	f := newFixture(t, &scriptedGateway{replies: []string{"/ls"}, errs: map[int]error{1: boom}}, 5, nil)

	res, err := f.loop.Run(context.Background(), "list files")
	assert.Same(t, boom, err)
	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, 2, res.Steps)
	assert.Same(t, boom, res.Err)
}

func TestLoopContinuePolicy(t *testing.T) {
	policy := errpolicy.Default().With(errpolicy.AgentLoop, errpolicy.Rule{Action: errpolicy.Continue})
	f := newFixture(t, &scriptedGateway{
		replies: []string{"unused", "TASK_COMPLETE"},
		errs:    map[int]error{0: errors.New("transient")},
	}, 5, policy)

	res, err := f.loop.Run(context.Background(), "retry please")
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 2, res.Steps)
}

func TestLoopListFiles(t *testing.T) {
	f := newFixture(t, &scriptedGateway{replies: []string{"/ls", "TASK_COMPLETE"}}, 5, nil)

	res, err := f.loop.Run(context.Background(), "list files")
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 2, res.Steps)

	turns := f.env.Session.Conversation.Turns()
	roles := make([]conversation.Role, len(turns))
	for i, turn := range turns {
		roles[i] = turn.Role
	}
	assert.Equal(t, []conversation.Role{
		conversation.RoleUser,
		conversation.RoleModel,
		conversation.RoleSystem,
		conversation.RoleModel,
	}, roles)
	assert.Contains(t, turns[2].Content, "README.md (5 bytes)")
	assert.Contains(t, turns[2].Content, "main.go (13 bytes)")

	msgs := f.env.Session.Conversation.ContextWindow()
	assert.True(t, strings.HasPrefix(msgs[2].Content, conversation.SystemPrefix+"Contents of ."))
}

func TestLoopCompletesOnLastAllowedStep(t *testing.T) {
	f := newFixture(t, &scriptedGateway{replies: []string{"/ls .", "/ls .", "TASK_COMPLETE"}}, 3, nil)

	res, err := f.loop.Run(context.Background(), "list files")
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 3, res.Steps)
	assert.Nil(t, res.Err)

	conv := f.env.Session.Conversation
	assert.Equal(t, 3, conv.Count(conversation.RoleModel))
	assert.GreaterOrEqual(t, conv.Count(conversation.RoleSystem), 2)
	assert.Equal(t, "TASK_COMPLETE", conv.Turns()[conv.Len()-1].Content)
}

func TestLoopRefusesConfirmedCommands(t *testing.T) {
	f := newFixture(t, &scriptedGateway{replies: []string{"/delete main.go", "TASK_COMPLETE"}}, 5, nil)

	res, err := f.loop.Run(context.Background(), "delete things")
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)

	require.Len(t, f.report.errors, 1)
	assert.Contains(t, f.report.errors[0], "not available to autonomous tasks")
	_, statErr := os.Stat(filepath.Join(f.env.Files.Root, "main.go"))
	assert.NoError(t, statErr)
}

func TestLoopCancellation(t *testing.T) {
	f := newFixture(t, &scriptedGateway{replies: []string{"thinking"}}, 5, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.loop.Run(ctx, "anything")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateAborted, res.State)
}

func TestTaskCommandRunsNestedDispatchInline(t *testing.T) {
	f := newFixture(t, &scriptedGateway{replies: []string{"/ls", "TASK_COMPLETE"}}, 5, nil)

	done := make(chan error, 1)
	go func() {
		done <- f.dispatcher.Dispatch(context.Background(), "/task list the files")
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("task dispatch deadlocked")
	}
	assert.Empty(t, f.report.errors)
	assert.Equal(t, 1, f.env.Session.Conversation.Count(conversation.RoleSystem))
}
