package agentbridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	spec       SessionSpec
	caps       Capabilities
	events     chan Event
	perms      chan PermissionRequest
	done       chan struct{}
	resolved   ResolvedSessionID
	sentText   []string
	sentBlocks [][]ContentBlock
	interrupts int
	killed     bool
	model      string
	permMode   string
	effort     Effort
	configID   string
	configVal  string
	lastResp   Respond
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		events: make(chan Event, 8),
		perms:  make(chan PermissionRequest, 8),
		done:   make(chan struct{}),
	}
}

func (f *fakeSession) Events() <-chan Event                     { return f.events }
func (f *fakeSession) PermissionRequests() <-chan PermissionRequest { return f.perms }
func (f *fakeSession) Done() <-chan struct{}                    { return f.done }
func (f *fakeSession) ResolvedSessionID() ResolvedSessionID     { return f.resolved }
func (f *fakeSession) Capabilities() Capabilities                { return f.caps }

func (f *fakeSession) SendText(ctx context.Context, text string) error {
	f.sentText = append(f.sentText, text)
	return nil
}
func (f *fakeSession) SendContent(ctx context.Context, blocks []ContentBlock) error {
	f.sentBlocks = append(f.sentBlocks, blocks)
	return nil
}
func (f *fakeSession) Interrupt(ctx context.Context) error {
	f.interrupts++
	return nil
}
func (f *fakeSession) Kill(ctx context.Context) error {
	f.killed = true
	close(f.done)
	return nil
}
func (f *fakeSession) SetModel(ctx context.Context, model string) error {
	f.model = model
	return nil
}
func (f *fakeSession) SetPermissionMode(ctx context.Context, mode string) error {
	f.permMode = mode
	return nil
}
func (f *fakeSession) SetReasoningEffort(ctx context.Context, effort Effort) error {
	f.effort = effort
	return nil
}
func (f *fakeSession) SetConfigOption(ctx context.Context, id, value string) error {
	f.configID, f.configVal = id, value
	return nil
}
func (f *fakeSession) RespondPermission(ctx context.Context, resp Respond) error {
	f.lastResp = resp
	return nil
}

type fakeEngine struct {
	session *fakeSession
	startErr error
	validateErr error
	gotSpec SessionSpec
}

func (f *fakeEngine) Start(ctx context.Context, spec SessionSpec) (Session, error) {
	f.gotSpec = spec
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.session, nil
}
func (f *fakeEngine) Validate() error { return f.validateErr }

func TestStart_WrapsSessionAndAppliesOptions(t *testing.T) {
	sess := newFakeSession()
	eng := &fakeEngine{session: sess}

	transport, err := Start(context.Background(), eng, SessionSpec{ID: "s1"},
		WithModel("opus"), WithOption("k", "v"))
	require.NoError(t, err)
	require.NotNil(t, transport)

	assert.Equal(t, "opus", eng.gotSpec.Model)
	assert.Equal(t, "v", eng.gotSpec.Options["k"])

	status := <-transport.Status()
	assert.Equal(t, StatusConnected, status)
}

func TestStart_PropagatesEngineError(t *testing.T) {
	eng := &fakeEngine{startErr: assertErr}
	_, err := Start(context.Background(), eng, SessionSpec{})
	assert.ErrorIs(t, err, assertErr)
}

var assertErr = errString("boom")

type errString string

func (e errString) Error() string { return string(e) }

func TestEventTransport_Send_SendMessage(t *testing.T) {
	sess := newFakeSession()
	transport := mustTransport(t, sess)

	err := transport.Send(context.Background(), Command{Type: CommandSendMessage, Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, sess.sentText)
}

func TestEventTransport_Send_RejectsUnsupportedModelChange(t *testing.T) {
	sess := newFakeSession()
	sess.caps = Capabilities{SupportsModelChange: false}
	transport := mustTransport(t, sess)

	err := transport.Send(context.Background(), Command{Type: CommandSetModel, Model: "x"})
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Empty(t, sess.model)
}

func TestEventTransport_Send_AllowsSupportedModelChange(t *testing.T) {
	sess := newFakeSession()
	sess.caps = Capabilities{SupportsModelChange: true}
	transport := mustTransport(t, sess)

	err := transport.Send(context.Background(), Command{Type: CommandSetModel, Model: "opus"})
	require.NoError(t, err)
	assert.Equal(t, "opus", sess.model)
}

func TestEventTransport_Send_PermissionResponseAlwaysReaches(t *testing.T) {
	sess := newFakeSession()
	transport := mustTransport(t, sess)

	resp := Respond{RequestID: "r1", Decision: DecisionAllowOnce}
	err := transport.Send(context.Background(), Command{Type: CommandPermissionResponse, Permission: resp})
	require.NoError(t, err)
	assert.Equal(t, resp, sess.lastResp)
}

func TestEventTransport_Send_UnknownCommandUnsupported(t *testing.T) {
	sess := newFakeSession()
	transport := mustTransport(t, sess)
	err := transport.Send(context.Background(), Command{Type: CommandType("bogus")})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestEventTransport_Dispose_KillsSessionOnce(t *testing.T) {
	sess := newFakeSession()
	transport := mustTransport(t, sess)

	require.NoError(t, transport.Dispose(context.Background()))
	assert.True(t, sess.killed)

	// idempotent: second Dispose must not panic on a doubly-closed channel
	require.NoError(t, transport.Dispose(context.Background()))
}

func TestEventTransport_WatchDone_EmitsDisconnectedStatus(t *testing.T) {
	sess := newFakeSession()
	transport := mustTransport(t, sess)
	<-transport.Status() // drain the initial Connected

	close(sess.done)

	status, ok := <-transport.Status()
	require.True(t, ok)
	assert.Equal(t, StatusDisconnected, status)

	_, ok = <-transport.Status()
	assert.False(t, ok)
}

func mustTransport(t *testing.T, sess *fakeSession) *EventTransport {
	t.Helper()
	transport, err := Start(context.Background(), &fakeEngine{session: sess}, SessionSpec{})
	require.NoError(t, err)
	return transport
}
