package inject

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	calls          []string
	pasteCancelled bool
	pasteErr       error
	execResult     bool
	spliceErr      error
	value          string
}

func (f *fakeTarget) Focus(context.Context) error {
	f.calls = append(f.calls, "focus")
	return nil
}

func (f *fakeTarget) Paste(_ context.Context, text string) (bool, error) {
	f.calls = append(f.calls, "paste")
	if f.pasteCancelled {
		f.value += text
	}
	return f.pasteCancelled, f.pasteErr
}

func (f *fakeTarget) ExecInsert(_ context.Context, text string) (bool, error) {
	f.calls = append(f.calls, "exec")
	if f.execResult {
		f.value += text
	}
	return f.execResult, nil
}

func (f *fakeTarget) Splice(_ context.Context, text string) error {
	f.calls = append(f.calls, "splice")
	if f.spliceErr != nil {
		return f.spliceErr
	}
	f.value += text
	return nil
}

func chainWithClipboard(write func(string) error) *Chain {
	return NewChain(zerolog.Nop(), Clipboard(write), Paste(), ExecCommand(), Direct())
}

func TestCancelledPasteStopsChain(t *testing.T) {
	var copied string
	tgt := &fakeTarget{pasteCancelled: true}

	name, err := chainWithClipboard(func(s string) error { copied = s; return nil }).
		Run(context.Background(), tgt, "hello")
	require.NoError(t, err)

	assert.Equal(t, "paste", name)
	assert.Equal(t, "hello", copied)
	assert.Equal(t, []string{"focus", "paste"}, tgt.calls)
	assert.Equal(t, "hello", tgt.value)
}

func TestExecCommandAfterUnhandledPaste(t *testing.T) {
	tgt := &fakeTarget{execResult: true}

	name, err := chainWithClipboard(nil).Run(context.Background(), tgt, "hi")
	require.NoError(t, err)
	assert.Equal(t, "execCommand", name)
	assert.Equal(t, []string{"focus", "paste", "exec"}, tgt.calls)
	assert.Equal(t, "hi", tgt.value, "text must land exactly once")
}

func TestDirectIsLastResort(t *testing.T) {
	tgt := &fakeTarget{pasteErr: errors.New("no clipboard data")}

	name, err := chainWithClipboard(nil).Run(context.Background(), tgt, "x")
	require.NoError(t, err)
	assert.Equal(t, "direct", name)
	assert.Equal(t, []string{"focus", "paste", "exec", "splice"}, tgt.calls)
}

func TestClipboardFailureDoesNotAbort(t *testing.T) {
	tgt := &fakeTarget{execResult: true}

	name, err := chainWithClipboard(func(string) error { return errors.New("no display") }).
		Run(context.Background(), tgt, "x")
	require.NoError(t, err)
	assert.Equal(t, "execCommand", name)
}

func TestAllStrategiesFail(t *testing.T) {
	tgt := &fakeTarget{spliceErr: errors.New("detached")}

	_, err := chainWithClipboard(nil).Run(context.Background(), tgt, "x")
	assert.ErrorIs(t, err, ErrNotApplied)
	assert.Empty(t, tgt.value)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tgt := &fakeTarget{}
	_, err := chainWithClipboard(nil).Run(ctx, tgt, "x")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"focus"}, tgt.calls)
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "plain reply", PlainText("plain reply"))
	assert.Equal(t, "bold & brave", PlainText("<b>bold</b> &amp; brave"))
	assert.Equal(t, "", PlainText("<script>alert(1)</script>"))
	assert.Equal(t, "a < b", PlainText("a < b"))
}
