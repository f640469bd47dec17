package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kfreplay/internal/keyframe"
	"github.com/roach88/kfreplay/internal/stream"
)

func TestServeStreamsSession(t *testing.T) {
	db, res := record(t, basicScenario)

	rootOpts := &RootOptions{Format: "text"}
	cmd := NewServeCommand(rootOpts)
	pr, pw := io.Pipe()
	cmd.SetErr(pw)

	opts := &ServeOptions{RootOptions: rootOpts, DB: db, Session: res.SessionID, Addr: "127.0.0.1:0"}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, opts, cmd) }()

	line, err := bufio.NewReader(pr).ReadString('\n')
	require.NoError(t, err)
	_, url, ok := strings.Cut(strings.TrimSpace(line), " at ")
	require.True(t, ok, line)
	assert.True(t, strings.HasSuffix(url, "/keyframes"), url)

	errEnough := errors.New("enough")
	var got []keyframe.Keyframe
	err = stream.Subscribe(context.Background(), url, func(kf keyframe.Keyframe) error {
		got = append(got, kf)
		if len(got) == res.Keyframes {
			return errEnough
		}
		return nil
	})
	require.ErrorIs(t, err, errEnough)
	require.Len(t, got, 5)
	assert.Equal(t, []keyframe.Key{0, 1}, got[3].Deletions)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
	_ = pw.Close()
}

func TestServeUnknownSession(t *testing.T) {
	db, _ := record(t, basicScenario)
	_, err := execute(t, "serve", "--db", db, "--session", "nope", "--addr", "127.0.0.1:0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
