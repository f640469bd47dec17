package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/kfreplay/internal/keyframe"
	"github.com/roach88/kfreplay/internal/player"
	"github.com/roach88/kfreplay/internal/stream"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Count int
}

// WatchViolation describes one keyframe the player rejected during watch.
type WatchViolation struct {
	Keyframe int    `json:"keyframe"`
	Code     player.ViolationCode `json:"code"`
	Section  string `json:"section"`
	Index    int    `json:"index"`
}

// WatchFailure is the error detail of a watch that saw rejected keyframes.
type WatchFailure struct {
	Violations []WatchViolation `json:"violations"`
	Result     PlayResult       `json:"result"`
}

// errWatchDone stops a subscription once --count keyframes arrived.
var errWatchDone = errors.New("watch: keyframe count reached")

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <ws-url>",
		Short: "Subscribe to a keyframe stream and replay it live",
		Long: `Connect to a serve endpoint and apply each keyframe as it arrives.
Stops when the server closes the stream, after --count keyframes, or on
interrupt, then prints the reconstructed scene. A rejected keyframe is
reported and skipped; the watch exits 1 once the stream ends.

Example:
  kfreplay watch ws://127.0.0.1:8765/keyframes --count 100`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Count, "count", 0, "stop after this many keyframes (0: until closed)")

	return cmd
}

func runWatch(ctx context.Context, opts *WatchOptions, url string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.logger()

	p := player.New(newLogBackend(logger), nil, player.WithLogger(logger))
	defer p.Close()

	received := 0
	var rejected []error
	var violations []WatchViolation
	err := stream.Subscribe(ctx, url, func(kf keyframe.Keyframe) error {
		if err := p.Apply(kf); err != nil {
			var v *player.ProtocolViolation
			if !errors.As(err, &v) {
				return err
			}
			// The rest of the stream still applies on top of what survived.
			logger.Warn("keyframe rejected", "index", received, "violation", v.Code, "error", err)
			rejected = append(rejected, fmt.Errorf("keyframe %d: %w", received, err))
			violations = append(violations, WatchViolation{Keyframe: received, Code: v.Code, Section: v.Section, Index: v.Index})
		}
		received++
		f.VerboseLog("keyframe %d: %d entries", received-1, kf.EntryCount())
		if opts.Count > 0 && received >= opts.Count {
			return errWatchDone
		}
		return nil
	})
	switch {
	case err == nil, errors.Is(err, errWatchDone), errors.Is(err, context.Canceled):
	case stream.IsTransportError(err):
		return WrapExitError(ExitCommandError, "stream failed", err)
	default:
		return playError(f, err)
	}

	result, err := summarize(p, url, received, received-1)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to hash state", err)
	}
	if len(rejected) > 0 {
		joined := errors.Join(rejected...)
		_ = f.Error(ErrCodeViolation, joined.Error(), WatchFailure{Violations: violations, Result: result})
		if !f.JSON() {
			fmt.Fprint(f.Writer, formatPlayText(result))
		}
		return WrapExitError(ExitFailure, fmt.Sprintf("%d keyframes rejected", len(rejected)), joined)
	}
	return f.Success(result, formatPlayText(result))
}
