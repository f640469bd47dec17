package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/kfreplay/internal/store"
)

// SessionInfo is one row of the sessions listing.
type SessionInfo struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Keyframes        int64  `json:"keyframes"`
	MaxDecimalPlaces int    `json:"max_decimal_places"`
	FormatVersion    string `json:"format_version"`
}

// NewSessionsCommand creates the sessions command.
func NewSessionsCommand(rootOpts *RootOptions) *cobra.Command {
	var db string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(rootOpts.dbPath(db), false)
			if err != nil {
				return err
			}
			defer st.Close()

			sessions, err := st.ListSessions(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list sessions", err)
			}
			infos := make([]SessionInfo, len(sessions))
			for i, s := range sessions {
				infos[i] = sessionInfo(s)
			}
			return rootOpts.formatter(cmd).Success(infos, formatSessionsText(infos))
		},
	}

	cmd.Flags().StringVar(&db, "db", "", "database path (default from config)")
	return cmd
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	var db string

	cmd := &cobra.Command{
		Use:   "find <keyframe-hash>",
		Short: "Find stored keyframes by content hash",
		Long: `List every (session, seq) whose stored keyframe body has the given
hash. Identical keyframes recorded in different sessions share a hash.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(rootOpts.dbPath(db), false)
			if err != nil {
				return err
			}
			defer st.Close()

			refs, err := st.FindKeyframe(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to search keyframes", err)
			}
			f := rootOpts.formatter(cmd)
			if len(refs) == 0 {
				_ = f.Error(ErrCodeNotFound, fmt.Sprintf("no keyframe with hash %s", args[0]), nil)
				return NewExitError(ExitFailure, "keyframe not found")
			}
			var b strings.Builder
			for _, ref := range refs {
				fmt.Fprintf(&b, "%s seq=%d\n", ref.SessionID, ref.Seq)
			}
			return f.Success(refs, strings.TrimSuffix(b.String(), "\n"))
		},
	}

	cmd.Flags().StringVar(&db, "db", "", "database path (default from config)")
	return cmd
}

func sessionInfo(s store.Session) SessionInfo {
	return SessionInfo{
		ID:               s.ID,
		Name:             s.Name,
		Keyframes:        s.Keyframes,
		MaxDecimalPlaces: s.MaxDecimalPlaces,
		FormatVersion:    s.FormatVersion,
	}
}

func formatSessionsText(infos []SessionInfo) string {
	if len(infos) == 0 {
		return "No sessions."
	}
	var b strings.Builder
	for i, s := range infos {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s  %-20s %d keyframe(s)", s.ID, s.Name, s.Keyframes)
	}
	return b.String()
}
