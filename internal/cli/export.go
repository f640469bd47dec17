package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	DB      string
	Session string
	Out     string
	Pretty  bool
}

// ExportResult is printed when the export is written to a file.
type ExportResult struct {
	SessionID string `json:"session_id"`
	Keyframes int    `json:"keyframes"`
	Path      string `json:"path"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export --session <id>",
		Short: "Write a stored session as a keyframe file",
		Long: `Write every keyframe of a session as a {"keyframes": [...]} JSON
document, using the session's float precision. Without --out the document
goes to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "database path (default from config)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&opts.Pretty, "pretty", false, "indent the JSON")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	st, err := openStore(opts.dbPath(opts.DB), false)
	if err != nil {
		return err
	}
	defer st.Close()

	sess, kfs, err := loadSession(cmd.Context(), st, opts.Session)
	if err != nil {
		return err
	}

	enc := sess.Encoder()
	enc.Pretty = opts.Pretty

	if opts.Out == "" {
		data, err := enc.MarshalFile(kfs)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to encode keyframes", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := enc.WriteFile(opts.Out, kfs); err != nil {
		return WrapExitError(ExitCommandError, "failed to write export", err)
	}
	out := ExportResult{SessionID: sess.ID, Keyframes: len(kfs), Path: opts.Out}
	return opts.formatter(cmd).Success(out, fmt.Sprintf("Exported %d keyframe(s) to %s", out.Keyframes, out.Path))
}
