package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/kfreplay/internal/schema"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Wrapped bool
}

// FileValidation holds the validation result for one file.
type FileValidation struct {
	Path   string                   `json:"path"`
	Valid  bool                     `json:"valid"`
	Errors []schema.ValidationError `json:"errors,omitempty"`
}

// ValidationResult holds validation results for every file.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <file.json>...",
		Short: "Validate keyframe files",
		Long: `Check keyframe documents against the keyframe schema.

Files are {"keyframes": [...]} documents: the schema, each keyframe's
structure and the key and rig lifecycle across the stream are checked.
With --wrapped each file is a single {"keyframe": {...}} stream message.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Wrapped, "wrapped", false, "files are single wrapped keyframes")

	return cmd
}

func runValidate(opts *ValidateOptions, paths []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	v, err := schema.NewValidator()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load schema", err)
	}

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(paths))}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read %s", path), err)
		}
		f.VerboseLog("Validating %s", path)

		var errs []schema.ValidationError
		if opts.Wrapped {
			errs = v.ValidateWrapped(data)
		} else {
			errs = v.ValidateFile(data)
		}
		result.Files = append(result.Files, FileValidation{Path: path, Valid: len(errs) == 0, Errors: errs})
		if len(errs) > 0 {
			result.Valid = false
		}
	}

	if f.JSON() {
		if err := f.Success(result, ""); err != nil {
			return err
		}
	} else {
		fmt.Fprint(f.Writer, formatValidationText(result))
	}
	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

func formatValidationText(r ValidationResult) string {
	var b strings.Builder
	for _, file := range r.Files {
		if file.Valid {
			fmt.Fprintf(&b, "\u2713 %s\n", file.Path)
			continue
		}
		fmt.Fprintf(&b, "\u2717 %s\n", file.Path)
		for _, e := range file.Errors {
			fmt.Fprintf(&b, "  %s\n", e.Error())
		}
	}
	return b.String()
}
