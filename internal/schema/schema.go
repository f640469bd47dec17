// Package schema validates keyframe JSON documents.
//
// Validation runs in three passes and stops after the first pass that
// reports anything:
//  1. the document is unified with an embedded, closed CUE schema
//  2. each keyframe is decoded and checked for intra-keyframe structure
//  3. for files, the whole stream is applied to a scratch player so key
//     and rig lifecycle problems are reported with their position
package schema

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/kfreplay/internal/keyframe"
	"github.com/roach88/kfreplay/internal/player"
)

//go:embed keyframe.cue
var schemaSource string

// Validation error codes (E200-E299)
const (
	// Document errors (E200-E209)
	ErrMalformedJSON = "E200" // not valid JSON
	ErrSchema        = "E201" // JSON does not match the CUE schema

	// Keyframe structure errors (E210-E219)
	ErrStructure = "E210" // intra-keyframe invariant broken

	// Stream lifecycle errors (E220-E229)
	ErrLifecycle = "E220" // entry inconsistent with earlier keyframes
)

// ValidationError describes one problem in a document.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validator holds the compiled schema. Safe for sequential reuse.
type Validator struct {
	ctx      *cue.Context
	file     cue.Value
	single   cue.Value
	wrapped  cue.Value
	fileName string
}

// NewValidator compiles the embedded schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(schemaSource, cue.Filename("keyframe.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile keyframe schema: %w", err)
	}
	v := &Validator{
		ctx:      ctx,
		file:     root.LookupPath(cue.ParsePath("#File")),
		single:   root.LookupPath(cue.ParsePath("#Keyframe")),
		wrapped:  root.LookupPath(cue.ParsePath("#Wrapped")),
		fileName: "input.json",
	}
	for name, def := range map[string]cue.Value{"#File": v.file, "#Keyframe": v.single, "#Wrapped": v.wrapped} {
		if !def.Exists() {
			return nil, fmt.Errorf("keyframe schema: %s not defined", name)
		}
	}
	return v, nil
}

// ValidateFile checks a {"keyframes": [...]} document, including the key
// lifecycle across the whole stream.
func (v *Validator) ValidateFile(data []byte) []ValidationError {
	if errs := v.checkSchema(v.file, data); len(errs) > 0 {
		return errs
	}

	var doc struct {
		Keyframes []json.RawMessage `json:"keyframes"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return []ValidationError{{Field: "$", Message: err.Error(), Code: ErrMalformedJSON}}
	}

	var errs []ValidationError
	kfs := make([]keyframe.Keyframe, len(doc.Keyframes))
	for i, raw := range doc.Keyframes {
		kf, err := keyframe.Unmarshal(raw)
		if err != nil {
			errs = append(errs, structureError(fmt.Sprintf("keyframes[%d]", i), err))
			continue
		}
		kfs[i] = kf
	}
	if len(errs) > 0 {
		return errs
	}

	return lintLifecycle(kfs)
}

// ValidateKeyframe checks a single unwrapped keyframe object.
func (v *Validator) ValidateKeyframe(data []byte) []ValidationError {
	if errs := v.checkSchema(v.single, data); len(errs) > 0 {
		return errs
	}
	if _, err := keyframe.Unmarshal(data); err != nil {
		return []ValidationError{structureError("$", err)}
	}
	return nil
}

// ValidateWrapped checks a {"keyframe": {...}} document.
func (v *Validator) ValidateWrapped(data []byte) []ValidationError {
	if errs := v.checkSchema(v.wrapped, data); len(errs) > 0 {
		return errs
	}
	if _, err := keyframe.UnmarshalWrapped(data); err != nil {
		return []ValidationError{structureError("keyframe", err)}
	}
	return nil
}

func (v *Validator) checkSchema(def cue.Value, data []byte) []ValidationError {
	if !json.Valid(data) {
		return []ValidationError{{Field: "$", Message: "invalid JSON", Code: ErrMalformedJSON}}
	}
	doc := v.ctx.CompileBytes(data, cue.Filename(v.fileName))
	if err := doc.Err(); err != nil {
		return v.cueErrors(err)
	}
	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return v.cueErrors(err)
	}
	return nil
}

// cueErrors flattens a CUE error list, keeping positions that point into
// the validated document rather than the schema.
func (v *Validator) cueErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{
			Field:   strings.Join(e.Path(), "."),
			Message: cueMessage(e),
			Code:    ErrSchema,
		}
		if ve.Field == "" {
			ve.Field = "$"
		}
		for _, pos := range cueerrors.Positions(e) {
			if pos.Filename() == v.fileName {
				ve.Line = pos.Line()
				break
			}
		}
		out = append(out, ve)
	}
	if len(out) == 0 {
		out = append(out, ValidationError{Field: "$", Message: err.Error(), Code: ErrSchema})
	}
	return out
}

func cueMessage(e cueerrors.Error) string {
	format, args := e.Msg()
	return fmt.Sprintf(format, args...)
}

func structureError(field string, err error) ValidationError {
	var se *keyframe.StructureError
	if errors.As(err, &se) {
		return ValidationError{
			Field:   fmt.Sprintf("%s.%s[%d]", field, se.Section, se.Index),
			Message: se.Message,
			Code:    ErrStructure,
		}
	}
	return ValidationError{Field: field, Message: err.Error(), Code: ErrStructure}
}

// lintLifecycle applies the stream to a scratch player and reports every
// keyframe that would be aborted. Violations are results here, so the scratch
// player logs nothing.
func lintLifecycle(kfs []keyframe.Keyframe) []ValidationError {
	p := player.New(nil, nil, player.WithLogger(slog.New(slog.DiscardHandler)))
	var errs []ValidationError
	for i, kf := range kfs {
		err := p.Apply(kf)
		if err == nil {
			continue
		}
		var pv *player.ProtocolViolation
		if errors.As(err, &pv) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("keyframes[%d].%s[%d]", i, pv.Section, pv.Index),
				Message: fmt.Sprintf("%s: %s", pv.Code, pv.Message),
				Code:    ErrLifecycle,
			})
			continue
		}
		errs = append(errs, ValidationError{
			Field:   fmt.Sprintf("keyframes[%d]", i),
			Message: err.Error(),
			Code:    ErrLifecycle,
		})
	}
	return errs
}
