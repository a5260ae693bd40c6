// Package tmpl renders entry sources. Text between the configured delimiters
// is an HCL expression whose value is substituted in place; the only
// function in scope is mix(path), bound to a reference.Resolver.
//
//	{{ mix("/js/app.js") }}       raw interpolation
//	{{! mix("/txt/<c>.txt") !}}   HTML-escaped interpolation
package tmpl

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/conneroisu/mixpaths/internal/entry"
	mixerrors "github.com/conneroisu/mixpaths/internal/errors"
	"github.com/conneroisu/mixpaths/internal/reference"
)

// FuncName is the name of the reference function available to templates.
const FuncName = "mix"

// segment is either literal text or an expression to evaluate.
type segment struct {
	literal string

	expr   hclsyntax.Expression
	source string
	escape bool
	pos    hcl.Pos
}

// Template is a parsed source, ready to be executed any number of times.
type Template struct {
	name     string
	segments []segment
}

// Compile reads and parses the source file at src.
func Compile(src string, delims entry.Delimiters) (*Template, error) {
	content, err := os.ReadFile(src)
	if err != nil {
		return nil, mixerrors.NewIOError(mixerrors.ErrCodeReadFailed, "read template "+src, err)
	}

	return Parse(src, string(content), delims)
}

// markerPattern matches the escape form first, then the interpolate form.
// Neither spans a line break.
func markerPattern(delims entry.Delimiters) (*regexp.Regexp, error) {
	left := regexp.QuoteMeta(delims.Left)
	right := regexp.QuoteMeta(delims.Right)

	return regexp.Compile(left + `!(.+?)!` + right + `|` + left + `(.+?)` + right)
}

// Parse parses text as a template. name is used in error locations.
func Parse(name, text string, delims entry.Delimiters) (*Template, error) {
	if delims.Left == "" || delims.Right == "" {
		return nil, mixerrors.NewValidationError(mixerrors.ErrCodeInvalidEntry, "template delimiters must not be empty")
	}

	pattern, err := markerPattern(delims)
	if err != nil {
		return nil, mixerrors.NewTemplateError(mixerrors.ErrCodeTemplateSyntax, "invalid delimiters", err)
	}

	t := &Template{name: name}
	last := 0

	for _, match := range pattern.FindAllStringSubmatchIndex(text, -1) {
		if match[0] > last {
			t.segments = append(t.segments, segment{literal: text[last:match[0]]})
		}

		start, end, escape := match[4], match[5], false
		if match[2] >= 0 {
			start, end, escape = match[2], match[3], true
		}

		source := text[start:end]
		pos := position(text, start)

		expr, diags := hclsyntax.ParseExpression([]byte(source), name, pos)
		if diags.HasErrors() {
			return nil, diagnosticError(mixerrors.ErrCodeTemplateSyntax, name, source, pos, diags)
		}

		t.segments = append(t.segments, segment{
			expr:   expr,
			source: source,
			escape: escape,
			pos:    pos,
		})
		last = match[1]
	}

	if last < len(text) {
		t.segments = append(t.segments, segment{literal: text[last:]})
	}

	return t, nil
}

// Name returns the file the template was parsed from.
func (t *Template) Name() string {
	return t.name
}

// Execute renders the template with mix bound to r. Errors returned by r
// are passed through as is.
func (t *Template) Execute(r reference.Resolver) (string, error) {
	var resolveErr error

	ctx := &hcl.EvalContext{
		Functions: map[string]function.Function{
			FuncName: function.New(&function.Spec{
				Params: []function.Parameter{
					{Name: "path", Type: cty.String},
				},
				Type: function.StaticReturnType(cty.String),
				Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
					out, err := r.Resolve(args[0].AsString())
					if err != nil {
						if resolveErr == nil {
							resolveErr = err
						}
						return cty.NilVal, err
					}
					return cty.StringVal(out), nil
				},
			}),
		},
	}

	var out strings.Builder
	for _, seg := range t.segments {
		if seg.expr == nil {
			out.WriteString(seg.literal)
			continue
		}

		val, diags := seg.expr.Value(ctx)
		if resolveErr != nil {
			return "", resolveErr
		}
		if diags.HasErrors() {
			return "", diagnosticError(mixerrors.ErrCodeTemplateEval, t.name, seg.source, seg.pos, diags)
		}

		text, err := stringify(val)
		if err != nil {
			return "", mixerrors.NewTemplateError(mixerrors.ErrCodeTemplateEval, err.Error(), nil).
				WithLocation(t.name, seg.pos.Line, seg.pos.Column).
				WithContext("expression", strings.TrimSpace(seg.source))
		}

		if seg.escape {
			text = Escape(text)
		}
		out.WriteString(text)
	}

	return out.String(), nil
}

// stringify converts an expression result to its textual form. Null renders
// as the empty string.
func stringify(val cty.Value) (string, error) {
	if val.IsNull() {
		return "", nil
	}
	if !val.IsKnown() {
		return "", fmt.Errorf("expression value is unknown")
	}

	if !val.Type().IsPrimitiveType() {
		return "", fmt.Errorf("cannot interpolate a value of type %s", val.Type().FriendlyName())
	}

	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", err
	}

	return str.AsString(), nil
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// Escape converts & < > " ' to their HTML entities.
func Escape(s string) string {
	return htmlEscaper.Replace(s)
}

// position returns the 1-based line and column of offset in text.
func position(text string, offset int) hcl.Pos {
	before := text[:offset]
	line := strings.Count(before, "\n") + 1
	column := offset - strings.LastIndex(before, "\n")

	return hcl.Pos{Line: line, Column: column, Byte: offset}
}

func diagnosticError(code, name, source string, pos hcl.Pos, diags hcl.Diagnostics) *mixerrors.Error {
	message := diags.Error()
	for _, diag := range diags {
		if diag.Severity == hcl.DiagError {
			message = diag.Summary
			if diag.Detail != "" {
				message += ": " + diag.Detail
			}
			if diag.Subject != nil {
				pos = diag.Subject.Start
			}
			break
		}
	}

	return mixerrors.NewTemplateError(code, message, nil).
		WithLocation(name, pos.Line, pos.Column).
		WithContext("expression", strings.TrimSpace(source))
}
