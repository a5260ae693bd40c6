// Package entry describes the unit of compilation: a source template, the
// file it renders to and the public id under which it is published.
package entry

import (
	"fmt"

	"github.com/conneroisu/mixpaths/internal/errors"
)

// Delimiters are the left and right marker tags of a template.
type Delimiters struct {
	Left  string `json:"left" yaml:"left" toml:"left" mapstructure:"left"`
	Right string `json:"right" yaml:"right" toml:"right" mapstructure:"right"`
}

// Options controls how an entry is parsed and where it is written.
type Options struct {
	Delimiters Delimiters `json:"delimiters" yaml:"delimiters" toml:"delimiters" mapstructure:"delimiters"`

	// Flatten writes every source directly under the destination directory.
	// When false, the path below the glob's static base is preserved.
	Flatten bool `json:"flatten" yaml:"flatten" toml:"flatten" mapstructure:"flatten"`
}

// PartialDelimiters is the user-facing form of Delimiters where every field
// may be left unset.
type PartialDelimiters struct {
	Left  *string `json:"left,omitempty" yaml:"left,omitempty" toml:"left,omitempty" mapstructure:"left"`
	Right *string `json:"right,omitempty" yaml:"right,omitempty" toml:"right,omitempty" mapstructure:"right"`
}

// PartialOptions is the user-facing form of Options.
type PartialOptions struct {
	Delimiters *PartialDelimiters `json:"delimiters,omitempty" yaml:"delimiters,omitempty" toml:"delimiters,omitempty" mapstructure:"delimiters"`
	Flatten    *bool              `json:"flatten,omitempty" yaml:"flatten,omitempty" toml:"flatten,omitempty" mapstructure:"flatten"`
}

// Entry is a resolved compilation unit. Entries are immutable once created.
type Entry struct {
	// Src is the absolute path of the source template.
	Src string `json:"src" yaml:"src"`
	// Dest is the absolute path of the rendered output.
	Dest string `json:"dest" yaml:"dest"`
	// PublicID is Dest relative to the public directory, slash separated
	// with a leading slash.
	PublicID string  `json:"public_id" yaml:"public_id"`
	Options  Options `json:"options" yaml:"options"`
}

// String returns a short description used in logs.
func (e Entry) String() string {
	return fmt.Sprintf("%s (%s)", e.PublicID, e.Src)
}

// DefaultOptions returns the built-in options: "{{" / "}}" delimiters and
// flattened destinations.
func DefaultOptions() Options {
	return Options{
		Delimiters: Delimiters{Left: "{{", Right: "}}"},
		Flatten:    true,
	}
}

// MergeOptions fills the fields of partial that are unset from base.
func MergeOptions(base Options, partial *PartialOptions) Options {
	merged := base
	if partial == nil {
		return merged
	}

	if partial.Delimiters != nil {
		if partial.Delimiters.Left != nil {
			merged.Delimiters.Left = *partial.Delimiters.Left
		}
		if partial.Delimiters.Right != nil {
			merged.Delimiters.Right = *partial.Delimiters.Right
		}
	}

	if partial.Flatten != nil {
		merged.Flatten = *partial.Flatten
	}

	return merged
}

// Validate checks that both delimiters are non-empty.
func (o Options) Validate() error {
	if o.Delimiters.Left == "" {
		return errors.NewValidationError(errors.ErrCodeInvalidEntry, "options.delimiters.left: must NOT have fewer than 1 characters")
	}
	if o.Delimiters.Right == "" {
		return errors.NewValidationError(errors.ErrCodeInvalidEntry, "options.delimiters.right: must NOT have fewer than 1 characters")
	}

	return nil
}

// RawEntry is one declaration before glob resolution.
type RawEntry struct {
	From    []string
	To      string
	Options Options
}

// Validate checks the globs, the destination and the options of a raw entry.
func (r RawEntry) Validate() error {
	if len(r.From) == 0 {
		return errors.NewValidationError(errors.ErrCodeInvalidEntry, "from: must NOT have fewer than 1 items")
	}

	for i, from := range r.From {
		if from == "" {
			return errors.NewValidationError(
				errors.ErrCodeInvalidEntry,
				fmt.Sprintf("from[%d]: must NOT have fewer than 1 characters", i),
			)
		}
	}

	if r.To == "" {
		return errors.NewValidationError(errors.ErrCodeInvalidEntry, "to: must NOT have fewer than 1 characters")
	}

	return r.Options.Validate()
}
