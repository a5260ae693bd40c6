package entry

import (
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/conneroisu/mixpaths/internal/errors"
)

// Resolve expands the globs of raw into entries. Matches are files only, in
// glob order; directories are skipped.
func Resolve(raw RawEntry, publicDir string) ([]Entry, error) {
	if err := raw.Validate(); err != nil {
		return nil, err
	}

	publicDir, err := filepath.Abs(publicDir)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeReadFailed, "resolve public dir", err)
	}

	to, err := filepath.Abs(raw.To)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeReadFailed, "resolve destination "+raw.To, err)
	}

	var entries []Entry
	for _, pattern := range raw.From {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.ErrCodeInvalidEntry,
				fmt.Sprintf("invalid glob %q", pattern))
		}

		base, err := staticBase(pattern)
		if err != nil {
			return nil, err
		}

		for _, match := range matches {
			src, err := filepath.Abs(match)
			if err != nil {
				return nil, errors.NewIOError(errors.ErrCodeReadFailed, "resolve source "+match, err)
			}

			var dest string
			if raw.Options.Flatten {
				dest = filepath.Join(to, filepath.Base(src))
			} else {
				rest, err := filepath.Rel(base, src)
				if err != nil {
					return nil, errors.NewIOError(errors.ErrCodeReadFailed, "relativize "+src, err)
				}
				dest = filepath.Join(to, rest)
			}

			publicID, err := PublicID(publicDir, dest)
			if err != nil {
				return nil, err
			}

			entries = append(entries, Entry{
				Src:      src,
				Dest:     dest,
				PublicID: publicID,
				Options:  raw.Options,
			})
		}
	}

	return entries, nil
}

// ResolveAll resolves every raw entry. A destination maps to a single source:
// when several entries share one, the last declared wins and keeps its
// position among the survivors.
func ResolveAll(raws []RawEntry, publicDir string) ([]Entry, error) {
	var all []Entry
	for _, raw := range raws {
		resolved, err := Resolve(raw, publicDir)
		if err != nil {
			return nil, err
		}
		all = append(all, resolved...)
	}

	last := make(map[string]int, len(all))
	for i, e := range all {
		last[e.Dest] = i
	}

	unique := make([]Entry, 0, len(last))
	for i, e := range all {
		if last[e.Dest] == i {
			unique = append(unique, e)
		}
	}

	return unique, nil
}

// PublicID computes the public id of dest below publicDir.
func PublicID(publicDir, dest string) (string, error) {
	rel, err := filepath.Rel(publicDir, dest)
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeReadFailed, "relativize "+dest, err)
	}

	return "/" + filepath.ToSlash(rel), nil
}

// staticBase returns the absolute directory part of pattern that precedes
// any glob meta character.
func staticBase(pattern string) (string, error) {
	base, _ := doublestar.SplitPattern(filepath.ToSlash(filepath.Clean(pattern)))

	abs, err := filepath.Abs(filepath.FromSlash(base))
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeReadFailed, "resolve glob base "+pattern, err)
	}

	return abs, nil
}
