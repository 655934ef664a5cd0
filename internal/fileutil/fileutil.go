package fileutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// StreamToTemp copies r into a new hidden temp file inside dir and returns its
// path and the number of bytes written. The temp file is removed on error.
func StreamToTemp(dir string, r io.Reader, w io.Writer) (string, int64, error) {
	out, err := os.CreateTemp(dir, ".filedrop-*.part")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	path := out.Name()

	dst := io.Writer(out)
	if w != nil {
		dst = io.MultiWriter(out, w)
	}
	written, copyErr := io.Copy(dst, r)
	closeErr := out.Close()
	if copyErr != nil {
		_ = os.Remove(path)
		return "", written, copyErr
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return "", written, closeErr
	}
	return path, written, nil
}

// SanitizeName makes name safe to use as a single directory component.
// Characters that are invalid on common filesystems and control characters
// become "_", as do runs of whitespace.
func SanitizeName(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(name) {
		replace := unicode.IsControl(r) || unicode.IsSpace(r) || strings.ContainsRune(`<>:"/\|?*`, r)
		if replace {
			if !lastUnderscore {
				b.WriteByte('_')
			}
			lastUnderscore = true
			continue
		}
		b.WriteRune(r)
		lastUnderscore = false
	}
	out := b.String()
	if out == "" || out == "." || out == ".." {
		return "_"
	}
	return out
}

// BaseName reduces a remote-supplied file name to its final path element so it
// cannot escape the target directory.
func BaseName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	base := filepath.Base(name)
	if base == "." || base == ".." || base == "/" || base == "" {
		return "download"
	}
	return base
}

// Candidate returns name for n == 0 and "<stem> (n)<ext>" otherwise.
func Candidate(name string, n int) string {
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" {
		stem, ext = name, ""
	}
	return fmt.Sprintf("%s (%d)%s", stem, n, ext)
}

// Place moves src to the first free path produced by candidate(0),
// candidate(1), ... and returns the path with its index. Existing files are
// never overwritten: placement uses a hard link, which fails if the target
// exists, and only falls back to rename when the filesystem does not support
// links.
func Place(src string, candidate func(n int) string, limit int) (string, int, error) {
	for n := 0; n < limit; n++ {
		target := candidate(n)
		err := os.Link(src, target)
		switch {
		case err == nil:
			_ = os.Remove(src)
			return target, n, nil
		case errors.Is(err, fs.ErrExist):
			continue
		}
		if _, statErr := os.Lstat(target); statErr == nil {
			continue
		}
		if renameErr := os.Rename(src, target); renameErr != nil {
			return "", n, fmt.Errorf("place %s: %w", target, renameErr)
		}
		return target, n, nil
	}
	return "", limit, fmt.Errorf("place %s: no free name after %d attempts", filepath.Base(src), limit)
}

// PlaceUnique moves tmp into dir under name, choosing the smallest free
// " (n)" suffix.
func PlaceUnique(tmp, dir, name string) (string, error) {
	path, _, err := Place(tmp, func(n int) string {
		return filepath.Join(dir, Candidate(name, n))
	}, 10000)
	return path, err
}
