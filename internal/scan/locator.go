package scan

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidLocator is returned for project lines that name no project.
	ErrInvalidLocator = errors.New("invalid project locator")
	// ErrNotDirectory is returned for local locators that are not directories.
	ErrNotDirectory = errors.New("not a directory")
)

// Locator identifies one project to mine.
type Locator struct {
	// Raw is the line the project was submitted with.
	Raw    string
	Remote bool
	// Author is empty for local projects.
	Author string
	Name   string
	// Dir is the local directory; for remote projects it is filled in once
	// the storage layout is known.
	Dir string
}

// Task is the project part of task names in logs, e.g. "apache/commons-lang".
func (l Locator) Task() string {
	if l.Author == "" {
		return l.Name
	}
	return l.Author + "/" + l.Name
}

// ParseProject extracts author and repository name from a hosted Git URL
// such as https://github.com/apache/commons-lang.git.
func ParseProject(rawURL string) (author, name string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s: %v", ErrInvalidLocator, rawURL, err)
	}
	var segs []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	if len(segs) == 0 {
		return "", "", fmt.Errorf("%w: %s: no repository name", ErrInvalidLocator, rawURL)
	}
	name = strings.TrimSuffix(segs[len(segs)-1], ".git")
	if name == "" {
		return "", "", fmt.Errorf("%w: %s: no repository name", ErrInvalidLocator, rawURL)
	}
	if len(segs) > 1 {
		author = segs[len(segs)-2]
	}
	for _, part := range []string{author, name} {
		if part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", "", fmt.Errorf("%w: %s: bad path segment %q", ErrInvalidLocator, rawURL, part)
		}
	}
	return author, name, nil
}

// storageDir returns the clone destination of loc below storage. It fails
// when the result would leave storage.
func storageDir(storage string, loc Locator) (string, error) {
	dir := filepath.Join(storage, loc.Author, loc.Name)
	rel, err := filepath.Rel(storage, dir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s: destination %s is outside %s", ErrInvalidLocator, loc.Raw, dir, storage)
	}
	return dir, nil
}

// ParseLocator classifies one trimmed line of the project list. Lines
// starting with https:// are remote; everything else must be an existing
// local directory.
func ParseLocator(line string) (Locator, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Locator{}, fmt.Errorf("%w: empty line", ErrInvalidLocator)
	}

	if strings.HasPrefix(line, "https://") {
		author, name, err := ParseProject(line)
		if err != nil {
			return Locator{}, err
		}
		return Locator{Raw: line, Remote: true, Author: author, Name: name}, nil
	}

	info, err := os.Stat(line)
	if err != nil {
		return Locator{}, fmt.Errorf("%w: %s: %v", ErrNotDirectory, line, err)
	}
	if !info.IsDir() {
		return Locator{}, fmt.Errorf("%w: %s", ErrNotDirectory, line)
	}
	dir, err := filepath.Abs(line)
	if err != nil {
		return Locator{}, fmt.Errorf("resolving %s: %w", line, err)
	}
	return Locator{Raw: line, Name: filepath.Base(dir), Dir: dir}, nil
}
