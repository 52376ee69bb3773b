// Package canon turns the path shapes reported by tools (absolute, relative,
// Windows, SARIF file URIs) into one project-relative canonical form.
package canon

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/user/crosscheck/pkg/model"
)

// ErrInvalidEntity is returned when a raw identifier cannot be canonicalized.
var ErrInvalidEntity = errors.New("invalid entity")

// Canonicalize resolves a raw tool identifier into an Entity relative to projectRoot.
func Canonicalize(kind model.EntityKind, rawPath, projectRoot string) (model.Entity, error) {
	if _, ok := model.ParseEntityKind(string(kind)); !ok || kind == "" {
		return model.Entity{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidEntity, kind)
	}
	p, err := Path(rawPath, projectRoot)
	if err != nil {
		return model.Entity{}, err
	}
	return model.Entity{
		Kind:               kind,
		CanonicalPath:      p,
		DisplayName:        path.Base(p),
		OriginalIdentifier: rawPath,
	}, nil
}

// Path returns the canonical form of rawPath without building an Entity.
func Path(rawPath, projectRoot string) (string, error) {
	p := strings.TrimSpace(rawPath)
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidEntity)
	}
	if strings.HasPrefix(p, "file:") {
		u, err := url.Parse(p)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrInvalidEntity, rawPath, err)
		}
		p = u.Path
		if p == "" {
			p = u.Opaque
		}
		// file:///C:/x parses to /C:/x
		if len(p) >= 3 && p[0] == '/' && isDrive(p[1:]) {
			p = p[1:]
		}
	}
	p = toSlash(p)

	if root := cleanRoot(projectRoot); root != "" && isAbs(p) {
		p = stripRoot(p, root)
	}

	p = path.Clean(p)
	if p == ".." || strings.HasPrefix(p, "../") || strings.Contains(p, "/../") || strings.HasSuffix(p, "/..") {
		return "", fmt.Errorf("%w: %q escapes the project root", ErrInvalidEntity, rawPath)
	}
	p = strings.TrimLeft(p, "/")
	if p == "" || p == "." {
		return "", fmt.Errorf("%w: %q has no path below the project root", ErrInvalidEntity, rawPath)
	}
	return p, nil
}

// IsCanonical reports whether p already satisfies the canonical path rules.
func IsCanonical(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, `\`) {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == ".." || seg == "." {
			return false
		}
	}
	return true
}

func cleanRoot(root string) string {
	root = strings.TrimSpace(root)
	if root == "" {
		return ""
	}
	root = path.Clean(toSlash(root))
	if root == "." {
		return ""
	}
	return root
}

func stripRoot(p, root string) string {
	if root == "/" {
		return strings.TrimPrefix(p, "/")
	}
	if p == root {
		return ""
	}
	if strings.HasPrefix(p, root+"/") {
		return p[len(root)+1:]
	}
	return p
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

func isAbs(p string) bool {
	return strings.HasPrefix(p, "/") || isDrive(p)
}

// isDrive matches a Windows drive prefix such as "C:/".
func isDrive(p string) bool {
	if len(p) < 3 || p[1] != ':' || p[2] != '/' {
		return false
	}
	c := p[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
