// internal/model/repo_ref.go
package model

import (
	"net/url"
	"regexp"
	"strings"
)

// RepoRef identifies an upstream repository by owner and name.
type RepoRef struct {
	Owner string
	Name  string
}

func (r RepoRef) String() string {
	return r.Owner + "/" + r.Name
}

// usernamePattern matches valid GitHub usernames: alphanumeric and hyphens,
// 1-39 characters, no leading or trailing hyphen.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,37}[a-zA-Z0-9])?$`)

// IsValidUsername reports whether s is a well-formed GitHub username.
func IsValidUsername(s string) bool {
	return usernamePattern.MatchString(s)
}

// ParseRepoRef parses "owner/name", "https://github.com/owner/name" and
// "https://github.com/owner/name.git" into a RepoRef. Returns false when the
// input matches none of those shapes.
func ParseRepoRef(input string) (RepoRef, bool) {
	input = strings.TrimSpace(input)

	if !strings.Contains(input, "://") {
		parts := splitNonEmpty(input, "/")
		if len(parts) == 2 {
			return RepoRef{Owner: parts[0], Name: strings.TrimSuffix(parts[1], ".git")}, true
		}
		return RepoRef{}, false
	}

	u, err := url.Parse(input)
	if err != nil {
		return RepoRef{}, false
	}
	if u.Hostname() != "github.com" && u.Hostname() != "www.github.com" {
		return RepoRef{}, false
	}
	parts := splitNonEmpty(u.Path, "/")
	if len(parts) < 2 {
		return RepoRef{}, false
	}
	return RepoRef{Owner: parts[0], Name: strings.TrimSuffix(parts[1], ".git")}, true
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
