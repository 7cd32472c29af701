package upload

import (
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// maxExtLen bounds what is accepted as a file extension on generated names.
const maxExtLen = 10

// ResolveFilename returns the object key for a source. A non-empty custom
// name is used verbatim. Otherwise the percent-decoded last path segment of
// sourceURL is used, and when that is empty a random UUID is generated.
// The result is never empty.
func ResolveFilename(sourceURL, custom string) string {
	if custom != "" {
		return custom
	}

	var rawPath string
	if u, err := url.Parse(sourceURL); err == nil {
		rawPath = u.EscapedPath()
	}
	rawLast := lastSegment(rawPath)

	decoded, err := url.PathUnescape(rawPath)
	if err != nil {
		decoded = rawPath
	}
	if name := lastSegment(decoded); name != "" {
		return name
	}

	name := uuid.NewString()
	if ext := extension(rawLast); ext != "" {
		name += "." + ext
	}
	return name
}

// extension returns the decoded extension of a raw segment such as
// "report.pdf%2F", or "" when it is missing, too long or not a plain suffix.
func extension(rawSegment string) string {
	seg, err := url.PathUnescape(rawSegment)
	if err != nil {
		return ""
	}
	seg = strings.TrimRight(seg, "/")
	i := strings.LastIndexByte(seg, '.')
	if i < 0 {
		return ""
	}
	ext := seg[i+1:]
	if ext == "" || len(ext) >= maxExtLen || strings.ContainsAny(ext, "/%") {
		return ""
	}
	return ext
}

func lastSegment(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
