package bilibili

import (
	"regexp"
	"strings"
)

// RefKind tells what kind of identifier a reference carries
type RefKind int

const (
	RefBV RefKind = iota + 1
	RefAV
	RefShort
)

// VideoRef is an identifier extracted from user input
type VideoRef struct {
	Kind RefKind
	// ID is the BV id, the numeric av id, or the short link code
	ID string
}

type refPattern struct {
	re   *regexp.Regexp
	kind RefKind
}

// patterns are tried in order; the first match wins
var patterns = []refPattern{
	{regexp.MustCompile(`bilibili\.com/video/(BV[a-zA-Z0-9]+)`), RefBV},
	{regexp.MustCompile(`bilibili\.com/video/av(\d+)`), RefAV},
	{regexp.MustCompile(`b23\.tv/([a-zA-Z0-9]+)`), RefShort},
	{regexp.MustCompile(`^(BV[a-zA-Z0-9]+)$`), RefBV},
	{regexp.MustCompile(`^av(\d+)$`), RefAV},
}

// ParseVideoRef extracts a video reference from a full URL, a short link or
// a bare id.
func ParseVideoRef(ref string) (VideoRef, bool) {
	ref = strings.TrimSpace(ref)
	for _, p := range patterns {
		if m := p.re.FindStringSubmatch(ref); m != nil {
			return VideoRef{Kind: p.kind, ID: m[1]}, true
		}
	}
	return VideoRef{}, false
}

// ExtractVideoID returns the id embedded in ref, or false when ref matches
// no accepted format. Av ids are returned as their digits.
func ExtractVideoID(ref string) (string, bool) {
	r, ok := ParseVideoRef(ref)
	if !ok {
		return "", false
	}
	return r.ID, true
}

// APIID returns the form GetVideoInfo accepts: BV ids unchanged, av ids
// prefixed with "av".
func (r VideoRef) APIID() string {
	if r.Kind == RefAV {
		return "av" + r.ID
	}
	return r.ID
}
