package record

import (
	"regexp"
	"strings"
)

var tagPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// TagSet is an ordered, de-duplicated sequence of short tags. The
// empty TagSet is a distinguished singleton: Empty() always returns a
// TagSet backed by the same nil slice, so callers can compare against
// it with Equal without allocating.
type TagSet struct {
	tags []string
}

// Empty returns the distinguished empty tag set.
func Empty() TagSet { return TagSet{} }

// NewTagSet validates and de-duplicates tags, preserving first-seen
// order. A tag must match [A-Za-z0-9_.-]+; a tag containing a newline
// is always rejected even if some other character would otherwise be
// allowed, since tags round-trip through a plain-text configuration
// and log-service frame.
func NewTagSet(tags ...string) (TagSet, error) {
	if len(tags) == 0 {
		return Empty(), nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if strings.ContainsAny(tag, "\r\n") {
			return TagSet{}, &InvalidTagError{Tag: tag, Reason: "contains a line break"}
		}
		if !tagPattern.MatchString(tag) {
			return TagSet{}, &InvalidTagError{Tag: tag, Reason: "contains characters outside [A-Za-z0-9_.-]"}
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return TagSet{tags: out}, nil
}

// InvalidTagError reports a tag that failed validation.
type InvalidTagError struct {
	Tag    string
	Reason string
}

func (e *InvalidTagError) Error() string {
	return "invalid tag " + quote(e.Tag) + ": " + e.Reason
}

func quote(s string) string { return "\"" + s + "\"" }

// Len reports the number of tags.
func (s TagSet) Len() int { return len(s.tags) }

// Items returns the tags in set order. The returned slice must not be
// mutated by the caller.
func (s TagSet) Items() []string { return s.tags }

// Contains reports whether tag is a member of s.
func (s TagSet) Contains(tag string) bool {
	for _, t := range s.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Equal reports whether s and other contain the same tags in the same
// order.
func (s TagSet) Equal(other TagSet) bool {
	if len(s.tags) != len(other.tags) {
		return false
	}
	for i, t := range s.tags {
		if other.tags[i] != t {
			return false
		}
	}
	return true
}

// Union returns the set of tags present in s or other, s's tags first
// in their original order followed by any of other's tags not already
// present.
func (s TagSet) Union(other TagSet) TagSet {
	out := make([]string, 0, len(s.tags)+len(other.tags))
	out = append(out, s.tags...)
	for _, t := range other.tags {
		if !s.Contains(t) {
			out = append(out, t)
		}
	}
	return TagSet{tags: out}
}

// Difference returns the tags in s that are not present in other,
// preserving s's order.
func (s TagSet) Difference(other TagSet) TagSet {
	out := make([]string, 0, len(s.tags))
	for _, t := range s.tags {
		if !other.Contains(t) {
			out = append(out, t)
		}
	}
	return TagSet{tags: out}
}
