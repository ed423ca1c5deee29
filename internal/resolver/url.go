package resolver

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one parsed path component of a resolve URL: a bare name, a
// name with a partial claim-id qualifier (`#` or `:`), or a name with an
// amount-order qualifier (`$k`, 1-indexed).
type Segment struct {
	Name          string
	ClaimIDPrefix string // set iff qualifier was #/:
	AmountOrder   int    // set (>0) iff qualifier was $k
}

// ParsedURL is a channel segment optionally followed by a stream segment:
// `[lbry://]<channel>[/<stream>]`.
type ParsedURL struct {
	Channel Segment
	Stream  *Segment
}

// ParseURL parses the resolve-URL grammar (spec §4.5). It accepts an
// optional "lbry://" scheme prefix and one or two "/"-separated segments.
func ParseURL(url string) (ParsedURL, error) {
	url = strings.TrimPrefix(url, "lbry://")
	if url == "" {
		return ParsedURL{}, fmt.Errorf("resolver: empty url")
	}
	parts := strings.SplitN(url, "/", 2)
	channel, err := parseSegment(parts[0])
	if err != nil {
		return ParsedURL{}, err
	}
	if channel.Name == "" {
		return ParsedURL{}, fmt.Errorf("resolver: empty channel segment")
	}
	out := ParsedURL{Channel: channel}
	if len(parts) == 2 {
		if parts[1] == "" {
			return ParsedURL{}, fmt.Errorf("resolver: empty stream segment")
		}
		stream, err := parseSegment(parts[1])
		if err != nil {
			return ParsedURL{}, err
		}
		out.Stream = &stream
	}
	return out, nil
}

// parseSegment splits "name", "name#prefix", "name:prefix", or "name$k".
func parseSegment(s string) (Segment, error) {
	if i := strings.IndexAny(s, "#:"); i >= 0 {
		return Segment{Name: s[:i], ClaimIDPrefix: s[i+1:]}, nil
	}
	if i := strings.IndexByte(s, '$'); i >= 0 {
		k, err := strconv.Atoi(s[i+1:])
		if err != nil || k < 1 {
			return Segment{}, fmt.Errorf("resolver: invalid amount-order qualifier %q", s[i:])
		}
		return Segment{Name: s[:i], AmountOrder: k}, nil
	}
	return Segment{Name: s}, nil
}
