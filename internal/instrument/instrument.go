// Package instrument handles instrument key parsing and validation.
//
// The engine addresses everything it trades as {SEGMENT}:{SECURITY_ID},
// e.g. NSE_FNO:49081 — the exchange segment plus the broker's numeric
// security id. Keys arrive from the API and from feed subscriptions, so
// they are validated once here and trusted everywhere else.
package instrument

import (
	"errors"
	"fmt"
	"regexp"
)

// Supported exchange segments.
const (
	SegmentNSEFNO = "NSE_FNO"
	SegmentBSEFNO = "BSE_FNO"
	SegmentNSEEQ  = "NSE_EQ"
	SegmentBSEEQ  = "BSE_EQ"
	SegmentIndex  = "IDX_I"
)

var validSegments = map[string]bool{
	SegmentNSEFNO: true,
	SegmentBSEFNO: true,
	SegmentNSEEQ:  true,
	SegmentBSEEQ:  true,
	SegmentIndex:  true,
}

// keyRegex matches: {SEGMENT}:{SECURITY_ID}
// Example: NSE_FNO:49081
var keyRegex = regexp.MustCompile(`^([A-Z]+(?:_[A-Z]+)?):([0-9]+)$`)

var (
	ErrInvalidKey     = errors.New("instrument: invalid key format")
	ErrInvalidSegment = errors.New("instrument: unsupported exchange segment")
)

// Instrument is a parsed, validated instrument reference.
type Instrument struct {
	Segment    string `json:"segment"`
	SecurityID string `json:"security_id"`
}

// Key renders the canonical {SEGMENT}:{SECURITY_ID} form.
func (i Instrument) Key() string {
	return i.Segment + ":" + i.SecurityID
}

// ParseKey parses and validates an instrument key string.
// Format: {SEGMENT}:{SECURITY_ID}
func ParseKey(key string) (*Instrument, error) {
	matches := keyRegex.FindStringSubmatch(key)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected SEGMENT:SECURITY_ID)", ErrInvalidKey, key)
	}

	segment := matches[1]
	securityID := matches[2]

	if !validSegments[segment] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSegment, segment)
	}

	return &Instrument{
		Segment:    segment,
		SecurityID: securityID,
	}, nil
}
