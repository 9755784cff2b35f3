package certificate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Canonical returns the byte-stable serialization hashed by every provider.
//
// encoding/json writes struct fields in declaration order, which pins key order to
// the Certificate type rather than to map iteration. HTML escaping is disabled so
// '<', '>' and '&' are written literally. Field values are written exactly as
// stored; Build normalizes them and Validate rejects anything not in NFC.
func (c *Certificate) Canonical() ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("canonical: nil certificate")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("canonical: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func normalize(s string) string {
	return norm.NFC.String(s)
}

// firstNonNFC names the first string field that is not in NFC, or "".
func (c *Certificate) firstNonNFC() string {
	fields := []struct{ name, value string }{
		{"sealId", c.SealID},
		{"userId", c.UserID},
		{"sealName", c.SealName},
		{"location", c.Location},
		{"journeyId", c.JourneyID},
	}
	for _, f := range fields {
		if !norm.NFC.IsNormalString(f.value) {
			return f.name
		}
	}
	return ""
}
