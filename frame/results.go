package frame

import (
	"errors"
	"strings"
)

const (
	// Separator joins results inside a result frame.
	Separator = ';'

	escape = '\\'
)

// ErrEmptyBatch is returned when asked to encode zero results.
var ErrEmptyBatch = errors.New("cannot encode an empty result batch")

var stripNewlines = strings.NewReplacer("\n", "", "\r", "")

// EncodeResults joins results with Separator and removes every '\n' and
// '\r'. Separator and backslash characters inside a result are escaped
// with a backslash, so a batch without either encodes as a plain join.
// The result never equals the termination sentinel.
func EncodeResults(results []string) (string, error) {
	if len(results) == 0 {
		return "", ErrEmptyBatch
	}

	var b strings.Builder

	for i, r := range results {
		if i > 0 {
			b.WriteByte(Separator)
		}

		for _, c := range stripNewlines.Replace(r) {
			if c == Separator || c == escape {
				b.WriteByte(escape)
			}
			b.WriteRune(c)
		}
	}

	// A batch that would read back as the sentinel gets its first
	// character escaped; decoding drops the backslash again.
	if b.String() == Termination {
		return string(escape) + Termination, nil
	}

	return b.String(), nil
}

// DecodeResults splits a frame produced by EncodeResults back into its
// fields. A trailing lone backslash is kept literally.
func DecodeResults(payload string) []string {
	fields := make([]string, 0, strings.Count(payload, string(Separator))+1)

	var (
		cur     strings.Builder
		escaped bool
	)

	for _, c := range payload {
		switch {
		case escaped:
			cur.WriteRune(c)
			escaped = false
		case c == escape:
			escaped = true
		case c == Separator:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}

	if escaped {
		cur.WriteRune(escape)
	}

	return append(fields, cur.String())
}
