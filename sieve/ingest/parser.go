package ingest

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var (
	// ErrMalformedLine marks a source line that is skipped during ingestion.
	ErrMalformedLine = errors.New("malformed line")

	// errIgnoredLine marks blank and comment lines, which are skipped silently.
	errIgnoredLine = errors.New("ignored line")
)

// Line is one parsed record of the source dataset.
type Line struct {
	Address string
	Balance sql.NullInt64
}

// LineParser splits `address[<delim>balance]` lines.
//
// A line is malformed when the address is empty or contains whitespace,
// when it has more than two fields, or when a balance field is present but is
// not a base-10 integer. A header row such as "address\tbalance" therefore
// counts as malformed and is skipped like any other bad line.
type LineParser struct {
	Delimiter    string
	TrackBalance bool
}

// Parse parses a single line.
func (p LineParser) Parse(raw string) (Line, error) {
	line := strings.TrimRight(raw, "\r\n")
	if trimmed := strings.TrimSpace(line); trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return Line{}, errIgnoredLine
	}

	fields := strings.Split(line, p.Delimiter)
	if len(fields) > 2 {
		return Line{}, fmt.Errorf("%w: %d fields", ErrMalformedLine, len(fields))
	}

	address := strings.TrimSpace(fields[0])
	if address == "" {
		return Line{}, fmt.Errorf("%w: empty address", ErrMalformedLine)
	}
	if strings.IndexFunc(address, unicode.IsSpace) >= 0 {
		return Line{}, fmt.Errorf("%w: whitespace in address", ErrMalformedLine)
	}

	out := Line{Address: address}
	if len(fields) == 2 {
		field := strings.TrimSpace(fields[1])
		if field != "" {
			balance, err := strconv.ParseInt(field, 10, 64)
			if err != nil {
				return Line{}, fmt.Errorf("%w: balance %q", ErrMalformedLine, field)
			}
			if p.TrackBalance {
				out.Balance = sql.NullInt64{Int64: balance, Valid: true}
			}
		}
	}
	return out, nil
}
