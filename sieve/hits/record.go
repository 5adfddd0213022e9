// Package hits persists confirmed matches and raises alerts for them.
package hits

import (
	"bufio"
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/keysieve/sieve/keygen"
)

const balancePrefix = "balance: "

var (
	// ErrMalformedLog is returned by ReadAll for a block that cannot be parsed.
	ErrMalformedLog = errors.New("malformed hit log")
	// ErrInvalidRecord is returned for a record whose fields cannot be framed
	// as a hit log block.
	ErrInvalidRecord = errors.New("invalid hit record")
)

// HitRecord is one confirmed match.
type HitRecord struct {
	keygen.Candidate
	Key     string
	Balance sql.NullInt64
	FoundAt time.Time
}

// Validate reports whether every framed field is present and single-line.
// An empty field would read back as a block separator.
func (r HitRecord) Validate() error {
	fields := []struct{ name, value string }{
		{"secret hex", r.SecretHex},
		{"secret", r.Secret},
		{"public key", r.Public},
		{"address", r.Address},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: empty %s", ErrInvalidRecord, f.name)
		}
		if strings.ContainsAny(f.value, "\r\n") {
			return fmt.Errorf("%w: %s spans lines", ErrInvalidRecord, f.name)
		}
		if strings.HasPrefix(f.value, balancePrefix) {
			return fmt.Errorf("%w: %s looks like a balance line", ErrInvalidRecord, f.name)
		}
	}
	return nil
}

// Format renders the record as one hit log block:
//
//	<secret hex>
//	<secret WIF>
//	<public key>
//	<address>
//	[balance: <n>]
//	<blank line>
func (r HitRecord) Format() []byte {
	var buf bytes.Buffer
	buf.WriteString(r.SecretHex)
	buf.WriteByte('\n')
	buf.WriteString(r.Secret)
	buf.WriteByte('\n')
	buf.WriteString(r.Public)
	buf.WriteByte('\n')
	buf.WriteString(r.Address)
	buf.WriteByte('\n')
	if r.Balance.Valid {
		buf.WriteString(balancePrefix)
		buf.WriteString(strconv.FormatInt(r.Balance.Int64, 10))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

// ReadAll parses every block of the hit log at path. A missing log yields no records.
func ReadAll(path string) ([]HitRecord, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads hit log blocks from r.
func Parse(r io.Reader) ([]HitRecord, error) {
	var (
		out   []HitRecord
		block []string
		line  int
	)

	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		rec, err := parseBlock(block)
		if err != nil {
			return fmt.Errorf("%w: block ending at line %d: %v", ErrMalformedLog, line, err)
		}
		out = append(out, rec)
		block = block[:0]
		return nil
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		block = append(block, text)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseBlock(lines []string) (HitRecord, error) {
	if len(lines) != 4 && len(lines) != 5 {
		return HitRecord{}, fmt.Errorf("expected 4 or 5 lines, got %d", len(lines))
	}
	rec := HitRecord{Candidate: keygen.Candidate{
		SecretHex: lines[0],
		Secret:    lines[1],
		Public:    lines[2],
		Address:   lines[3],
	}}
	if len(lines) == 5 {
		v, ok := strings.CutPrefix(lines[4], balancePrefix)
		if !ok {
			return HitRecord{}, fmt.Errorf("unexpected line %q", lines[4])
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return HitRecord{}, fmt.Errorf("bad balance %q", v)
		}
		rec.Balance = sql.NullInt64{Int64: n, Valid: true}
	}
	if err := rec.Validate(); err != nil {
		return HitRecord{}, err
	}
	return rec, nil
}
