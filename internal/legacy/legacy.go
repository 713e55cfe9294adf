// Package legacy reads and writes the binary rule list stored before the
// versioned FilterSet layout existed. The blob is a big-endian uint32 count
// followed by (pattern, foreground, background) strings, each a uint32 byte
// length and UTF-16BE data; length 0xFFFFFFFF marks a null string.
package legacy

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf16"

	"github.com/freewebtopdf/logfilters/internal/domain"
)

// Key is the settings key holding the legacy blob
const Key = "filterSet"

const nullString = 0xFFFFFFFF

// ErrTruncated is returned when the blob ends in the middle of an entry
var ErrTruncated = errors.New("legacy rule list is truncated")

// Decode parses a legacy blob. Imported rules are case-sensitive and carry no origin.
func Decode(data []byte) ([]domain.Rule, error) {
	r := bytes.NewReader(data)

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, ErrTruncated
	}
	// Every entry needs at least three 4-byte length prefixes
	if uint64(count)*12 > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: %d entries announced, %d bytes left", ErrTruncated, count, r.Len())
	}

	rules := make([]domain.Rule, 0, count)
	for i := uint32(0); i < count; i++ {
		var fields [3]string
		for j := range fields {
			s, err := readString(r)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			fields[j] = s
		}
		rules = append(rules, domain.NewStyledRule(fields[0], false, fields[1], fields[2]))
	}

	return rules, nil
}

// Encode writes rules in the legacy layout. Only pattern and colors are kept.
func Encode(rules []domain.Rule) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(rules)))
	for _, rule := range rules {
		writeString(&buf, rule.Pattern)
		writeString(&buf, rule.Foreground)
		writeString(&buf, rule.Background)
	}
	return buf.Bytes()
}

func readString(r *bytes.Reader) (string, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return "", ErrTruncated
	}
	if length == nullString {
		return "", nil
	}
	if length%2 != 0 || int64(length) > int64(r.Len()) {
		return "", ErrTruncated
	}

	units := make([]uint16, length/2)
	if err := binary.Read(r, binary.BigEndian, units); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return "", ErrTruncated
		}
		return "", err
	}
	return string(utf16.Decode(units)), nil
}

func writeString(buf *bytes.Buffer, s string) {
	units := utf16.Encode([]rune(s))
	_ = binary.Write(buf, binary.BigEndian, uint32(len(units)*2))
	_ = binary.Write(buf, binary.BigEndian, units)
}
