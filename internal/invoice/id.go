// Package invoice formats invoice identifiers and invoice artifact names and
// renders the invoice document handed to registrants.
package invoice

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
)

// DayLayout is the DDMMYY date stamp embedded in invoice identifiers.
const DayLayout = "020106"

// Day returns the DDMMYY stamp for t.
func Day(t time.Time) string {
	return t.Format(DayLayout)
}

// FormatID builds "<prefix>_<DDMMYY>_<seq>".
func FormatID(prefix, day string, seq int) string {
	return fmt.Sprintf("%s_%s_%d", prefix, day, seq)
}

// ID is a parsed invoice identifier.
type ID struct {
	Prefix string
	Day    string
	Seq    int
}

func (id ID) String() string {
	return FormatID(id.Prefix, id.Day, id.Seq)
}

var idPattern = regexp.MustCompile(`^([A-Za-z0-9]+)_(\d{6})_(\d+)$`)

// ParseID parses an identifier produced by FormatID.
func ParseID(s string) (ID, error) {
	m := idPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return ID{}, fmt.Errorf("invoice id %q: %w", s, model.ErrValidation)
	}
	seq, err := strconv.Atoi(m[3])
	if err != nil || seq <= 0 {
		return ID{}, fmt.Errorf("invoice id %q: %w", s, model.ErrValidation)
	}
	return ID{Prefix: m[1], Day: m[2], Seq: seq}, nil
}

// FileName builds "<prefix>_<DDMMYY>_<seq>_<first>_<last>.<ext>". Name parts
// are reduced to characters that are safe in a file name.
func FileName(invoiceID, first, last, ext string) string {
	parts := []string{invoiceID, safeName(first), safeName(last)}
	return strings.Join(parts, "_") + "." + strings.TrimPrefix(ext, ".")
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "-"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '/' || r == '\\' || r == '_' || r == 0:
			b.WriteRune('-')
		case r == ' ' || r == '\t':
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ScanMaxSequence returns the highest sequence number among artifact files in
// dir named for prefix and day, or 0 when there are none. A missing directory
// counts as empty.
func ScanMaxSequence(dir, prefix, day string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan invoice dir: %w", err)
	}
	pattern := regexp.MustCompile("^" + regexp.QuoteMeta(prefix+"_"+day+"_") + `(\d+)(_|\.|$)`)
	max := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := pattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}
	return max, nil
}
