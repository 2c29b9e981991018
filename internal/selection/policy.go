package selection

import (
	"strconv"
	"strings"

	"github.com/xkilldash9x/seatwatch/api/schemas"
)

// Select picks one record for the given preference.
//
// A positive integer preference within range is a 1-based index and wins
// regardless of status. Any other non-blank preference is a keyword matched
// against title, instructor and fund, preferring the first open match over the
// first full one. Without a usable preference, or when the keyword matches
// nothing, the first open record is chosen, else the first record. Only an empty
// snapshot yields no selection.
func Select(records []schemas.Record, preference string) (schemas.Record, bool) {
	i := Index(records, preference)
	if i == 0 {
		return schemas.Record{}, false
	}
	return records[i-1], true
}

// Index is Select returning the 1-based position of the chosen record, or 0
// when records is empty.
func Index(records []schemas.Record, preference string) int {
	if len(records) == 0 {
		return 0
	}
	pref := strings.TrimSpace(preference)

	if n, err := strconv.Atoi(pref); err == nil && n >= 1 && n <= len(records) {
		return n
	}

	if pref != "" {
		needle := strings.ToLower(pref)
		first := 0
		for i, r := range records {
			if !matches(r, needle) {
				continue
			}
			if !IsFull(r.Status) {
				return i + 1
			}
			if first == 0 {
				first = i + 1
			}
		}
		if first != 0 {
			return first
		}
	}

	for i, r := range records {
		if !IsFull(r.Status) {
			return i + 1
		}
	}
	return 1
}

func matches(r schemas.Record, needle string) bool {
	for _, field := range []string{r.Title, r.Instructor, r.Fund} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
