// Package selection decides which record of a snapshot the watcher acts on.
package selection

import "strings"

// FullMarker is the status token that marks a section as having no seats.
const FullMarker = "FULL"

// IsFull reports whether status contains FullMarker, ignoring case. A blank
// status is never full.
func IsFull(status string) bool {
	if strings.TrimSpace(status) == "" {
		return false
	}
	return strings.Contains(strings.ToUpper(status), FullMarker)
}
