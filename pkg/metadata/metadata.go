// Package metadata extracts recording timestamps from clip filenames and
// from the fallback date/time fields supplied alongside an upload.
package metadata

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// Parsed is a recording date and time-of-day taken from a filename.
type Parsed struct {
	Date string // YYYY-MM-DD
	Time string // HH:mm:ss
}

// In combines the pair into a wall-clock instant in loc.
func (p Parsed) In(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, p.Date+" "+p.Time, loc)
}

const sep = `\D+`

// Patterns are tried in order; the first one producing a valid date and time
// wins. The leading boundary is checked by scan so a rejected match
// never hides a candidate right behind it.
var patterns = []*regexp.Regexp{
	// 20240712_143000, 20240712-143000, 20240712T143000
	regexp.MustCompile(`(\d{4})(\d{2})(\d{2})[_\-T](\d{2})(\d{2})(\d{2})(?:\D|$)`),
	// 2024-07-12_14-30-00, 2024-07-12T14:30:00, 2024-07-12 14.30.00
	regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})[_T ](\d{2})[-.:](\d{2})[-.:](\d{2})(?:\D|$)`),
	// 2024.7.12 14.30, cam1 2024_07_12 14_30_05, 2024y07m12d14h30m
	regexp.MustCompile(`(\d{4})` + sep + `(\d{1,2})` + sep + `(\d{1,2})` + sep + `(\d{1,2})` + sep + `(\d{1,2})(?:` + sep + `(\d{1,2}))?(?:\D|$)`),
}

// ParseFilename returns the first calendar-valid timestamp found in name.
// A miss is a normal outcome and is reported with ok=false.
func ParseFilename(name string) (Parsed, bool) {
	name = trimExt(name)
	for _, re := range patterns {
		if p, ok := scan(re, name); ok {
			return p, true
		}
	}
	return Parsed{}, false
}

// scan tries every start position of re in name, left to right.
func scan(re *regexp.Regexp, name string) (Parsed, bool) {
	for off := 0; off < len(name); {
		m := re.FindStringSubmatchIndex(name[off:])
		if m == nil {
			break
		}
		start := off + m[0]
		if start == 0 || !isDigit(name[start-1]) {
			groups := make([]string, 0, len(m)/2-1)
			for i := 2; i < len(m); i += 2 {
				if m[i] < 0 {
					groups = append(groups, "")
					continue
				}
				groups = append(groups, name[off+m[i]:off+m[i+1]])
			}
			if p, ok := fromGroups(groups); ok {
				return p, true
			}
		}
		off = start + 1
	}
	return Parsed{}, false
}

// trimExt drops an extension such as ".mp4" so its digits are never read as
// seconds. A purely numeric suffix is part of the timestamp and stays.
func trimExt(name string) string {
	ext := filepath.Ext(name)
	if strings.IndexFunc(ext[min(1, len(ext)):], func(r rune) bool { return r < '0' || r > '9' }) < 0 {
		return name
	}
	return strings.TrimSuffix(name, ext)
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func fromGroups(groups []string) (Parsed, bool) {
	nums := make([]int, 6)
	for i := range nums {
		if i >= len(groups) || groups[i] == "" {
			// Only seconds are optional.
			if i == 5 {
				continue
			}
			return Parsed{}, false
		}
		n, err := strconv.Atoi(groups[i])
		if err != nil {
			return Parsed{}, false
		}
		nums[i] = n
	}
	year, month, day, hour, minute, second := nums[0], nums[1], nums[2], nums[3], nums[4], nums[5]

	if month < 1 || month > 12 || hour > 23 || minute > 59 || second > 59 {
		return Parsed{}, false
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return Parsed{}, false
	}
	return Parsed{
		Date: t.Format(DateLayout),
		Time: t.Format(TimeLayout),
	}, true
}

// Resolve picks the recording time for a file: the filename wins, the
// fallback is used otherwise, and nil means no recording time is known.
func Resolve(name string, fallback *time.Time, loc *time.Location) *time.Time {
	if p, ok := ParseFilename(name); ok {
		if t, err := p.In(loc); err == nil {
			return &t
		}
	}
	return fallback
}

// ParseDateTime parses the manual date (YYYY-MM-DD) and clock (HH:mm or
// HH:mm:ss) fields in loc.
func ParseDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	layout := DateLayout + " " + TimeLayout
	if len(clock) == len("15:04") {
		layout = DateLayout + " 15:04"
	}
	t, err := time.ParseInLocation(layout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid recording date/time %q %q: %w", date, clock, err)
	}
	return t, nil
}
