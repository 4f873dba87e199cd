// Package mountinfo maps a directory to the mount that backs it by reading
// the kernel's per-process mount table (/proc/self/mountinfo).
//
// Statting a file on btrfs, or on a pool filesystem, yields a virtual device
// number rather than the real backing device, so the mount table is the only
// reliable source for which device is mounted where.
package mountinfo

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// Entry is one parsed mount-table record.
type Entry struct {
	ID       int
	ParentID int
	Major    uint32
	Minor    uint32
	// Root is the unescaped path of the mount's root within its filesystem.
	Root string
	// MountPoint is the unescaped absolute mount point.
	MountPoint string
	FSType     string
	// Device is the mount source. Empty only for topology placeholders.
	Device string
}

// Unescape decodes backslash + three octal digit sequences into the byte
// they encode. Anything else, including a malformed escape, is copied
// through unchanged.
func Unescape(s string) string {
	if strings.IndexByte(s, '\\') < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && isOctal(s[i+1]) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			b.WriteByte((s[i+1]-'0')<<6 | (s[i+2]-'0')<<3 | (s[i+3] - '0'))
			i += 3
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isOctal(c byte) bool {
	return c >= '0' && c <= '7'
}

// ParseLine parses a single mountinfo record:
//
//	36 35 98:0 /mnt1 /mnt2 rw,noatime master:1 - ext3 /dev/root rw,errors=continue
//
// It reports false for lines that do not have that shape.
func ParseLine(line string) (Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 6 {
		return Entry{}, false
	}

	var e Entry
	var err error
	if e.ID, err = strconv.Atoi(fields[0]); err != nil {
		return Entry{}, false
	}
	if e.ParentID, err = strconv.Atoi(fields[1]); err != nil {
		return Entry{}, false
	}
	majStr, minStr, ok := strings.Cut(fields[2], ":")
	if !ok {
		return Entry{}, false
	}
	maj, err := strconv.ParseUint(majStr, 10, 32)
	if err != nil {
		return Entry{}, false
	}
	min, err := strconv.ParseUint(minStr, 10, 32)
	if err != nil {
		return Entry{}, false
	}
	e.Major, e.Minor = uint32(maj), uint32(min)
	e.Root = Unescape(fields[3])
	e.MountPoint = Unescape(fields[4])

	// Options and optional fields run until the lone "-" separator.
	sep := -1
	for i := 5; i < len(fields); i++ {
		if fields[i] == "-" {
			sep = i
			break
		}
	}
	if sep < 0 || sep+2 >= len(fields) {
		return Entry{}, false
	}
	e.FSType = fields[sep+1]
	e.Device = fields[sep+2]
	return e, true
}

// Parse reads every well-formed record from r in table order. Malformed
// lines are skipped.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if e, ok := ParseLine(scanner.Text()); ok {
			entries = append(entries, e)
		}
	}
	return entries, scanner.Err()
}
