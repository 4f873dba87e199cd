package registry

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ParseDeviceMap reads a device.map file:
//
//	# comment
//	(hd0)	/dev/sda
//	(fd0)	/dev/fd0
//
// Malformed lines are reported through warn and skipped.
func ParseDeviceMap(rd io.Reader, warn func(format string, args ...any)) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(rd)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		if line[0] != '(' {
			warn("device.map line %d: no open parenthesis found", lineNo)
			continue
		}
		end := strings.IndexByte(line, ')')
		if end < 0 {
			warn("device.map line %d: no close parenthesis found", lineNo)
			continue
		}
		drive := line[1:end]
		path := strings.TrimSpace(line[end+1:])
		if drive == "" || path == "" {
			warn("device.map line %d: missing drive or device", lineNo)
			continue
		}
		entries = append(entries, Entry{Drive: drive, OSDisk: path})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading device map: %w", err)
	}
	return entries, nil
}

// WriteDeviceMap writes entries in device.map format.
func WriteDeviceMap(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "(%s)\t%s\n", e.Drive, e.OSDisk); err != nil {
			return err
		}
	}
	return nil
}

// Load parses a device map and registers its entries. Entries that clash
// with existing ones are warned about and skipped.
func (r *Registry) Load(rd io.Reader) error {
	entries, err := ParseDeviceMap(rd, r.log().Warnf)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := r.Add(e.Drive, e.OSDisk); err != nil {
			r.log().Warnf("device.map: %v", err)
		}
	}
	return nil
}
