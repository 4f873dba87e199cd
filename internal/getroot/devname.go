package getroot

import (
	"fmt"
	"strconv"
	"strings"
)

// MakeDeviceName builds "drive[,dos][,bsd]" with commas in the drive name
// escaped. Partition indices are zero-based on input and one-based in the
// output; -1 omits a field.
func MakeDeviceName(drive string, dosPart, bsdPart int) string {
	var b strings.Builder
	for i := 0; i < len(drive); i++ {
		if drive[i] == ',' {
			b.WriteByte('\\')
		}
		b.WriteByte(drive[i])
	}
	if dosPart >= 0 {
		fmt.Fprintf(&b, ",%d", dosPart+1)
	}
	if bsdPart >= 0 {
		fmt.Fprintf(&b, ",%d", bsdPart+1)
	}
	return b.String()
}

// SplitDeviceName splits a device name on unescaped commas, returning the
// unescaped drive and the partition fields that follow it.
func SplitDeviceName(name string) (drive string, parts []string) {
	var fields []string
	var cur strings.Builder
	for i := 0; i < len(name); i++ {
		switch c := name[i]; {
		case c == '\\' && i+1 < len(name):
			i++
			cur.WriteByte(name[i])
		case c == ',':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	fields = append(fields, cur.String())
	return fields[0], fields[1:]
}

// ParseDeviceName reverses MakeDeviceName.
func ParseDeviceName(name string) (drive string, dosPart, bsdPart int, err error) {
	drive, parts := SplitDeviceName(name)
	dosPart, bsdPart = -1, -1
	if len(parts) > 2 {
		return "", -1, -1, fmt.Errorf("device name %q has too many partition fields", name)
	}
	idx := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			return "", -1, -1, fmt.Errorf("device name %q: invalid partition %q", name, p)
		}
		idx[i] = n - 1
	}
	if len(idx) > 0 {
		dosPart = idx[0]
	}
	if len(idx) > 1 {
		bsdPart = idx[1]
	}
	return drive, dosPart, bsdPart, nil
}
