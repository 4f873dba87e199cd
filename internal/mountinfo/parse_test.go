package mountinfo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnescape(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "/plain", want: "/plain"},
		{in: `/mnt/with\040space`, want: "/mnt/with space"},
		{in: `/tab\011here`, want: "/tab\there"},
		{in: `/back\134slash`, want: `/back\slash`},
		{in: `/bad\9zz`, want: `/bad\9zz`},
		{in: `/short\04`, want: `/short\04`},
		{in: `\`, want: `\`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, Unescape(tt.in))
		})
	}
}

func TestParseLine(t *testing.T) {
	r := require.New(t)

	e, ok := ParseLine("36 35 98:0 /mnt1 /mnt2 rw,noatime master:1 - ext3 /dev/root rw,errors=continue")
	r.True(ok)
	r.Equal(Entry{
		ID: 36, ParentID: 35, Major: 98, Minor: 0,
		Root: "/mnt1", MountPoint: "/mnt2", FSType: "ext3", Device: "/dev/root",
	}, e)

	e, ok = ParseLine(`25 1 0:22 / /media/my\040disk rw shared:5 - vfat /dev/sdb1 rw`)
	r.True(ok)
	r.Equal("/media/my disk", e.MountPoint)

	// No optional fields at all.
	e, ok = ParseLine("1 0 8:1 / / rw - ext4 /dev/sda1")
	r.True(ok)
	r.Equal("/dev/sda1", e.Device)
}

func TestParseLineMalformed(t *testing.T) {
	for _, line := range []string{
		"",
		"garbage",
		"x 0 8:1 / / rw - ext4 /dev/sda1 rw",
		"1 0 8-1 / / rw - ext4 /dev/sda1 rw",
		"1 0 8:1 / / rw ext4 /dev/sda1 rw",
		"1 0 8:1 / / rw - ext4",
	} {
		_, ok := ParseLine(line)
		require.False(t, ok, line)
	}
}

func TestParseSkipsMalformed(t *testing.T) {
	r := require.New(t)
	table := strings.Join([]string{
		"1 0 8:1 / / rw - ext4 /dev/sda1 rw",
		"this is not a mount",
		"2 1 8:2 / /var rw - ext4 /dev/sda2 rw",
	}, "\n")

	entries, err := Parse(strings.NewReader(table))
	r.NoError(err)
	r.Len(entries, 2)
	r.Equal("/var", entries[1].MountPoint)
}
