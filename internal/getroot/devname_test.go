package getroot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMakeDeviceName(t *testing.T) {
	require.Equal(t, "hd0", MakeDeviceName("hd0", -1, -1))
	require.Equal(t, "hd0,1", MakeDeviceName("hd0", 0, -1))
	require.Equal(t, "hd0,2,1", MakeDeviceName("hd0", 1, 0))
	require.Equal(t, `fd\,0,1`, MakeDeviceName("fd,0", 0, -1))
}

func TestParseDeviceName(t *testing.T) {
	r := require.New(t)

	drive, dos, bsd, err := ParseDeviceName(`fd\,0,1`)
	r.NoError(err)
	r.Equal("fd,0", drive)
	r.Equal(0, dos)
	r.Equal(-1, bsd)

	for _, name := range []string{"hd0", "hd1,3", `a\,b,2,5`, "hostdisk//dev/sda"} {
		drive, dos, bsd, err := ParseDeviceName(name)
		r.NoError(err, name)
		r.Equal(name, MakeDeviceName(drive, dos, bsd))
	}

	_, _, _, err = ParseDeviceName("hd0,0")
	r.Error(err)
	_, _, _, err = ParseDeviceName("hd0,x")
	r.Error(err)
	_, _, _, err = ParseDeviceName("hd0,1,2,3")
	r.Error(err)
}

func TestSplitDeviceName(t *testing.T) {
	drive, parts := SplitDeviceName(`hostdisk//dev/a\,b,msdos1`)
	require.Equal(t, "hostdisk//dev/a,b", drive)
	require.Equal(t, []string{"msdos1"}, parts)
}
