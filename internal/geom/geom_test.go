package geom

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/rootdev/internal/runner"
)

const confxml = `<mesh>
  <class id="0x1">
    <name>DISK</name>
    <geom id="0x10">
      <class ref="0x1"/>
      <name>ada0</name>
      <provider id="0x100">
        <geom ref="0x10"/>
        <name>ada0</name>
        <mediasize>128035676160</mediasize>
        <sectorsize>512</sectorsize>
      </provider>
    </geom>
  </class>
  <class id="0x2">
    <name>PART</name>
    <geom id="0x20">
      <class ref="0x2"/>
      <name>ada0</name>
      <config><scheme>MBR</scheme></config>
      <consumer id="0x200"><geom ref="0x20"/><provider ref="0x100"/></consumer>
      <provider id="0x201">
        <geom ref="0x20"/>
        <name>ada0s1</name>
        <mediasize>64000000000</mediasize>
        <sectorsize>512</sectorsize>
        <config><start>63</start><index>1</index><type>freebsd</type></config>
      </provider>
    </geom>
    <geom id="0x21">
      <class ref="0x2"/>
      <name>ada0s1</name>
      <config><scheme>BSD</scheme></config>
      <consumer id="0x210"><geom ref="0x21"/><provider ref="0x201"/></consumer>
      <provider id="0x211">
        <geom ref="0x21"/>
        <name>ada0s1a</name>
        <mediasize>4000000000</mediasize>
        <sectorsize>512</sectorsize>
        <config><start>16</start><index>1</index><type>freebsd-ufs</type></config>
      </provider>
      <provider id="0x212">
        <geom ref="0x21"/>
        <name>ada0s1d</name>
        <mediasize>8000000000</mediasize>
        <sectorsize>512</sectorsize>
        <config><start>8388624</start><index>4</index><type>freebsd-ufs</type></config>
      </provider>
    </geom>
  </class>
  <class id="0x3">
    <name>ELI</name>
    <geom id="0x30">
      <class ref="0x3"/>
      <name>ada0s1d.eli</name>
      <consumer id="0x300"><geom ref="0x30"/><provider ref="0x212"/></consumer>
      <provider id="0x301">
        <geom ref="0x30"/>
        <name>ada0s1d.eli</name>
        <mediasize>7999995904</mediasize>
        <sectorsize>4096</sectorsize>
      </provider>
    </geom>
  </class>
</mesh>`

func testClient() *Client {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewClient(&runner.Static{Outputs: map[string]string{
		"sysctl -n kern.geom.confxml": confxml,
	}}, logger)
}

func TestParseConfXML(t *testing.T) {
	r := require.New(t)
	m, err := ParseConfXML([]byte(confxml))
	r.NoError(err)
	r.Len(m.Classes, 3)

	p := m.FindProvider("ada0s1a")
	r.NotNil(p)
	r.Equal("16", p.Config["start"])
	r.Equal("PART", p.Geom.Class.Name)
	r.Equal(int64(512), p.SectorSize)

	r.Equal("ELI", m.ClassOf("ada0s1d.eli"))
	r.Equal("DISK", m.ClassOf("ada0"))
	r.Equal("", m.ClassOf("da9"))

	_, err = ParseConfXML([]byte("<notmesh/>"))
	r.Error(err)
}

func TestFollowPartUp(t *testing.T) {
	r := require.New(t)
	m, err := ParseConfXML([]byte(confxml))
	r.NoError(err)

	disk, start := m.FollowPartUp("ada0s1d")
	r.Equal("ada0", disk)
	r.Equal(uint64(63+8388624), start)

	disk, start = m.FollowPartUp("ada0")
	r.Equal("ada0", disk)
	r.Zero(start)
}

func TestClient(t *testing.T) {
	r := require.New(t)
	c := testClient()

	class, err := c.ClassOf("/dev/ada0s1d.eli")
	r.NoError(err)
	r.Equal("ELI", class)

	under, err := c.Underlying("/dev/ada0s1d.eli")
	r.NoError(err)
	r.Equal("/dev/ada0s1d", under)

	_, err = c.Underlying("/dev/ada0")
	r.Error(err)

	disk, start, err := c.DiskOf("/dev/ada0s1a")
	r.NoError(err)
	r.Equal("/dev/ada0", disk)
	r.Equal(uint64(79), start)

	// The mesh is fetched once.
	r.Len(c.Runner.(*runner.Static).Calls, 1)
}

func TestClientNoSysctl(t *testing.T) {
	c := NewClient(&runner.Static{}, nil)
	_, err := c.ClassOf("/dev/ada0")
	require.ErrorIs(t, err, runner.ErrNotInstalled)
}

func geliSector(size int) ([]byte, []byte) {
	sector := make([]byte, size)
	copy(sector, geliMagic)
	salt := sector[geliSaltOffset : geliSaltOffset+geliSaltLen]
	for i := range salt {
		salt[i] = byte(i * 7)
	}
	return sector, salt
}

func TestGeliUUIDFromMetadata(t *testing.T) {
	r := require.New(t)
	sector, salt := geliSector(512)

	mac := hmac.New(sha256.New, salt)
	mac.Write([]byte("uuid"))
	want := hex.EncodeToString(mac.Sum(nil)[:16])

	got, err := GeliUUIDFromMetadata(sector)
	r.NoError(err)
	r.Equal(want, got)
	r.Len(got, 32)

	_, err = GeliUUIDFromMetadata(make([]byte, 512))
	r.ErrorIs(err, ErrNoGeliMetadata)
}

func TestReadGeliUUID(t *testing.T) {
	r := require.New(t)
	sector, _ := geliSector(512)
	want, err := GeliUUIDFromMetadata(sector)
	r.NoError(err)

	path := filepath.Join(t.TempDir(), "ada0s1d")
	r.NoError(os.WriteFile(path, append(make([]byte, 4096), sector...), 0o600))

	got, err := ReadGeliUUID(path, 0, 0)
	r.NoError(err)
	r.Equal(want, got)

	got, err = ReadGeliUUID(path, 4096+512, 512)
	r.NoError(err)
	r.Equal(want, got)

	_, err = ReadGeliUUID(path, 4096, 512)
	r.ErrorIs(err, ErrNoGeliMetadata)
}

func TestFollowPartUpNativeSectors(t *testing.T) {
	r := require.New(t)
	m, err := ParseConfXML([]byte(`<mesh>
  <class id="0x2">
    <name>PART</name>
    <geom id="0x20">
      <class ref="0x2"/>
      <name>nda0</name>
      <provider id="0x201">
        <geom ref="0x20"/>
        <name>nda0p1</name>
        <sectorsize>4096</sectorsize>
        <config><start>6</start><index>1</index></config>
      </provider>
      <provider id="0x202">
        <geom ref="0x20"/>
        <name>nda0p2</name>
        <sectorsize>4096</sectorsize>
        <config><start>256</start><offset>1048576</offset><index>2</index></config>
      </provider>
    </geom>
  </class>
</mesh>`))
	r.NoError(err)

	disk, start := m.FollowPartUp("nda0p1")
	r.Equal("nda0", disk)
	r.Equal(uint64(48), start)

	_, start = m.FollowPartUp("nda0p2")
	r.Equal(uint64(2048), start)
}

func TestClientDevDir(t *testing.T) {
	r := require.New(t)
	c := testClient()
	c.DevDir = "/chroot/dev"

	under, err := c.Underlying("/chroot/dev/ada0s1d.eli")
	r.NoError(err)
	r.Equal("/chroot/dev/ada0s1d", under)

	_, ok := c.ProviderName("/dev/ada0")
	r.False(ok)
}
