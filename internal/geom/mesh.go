// Package geom reads the FreeBSD GEOM graph from the kern.geom.confxml
// sysctl and answers the questions device resolution asks of it: which
// class a provider belongs to, what a geom consumes, and how a partition
// provider sits on its disk.
package geom

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Provider is a device exported by a geom.
type Provider struct {
	ID         string
	Name       string
	MediaSize  int64
	SectorSize int64
	// Config holds the class specific settings (start, index, type for
	// PART providers).
	Config map[string]string
	Geom   *Geom
}

// Geom is one node of a class.
type Geom struct {
	ID    string
	Name  string
	Class *Class
	// Consumers are the IDs of the providers this geom reads from.
	Consumers []string
	Providers []*Provider
}

// Class is a GEOM class such as PART, ELI or DISK.
type Class struct {
	Name  string
	Geoms []*Geom
}

// Mesh is the whole graph.
type Mesh struct {
	Classes   []*Class
	providers map[string]*Provider
}

// ParseConfXML builds a Mesh from kern.geom.confxml output.
func ParseConfXML(data []byte) (*Mesh, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parsing geom confxml: %w", err)
	}
	root := doc.SelectElement("mesh")
	if root == nil {
		return nil, fmt.Errorf("parsing geom confxml: no mesh element")
	}

	m := &Mesh{providers: make(map[string]*Provider)}
	for _, ce := range root.SelectElements("class") {
		class := &Class{Name: childText(ce, "name")}
		for _, ge := range ce.SelectElements("geom") {
			g := &Geom{ID: ge.SelectAttrValue("id", ""), Name: childText(ge, "name"), Class: class}
			for _, cons := range ge.SelectElements("consumer") {
				if pe := cons.SelectElement("provider"); pe != nil {
					g.Consumers = append(g.Consumers, pe.SelectAttrValue("ref", ""))
				}
			}
			for _, pe := range ge.SelectElements("provider") {
				p := &Provider{
					ID:         pe.SelectAttrValue("id", ""),
					Name:       childText(pe, "name"),
					MediaSize:  childInt(pe, "mediasize"),
					SectorSize: childInt(pe, "sectorsize"),
					Config:     map[string]string{},
					Geom:       g,
				}
				if cfg := pe.SelectElement("config"); cfg != nil {
					for _, kv := range cfg.ChildElements() {
						p.Config[kv.Tag] = strings.TrimSpace(kv.Text())
					}
				}
				g.Providers = append(g.Providers, p)
				m.providers[p.ID] = p
			}
			class.Geoms = append(class.Geoms, g)
		}
		m.Classes = append(m.Classes, class)
	}
	return m, nil
}

func childText(e *etree.Element, tag string) string {
	c := e.SelectElement(tag)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.Text())
}

func childInt(e *etree.Element, tag string) int64 {
	n, _ := strconv.ParseInt(childText(e, tag), 10, 64)
	return n
}

// Class returns the class with the given name, compared case-insensitively.
func (m *Mesh) Class(name string) *Class {
	for _, c := range m.Classes {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// FindProvider returns the first provider named name and the geom
// exporting it.
func (m *Mesh) FindProvider(name string) *Provider {
	for _, c := range m.Classes {
		for _, g := range c.Geoms {
			for _, p := range g.Providers {
				if p.Name == name {
					return p
				}
			}
		}
	}
	return nil
}

// ClassOf returns the class name of the geom exporting provider name, or
// "" when no geom does.
func (m *Mesh) ClassOf(name string) string {
	p := m.FindProvider(name)
	if p == nil {
		return ""
	}
	return p.Geom.Class.Name
}

// Consumed returns the first provider consumed by the geom that exports
// provider name. For an ELI provider this is the encrypted device.
func (m *Mesh) Consumed(name string) (*Provider, bool) {
	p := m.FindProvider(name)
	if p == nil || len(p.Geom.Consumers) == 0 {
		return nil, false
	}
	under, ok := m.providers[p.Geom.Consumers[0]]
	return under, ok
}

// FollowPartUp walks from a partition provider up through PART geoms to
// the disk it lives on, returning the disk name and the partition's start
// offset on that disk in 512-byte sectors. A name with no PART parent is
// its own disk at offset 0.
func (m *Mesh) FollowPartUp(name string) (disk string, start uint64) {
	part := m.Class("PART")
	if part == nil {
		return name, 0
	}
	for _, g := range part.Geoms {
		for _, p := range g.Providers {
			if p.Name != name {
				continue
			}
			disk, start = m.FollowPartUp(g.Name)
			return disk, start + partStart(p)
		}
	}
	return name, 0
}

// partStart converts a PART provider's position to 512-byte sectors. The
// byte offset is preferred; start counts sectors of the provider's own
// size.
func partStart(p *Provider) uint64 {
	if v, err := strconv.ParseUint(p.Config["offset"], 10, 64); err == nil {
		return v / diskSectorSize
	}
	v, err := strconv.ParseUint(p.Config["start"], 10, 64)
	if err != nil {
		return 0
	}
	if p.SectorSize > diskSectorSize {
		return v * uint64(p.SectorSize) / diskSectorSize
	}
	return v
}
