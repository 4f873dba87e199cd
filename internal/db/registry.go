package db

import (
	"fmt"

	"github.com/sigreer/rootdev/internal/registry"
)

// SaveRegistry writes every drive and crypto mapping held by reg. sizes
// optionally gives disk sizes in bytes keyed by OS disk path.
func (d *DB) SaveRegistry(reg *registry.Registry, source string, sizes map[string]int64) error {
	for _, e := range reg.Entries() {
		m := &Mapping{Drive: e.Drive, OSDisk: e.OSDisk, SizeBytes: sizes[e.OSDisk], Source: source}
		if err := d.UpsertMapping(m); err != nil {
			return fmt.Errorf("saving %s: %w", e.Drive, err)
		}
	}
	for _, c := range reg.CryptoMounts() {
		if err := d.SaveCrypto(c.OSDev, c.GrubDev); err != nil {
			return err
		}
	}
	return nil
}

// LoadRegistry adds the stored mappings to reg. Rows that conflict with
// entries already in reg are reported and skipped.
func (d *DB) LoadRegistry(reg *registry.Registry) (skipped []string, err error) {
	mappings, err := d.GetAllMappings()
	if err != nil {
		return nil, err
	}
	for _, m := range mappings {
		if err := reg.Add(m.Drive, m.OSDisk); err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", m.Drive, err))
		}
	}

	crypto, err := d.GetCryptoMounts()
	if err != nil {
		return skipped, err
	}
	for _, c := range crypto {
		if err := reg.MountCrypto(c.GrubDev, c.OSDev); err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", c.OSDev, err))
		}
	}
	return skipped, nil
}
