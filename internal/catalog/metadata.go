package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// InfoFileName is the per-slot metadata file. Its presence is what makes a
// directory under the catalog root a slot.
const InfoFileName = "info.json"

// Metadata is what the catalog knows about a slot besides its files.
type Metadata struct {
	// LastUsed is when the slot was last installed; zero means never.
	LastUsed time.Time
	Comment  string
}

// Slot is a named saved world.
type Slot struct {
	Name string
	Metadata
}

// infoFile is the on-disk form: last_used is unix seconds (fractional) or null.
type infoFile struct {
	LastUsed *float64 `json:"last_used"`
	Comment  string   `json:"comment"`
}

func (m Metadata) toFile() infoFile {
	f := infoFile{Comment: m.Comment}
	if !m.LastUsed.IsZero() {
		secs := float64(m.LastUsed.UnixNano()) / float64(time.Second)
		f.LastUsed = &secs
	}
	return f
}

func (f infoFile) toMetadata() Metadata {
	m := Metadata{Comment: f.Comment}
	if f.LastUsed != nil && *f.LastUsed > 0 {
		whole, frac := math.Modf(*f.LastUsed)
		m.LastUsed = time.Unix(int64(whole), int64(frac*float64(time.Second)))
	}
	return m
}

func readMetadata(dir string) (Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, InfoFileName))
	if err != nil {
		return Metadata{}, err
	}
	var f infoFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Metadata{}, fmt.Errorf("parse %s: %w", InfoFileName, err)
	}
	return f.toMetadata(), nil
}

// writeMetadata replaces info.json atomically via a temp file and rename.
func writeMetadata(dir string, m Metadata) error {
	data, err := json.MarshalIndent(m.toFile(), "", "    ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	tmp, err := os.CreateTemp(dir, InfoFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp metadata: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, InfoFileName)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace metadata: %w", err)
	}
	return nil
}
