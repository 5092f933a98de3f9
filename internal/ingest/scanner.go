package ingest

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"tradeledger/internal/domain"
)

// FileSpec is one discovered input file with its path-derived metadata.
type FileSpec struct {
	Path      string
	Name      string
	Country   string
	Direction domain.Direction
	Format    domain.SourceFormat
	Year      int
	Month     int
	Synthetic bool
}

// filenameMeta overrides path-derived metadata when the file name itself
// carries it: <country>_<direction>_<yyyymm> anywhere in the name.
var filenameMeta = regexp.MustCompile(`(?i)^([a-z]+)[_-](import|export)[_-](\d{4})(\d{2})`)

// syntheticName marks generated fixtures that must never enter the pipeline:
// <country>_(import|export)_YYYYMM with no further qualifier.
var syntheticName = regexp.MustCompile(`(?i)^[a-z]+_(import|export)_\d{6}\.`)

// Scanner enumerates input files under a data root laid out as
// <root>/<country>/<direction>/<year>/<month>/<file>.
type Scanner struct {
	extensions map[string]struct{}
}

// NewScanner creates a scanner recognizing the given extensions (with dot).
func NewScanner(extensions []string) *Scanner {
	set := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		set[strings.ToLower(ext)] = struct{}{}
	}
	return &Scanner{extensions: set}
}

// Scan walks root and returns the recognized files in deterministic path
// order. Files it cannot derive a country and direction for are skipped.
func (s *Scanner) Scan(root string) ([]FileSpec, error) {
	var specs []FileSpec

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if _, ok := s.extensions[ext]; !ok {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}
		spec, ok := specFromPath(path, rel, d.Name())
		if !ok {
			return nil
		}
		specs = append(specs, spec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].Path < specs[j].Path })
	return specs, nil
}

// specFromPath derives metadata from the relative path segments, letting the
// filename regex override when it matches.
func specFromPath(path, rel, name string) (FileSpec, bool) {
	spec := FileSpec{
		Path:      path,
		Name:      name,
		Format:    domain.FormatOther,
		Synthetic: syntheticName.MatchString(name),
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) >= 2 {
		spec.Country = strings.ToUpper(parts[0])
		spec.Direction = directionFrom(parts[1])
	}
	if len(parts) >= 4 {
		if y, err := strconv.Atoi(parts[2]); err == nil {
			spec.Year = y
		}
		if m, err := strconv.Atoi(parts[3]); err == nil {
			spec.Month = m
		}
	}

	if m := filenameMeta.FindStringSubmatch(name); m != nil {
		spec.Country = strings.ToUpper(m[1])
		spec.Direction = directionFrom(m[2])
		if y, err := strconv.Atoi(m[3]); err == nil {
			spec.Year = y
		}
		if mo, err := strconv.Atoi(m[4]); err == nil {
			spec.Month = mo
		}
	}

	if lower := strings.ToLower(name); strings.Contains(lower, "short") {
		spec.Format = domain.FormatShort
	} else if strings.Contains(lower, "full") {
		spec.Format = domain.FormatFull
	}

	if spec.Country == "" || !spec.Direction.IsValid() {
		return FileSpec{}, false
	}
	return spec, true
}

func directionFrom(s string) domain.Direction {
	switch strings.ToLower(s) {
	case "export", "exports":
		return domain.DirectionExport
	case "import", "imports":
		return domain.DirectionImport
	}
	return ""
}
