package symtab

import (
	"debug/elf"
	"sort"

	"github.com/wippyai/so-runtime/errors"
)

// ImageImports returns the undefined dynamic symbols of an ELF shared object
// and the libraries it declares as needed.
func ImageImports(path string) (symbols []string, needed []string, err error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, nil, errors.New(errors.PhaseLoad, errors.KindIO).Path(path).Cause(err).Build()
	}
	defer f.Close()

	dyn, err := f.DynamicSymbols()
	if err != nil {
		return nil, nil, errors.New(errors.PhaseLoad, errors.KindInvalidData).
			Path(path).Detail("no dynamic symbols").Cause(err).Build()
	}
	seen := make(map[string]bool)
	for _, s := range dyn {
		if s.Section != elf.SHN_UNDEF || s.Name == "" || seen[s.Name] {
			continue
		}
		if elf.ST_BIND(s.Info) == elf.STB_WEAK && elf.ST_TYPE(s.Info) == elf.STT_NOTYPE {
			continue
		}
		seen[s.Name] = true
		symbols = append(symbols, s.Name)
	}
	sort.Strings(symbols)

	needed, err = f.ImportedLibraries()
	if err != nil {
		return nil, nil, errors.New(errors.PhaseLoad, errors.KindInvalidData).Path(path).Cause(err).Build()
	}
	return symbols, needed, nil
}

// Coverage lists which imports of an image the table resolves.
type Coverage struct {
	Path     string
	Resolved []string
	Missing  []string
	Needed   []string
}

// CheckImage reports which undefined symbols of the image at path the table
// cannot resolve. Lookups made here are not counted as usage.
func CheckImage(t *Table, path string) (*Coverage, error) {
	symbols, needed, err := ImageImports(path)
	if err != nil {
		return nil, err
	}
	cov := &Coverage{Path: path, Needed: needed}
	for _, name := range symbols {
		if _, ok := t.index[name]; ok {
			cov.Resolved = append(cov.Resolved, name)
		} else {
			cov.Missing = append(cov.Missing, name)
		}
	}
	return cov, nil
}
