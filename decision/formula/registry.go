package formula

import (
	billerrors "github.com/the-solipsist/invoice-system/pkg/errors"
)

// Registry resolves formula and preset ids. Built once from loaded
// configuration, read-only thereafter; lookups have no side effects.
type Registry struct {
	formulas map[string]*Formula
	presets  map[string]*Preset
}

// NewRegistry builds a registry, validating every formula up front so a
// broken configuration fails the run before any invoice is computed.
func NewRegistry(formulas map[string]*Formula, presets map[string]*Preset) (*Registry, error) {
	r := &Registry{
		formulas: make(map[string]*Formula, len(formulas)),
		presets:  make(map[string]*Preset, len(presets)),
	}
	for id, f := range formulas {
		f.ID = id
		if err := f.Validate(); err != nil {
			return nil, err
		}
		r.formulas[id] = f
	}
	for id, p := range presets {
		if _, ok := r.formulas[p.FormulaID]; !ok {
			return nil, billerrors.NewUnknownFormulaError(p.FormulaID)
		}
		r.presets[id] = p
	}
	return r, nil
}

// Formula resolves a formula id.
func (r *Registry) Formula(id string) (*Formula, error) {
	f, ok := r.formulas[id]
	if !ok {
		return nil, billerrors.NewUnknownFormulaError(id)
	}
	return f, nil
}

// Preset resolves a preset id.
func (r *Registry) Preset(id string) (*Preset, error) {
	p, ok := r.presets[id]
	if !ok {
		return nil, billerrors.NewUnknownPresetError(id)
	}
	return p, nil
}

// FormulaForPreset resolves a preset and its referenced formula in one
// step, the common lookup the calculator needs.
func (r *Registry) FormulaForPreset(presetID string) (*Preset, *Formula, error) {
	p, err := r.Preset(presetID)
	if err != nil {
		return nil, nil, err
	}
	f, err := r.Formula(p.FormulaID)
	if err != nil {
		return nil, nil, err
	}
	return p, f, nil
}
