package recipe

import (
	"errors"
	"fmt"
)

// ErrUnknownPreprocessor reports a variable referencing a pipeline the
// recipe does not declare.
var ErrUnknownPreprocessor = errors.New("unknown preprocessor")

// Validate checks the recipe for configuration errors. All problems
// are collected and returned as one joined error so a recipe author
// sees the full picture in a single pass.
func (r *Recipe) Validate() error {
	var errs []error

	for name, p := range r.Preprocessors {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("preprocessor %q: %w", name, err))
		}
	}

	errs = append(errs, r.validateDatasets()...)

	if len(r.Diagnostics) == 0 {
		errs = append(errs, errors.New("recipe declares no diagnostics"))
	}
	for _, name := range r.DiagnosticNames() {
		errs = append(errs, r.validateDiagnostic(r.Diagnostics[name])...)
	}

	return errors.Join(errs...)
}

func (r *Recipe) validateDatasets() []error {
	var errs []error
	seen := make(map[string]bool, len(r.Datasets))
	for i, d := range r.Datasets {
		errs = append(errs, validateSelector(fmt.Sprintf("datasets[%d]", i), d)...)
		key := d.Key()
		if seen[key] {
			errs = append(errs, fmt.Errorf("duplicate dataset selector %s", key))
		}
		seen[key] = true
	}
	return errs
}

func (r *Recipe) validateDiagnostic(d *Diagnostic) []error {
	var errs []error

	if len(d.Variables) == 0 && len(d.Scripts) == 0 {
		errs = append(errs, fmt.Errorf("diagnostic %q declares neither variables nor scripts", d.Name))
	}

	for _, short := range d.VariableNames() {
		v := d.Variables[short]
		pipeline := v.PipelineName()
		if _, ok := r.Pipeline(pipeline); !ok {
			errs = append(errs, fmt.Errorf("diagnostic %q variable %q: %w %q",
				d.Name, short, ErrUnknownPreprocessor, pipeline))
		}
		if v.StartYear != 0 && v.EndYear != 0 && v.StartYear > v.EndYear {
			errs = append(errs, fmt.Errorf("diagnostic %q variable %q: start_year %d after end_year %d",
				d.Name, short, v.StartYear, v.EndYear))
		}
		for i, ds := range v.AdditionalDatasets {
			errs = append(errs, validateSelector(
				fmt.Sprintf("diagnostic %q variable %q additional_datasets[%d]", d.Name, short, i), ds)...)
		}
	}

	for _, sname := range d.ScriptNames() {
		s := d.Scripts[sname]
		if s.Path == "" {
			errs = append(errs, fmt.Errorf("diagnostic %q script %q: missing script path", d.Name, sname))
		}
		for _, ancestor := range s.Ancestors {
			if _, ok := d.Scripts[ancestor]; !ok {
				errs = append(errs, fmt.Errorf("diagnostic %q script %q: unknown ancestor %q",
					d.Name, sname, ancestor))
			}
		}
	}

	for i, ds := range d.AdditionalDatasets {
		errs = append(errs, validateSelector(
			fmt.Sprintf("diagnostic %q additional_datasets[%d]", d.Name, i), ds)...)
	}

	return errs
}

func validateSelector(where string, d Dataset) []error {
	var errs []error
	if d.Dataset == "" {
		errs = append(errs, fmt.Errorf("%s: missing dataset name", where))
	}
	if d.Project == "" {
		errs = append(errs, fmt.Errorf("%s: missing project", where))
	}
	if d.StartYear != 0 && d.EndYear != 0 && d.StartYear > d.EndYear {
		errs = append(errs, fmt.Errorf("%s: start_year %d after end_year %d", where, d.StartYear, d.EndYear))
	}
	return errs
}
