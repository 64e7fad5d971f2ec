package preproc

import (
	"fmt"
	"regexp"
	"sort"
)

// validator checks the parameters of a single operation.
type validator func(args map[string]any) error

// operations is the registry of known preprocessing operations. An
// entry with a nil validator accepts any parameters.
var operations = map[string]validator{
	"regrid":                 validateRegrid,
	"extract_levels":         validateExtractLevels,
	"extract_region":         validateExtractRegion,
	"extract_season":         nil,
	"extract_month":          nil,
	"mask_landsea":           validateMask,
	"mask_landseaice":        validateMask,
	"mask_fillvalues":        nil,
	"climate_statistics":     validateStatistics,
	"annual_statistics":      validateStatistics,
	"seasonal_statistics":    validateStatistics,
	"monthly_statistics":     validateStatistics,
	"daily_statistics":       validateStatistics,
	"area_statistics":        validateStatistics,
	"volume_statistics":      validateStatistics,
	"zonal_statistics":       validateStatistics,
	"anomalies":              validateAnomalies,
	"multi_model_statistics": validateMultiModel,
	"detrend":                nil,
	"custom_order":           nil,
}

// targetGridPattern matches explicit grid resolutions like "1x1" or
// "2.5x2.5" (degrees longitude x latitude).
var targetGridPattern = regexp.MustCompile(`^\d+(\.\d+)?x\d+(\.\d+)?$`)

var regridSchemes = map[string]bool{
	"linear":        true,
	"nearest":       true,
	"area_weighted": true,
}

var levelSchemes = map[string]bool{
	"linear":              true,
	"nearest":             true,
	"linear_extrapolate":  true,
	"nearest_extrapolate": true,
}

var statisticOperators = map[string]bool{
	"mean":    true,
	"median":  true,
	"std_dev": true,
	"min":     true,
	"max":     true,
	"sum":     true,
	"rms":     true,
}

// IsKnown reports whether name is a registered operation.
func IsKnown(name string) bool {
	_, ok := operations[name]
	return ok
}

// KnownOperations returns the registered operation names, sorted.
func KnownOperations() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateStep checks that the step names a known operation and that
// its parameters satisfy the operation's schema.
func ValidateStep(s Step) error {
	v, ok := operations[s.Name]
	if !ok {
		return fmt.Errorf("unknown preprocessor operation %q", s.Name)
	}
	if v == nil {
		return nil
	}
	if err := v(s.Args); err != nil {
		return fmt.Errorf("operation %q: %w", s.Name, err)
	}
	return nil
}

// Validate checks every step of the pipeline.
func (p Pipeline) Validate() error {
	for _, s := range p.Steps {
		if err := ValidateStep(s); err != nil {
			return err
		}
	}
	return nil
}

func validateRegrid(args map[string]any) error {
	grid, ok := stringArg(args, "target_grid")
	if !ok || grid == "" {
		return fmt.Errorf("missing required parameter %q", "target_grid")
	}
	// A target grid is either an explicit resolution or the name of a
	// dataset whose grid is the regridding target.
	if looksLikeResolution(grid) && !targetGridPattern.MatchString(grid) {
		return fmt.Errorf("malformed target_grid %q (want e.g. \"1x1\" or \"2.5x2.5\")", grid)
	}
	if scheme, ok := stringArg(args, "scheme"); ok && !regridSchemes[scheme] {
		return fmt.Errorf("unknown regrid scheme %q", scheme)
	}
	for _, key := range []string{"lat_offset", "lon_offset"} {
		if v, ok := args[key]; ok {
			if _, isBool := v.(bool); !isBool {
				return fmt.Errorf("parameter %q must be a boolean", key)
			}
		}
	}
	return nil
}

// looksLikeResolution reports whether s starts with a digit, in which
// case it must parse as an explicit NxM resolution.
func looksLikeResolution(s string) bool {
	return len(s) > 0 && s[0] >= '0' && s[0] <= '9'
}

func validateExtractLevels(args map[string]any) error {
	if _, ok := args["levels"]; !ok {
		return fmt.Errorf("missing required parameter %q", "levels")
	}
	if scheme, ok := stringArg(args, "scheme"); ok && !levelSchemes[scheme] {
		return fmt.Errorf("unknown level interpolation scheme %q", scheme)
	}
	return nil
}

func validateExtractRegion(args map[string]any) error {
	for _, key := range []string{"start_longitude", "end_longitude", "start_latitude", "end_latitude"} {
		v, ok := args[key]
		if !ok {
			return fmt.Errorf("missing required parameter %q", key)
		}
		if !isNumber(v) {
			return fmt.Errorf("parameter %q must be numeric", key)
		}
	}
	return nil
}

func validateMask(args map[string]any) error {
	if v, ok := args["mask_out"]; ok {
		s, isString := v.(string)
		if !isString || (s != "land" && s != "sea" && s != "ice") {
			return fmt.Errorf("parameter %q must be one of land, sea, ice", "mask_out")
		}
	}
	return nil
}

func validateStatistics(args map[string]any) error {
	if op, ok := stringArg(args, "operator"); ok && !statisticOperators[op] {
		return fmt.Errorf("unknown statistic operator %q", op)
	}
	return nil
}

func validateAnomalies(args map[string]any) error {
	if period, ok := stringArg(args, "period"); ok {
		switch period {
		case "full", "season", "month", "day":
		default:
			return fmt.Errorf("unknown anomalies period %q", period)
		}
	}
	return nil
}

func validateMultiModel(args map[string]any) error {
	if span, ok := stringArg(args, "span"); ok && span != "overlap" && span != "full" {
		return fmt.Errorf("parameter %q must be overlap or full", "span")
	}
	if v, ok := args["statistics"]; ok {
		stats, isList := v.([]any)
		if !isList {
			return fmt.Errorf("parameter %q must be a list", "statistics")
		}
		for _, s := range stats {
			name, isString := s.(string)
			if !isString || !statisticOperators[name] {
				return fmt.Errorf("unknown statistic %v in multi_model_statistics", s)
			}
		}
	}
	return nil
}

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int64, float64, float32:
		return true
	}
	return false
}
