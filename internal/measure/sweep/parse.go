package sweep

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse builds a sweep from its text form. Accepted forms are a
// "start:stop:step" range, a comma-separated list of values, the same list
// wrapped in brackets, "r(start, stop, step)" (stop excluded) and
// "l(start, stop, num)" (num evenly spaced values, stop included).
// Empty text and "[]" produce an empty sweep.
func Parse(s string) (*Sweep, error) {
	s = strings.TrimSpace(s)
	if name, args, ok := parseCall(s); ok {
		return callSweep(name, args)
	}
	if strings.HasPrefix(s, "[") {
		if !strings.HasSuffix(s, "]") {
			return nil, fmt.Errorf("invalid sweep %q: unterminated list", s)
		}
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if s == "" {
		return New(), nil
	}

	if strings.Contains(s, ":") {
		r, err := ParseRange(s)
		if err != nil {
			return nil, err
		}
		return FromRange(r)
	}

	values, err := parseList(s)
	if err != nil {
		return nil, err
	}
	return &Sweep{values: values}, nil
}

// ParseRange parses a "start:stop:step" string into a Range.
func ParseRange(s string) (Range, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Range{}, fmt.Errorf("invalid range format %q: expected start:stop:step", s)
	}

	start, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Range{}, fmt.Errorf("invalid start value %q: %w", parts[0], err)
	}
	stop, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Range{}, fmt.Errorf("invalid stop value %q: %w", parts[1], err)
	}
	step, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return Range{}, fmt.Errorf("invalid step value %q: %w", parts[2], err)
	}

	return Range{Start: start, Stop: stop, Step: step}, nil
}

func parseList(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	if len(out) > MaxValues {
		return nil, fmt.Errorf("sweep lists %d values (max %d)", len(out), MaxValues)
	}
	return out, nil
}

// parseCall splits "name(a, b, c)" into its name and arguments. A leading
// "np." is dropped.
func parseCall(s string) (string, []string, bool) {
	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return "", nil, false
	}
	name := strings.TrimPrefix(strings.TrimSpace(s[:open]), "np.")
	return name, strings.Split(s[open+1:len(s)-1], ","), true
}

func callSweep(name string, args []string) (*Sweep, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("%s() takes 3 arguments, got %d", name, len(args))
	}
	var nums [3]float64
	for i, a := range args {
		v, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
		if err != nil {
			return nil, fmt.Errorf("%s(): invalid argument %q: %w", name, strings.TrimSpace(a), err)
		}
		nums[i] = v
	}
	switch name {
	case "r", "arange":
		return Arange(nums[0], nums[1], nums[2])
	case "l", "linspace":
		num := int(nums[2])
		if float64(num) != nums[2] {
			return nil, fmt.Errorf("%s(): count %g is not an integer", name, nums[2])
		}
		return Linspace(nums[0], nums[1], num)
	}
	return nil, fmt.Errorf("unknown sweep function %q", name)
}
