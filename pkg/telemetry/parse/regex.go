package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/scottpeterman/wirlwind/models"
)

// parseRegex applies an inline regex spec to text: one row per match, fields
// taken from the spec's group map (canonical name → capture-group name or
// 1-based index). With no group map, named groups are used as-is, falling
// back to positional field_1, field_2, ...
//
// Returns (nil, nil) on zero matches so the chain advances; a compile failure
// is a real error.
func parseRegex(text string, spec models.ParserSpec) ([]models.Row, error) {
	if spec.Pattern == "" {
		return nil, fmt.Errorf("no pattern defined")
	}

	re, err := regexp.Compile(flagPrefix(spec.Flags) + spec.Pattern)
	if err != nil {
		return nil, fmt.Errorf("regex compile error: %w", err)
	}

	matches := re.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, nil
	}

	names := re.SubexpNames()
	rows := make([]models.Row, 0, len(matches))
	for _, m := range matches {
		row := models.Row{}
		if len(spec.Groups) > 0 {
			for field, ref := range spec.Groups {
				row[strings.ToLower(field)] = groupValue(m, names, ref)
			}
		} else {
			named := false
			for i, name := range names {
				if name != "" && i < len(m) {
					row[strings.ToLower(name)] = m[i]
					named = true
				}
			}
			if !named {
				for i := 1; i < len(m); i++ {
					row[fmt.Sprintf("field_%d", i)] = m[i]
				}
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// groupValue resolves a group reference that may be a 1-based index or a
// named group. Unresolvable references yield an empty string rather than
// dropping the field.
func groupValue(match []string, names []string, ref string) string {
	if idx, err := strconv.Atoi(ref); err == nil {
		if idx >= 0 && idx < len(match) {
			return match[idx]
		}
		return ""
	}
	for i, name := range names {
		if name == ref && i < len(match) {
			return match[i]
		}
	}
	return ""
}

// flagPrefix converts config flag names ("MULTILINE|DOTALL", "m,s,i") into
// the regexp inline flag group.
func flagPrefix(flags string) string {
	var set strings.Builder
	norm := strings.NewReplacer("|", ",", " ", ",").Replace(flags)
	for _, f := range strings.Split(norm, ",") {
		switch strings.ToUpper(strings.TrimSpace(f)) {
		case "MULTILINE", "M":
			set.WriteByte('m')
		case "DOTALL", "S":
			set.WriteByte('s')
		case "IGNORECASE", "I":
			set.WriteByte('i')
		}
	}
	if set.Len() == 0 {
		return ""
	}
	return "(?" + set.String() + ")"
}
