package store

import "strings"

// Filter narrows a cohort listing. Zero values mean "no constraint".
// Filters compile to parameterized WHERE clauses; values are never
// interpolated into SQL text.
type Filter struct {
	// Name matches cohorts whose name contains the substring.
	Name string

	// CreatedAfter / CreatedBefore bound created_at (RFC 3339 strings,
	// which compare correctly as text).
	CreatedAfter  string
	CreatedBefore string

	// Limit caps the number of rows returned. Zero means no cap.
	Limit int
}

// compile lowers the filter to a WHERE clause and its bind arguments.
func (f Filter) compile() (string, []any) {
	var conds []string
	var args []any

	if f.Name != "" {
		conds = append(conds, `c.name LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.Name)+"%")
	}
	if f.CreatedAfter != "" {
		conds = append(conds, "c.created_at >= ?")
		args = append(args, f.CreatedAfter)
	}
	if f.CreatedBefore != "" {
		conds = append(conds, "c.created_at <= ?")
		args = append(args, f.CreatedBefore)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// escapeLike neutralizes LIKE metacharacters in user-supplied substrings.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
