package models

import (
	"net/url"
	"strings"
	"time"
)

// Filter is a conjunction of predicates over one collection's rows. The zero
// value matches everything.
type Filter struct {
	// Eq requires field == value for every pair.
	Eq map[string]string

	// Search matches rows where any of SearchFields contains Search,
	// case-insensitively. Empty Search disables the predicate.
	Search       string
	SearchFields []string

	// CreatedAfter / CreatedBefore bound the createdAt field, inclusive.
	CreatedAfter  *time.Time
	CreatedBefore *time.Time

	// In requires the field value to be a member of the listed set.
	In map[string][]string
}

// Eq1 is shorthand for a single-equality filter, the shape subscriptions use.
func Eq1(field, value string) Filter {
	return Filter{Eq: map[string]string{field: value}}
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return len(f.Eq) == 0 && f.Search == "" && f.CreatedAfter == nil &&
		f.CreatedBefore == nil && len(f.In) == 0
}

// Matches re-evaluates the filter against an entity. The reconciler uses it
// to evict patched rows that no longer satisfy the active predicate.
func (f Filter) Matches(e Entity) bool {
	for field, want := range f.Eq {
		got, ok := e.Field(field)
		if !ok || got != want {
			return false
		}
	}
	if f.Search != "" {
		term := strings.ToLower(f.Search)
		found := false
		for _, field := range f.SearchFields {
			if v, ok := e.Field(field); ok && strings.Contains(strings.ToLower(v), term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.CreatedAfter != nil && e.Meta().CreatedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && e.Meta().CreatedAt.After(*f.CreatedBefore) {
		return false
	}
	for field, set := range f.In {
		got, ok := e.Field(field)
		if !ok {
			return false
		}
		member := false
		for _, v := range set {
			if got == v {
				member = true
				break
			}
		}
		if !member {
			return false
		}
	}
	return true
}

// Query parameter names shared by the HTTP API and the client.
const (
	paramEq     = "eq"     // eq=field:value, repeatable
	paramSearch = "q"      // q=term
	paramFields = "fields" // fields=title,description
	paramAfter  = "after"  // after=RFC3339
	paramBefore = "before" // before=RFC3339
	paramIn     = "in"     // in=field:a,b,c, repeatable
)

// Values encodes the filter as URL query parameters.
func (f Filter) Values() url.Values {
	v := url.Values{}
	for field, value := range f.Eq {
		v.Add(paramEq, field+":"+value)
	}
	if f.Search != "" {
		v.Set(paramSearch, f.Search)
		v.Set(paramFields, strings.Join(f.SearchFields, ","))
	}
	if f.CreatedAfter != nil {
		v.Set(paramAfter, f.CreatedAfter.UTC().Format(time.RFC3339))
	}
	if f.CreatedBefore != nil {
		v.Set(paramBefore, f.CreatedBefore.UTC().Format(time.RFC3339))
	}
	for field, set := range f.In {
		v.Add(paramIn, field+":"+strings.Join(set, ","))
	}
	return v
}

// FilterFromQuery parses the filter encoding produced by Values. Unknown
// parameters are ignored; malformed pairs are skipped.
func FilterFromQuery(v url.Values) Filter {
	f := Filter{}
	for _, pair := range v[paramEq] {
		field, value, ok := strings.Cut(pair, ":")
		if !ok || field == "" {
			continue
		}
		if f.Eq == nil {
			f.Eq = map[string]string{}
		}
		f.Eq[field] = value
	}
	if q := v.Get(paramSearch); q != "" {
		f.Search = q
		if fields := v.Get(paramFields); fields != "" {
			f.SearchFields = strings.Split(fields, ",")
		}
	}
	if s := v.Get(paramAfter); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			f.CreatedAfter = &t
		}
	}
	if s := v.Get(paramBefore); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			f.CreatedBefore = &t
		}
	}
	for _, pair := range v[paramIn] {
		field, set, ok := strings.Cut(pair, ":")
		if !ok || field == "" || set == "" {
			continue
		}
		if f.In == nil {
			f.In = map[string][]string{}
		}
		f.In[field] = strings.Split(set, ",")
	}
	return f
}

// Sort orders a view by one field. The zero value means createdAt descending,
// the default for every view.
type Sort struct {
	Field string
	Desc  bool
}

func (s Sort) normalized() Sort {
	if s.Field == "" {
		return Sort{Field: "createdAt", Desc: true}
	}
	return s
}

// Less reports whether a sorts before b under s. Timestamps compare as times;
// everything else compares as strings.
func (s Sort) Less(a, b Entity) bool {
	s = s.normalized()
	if s.Field == "createdAt" || s.Field == "updatedAt" || s.Field == "startsAt" {
		ta := fieldTime(a, s.Field)
		tb := fieldTime(b, s.Field)
		if s.Desc {
			return ta.After(tb)
		}
		return ta.Before(tb)
	}
	va, _ := a.Field(s.Field)
	vb, _ := b.Field(s.Field)
	if s.Desc {
		return va > vb
	}
	return va < vb
}

func fieldTime(e Entity, field string) time.Time {
	switch field {
	case "createdAt":
		return e.Meta().CreatedAt
	case "updatedAt":
		return e.Meta().UpdatedAt
	}
	if v, ok := e.Field(field); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Values encodes the sort as URL query parameters.
func (s Sort) Values() url.Values {
	s = s.normalized()
	v := url.Values{}
	dir := "asc"
	if s.Desc {
		dir = "desc"
	}
	v.Set("order", s.Field+"."+dir)
	return v
}

// SortFromQuery parses "order=field.dir". Missing or malformed values yield
// the default sort.
func SortFromQuery(v url.Values) Sort {
	raw := v.Get("order")
	if raw == "" {
		return Sort{}.normalized()
	}
	field, dir, ok := strings.Cut(raw, ".")
	if !ok || field == "" {
		return Sort{}.normalized()
	}
	return Sort{Field: field, Desc: dir == "desc"}
}
