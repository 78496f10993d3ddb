package decision

import "maps"

// Lookup is the read side of a fact environment.
type Lookup interface {
	Get(name string) (string, bool)
}

// Facts is the fact environment of one evaluation run. Names can be added
// but never overwritten. A Facts value is owned by a single run and is not
// safe for concurrent use.
type Facts struct {
	values   map[string]string
	producer map[string]string // name -> decision id that produced it
}

// NewFacts seeds an environment with the caller's input record.
func NewFacts(initial map[string]string) *Facts {
	f := &Facts{
		values:   make(map[string]string, len(initial)+8),
		producer: make(map[string]string),
	}
	maps.Copy(f.values, initial)
	return f
}

// Get returns the value bound to name.
func (f *Facts) Get(name string) (string, bool) {
	v, ok := f.values[name]
	return v, ok
}

// InsertOnce binds name to value, failing with DuplicateOutput if the name
// is already bound.
func (f *Facts) InsertOnce(name, value string) error {
	return f.insertFrom("", name, value)
}

func (f *Facts) insertFrom(source, name, value string) error {
	if _, exists := f.values[name]; exists {
		prev, produced := f.producer[name]
		var detail string
		switch {
		case produced && source != "":
			detail = "already produced by " + prev + ", also produced by " + source
		case produced:
			detail = "already produced by " + prev
		case source != "":
			detail = "already present in the input record, also produced by " + source
		default:
			detail = "already present in the input record"
		}
		return duplicateOutput(name, detail)
	}
	f.values[name] = value
	if source != "" {
		f.producer[name] = source
	}
	return nil
}

// Len returns the number of bound names.
func (f *Facts) Len() int { return len(f.values) }

// Snapshot returns a copy of the current bindings.
func (f *Facts) Snapshot() map[string]string {
	return maps.Clone(f.values)
}
