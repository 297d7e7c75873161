package server

import (
	"fmt"
	"strings"
)

// FieldSegment is one step of a form field name. Append marks an empty
// bracket pair, which pushes onto a list instead of naming a key.
type FieldSegment struct {
	Name   string
	Append bool
}

// FieldPath is the parsed shape of an html field name such as
// `file` or `joint[logo][]`.
type FieldPath []FieldSegment

// ParseFieldPath splits a field name into its segments. The first segment
// is the bare prefix, every following one must be bracketed. An empty pair
// of brackets is only allowed as the last segment.
func ParseFieldPath(field string) (FieldPath, error) {
	var (
		path FieldPath
		rest string
	)
	if field == "" {
		return nil, fmt.Errorf("empty field name")
	}
	i := strings.IndexByte(field, '[')
	if i < 0 {
		return FieldPath{{Name: field}}, nil
	}
	if i == 0 {
		return nil, fmt.Errorf("field %q: missing leading name", field)
	}
	path = FieldPath{{Name: field[:i]}}
	rest = field[i:]
	for rest != "" {
		if rest[0] != '[' {
			return nil, fmt.Errorf("field %q: unexpected %q", field, rest)
		}
		j := strings.IndexByte(rest, ']')
		if j < 0 {
			return nil, fmt.Errorf("field %q: unbalanced bracket", field)
		}
		name := rest[1:j]
		rest = rest[j+1:]
		if name == "" {
			if rest != "" {
				return nil, fmt.Errorf("field %q: [] must be last", field)
			}
			path = append(path, FieldSegment{Append: true})
		} else {
			path = append(path, FieldSegment{Name: name})
		}
	}
	return path, nil
}

func (p FieldPath) String() string {
	var b strings.Builder
	for i, seg := range p {
		if i == 0 {
			b.WriteString(seg.Name)
			continue
		}
		if seg.Append {
			b.WriteString("[]")
		} else {
			b.WriteString("[" + seg.Name + "]")
		}
	}
	return b.String()
}

// FileMap holds the per-request file records keyed by field shape, the
// same structure a classic multipart POST would have produced.
type FileMap interface {
	Get(path FieldPath) (interface{}, bool)
	Set(path FieldPath, value interface{}) error
	Remove(path FieldPath)
}

// RequestFiles is the map backed FileMap used for every request.
type RequestFiles struct {
	root map[string]interface{}
}

func NewRequestFiles() *RequestFiles {
	return &RequestFiles{root: make(map[string]interface{})}
}

func (m *RequestFiles) Root() map[string]interface{} {
	return m.root
}

func (m *RequestFiles) Get(path FieldPath) (interface{}, bool) {
	var cur interface{} = m.root
	for _, seg := range path {
		if seg.Append {
			return nil, false
		}
		node, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = node[seg.Name]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set grafts value at path, creating intermediate maps on the way. A final
// append segment pushes onto a list under the parent key.
func (m *RequestFiles) Set(path FieldPath, value interface{}) error {
	if len(path) == 0 {
		return fmt.Errorf("empty field path")
	}
	last := path[len(path)-1]
	stop := len(path) - 1
	if last.Append {
		if len(path) < 2 {
			return fmt.Errorf("field %q: [] needs a parent", path.String())
		}
		// the list lives under the key of the segment before [], so
		// stop descending one level earlier
		stop--
	}
	node := m.root
	for i := 0; i < stop; i++ {
		seg := path[i]
		if seg.Append {
			return fmt.Errorf("field %q: [] must be last", path.String())
		}
		child, ok := node[seg.Name]
		if !ok {
			child = make(map[string]interface{})
			node[seg.Name] = child
		}
		childMap, ok := child.(map[string]interface{})
		if !ok {
			return fmt.Errorf("field %q: segment %q already holds a file", path.String(), seg.Name)
		}
		node = childMap
	}
	if last.Append {
		key := path[len(path)-2].Name
		list, ok := node[key].([]interface{})
		if node[key] != nil && !ok {
			return fmt.Errorf("field %q: segment %q already holds a file", path.String(), key)
		}
		node[key] = append(list, value)
		return nil
	}
	node[last.Name] = value
	return nil
}

func (m *RequestFiles) Remove(path FieldPath) {
	if len(path) == 0 {
		return
	}
	node := m.root
	for i := 0; i < len(path)-1; i++ {
		seg := path[i]
		if seg.Append {
			return
		}
		child, ok := node[seg.Name].(map[string]interface{})
		if !ok {
			return
		}
		node = child
	}
	if !path[len(path)-1].Append {
		delete(node, path[len(path)-1].Name)
	}
}
