// Package manifest reads and writes package.json files.
//
// A [Manifest] keeps every top-level field in its original order and
// re-emits unknown fields byte-for-byte, so a round trip through
// [Read] and [Write] only changes the dependency entries that were edited.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Filename is the manifest file name.
const Filename = "package.json"

// Section is a dependency block of package.json.
type Section string

const (
	SectionProd     Section = "dependencies"
	SectionDev      Section = "devDependencies"
	SectionPeer     Section = "peerDependencies"
	SectionOptional Section = "optionalDependencies"
)

// sections lists dependency blocks in lookup priority.
var sections = []Section{SectionProd, SectionDev, SectionPeer, SectionOptional}

// Manifest is a parsed package.json.
type Manifest struct {
	Name    string
	Version string

	order  []string                   // top-level keys in file order
	raw    map[string]json.RawMessage // non-dependency fields
	deps   map[Section]*Deps
	indent string
	eol    bool
}

// Deps is an insertion-ordered name → range map.
type Deps struct {
	keys []string
	vals map[string]string
}

func newDeps() *Deps { return &Deps{vals: make(map[string]string)} }

// Get returns the range for name.
func (d *Deps) Get(name string) (string, bool) {
	if d == nil {
		return "", false
	}
	v, ok := d.vals[name]
	return v, ok
}

// Len returns the number of entries.
func (d *Deps) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Names returns entry names in order.
func (d *Deps) Names() []string {
	if d == nil {
		return nil
	}
	return slices.Clone(d.keys)
}

func (d *Deps) set(name, rng string) {
	if _, ok := d.vals[name]; !ok {
		sorted := slices.IsSorted(d.keys)
		d.keys = append(d.keys, name)
		if sorted {
			slices.Sort(d.keys)
		}
	}
	d.vals[name] = rng
}

func (d *Deps) remove(name string) bool {
	if _, ok := d.vals[name]; !ok {
		return false
	}
	delete(d.vals, name)
	d.keys = slices.DeleteFunc(d.keys, func(k string) bool { return k == name })
	return true
}

func (d *Deps) clone() *Deps {
	return &Deps{keys: slices.Clone(d.keys), vals: maps.Clone(d.vals)}
}

// Read parses dir/package.json.
func Read(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, Filename))
	if err != nil {
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Join(dir, Filename), err)
	}
	return m, nil
}

// Write serializes m to dir/package.json.
func Write(dir string, m *Manifest) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, Filename), data, 0o644)
}

// Parse decodes package.json content.
func Parse(data []byte) (*Manifest, error) {
	m := &Manifest{
		raw:    make(map[string]json.RawMessage),
		deps:   make(map[Section]*Deps),
		indent: detectIndent(data),
		eol:    bytes.HasSuffix(bytes.TrimRight(data, " \t"), []byte("\n")),
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key := tok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		if !slices.Contains(m.order, key) {
			m.order = append(m.order, key)
		}

		if isSection(key) {
			d, err := parseDeps(value)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
			m.deps[Section(key)] = d
			continue
		}
		m.raw[key] = value
		switch key {
		case "name":
			_ = json.Unmarshal(value, &m.Name)
		case "version":
			_ = json.Unmarshal(value, &m.Version)
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return m, nil
}

func parseDeps(value json.RawMessage) (*Deps, error) {
	d := newDeps()
	dec := json.NewDecoder(bytes.NewReader(value))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		var rng string
		if err := dec.Decode(&rng); err != nil {
			return nil, fmt.Errorf("dependency %q: range must be a string", tok)
		}
		name := tok.(string)
		if _, dup := d.vals[name]; !dup {
			d.keys = append(d.keys, name)
		}
		d.vals[name] = rng
	}
	return d, expectDelim(dec, '}')
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func isSection(key string) bool {
	return slices.Contains(sections, Section(key))
}

func detectIndent(data []byte) string {
	for _, line := range bytes.Split(data, []byte("\n"))[1:] {
		trimmed := bytes.TrimLeft(line, " \t")
		if len(trimmed) == 0 || len(trimmed) == len(line) {
			continue
		}
		return string(line[:len(line)-len(trimmed)])
	}
	return "  "
}

// Marshal encodes the manifest, preserving field order and indentation.
func (m *Manifest) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, key := range m.order {
		var value []byte
		if isSection(key) {
			d := m.deps[Section(key)]
			if d == nil {
				continue
			}
			value = d.marshal()
		} else {
			v, ok := m.raw[key]
			if !ok {
				continue
			}
			value = v
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(quote(key))
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", m.indent); err != nil {
		return nil, err
	}
	if m.eol {
		out.WriteByte('\n')
	}
	return out.Bytes(), nil
}

func (d *Deps) marshal() []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(quote(k))
		buf.WriteByte(':')
		buf.Write(quote(d.vals[k]))
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func quote(s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return bytes.TrimRight(buf.Bytes(), "\n")
}

// Section returns the dependency block, or nil when absent.
func (m *Manifest) Section(s Section) *Deps { return m.deps[s] }

// Dependency returns the declared range of name and the block declaring it.
// Production and dev blocks take precedence over peer and optional ones.
func (m *Manifest) Dependency(name string) (rng string, section Section, ok bool) {
	for _, s := range sections {
		if v, found := m.deps[s].Get(name); found {
			return v, s, true
		}
	}
	return "", "", false
}

// Has reports whether name is declared in any dependency block.
func (m *Manifest) Has(name string) bool {
	_, _, ok := m.Dependency(name)
	return ok
}

// IsDevDependency reports whether name is declared only as a dev dependency.
func (m *Manifest) IsDevDependency(name string) bool {
	if _, ok := m.deps[SectionProd].Get(name); ok {
		return false
	}
	_, ok := m.deps[SectionDev].Get(name)
	return ok
}

// UpdateDependency sets name to version in the production or dev block,
// removing it from the other one. It reports whether the manifest changed.
func (m *Manifest) UpdateDependency(name, version string, isDev bool) bool {
	target, other := SectionProd, SectionDev
	if isDev {
		target, other = SectionDev, SectionProd
	}

	changed := false
	if d := m.deps[other]; d != nil && d.remove(name) {
		changed = true
	}

	d := m.deps[target]
	if d == nil {
		d = newDeps()
		m.deps[target] = d
		if !slices.Contains(m.order, string(target)) {
			m.order = append(m.order, string(target))
		}
	}
	if cur, ok := d.Get(name); !ok || cur != version {
		d.set(name, version)
		changed = true
	}
	return changed
}

// Dependencies returns the production and dev entries merged, production
// winning on duplicates.
func (m *Manifest) Dependencies() map[string]string {
	out := make(map[string]string)
	for _, s := range []Section{SectionDev, SectionProd} {
		if d := m.deps[s]; d != nil {
			maps.Copy(out, d.vals)
		}
	}
	return out
}

// Clone returns a deep copy.
func (m *Manifest) Clone() *Manifest {
	c := &Manifest{
		Name:    m.Name,
		Version: m.Version,
		order:   slices.Clone(m.order),
		raw:     maps.Clone(m.raw),
		deps:    make(map[Section]*Deps, len(m.deps)),
		indent:  m.indent,
		eol:     m.eol,
	}
	for s, d := range m.deps {
		c.deps[s] = d.clone()
	}
	return c
}

// Equal reports whether both manifests declare the same content.
// Dependency order is ignored.
func (m *Manifest) Equal(o *Manifest) bool {
	if m == nil || o == nil {
		return m == o
	}
	if len(m.raw) != len(o.raw) {
		return false
	}
	for k, v := range m.raw {
		ov, ok := o.raw[k]
		if !ok || !jsonEqual(v, ov) {
			return false
		}
	}
	for _, s := range sections {
		a, b := m.deps[s], o.deps[s]
		if a.Len() != b.Len() {
			return false
		}
		if a.Len() > 0 && !maps.Equal(a.vals, b.vals) {
			return false
		}
	}
	return true
}

func jsonEqual(a, b json.RawMessage) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

// String summarizes the manifest for logs.
func (m *Manifest) String() string {
	var parts []string
	for _, s := range sections {
		if n := m.deps[s].Len(); n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", s, n))
		}
	}
	name := m.Name
	if name == "" {
		name = "(unnamed)"
	}
	return name + " " + strings.Join(parts, " ")
}
