package dyndest

import (
	"errors"
	"fmt"
	"strings"
)

// TableLocation is the fully-qualified identifier of a writable table.
type TableLocation struct {
	Project   string // Optional owning project or account
	Dataset   string // Optional dataset or namespace; required when Project is set
	Table     string // Table name
	Partition string // Optional partition or shard specifier
}

// String renders the location as project:dataset.table$partition, omitting
// empty parts.
func (l TableLocation) String() string {
	var sb strings.Builder
	if l.Project != "" {
		sb.WriteString(l.Project)
		sb.WriteString(":")
	}
	if l.Dataset != "" {
		sb.WriteString(l.Dataset)
		sb.WriteString(".")
	}
	sb.WriteString(l.Table)
	if l.Partition != "" {
		sb.WriteString("$")
		sb.WriteString(l.Partition)
	}
	return sb.String()
}

// Validate reports whether the location names a table.
func (l TableLocation) Validate() error {
	if l.Table == "" {
		return errors.New("table name is empty")
	}
	if l.Project != "" && l.Dataset == "" {
		return errors.New("project set without dataset")
	}

	for _, part := range []struct{ name, value string }{
		{"project", l.Project},
		{"dataset", l.Dataset},
		{"table", l.Table},
		{"partition", l.Partition},
	} {
		if i := strings.IndexFunc(part.value, notNameRune); i >= 0 {
			return fmt.Errorf("%s %q has invalid character %q", part.name, part.value, part.value[i])
		}
	}

	return nil
}

// ParseTableLocation parses a table spec of the form
// [project:]dataset.table[$partition] or project.dataset.table[$partition].
func ParseTableLocation(spec string) (TableLocation, error) {
	var loc TableLocation

	rest := spec
	if i := strings.LastIndex(rest, "$"); i >= 0 {
		loc.Partition = rest[i+1:]
		rest = rest[:i]
	}
	if i := strings.Index(rest, ":"); i >= 0 {
		loc.Project = rest[:i]
		rest = rest[i+1:]
	}

	parts := strings.Split(rest, ".")
	switch {
	case len(parts) == 2:
		loc.Dataset, loc.Table = parts[0], parts[1]
	case len(parts) == 3 && loc.Project == "":
		loc.Project, loc.Dataset, loc.Table = parts[0], parts[1], parts[2]
	default:
		return TableLocation{}, fmt.Errorf("invalid table spec %q; expected [project:]dataset.table", spec)
	}

	if err := loc.Validate(); err != nil {
		return TableLocation{}, fmt.Errorf("invalid table spec %q: %w", spec, err)
	}

	return loc, nil
}

func notNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case r == '_' || r == '-':
		return false
	}
	return true
}

// FieldType is the data type of a schema field.
type FieldType string

const (
	TypeString    FieldType = "STRING"
	TypeBytes     FieldType = "BYTES"
	TypeInteger   FieldType = "INTEGER"
	TypeFloat     FieldType = "FLOAT"
	TypeNumeric   FieldType = "NUMERIC"
	TypeBoolean   FieldType = "BOOLEAN"
	TypeTimestamp FieldType = "TIMESTAMP"
	TypeDate      FieldType = "DATE"
	TypeTime      FieldType = "TIME"
	TypeDatetime  FieldType = "DATETIME"
	TypeRecord    FieldType = "RECORD"
)

func (t FieldType) valid() bool {
	switch t {
	case TypeString, TypeBytes, TypeInteger, TypeFloat, TypeNumeric, TypeBoolean,
		TypeTimestamp, TypeDate, TypeTime, TypeDatetime, TypeRecord:
		return true
	}
	return false
}

// FieldMode is the nullability of a schema field. The zero value is
// treated as ModeNullable.
type FieldMode string

const (
	ModeNullable FieldMode = "NULLABLE"
	ModeRequired FieldMode = "REQUIRED"
	ModeRepeated FieldMode = "REPEATED"
)

func (m FieldMode) valid() bool {
	switch m {
	case "", ModeNullable, ModeRequired, ModeRepeated:
		return true
	}
	return false
}

// KeyRole marks a field as part of the table's primary key.
type KeyRole string

const (
	KeyHash  KeyRole = "HASH"
	KeyRange KeyRole = "RANGE"
)

// Field describes one column of a [Schema].
type Field struct {
	Name        string    `yaml:"name"`                  // Column name
	Type        FieldType `yaml:"type"`                  // Column type
	Mode        FieldMode `yaml:"mode,omitempty"`        // Nullability; empty means NULLABLE
	Description string    `yaml:"description,omitempty"` // Optional free text
	Key         KeyRole   `yaml:"key,omitempty"`         // Primary key role, if any
	Fields      []Field   `yaml:"fields,omitempty"`      // Sub-fields of a RECORD
}

// Required reports whether the field must be present in every record.
func (f Field) Required() bool {
	return f.Mode == ModeRequired || f.Key != ""
}

// Schema is the ordered list of fields written to a table.
type Schema struct {
	Fields []Field `yaml:"fields"`
}

// Validate reports whether the schema is well formed.
func (s Schema) Validate() error {
	if len(s.Fields) == 0 {
		return errors.New("schema has no fields")
	}
	if err := validateFields(s.Fields, ""); err != nil {
		return err
	}

	var hash, rng int
	for _, f := range s.Fields {
		switch f.Key {
		case "":
		case KeyHash:
			hash++
		case KeyRange:
			rng++
		default:
			return fmt.Errorf("field %q has unknown key role %q", f.Name, f.Key)
		}
	}
	if hash > 1 || rng > 1 {
		return errors.New("schema has more than one hash or range key")
	}
	if rng == 1 && hash == 0 {
		return errors.New("schema has a range key without a hash key")
	}

	return nil
}

// KeyField returns the top-level field with the given key role.
func (s Schema) KeyField(role KeyRole) (Field, bool) {
	for _, f := range s.Fields {
		if f.Key == role {
			return f, true
		}
	}
	return Field{}, false
}

func validateFields(fields []Field, path string) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		name := path + f.Name
		switch {
		case f.Name == "":
			return fmt.Errorf("field in %q has no name", strings.TrimSuffix(path, "."))
		case seen[f.Name]:
			return fmt.Errorf("duplicate field %q", name)
		case !f.Type.valid():
			return fmt.Errorf("field %q has unknown type %q", name, f.Type)
		case !f.Mode.valid():
			return fmt.Errorf("field %q has unknown mode %q", name, f.Mode)
		case f.Type == TypeRecord && len(f.Fields) == 0:
			return fmt.Errorf("record field %q has no sub-fields", name)
		case f.Type != TypeRecord && len(f.Fields) > 0:
			return fmt.Errorf("field %q of type %s cannot have sub-fields", name, f.Type)
		case path != "" && f.Key != "":
			return fmt.Errorf("nested field %q cannot be a key", name)
		}
		seen[f.Name] = true

		if f.Type == TypeRecord {
			if err := validateFields(f.Fields, name+"."); err != nil {
				return err
			}
		}
	}
	return nil
}
