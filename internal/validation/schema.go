package validation

import (
	"errors"
	"fmt"
	"os"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var ErrInvalidSchema = errors.New("invalid schema")

// Column is one declared dataset column and its declared type.
type Column struct {
	Name string
	Type string
}

// Schema is the ordered column declaration the ingested data must match.
type Schema struct {
	Columns          []Column
	NumericalColumns []string
}

type schemaFile struct {
	Columns          columnList `yaml:"columns"`
	NumericalColumns []string   `yaml:"numerical_columns"`
}

// columnList accepts both a mapping of name to type and a sequence of
// single-entry mappings, keeping declaration order in either case.
type columnList []Column

func (l *columnList) UnmarshalYAML(node *yaml.Node) error {
	var out columnList
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			out = append(out, Column{Name: node.Content[i].Value, Type: node.Content[i+1].Value})
		}
	case yaml.SequenceNode:
		for _, item := range node.Content {
			switch item.Kind {
			case yaml.MappingNode:
				if len(item.Content) != 2 {
					return fmt.Errorf("line %d: column entry must hold exactly one name", item.Line)
				}
				out = append(out, Column{Name: item.Content[0].Value, Type: item.Content[1].Value})
			case yaml.ScalarNode:
				out = append(out, Column{Name: item.Value})
			default:
				return fmt.Errorf("line %d: unsupported column entry", item.Line)
			}
		}
	default:
		return fmt.Errorf("line %d: columns must be a mapping or a sequence", node.Line)
	}
	*l = out
	return nil
}

func LoadSchema(path string) (Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("read schema: %w", err)
	}
	return ParseSchema(raw)
}

func ParseSchema(raw []byte) (Schema, error) {
	var file schemaFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Schema{}, pkgerrors.WithStack(fmt.Errorf("%w: %v", ErrInvalidSchema, err))
	}
	s := Schema{Columns: file.Columns, NumericalColumns: file.NumericalColumns}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}

func (s Schema) Validate() error {
	if len(s.Columns) == 0 {
		return pkgerrors.WithStack(fmt.Errorf("%w: no columns declared", ErrInvalidSchema))
	}
	seen := make(map[string]bool, len(s.Columns))
	for i, col := range s.Columns {
		name := strings.TrimSpace(col.Name)
		if name == "" {
			return pkgerrors.WithStack(fmt.Errorf("%w: columns[%d] has no name", ErrInvalidSchema, i))
		}
		if seen[name] {
			return pkgerrors.WithStack(fmt.Errorf("%w: duplicate column %q", ErrInvalidSchema, name))
		}
		seen[name] = true
	}
	for _, name := range s.NumericalColumns {
		if !seen[name] {
			return pkgerrors.WithStack(fmt.Errorf("%w: numerical column %q is not declared", ErrInvalidSchema, name))
		}
	}
	return nil
}

func (s Schema) ColumnNames() []string {
	out := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		out[i] = col.Name
	}
	return out
}

// SchemaResult reports how a column set compares with the schema.
type SchemaResult struct {
	Valid    bool     `yaml:"valid"`
	Expected int      `yaml:"expected_columns"`
	Observed int      `yaml:"observed_columns"`
	Missing  []string `yaml:"missing,omitempty"`
	Extra    []string `yaml:"extra,omitempty"`
}

// Check compares column names with the schema. Order does not matter, and
// the column count must equal the declared count.
func (s Schema) Check(columns []string) SchemaResult {
	names := s.ColumnNames()
	res := SchemaResult{Expected: len(names), Observed: len(columns)}
	declared := make(map[string]bool, len(names))
	for _, name := range names {
		declared[name] = true
	}
	present := make(map[string]bool, len(columns))
	for _, name := range columns {
		present[name] = true
		if !declared[name] {
			res.Extra = append(res.Extra, name)
		}
	}
	for _, name := range names {
		if !present[name] {
			res.Missing = append(res.Missing, name)
		}
	}
	res.Valid = res.Observed == res.Expected && len(res.Missing) == 0 && len(res.Extra) == 0
	return res
}
