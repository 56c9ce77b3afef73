// Package pipeline reads, writes, cleans and generates workout datasets.
package pipeline

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"fitlife/ml"
)

// Decode wraps r so it yields UTF-8 from the named charset. Empty means UTF-8.
func Decode(r io.Reader, charset string) (io.Reader, error) {
	if charset == "" {
		return r, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, errors.Wrapf(err, "unknown charset %q", charset)
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return r, nil
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// ReadARFF parses an ARFF document into a validated dataset. The last attribute is the class.
func ReadARFF(r io.Reader) (*ml.Dataset, error) {
	p := &arffParser{scanner: bufio.NewScanner(r)}
	schema, err := p.header()
	if err != nil {
		return nil, err
	}
	examples, err := p.data(schema)
	if err != nil {
		return nil, err
	}
	return ml.NewDataset(schema, examples)
}

// ReadSchema parses only the ARFF header.
func ReadSchema(r io.Reader) (ml.Schema, error) {
	p := &arffParser{scanner: bufio.NewScanner(r)}
	schema, err := p.header()
	if err != nil {
		return ml.Schema{}, err
	}
	return schema, schema.Validate()
}

// ReadFile reads a dataset from an ARFF file in the given charset.
func ReadFile(path, charset string) (*ml.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := Decode(f, charset)
	if err != nil {
		return nil, err
	}
	ds, err := ReadARFF(r)
	return ds, errors.Wrap(err, path)
}

// ReadSchemaFile reads the schema from the header of an ARFF file.
func ReadSchemaFile(path, charset string) (ml.Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return ml.Schema{}, err
	}
	defer f.Close()
	r, err := Decode(f, charset)
	if err != nil {
		return ml.Schema{}, err
	}
	schema, err := ReadSchema(r)
	return schema, errors.Wrap(err, path)
}

type arffParser struct {
	scanner *bufio.Scanner
	line    int
}

// next returns the next line that is neither blank nor a comment.
func (p *arffParser) next() (string, bool) {
	for p.scanner.Scan() {
		p.line++
		line := strings.TrimSpace(p.scanner.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		return line, true
	}
	return "", false
}

func (p *arffParser) errorf(format string, args ...interface{}) error {
	return errors.Wrapf(ml.ErrInvalidDataset, "line %d: "+format, append([]interface{}{p.line}, args...)...)
}

func (p *arffParser) header() (ml.Schema, error) {
	var schema ml.Schema
	for {
		line, ok := p.next()
		if !ok {
			if err := p.scanner.Err(); err != nil {
				return schema, err
			}
			return schema, errors.Wrap(ml.ErrInvalidDataset, "missing @data section")
		}
		keyword, rest := splitKeyword(line)
		switch strings.ToLower(keyword) {
		case "@relation":
			name, _ := nextToken(rest)
			schema.Relation = name
		case "@attribute":
			attr, err := p.attribute(rest)
			if err != nil {
				return schema, err
			}
			schema.Attributes = append(schema.Attributes, attr)
		case "@data":
			return schema, nil
		default:
			return schema, p.errorf("unexpected %q in header", keyword)
		}
	}
}

func (p *arffParser) attribute(decl string) (ml.Attribute, error) {
	name, rest := nextToken(decl)
	if name == "" {
		return ml.Attribute{}, p.errorf("attribute without a name")
	}
	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "{") {
		end := strings.LastIndex(rest, "}")
		if end < 0 {
			return ml.Attribute{}, p.errorf("unterminated value list for %q", name)
		}
		values := lo.Map(splitValues(rest[1:end]), func(v string, _ int) string { return unquote(v) })
		values = lo.Filter(values, func(v string, _ int) bool { return v != "" })
		return ml.Attribute{Name: name, Kind: ml.Categorical, Values: values}, nil
	}
	switch kind, _ := nextToken(rest); strings.ToLower(kind) {
	case "numeric", "real", "integer":
		return ml.Attribute{Name: name, Kind: ml.Numeric}, nil
	default:
		return ml.Attribute{}, p.errorf("attribute %q has unsupported type %q", name, kind)
	}
}

func (p *arffParser) data(schema ml.Schema) ([]ml.Example, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	features := schema.FeatureCount()
	var examples []ml.Example
	for {
		line, ok := p.next()
		if !ok {
			return examples, p.scanner.Err()
		}
		if strings.HasPrefix(line, "{") {
			return nil, p.errorf("sparse rows are not supported")
		}
		values := splitValues(line)
		if len(values) != features+1 {
			return nil, p.errorf("got %d values, want %d", len(values), features+1)
		}
		vector := make(ml.FeatureVector, features)
		for i := 0; i < features; i++ {
			raw := unquote(values[i])
			if raw == "?" {
				return nil, p.errorf("missing value for %q", schema.Attributes[i].Name)
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, p.errorf("%q is not numeric: %s", schema.Attributes[i].Name, raw)
			}
			vector[i] = v
		}
		label := unquote(values[features])
		if label == "?" {
			return nil, p.errorf("missing class value")
		}
		examples = append(examples, ml.Example{Features: vector, Label: label})
	}
}

// splitKeyword splits "@attribute rest" at the first run of whitespace.
func splitKeyword(line string) (string, string) {
	idx := strings.IndexAny(line, " \t")
	if idx < 0 {
		return line, ""
	}
	return line[:idx], strings.TrimSpace(line[idx+1:])
}

// nextToken returns the first, possibly quoted, token of s and the remainder.
func nextToken(s string) (string, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	if q := s[0]; q == '\'' || q == '"' {
		for i := 1; i < len(s); i++ {
			if s[i] == '\\' {
				i++
				continue
			}
			if s[i] == q {
				return unquote(s[:i+1]), s[i+1:]
			}
		}
		return unquote(s), ""
	}
	idx := strings.IndexAny(s, " \t{")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx:]
}

// splitValues splits a comma separated row, keeping commas inside quotes.
func splitValues(line string) []string {
	var (
		values []string
		cur    strings.Builder
		quote  byte
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			cur.WriteByte(c)
			if c == '\\' && i+1 < len(line) {
				i++
				cur.WriteByte(line[i])
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
			cur.WriteByte(c)
		case c == ',':
			values = append(values, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(values, strings.TrimSpace(cur.String()))
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		inner := s[1 : len(s)-1]
		return strings.NewReplacer(`\\`, `\`, `\'`, `'`, `\"`, `"`).Replace(inner)
	}
	return s
}

// WriteARFF writes ds as an ARFF document.
func WriteARFF(w io.Writer, ds *ml.Dataset) error {
	bw := bufio.NewWriter(w)
	relation := ds.Schema.Relation
	if relation == "" {
		relation = "dataset"
	}
	bw.WriteString("@relation " + quote(relation) + "\n\n")
	for _, a := range ds.Schema.Attributes {
		if a.Kind == ml.Categorical {
			values := lo.Map(a.Values, func(v string, _ int) string { return quote(v) })
			bw.WriteString("@attribute " + quote(a.Name) + " {" + strings.Join(values, ",") + "}\n")
		} else {
			bw.WriteString("@attribute " + quote(a.Name) + " numeric\n")
		}
	}
	bw.WriteString("\n@data\n")
	for _, ex := range ds.Examples {
		for _, v := range ex.Features {
			bw.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
			bw.WriteByte(',')
		}
		bw.WriteString(quote(ex.Label))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func quote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t,{}'\"%") {
		return s
	}
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s) + "'"
}
