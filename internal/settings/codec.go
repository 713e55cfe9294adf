package settings

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// generalSection holds top-level keys in INI files
const generalSection = "General"

// Codec converts between the flat key map and a file format
type Codec interface {
	Decode(data []byte) (map[string]string, error)
	Encode(values map[string]string) ([]byte, error)
}

// CodecFor selects a codec by file extension
func CodecFor(path string) (Codec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".conf", ".ini", ".cfg":
		return INICodec{}, nil
	case ".yaml", ".yml":
		return YAMLCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported settings format %q", filepath.Ext(path))
	}
}

// INICodec stores the first key component as the section name and the
// remainder joined with backslashes. Values ini.v1 would alter on the way
// back (quotes, surrounding spaces, line breaks, backticks, control
// characters) are written as Go-quoted strings.
type INICodec struct{}

func iniOptions() ini.LoadOptions {
	return ini.LoadOptions{
		IgnoreInlineComment:     true,
		IgnoreContinuation:      true,
		PreserveSurroundedQuote: true,
		KeyValueDelimiters:      "=",
	}
}

func needsQuoting(v string) bool {
	if v != strings.TrimSpace(v) || !utf8.ValidString(v) {
		return true
	}
	for _, r := range v {
		switch {
		case r == '"', r == '\'', r == '`':
			return true
		case !unicode.IsPrint(r):
			return true
		}
	}
	return false
}

func quoteINIValue(v string) string {
	if !needsQuoting(v) {
		return v
	}
	return strings.ReplaceAll(strconv.Quote(v), "`", `\x60`)
}

func unquoteINIValue(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		if s, err := strconv.Unquote(v); err == nil {
			return s
		}
	}
	return v
}

// Decode parses INI data
func (INICodec) Decode(data []byte) (map[string]string, error) {
	f, err := ini.LoadSources(iniOptions(), data)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	for _, sec := range f.Sections() {
		prefix := sec.Name()
		if prefix == ini.DefaultSection || prefix == generalSection {
			prefix = ""
		}
		for _, k := range sec.Keys() {
			key := strings.ReplaceAll(k.Name(), `\`, "/")
			if prefix != "" {
				key = prefix + "/" + key
			}
			values[key] = unquoteINIValue(k.Value())
		}
	}
	return values, nil
}

// Encode renders values as INI
func (INICodec) Encode(values map[string]string) ([]byte, error) {
	f := ini.Empty(iniOptions())

	for _, key := range sortedKeys(values) {
		section, name := generalSection, key
		if i := strings.IndexByte(key, '/'); i >= 0 {
			section, name = key[:i], key[i+1:]
		}
		sec := f.Section(section)
		if _, err := sec.NewKey(strings.ReplaceAll(name, "/", `\`), quoteINIValue(values[key])); err != nil {
			return nil, fmt.Errorf("failed to add key %s: %w", key, err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// YAMLCodec stores keys as nested mappings
type YAMLCodec struct{}

// Decode parses YAML data
func (YAMLCodec) Decode(data []byte) (map[string]string, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}

	values := make(map[string]string)
	flatten("", tree, values)
	return values, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "/" + k
		}
		switch child := v.(type) {
		case map[string]any:
			flatten(key, child, out)
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(child)
		}
	}
}

// Encode renders values as YAML
func (YAMLCodec) Encode(values map[string]string) ([]byte, error) {
	tree := make(map[string]any)

	for _, key := range sortedKeys(values) {
		parts := strings.Split(key, "/")
		node := tree
		for _, part := range parts[:len(parts)-1] {
			next, ok := node[part]
			if !ok {
				child := make(map[string]any)
				node[part] = child
				node = child
				continue
			}
			child, ok := next.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("key %q is both a value and a group", part)
			}
			node = child
		}
		leaf := parts[len(parts)-1]
		if _, exists := node[leaf]; exists {
			return nil, fmt.Errorf("key %q is both a value and a group", key)
		}
		node[leaf] = values[key]
	}

	return yaml.Marshal(tree)
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
