// Package settings provides a persistent key/value store with nested groups
// and indexed arrays. Keys are paths joined with "/"; arrays are stored as
// 1-based children of the array name with a "size" entry.
package settings

import (
	"encoding/base64"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

const byteArrayPrefix = "@ByteArray("

// Settings is a hierarchical key/value store backed by a file
type Settings struct {
	path   string
	codec  Codec
	values map[string]string
	frames []frame
	dirty  bool
}

type frame struct {
	name  string
	array bool
	write bool
	index int // -1 until SetArrayIndex is called
	size  int
}

// Open loads the store at path. A missing file yields an empty store that is
// created on the first Sync.
func Open(path string) (*Settings, error) {
	codec, err := CodecFor(path)
	if err != nil {
		return nil, err
	}

	s := &Settings{
		path:   path,
		codec:  codec,
		values: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	values, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	s.values = values

	return s, nil
}

// Create returns an empty store bound to path, replacing any existing
// content on the next Sync
func Create(path string) (*Settings, error) {
	codec, err := CodecFor(path)
	if err != nil {
		return nil, err
	}
	return &Settings{
		path:   path,
		codec:  codec,
		values: make(map[string]string),
		dirty:  true,
	}, nil
}

// NewMemory returns a store that is never written to disk
func NewMemory() *Settings {
	return &Settings{values: make(map[string]string)}
}

// FileName returns the backing file path, empty for in-memory stores
func (s *Settings) FileName() string {
	return s.path
}

// Group returns the current key prefix
func (s *Settings) Group() string {
	var parts []string
	for _, f := range s.frames {
		parts = append(parts, f.name)
		if f.array && f.index >= 0 {
			parts = append(parts, strconv.Itoa(f.index+1))
		}
	}
	return strings.Join(parts, "/")
}

func (s *Settings) fullKey(key string) string {
	prefix := s.Group()
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "/" + key
	}
}

// BeginGroup appends name to the current prefix
func (s *Settings) BeginGroup(name string) {
	s.frames = append(s.frames, frame{name: name, index: -1})
}

// EndGroup restores the prefix active before the matching BeginGroup
func (s *Settings) EndGroup() {
	s.pop()
}

// BeginReadArray enters the array name and returns its stored size
func (s *Settings) BeginReadArray(name string) int {
	size := s.Int(name+"/size", 0)
	s.frames = append(s.frames, frame{name: name, array: true, index: -1, size: size})
	return size
}

// BeginWriteArray enters the array name for writing; its size is recorded
// by EndArray
func (s *Settings) BeginWriteArray(name string) {
	s.frames = append(s.frames, frame{name: name, array: true, write: true, index: -1})
}

// SetArrayIndex selects the array element that subsequent keys refer to
func (s *Settings) SetArrayIndex(i int) {
	if len(s.frames) == 0 || !s.frames[len(s.frames)-1].array {
		return
	}
	f := &s.frames[len(s.frames)-1]
	f.index = i
	if f.write && i+1 > f.size {
		f.size = i + 1
	}
}

// EndArray leaves the current array, writing its size if it was opened for writing
func (s *Settings) EndArray() {
	if len(s.frames) == 0 {
		return
	}
	f := s.frames[len(s.frames)-1]
	s.pop()
	if f.array && f.write {
		s.SetValue(f.name+"/size", f.size)
	}
}

func (s *Settings) pop() {
	if len(s.frames) > 0 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

// Value returns the raw string stored under key
func (s *Settings) Value(key string) (string, bool) {
	v, ok := s.values[s.fullKey(key)]
	return v, ok
}

// Contains reports whether key holds a value
func (s *Settings) Contains(key string) bool {
	_, ok := s.Value(key)
	return ok
}

// String returns the value under key or def
func (s *Settings) String(key, def string) string {
	if v, ok := s.Value(key); ok {
		return v
	}
	return def
}

// Int returns the integer under key, or def when absent or malformed
func (s *Settings) Int(key string, def int) int {
	v, ok := s.Value(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// Bool returns the boolean under key, or def when absent or malformed
func (s *Settings) Bool(key string, def bool) bool {
	v, ok := s.Value(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// Bytes returns binary data stored with SetValue([]byte)
func (s *Settings) Bytes(key string) ([]byte, bool) {
	v, ok := s.Value(key)
	if !ok {
		return nil, false
	}
	if strings.HasPrefix(v, byteArrayPrefix) && strings.HasSuffix(v, ")") {
		v = v[len(byteArrayPrefix) : len(v)-1]
	}
	data, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetValue stores value under key. Strings, integers, booleans and byte
// slices are supported; anything else is stored with fmt.Sprint.
func (s *Settings) SetValue(key string, value any) {
	var str string
	switch v := value.(type) {
	case string:
		str = v
	case int:
		str = strconv.Itoa(v)
	case bool:
		str = strconv.FormatBool(v)
	case []byte:
		str = byteArrayPrefix + base64.StdEncoding.EncodeToString(v) + ")"
	default:
		str = fmt.Sprint(v)
	}
	s.values[s.fullKey(key)] = str
	s.dirty = true
}

// Remove deletes key and everything below it. An empty key removes the
// whole current group.
func (s *Settings) Remove(key string) {
	target := s.fullKey(key)
	for k := range s.values {
		if target == "" || k == target || strings.HasPrefix(k, target+"/") {
			delete(s.values, k)
			s.dirty = true
		}
	}
}

// AllKeys returns every key below the current group, relative to it, sorted
func (s *Settings) AllKeys() []string {
	prefix := s.Group()
	var keys []string
	for k := range s.values {
		switch {
		case prefix == "":
			keys = append(keys, k)
		case strings.HasPrefix(k, prefix+"/"):
			keys = append(keys, strings.TrimPrefix(k, prefix+"/"))
		}
	}
	sort.Strings(keys)
	return keys
}

// Sync writes pending changes to the backing file
func (s *Settings) Sync() error {
	if s.path == "" || !s.dirty {
		return nil
	}

	data, err := s.codec.Encode(s.values)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if err := atomicWrite(s.path, data); err != nil {
		return err
	}

	s.dirty = false
	return nil
}
