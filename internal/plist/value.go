// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package plist provides a tagged-variant property-list tree with typed
// accessors, replacing the pervasive "check kind, then extract" boilerplate
// that a raw interface{} decode would otherwise require throughout the
// manifest, ticket, and version-catalogue consumers.
package plist

import (
	"bytes"
	"fmt"

	applist "howett.net/plist"
)

// Kind identifies the underlying shape of a Value.
type Kind int

const (
	// KindInvalid marks a zero Value.
	KindInvalid Kind = iota
	// KindDict is a string-keyed dictionary.
	KindDict
	// KindArray is an ordered list.
	KindArray
	// KindString is a UTF-8 string.
	KindString
	// KindData is an opaque byte string.
	KindData
	// KindInteger is a signed integer.
	KindInteger
	// KindBool is a boolean.
	KindBool
)

// Value is a tagged-variant node of a decoded property list.
type Value struct {
	kind Kind
	dict map[string]*Value
	// keys records the key order of Dict values, since plain Go maps keep
	// none: insertion order for keys added with Set; for a decoded Dict,
	// the unspecified iteration order of the decoder's map.
	keys []string
	arr  []*Value
	str  string
	data []byte
	i    int64
	b    bool
}

// Kind returns the node's variant tag.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindInvalid
	}
	return v.kind
}

// Decode parses raw bytes (binary or XML property list) into a Value tree.
func Decode(raw []byte) (*Value, error) {
	var native interface{}
	if _, err := applist.Unmarshal(raw, &native); err != nil {
		return nil, fmt.Errorf("plist: decode: %w", err)
	}
	return fromNative(native), nil
}

func fromNative(native interface{}) *Value {
	switch t := native.(type) {
	case map[string]interface{}:
		v := &Value{kind: KindDict, dict: make(map[string]*Value, len(t))}
		for k, e := range t {
			v.keys = append(v.keys, k)
			v.dict[k] = fromNative(e)
		}
		return v
	case []interface{}:
		v := &Value{kind: KindArray}
		for _, e := range t {
			v.arr = append(v.arr, fromNative(e))
		}
		return v
	case string:
		return &Value{kind: KindString, str: t}
	case []byte:
		return &Value{kind: KindData, data: t}
	case bool:
		return &Value{kind: KindBool, b: t}
	case int64:
		return &Value{kind: KindInteger, i: t}
	case uint64:
		return &Value{kind: KindInteger, i: int64(t)}
	case int:
		return &Value{kind: KindInteger, i: int64(t)}
	default:
		return &Value{kind: KindInvalid}
	}
}

func (v *Value) toNative() interface{} {
	if v == nil {
		return nil
	}
	switch v.kind {
	case KindDict:
		m := make(map[string]interface{}, len(v.dict))
		for k, e := range v.dict {
			m[k] = e.toNative()
		}
		return m
	case KindArray:
		a := make([]interface{}, len(v.arr))
		for i, e := range v.arr {
			a[i] = e.toNative()
		}
		return a
	case KindString:
		return v.str
	case KindData:
		return v.data
	case KindBool:
		return v.b
	case KindInteger:
		return v.i
	default:
		return nil
	}
}

// EncodeBinary serializes the Value tree as a compact binary property list.
func (v *Value) EncodeBinary() ([]byte, error) {
	var buf bytes.Buffer
	enc := applist.NewEncoderForFormat(&buf, applist.BinaryFormat)
	if err := enc.Encode(v.toNative()); err != nil {
		return nil, fmt.Errorf("plist: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeXML serializes the Value tree as an XML property list.
func (v *Value) EncodeXML() ([]byte, error) {
	var buf bytes.Buffer
	enc := applist.NewEncoderForFormat(&buf, applist.XMLFormat)
	if err := enc.Encode(v.toNative()); err != nil {
		return nil, fmt.Errorf("plist: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// NewDict constructs an empty dictionary Value.
func NewDict() *Value {
	return &Value{kind: KindDict, dict: make(map[string]*Value)}
}

// NewString constructs a string Value.
func NewString(s string) *Value { return &Value{kind: KindString, str: s} }

// NewData constructs a data Value.
func NewData(b []byte) *Value { return &Value{kind: KindData, data: b} }

// NewInteger constructs an integer Value.
func NewInteger(i int64) *Value { return &Value{kind: KindInteger, i: i} }

// NewBool constructs a boolean Value.
func NewBool(b bool) *Value { return &Value{kind: KindBool, b: b} }

// NewArray constructs an array Value from its elements.
func NewArray(elems ...*Value) *Value {
	return &Value{kind: KindArray, arr: elems}
}

// Append adds child to the end of an array Value. Panics if v is not an
// array.
func (v *Value) Append(child *Value) {
	if v.kind != KindArray {
		panic("plist: Append on non-array Value")
	}
	v.arr = append(v.arr, child)
}

// Set inserts or replaces a key in a dictionary Value. Panics if v is not a
// dictionary.
func (v *Value) Set(key string, child *Value) {
	if v.kind != KindDict {
		panic("plist: Set on non-dict Value")
	}
	if _, exists := v.dict[key]; !exists {
		v.keys = append(v.keys, key)
	}
	v.dict[key] = child
}

// Get looks up key in a dictionary Value, returning nil if absent or if v is
// not a dictionary.
func (v *Value) Get(key string) *Value {
	if v == nil || v.kind != KindDict {
		return nil
	}
	return v.dict[key]
}

// Path walks successive dictionary keys, returning nil if any hop is
// missing or not a dictionary.
func (v *Value) Path(keys ...string) *Value {
	cur := v
	for _, k := range keys {
		cur = cur.Get(k)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Keys returns a dictionary Value's keys, in insertion order for keys added
// with Set. For a dictionary produced by Decode the order is unspecified.
func (v *Value) Keys() []string {
	if v == nil || v.kind != KindDict {
		return nil
	}
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

// Len returns the number of entries in a dictionary or array Value.
func (v *Value) Len() int {
	if v == nil {
		return 0
	}
	switch v.kind {
	case KindDict:
		return len(v.dict)
	case KindArray:
		return len(v.arr)
	default:
		return 0
	}
}

// Index returns the i'th element of an array Value, or nil if out of range
// or v is not an array.
func (v *Value) Index(i int) *Value {
	if v == nil || v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return nil
	}
	return v.arr[i]
}

// String returns the string payload, or "" if v is not a string.
func (v *Value) String() string {
	if v == nil || v.kind != KindString {
		return ""
	}
	return v.str
}

// Data returns the data payload, or nil if v is not data.
func (v *Value) Data() []byte {
	if v == nil || v.kind != KindData {
		return nil
	}
	return v.data
}

// Integer returns the integer payload, or 0 if v is not an integer.
func (v *Value) Integer() int64 {
	if v == nil || v.kind != KindInteger {
		return 0
	}
	return v.i
}

// Bool returns the boolean payload, or false if v is not a boolean.
func (v *Value) Bool() bool {
	if v == nil || v.kind != KindBool {
		return false
	}
	return v.b
}

// Clone deep-copies v so that mutations of the returned tree never leak back
// into the source (used by the Manifest Resolver's copy-on-return
// discipline).
func (v *Value) Clone() *Value {
	if v == nil {
		return nil
	}
	switch v.kind {
	case KindDict:
		c := &Value{kind: KindDict, dict: make(map[string]*Value, len(v.dict)), keys: append([]string(nil), v.keys...)}
		for k, e := range v.dict {
			c.dict[k] = e.Clone()
		}
		return c
	case KindArray:
		c := &Value{kind: KindArray, arr: make([]*Value, len(v.arr))}
		for i, e := range v.arr {
			c.arr[i] = e.Clone()
		}
		return c
	case KindData:
		d := make([]byte, len(v.data))
		copy(d, v.data)
		return &Value{kind: KindData, data: d}
	default:
		cp := *v
		return &cp
	}
}
