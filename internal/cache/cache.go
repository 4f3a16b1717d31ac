// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package cache provides a small in-memory LRU cache, used to avoid
// repeatedly re-scanning a parsed Build Manifest's identity list for
// lookups a session performs more than once.
package cache

import "container/list"

// Key may be any comparable value.
type Key interface{}

// LRUCache is a simple LRU cache. The zero value is ready to use.
type LRUCache struct {
	// Size is the maximum number of entries before the least recently
	// used one is evicted. Zero means no limit.
	Size uint

	ll    *list.List
	cache map[Key]*list.Element
}

type entry struct {
	key   Key
	value interface{}
}

// Add inserts value under key, updating its recency, and evicts the least
// recently used entry if Size is exceeded.
func (c *LRUCache) Add(key Key, value interface{}) {
	if c.cache == nil {
		c.cache = make(map[Key]*list.Element)
		c.ll = list.New()
	}
	if e, ok := c.cache[key]; ok {
		c.ll.MoveToFront(e)
		e.Value.(*entry).value = value
		return
	}
	e := c.ll.PushFront(&entry{key, value})
	c.cache[key] = e
	if c.Size != 0 && uint(c.ll.Len()) > c.Size {
		v := c.ll.Remove(c.ll.Back())
		delete(c.cache, v.(*entry).key)
	}
}

// Get returns key's value, updating its recency, and reports whether it
// was present.
func (c *LRUCache) Get(key Key) (interface{}, bool) {
	if c.cache == nil {
		return nil, false
	}
	if e, ok := c.cache[key]; ok {
		c.ll.MoveToFront(e)
		return e.Value.(*entry).value, true
	}
	return nil, false
}

// Len returns the number of entries currently cached.
func (c *LRUCache) Len() int {
	if c.cache == nil {
		return 0
	}
	return c.ll.Len()
}
