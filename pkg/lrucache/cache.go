// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package lrucache provides a small in-memory LRU with per-entry TTLs,
// used for pipe attributes in the SQL store. Rowcounts are not cached.
package lrucache

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key        string
	value      interface{}
	size       int
	expiration time.Time
}

type Cache struct {
	mutex     sync.Mutex
	maxmemory int
	used      int
	entries   map[string]*list.Element
	order     *list.List
}

// New returns a cache bounded by maxmemory, where each Put declares a
// size estimate in the same unit.
func New(maxmemory int) *Cache {
	return &Cache{
		maxmemory: maxmemory,
		entries:   map[string]*list.Element{},
		order:     list.New(),
	}
}

// Get returns the cached value for key, or nil when absent or expired.
func (c *Cache) Get(key string) interface{} {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil
	}
	e := el.Value.(*entry)
	if time.Now().After(e.expiration) {
		c.evict(el)
		return nil
	}
	c.order.MoveToFront(el)
	return e.value
}

// Put stores value under key for ttl, evicting least-recently-used
// entries until the size budget holds.
func (c *Cache) Put(key string, value interface{}, size int, ttl time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if el, ok := c.entries[key]; ok {
		c.evict(el)
	}
	e := &entry{key: key, value: value, size: size, expiration: time.Now().Add(ttl)}
	c.entries[key] = c.order.PushFront(e)
	c.used += size

	for c.used > c.maxmemory && c.order.Len() > 0 {
		c.evict(c.order.Back())
	}
}

// Del drops key if present.
func (c *Cache) Del(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if el, ok := c.entries[key]; ok {
		c.evict(el)
	}
}

func (c *Cache) evict(el *list.Element) {
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.entries, e.key)
	c.used -= e.size
}
