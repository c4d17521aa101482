package layout

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSizeLimit bounds the conversion cache when config leaves it unset.
const DefaultCacheSizeLimit = 1000

type conversionKey struct {
	instant int64
	zone    string
}

// ConversionCache memoises instant -> display-zone conversions. Entries are
// evicted in insertion order once the size ceiling is reached: lookups go
// through Peek, which never refreshes an entry's position.
//
// The cache is safe for concurrent use, so one instance may be shared by the
// render passes of several HTTP requests.
type ConversionCache struct {
	entries *lru.Cache[conversionKey, time.Time]
	limit   int
}

// NewConversionCache creates a cache holding at most limit entries.
func NewConversionCache(limit int) (*ConversionCache, error) {
	if limit <= 0 {
		limit = DefaultCacheSizeLimit
	}
	c, err := lru.New[conversionKey, time.Time](limit)
	if err != nil {
		return nil, fmt.Errorf("layout: conversion cache: %w", err)
	}
	return &ConversionCache{entries: c, limit: limit}, nil
}

// Convert returns t expressed in loc, consulting the cache first.
func (c *ConversionCache) Convert(t time.Time, loc *time.Location) time.Time {
	if c == nil {
		return t.In(loc)
	}
	key := conversionKey{instant: t.UnixNano(), zone: loc.String()}
	if v, ok := c.entries.Peek(key); ok {
		return v
	}
	v := t.In(loc)
	c.entries.Add(key, v)
	return v
}

// Len reports the number of cached conversions.
func (c *ConversionCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// Limit reports the configured size ceiling.
func (c *ConversionCache) Limit() int {
	if c == nil {
		return 0
	}
	return c.limit
}

// Purge drops every cached conversion.
func (c *ConversionCache) Purge() {
	if c != nil {
		c.entries.Purge()
	}
}

func (c *ConversionCache) contains(t time.Time, loc *time.Location) bool {
	_, ok := c.entries.Peek(conversionKey{instant: t.UnixNano(), zone: loc.String()})
	return ok
}
