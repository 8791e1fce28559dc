/*
Copyright 2024 Waypoint Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package ordering computes positions for items partitioned into named buckets, where each
// bucket presents a contiguous zero-based order. Functions here never touch storage: they
// take the committed rows and return the batch of positions to write.
package ordering

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrItemNotFound  = errors.New("item not found")
	ErrInvalidIndex  = errors.New("invalid target index")
	ErrNotContiguous = errors.New("bucket order is not contiguous")
	ErrDuplicateItem = errors.New("item appears more than once in batch")
)

// Item is the position of one element.
type Item struct {
	ID        int64
	Bucket    string
	SortIndex int
}

// Error carries the item and bucket that caused a failure so callers can retry safely.
type Error struct {
	Err    error
	ItemID int64
	Bucket string
}

func (e *Error) Error() string {
	switch {
	case e.ItemID != 0 && e.Bucket != "":
		return fmt.Sprintf("%s: item %d, bucket %q", e.Err, e.ItemID, e.Bucket)
	case e.ItemID != 0:
		return fmt.Sprintf("%s: item %d", e.Err, e.ItemID)
	default:
		return fmt.Sprintf("%s: bucket %q", e.Err, e.Bucket)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Target describes where an item is dropped. Before takes precedence over Index: dropping
// onto another item inserts immediately in front of it. With neither set the item is
// appended to the bucket.
type Target struct {
	Bucket string
	Index  *int
	Before *int64
}

// Group partitions items by bucket, each list sorted by SortIndex with ID as tie-breaker.
func Group(items []Item) map[string][]Item {
	groups := make(map[string][]Item)
	for _, it := range items {
		groups[it.Bucket] = append(groups[it.Bucket], it)
	}
	for bucket := range groups {
		sortBucket(groups[bucket])
	}
	return groups
}

func sortBucket(list []Item) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].SortIndex != list[j].SortIndex {
			return list[i].SortIndex < list[j].SortIndex
		}
		return list[i].ID < list[j].ID
	})
}

// Seed assigns SortIndex by position in the input, counted per bucket.
func Seed(items []Item) []Item {
	next := make(map[string]int)
	out := make([]Item, len(items))
	for i, it := range items {
		it.SortIndex = next[it.Bucket]
		next[it.Bucket]++
		out[i] = it
	}
	return out
}

// Move relocates one item and returns the positions that changed. Source and target
// buckets are renumbered 0..n-1 in the same pass, so any gap left by earlier deletes in
// those buckets is closed as well. Moving an item onto its own position in a contiguous
// bucket yields an empty batch.
func Move(items []Item, id int64, target Target) ([]Item, error) {
	var moving *Item
	for i := range items {
		if items[i].ID == id {
			moving = &items[i]
			break
		}
	}
	if moving == nil {
		return nil, &Error{Err: ErrItemNotFound, ItemID: id}
	}
	if target.Index != nil && *target.Index < 0 {
		return nil, &Error{Err: ErrInvalidIndex, ItemID: id, Bucket: target.Bucket}
	}

	groups := Group(items)
	original := indexOf(groups[moving.Bucket], id)
	source := removeItem(groups[moving.Bucket], id)
	groups[moving.Bucket] = source

	dest := groups[target.Bucket]
	pos := len(dest)
	switch {
	case target.Before != nil && *target.Before != id:
		pos = indexOf(dest, *target.Before)
		if pos < 0 {
			return nil, &Error{Err: ErrItemNotFound, ItemID: *target.Before, Bucket: target.Bucket}
		}
	case target.Before != nil:
		// Dropped onto itself: keep the current slot.
		if target.Bucket == moving.Bucket {
			pos = original
		}
	case target.Index != nil && *target.Index < len(dest):
		pos = *target.Index
	}

	moved := *moving
	moved.Bucket = target.Bucket
	dest = insertItem(dest, pos, moved)
	groups[target.Bucket] = dest

	after := make(map[int64]Item, len(source)+len(dest))
	for _, list := range [][]Item{source, dest} {
		for i, it := range list {
			it.SortIndex = i
			after[it.ID] = it
		}
	}
	return changed(items, after), nil
}

// Apply overlays a caller-supplied batch on the committed items and returns the batch
// entries that actually change something. Every bucket touched by the batch, as source or
// destination, must come out contiguous; otherwise nothing is returned.
func Apply(items []Item, batch []Item) ([]Item, error) {
	current := make(map[int64]Item, len(items))
	for _, it := range items {
		current[it.ID] = it
	}

	after := make(map[int64]Item, len(batch))
	touched := make(map[string]struct{})
	for _, b := range batch {
		prev, ok := current[b.ID]
		if !ok {
			return nil, &Error{Err: ErrItemNotFound, ItemID: b.ID, Bucket: b.Bucket}
		}
		if _, dup := after[b.ID]; dup {
			return nil, &Error{Err: ErrDuplicateItem, ItemID: b.ID, Bucket: b.Bucket}
		}
		if b.SortIndex < 0 {
			return nil, &Error{Err: ErrInvalidIndex, ItemID: b.ID, Bucket: b.Bucket}
		}
		after[b.ID] = b
		touched[prev.Bucket] = struct{}{}
		touched[b.Bucket] = struct{}{}
	}

	merged := make([]Item, 0, len(items))
	for _, it := range items {
		if b, ok := after[it.ID]; ok {
			merged = append(merged, b)
			continue
		}
		merged = append(merged, it)
	}

	groups := Group(merged)
	buckets := make([]string, 0, len(touched))
	for bucket := range touched {
		buckets = append(buckets, bucket)
	}
	sort.Strings(buckets)
	for _, bucket := range buckets {
		if !Contiguous(groups[bucket]) {
			return nil, &Error{Err: ErrNotContiguous, Bucket: bucket}
		}
	}

	return changed(items, after), nil
}

// Contiguous reports whether the bucket's SortIndex values are exactly 0..n-1.
func Contiguous(list []Item) bool {
	seen := make([]bool, len(list))
	for _, it := range list {
		if it.SortIndex < 0 || it.SortIndex >= len(list) || seen[it.SortIndex] {
			return false
		}
		seen[it.SortIndex] = true
	}
	return true
}

// Overlay returns items with the batch applied, leaving the input untouched.
func Overlay(items []Item, batch []Item) []Item {
	byID := make(map[int64]Item, len(batch))
	for _, b := range batch {
		byID[b.ID] = b
	}
	out := make([]Item, len(items))
	for i, it := range items {
		if b, ok := byID[it.ID]; ok {
			it.Bucket = b.Bucket
			it.SortIndex = b.SortIndex
		}
		out[i] = it
	}
	return out
}

func changed(items []Item, after map[int64]Item) []Item {
	var out []Item
	for _, it := range items {
		next, ok := after[it.ID]
		if !ok {
			continue
		}
		if next.Bucket != it.Bucket || next.SortIndex != it.SortIndex {
			out = append(out, Item{ID: it.ID, Bucket: next.Bucket, SortIndex: next.SortIndex})
		}
	}
	return out
}

func indexOf(list []Item, id int64) int {
	for i, it := range list {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func removeItem(list []Item, id int64) []Item {
	out := make([]Item, 0, len(list))
	for _, it := range list {
		if it.ID != id {
			out = append(out, it)
		}
	}
	return out
}

func insertItem(list []Item, pos int, it Item) []Item {
	out := make([]Item, 0, len(list)+1)
	out = append(out, list[:pos]...)
	out = append(out, it)
	out = append(out, list[pos:]...)
	return out
}
