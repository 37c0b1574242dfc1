package gqlfixture

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
)

type row = map[string]interface{}

// Data is the mutable backing store of the fixture server.
type Data struct {
	mu     sync.Mutex
	tables map[string]map[string]row
	nextID map[string]int
}

// NewData returns the seeded fixture data.
func NewData() *Data {
	d := &Data{
		tables: map[string]map[string]row{},
		nextID: map[string]int{},
	}
	d.insert("profiles", row{"id": "1", "email": "charlie@peanuts.com", "age": 8, "sex": true})
	d.insert("profiles", row{"id": "2", "email": "peppermint@peanuts.com", "age": 9, "sex": false})
	d.insert("users", row{"id": "1", "name": "Charlie Brown", "profileId": "1"})
	d.insert("users", row{"id": "2", "name": "Peppermint Patty", "profileId": "2"})
	d.insert("posts", row{"id": "1", "content": "GraphQL is so nice!", "title": "GraphQL", "otherId": 123, "published": true, "authorId": "1"})
	d.insert("posts", row{"id": "2", "content": "Vue is so nice!", "title": "Vue", "otherId": 42, "published": true, "authorId": "2"})
	d.insert("posts", row{"id": "3", "content": "Drafts are hidden", "title": "Draft", "otherId": 7, "published": false, "authorId": "1"})
	d.insert("comments", row{"id": "1", "content": "Yes!!!!", "commentableId": "1", "commentableType": "Post"})
	d.insert("comments", row{"id": "2", "content": "So true", "commentableId": "1", "commentableType": "Post"})
	d.insert("categories", row{"id": "1", "name": "Root", "parentId": nil})
	d.insert("categories", row{"id": "2", "name": "Child", "parentId": "1"})
	return d
}

func (d *Data) insert(table string, r row) row {
	if d.tables[table] == nil {
		d.tables[table] = map[string]row{}
	}
	id := idString(r["id"])
	if id == "" {
		d.nextID[table]++
		id = strconv.Itoa(d.nextID[table])
		r["id"] = id
	}
	if n, err := strconv.Atoi(id); err == nil && n > d.nextID[table] {
		d.nextID[table] = n
	}
	d.tables[table][id] = r
	return r
}

// Get returns a copy of one row.
func (d *Data) Get(table string, id interface{}) row {
	d.mu.Lock()
	defer d.mu.Unlock()
	return copyRow(d.tables[table][idString(id)])
}

// List returns copies of all rows of table, ordered by id, that match every
// entry of filter.
func (d *Data) List(table string, filter map[string]interface{}) []interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.tables[table]))
	for id := range d.tables[table] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.Atoi(ids[i])
		b, _ := strconv.Atoi(ids[j])
		return a < b
	})
	out := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		r := d.tables[table][id]
		if matches(r, filter) {
			out = append(out, copyRow(r))
		}
	}
	return out
}

// Save inserts or replaces a row and returns a copy.
func (d *Data) Save(table string, r row) row {
	d.mu.Lock()
	defer d.mu.Unlock()
	return copyRow(d.insert(table, copyRow(r)))
}

// Delete removes a row and returns the removed copy.
func (d *Data) Delete(table string, id interface{}) row {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := idString(id)
	r := d.tables[table][key]
	delete(d.tables[table], key)
	return copyRow(r)
}

func matches(r row, filter map[string]interface{}) bool {
	for k, v := range filter {
		if v == nil {
			continue
		}
		if fmt.Sprint(r[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

func copyRow(r row) row {
	if r == nil {
		return nil
	}
	out := make(row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func idString(v interface{}) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}
