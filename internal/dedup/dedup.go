package dedup

import "fmt"

// Window is the id range a dedup pass may touch.
type Window struct {
	Cursor int64
	Limit  int64
}

// Upper returns the inclusive upper id bound of the window.
func (w Window) Upper() int64 {
	if w.Limit <= 0 {
		return w.Cursor
	}
	return w.Cursor + w.Limit
}

// Contains reports whether id falls inside the window.
func (w Window) Contains(id int64) bool {
	return id > w.Cursor && id <= w.Upper()
}

// Statement is a parameterized SQL statement.
type Statement struct {
	SQL  string
	Args []any
}

// Empty reports whether the statement has nothing to execute.
func (s Statement) Empty() bool {
	return s.SQL == ""
}

// Table and column names the generated statement runs against.
const (
	Table     = "queue_rows"
	colID     = "id"
	colIndex  = "index_name"
	colKey    = "chunk_key"
	deleteSQL = `DELETE FROM %[1]s
WHERE %[3]s = ? AND %[2]s > ? AND %[2]s <= ?
  AND EXISTS (
    SELECT 1 FROM %[1]s AS older
    WHERE older.%[3]s = %[1]s.%[3]s
      AND older.%[4]s = %[1]s.%[4]s
      AND older.%[2]s > ?
      AND older.%[2]s < %[1]s.%[2]s
  )`
)

var deleteStatement = fmt.Sprintf(deleteSQL, Table, colID, colIndex, colKey)

// Query builds the statement deleting every row in the window whose chunk key
// already appears with a smaller id in the same window.
func Query(index string, w Window) Statement {
	if w.Upper() <= w.Cursor {
		return Statement{}
	}
	return Statement{
		SQL:  deleteStatement,
		Args: []any{index, w.Cursor, w.Upper(), w.Cursor},
	}
}

// Entry is the minimal view of a queue row needed for an in-memory pass.
type Entry struct {
	ID  int64
	Key string
}

// Collapse keeps the first entry per key in id order and reports the ids of
// the rest. Input order is preserved for survivors.
func Collapse(entries []Entry) (survivors []Entry, removed []int64) {
	minByKey := make(map[string]int64, len(entries))
	for _, e := range entries {
		if current, ok := minByKey[e.Key]; !ok || e.ID < current {
			minByKey[e.Key] = e.ID
		}
	}
	survivors = make([]Entry, 0, len(minByKey))
	for _, e := range entries {
		if minByKey[e.Key] == e.ID {
			survivors = append(survivors, e)
			continue
		}
		removed = append(removed, e.ID)
	}
	return survivors, removed
}
