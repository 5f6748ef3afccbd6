// Package mutation turns decoded events into storage mutations.
//
// A Mutation is a closed set of three operations: Insert, Update and Delete.
// The store applies them in order inside one transaction; this package only
// describes them and never touches a database.
package mutation

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/eventidx/internal/ir"
)

// Op is the kind of storage operation.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Mutation is one storage operation against an entity table.
type Mutation interface {
	Op() Op
	Table() Table
	String() string
	mutation() // sealed
}

// Insert adds Row to Target. A conflict on the table's natural key is a no-op.
type Insert struct {
	Target Table
	Row    ir.IRObject
}

// Update sets columns on the rows of Target matching every column in Key.
// Matching zero rows is not an error.
type Update struct {
	Target Table
	Key    ir.IRObject
	Set    ir.IRObject
}

// Delete removes the rows of Target matching every column in Key.
type Delete struct {
	Target Table
	Key    ir.IRObject
}

func (Insert) Op() Op { return OpInsert }
func (Update) Op() Op { return OpUpdate }
func (Delete) Op() Op { return OpDelete }

func (m Insert) Table() Table { return m.Target }
func (m Update) Table() Table { return m.Target }
func (m Delete) Table() Table { return m.Target }

func (Insert) mutation() {}
func (Update) mutation() {}
func (Delete) mutation() {}

// String renders the mutation on one line with sorted-key JSON objects,
// e.g. `insert Agent {"active":true,...}`.
func (m Insert) String() string {
	return fmt.Sprintf("%s %s %s", OpInsert, m.Target, canonical(m.Row))
}

func (m Update) String() string {
	return fmt.Sprintf("%s %s where %s set %s", OpUpdate, m.Target, canonical(m.Key), canonical(m.Set))
}

func (m Delete) String() string {
	return fmt.Sprintf("%s %s where %s", OpDelete, m.Target, canonical(m.Key))
}

func canonical(obj ir.IRObject) string {
	data, err := ir.MarshalExact(obj)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

// record is the JSON shape of a mutation.
type record struct {
	Op    Op          `json:"op"`
	Table Table       `json:"table"`
	Row   ir.IRObject `json:"row,omitempty"`
	Key   ir.IRObject `json:"key,omitempty"`
	Set   ir.IRObject `json:"set,omitempty"`
}

func (m Insert) MarshalJSON() ([]byte, error) {
	return json.Marshal(record{Op: OpInsert, Table: m.Target, Row: m.Row})
}

func (m Update) MarshalJSON() ([]byte, error) {
	return json.Marshal(record{Op: OpUpdate, Table: m.Target, Key: m.Key, Set: m.Set})
}

func (m Delete) MarshalJSON() ([]byte, error) {
	return json.Marshal(record{Op: OpDelete, Table: m.Target, Key: m.Key})
}
