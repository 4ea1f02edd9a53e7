// Package recorder keeps a flight record of the controller in SQLite:
// periodic data points and every state transition.
package recorder

import (
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sweeney/ferment-controller/internal/control"
	"github.com/sweeney/ferment-controller/internal/temp"
)

//go:embed schema.sql
var schema string

const insertPoint = `INSERT INTO points
	(ts, tick, state, mode, beer, beer_set, fridge, fridge_set, room, heater, cooler, door)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertTransition = `INSERT INTO transitions
	(ts, tick, from_state, to_state, reason) VALUES (?, ?, ?, ?, ?)`

// Point is one recorded data point. Temperatures the controller did not
// have are temp.Invalid.
type Point struct {
	Time      time.Time
	Tick      uint32
	State     control.State
	Mode      control.Mode
	Beer      temp.Temp
	BeerSet   temp.Temp
	Fridge    temp.Temp
	FridgeSet temp.Temp
	Room      temp.Temp
	Heater    bool
	Cooler    bool
	Door      bool
}

// PointFrom extracts a data point from a snapshot.
func PointFrom(at time.Time, snap control.Snapshot) Point {
	p := Point{
		Time:      at,
		Tick:      uint32(snap.Now),
		State:     snap.State,
		Mode:      snap.Settings.Mode,
		Beer:      snap.Beer.Slow,
		BeerSet:   temp.Invalid,
		Fridge:    snap.Fridge.Slow,
		FridgeSet: temp.Invalid,
		Room:      snap.Room.Slow,
		Heater:    snap.Outputs.Heater,
		Cooler:    snap.Outputs.Cooler,
		Door:      snap.DoorOpen,
	}
	switch snap.Settings.Mode {
	case control.ModeBeerConstant:
		p.BeerSet = snap.Settings.BeerSetting
		p.FridgeSet = snap.Variables.FridgeEstimate
	case control.ModeFridgeConstant:
		p.FridgeSet = snap.Settings.FridgeSetting
	}
	return p
}

// Transition is one recorded state change.
type Transition struct {
	Time   time.Time
	Tick   uint32
	From   control.State
	To     control.State
	Reason string
}

// Recorder writes to a SQLite database. It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	db       *sql.DB
	interval time.Duration
	last     time.Time
}

// Open opens or creates the database at path. Sample records a data point
// at most once per interval. Use ":memory:" for a throwaway database.
func Open(path string, interval time.Duration) (*Recorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open %s: %w", path, err)
	}
	// Each connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: create schema: %w", err)
	}
	return &Recorder{db: db, interval: interval}, nil
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// Sample records every transition and, when the interval has passed since
// the last point, a data point from snap.
func (r *Recorder) Sample(at time.Time, snap control.Snapshot, events []control.Event) error {
	r.mu.Lock()
	due := r.last.IsZero() || at.Sub(r.last) >= r.interval
	r.mu.Unlock()

	if len(events) > 0 {
		if err := r.RecordTransitions(at, events); err != nil {
			return err
		}
	}
	if !due {
		return nil
	}
	if err := r.Record(PointFrom(at, snap)); err != nil {
		return err
	}
	r.mu.Lock()
	r.last = at
	r.mu.Unlock()
	return nil
}

// Record stores one data point.
func (r *Recorder) Record(p Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(insertPoint,
		p.Time.UnixMilli(),
		p.Tick,
		string(p.State),
		string(p.Mode),
		nullTemp(p.Beer),
		nullTemp(p.BeerSet),
		nullTemp(p.Fridge),
		nullTemp(p.FridgeSet),
		nullTemp(p.Room),
		p.Heater,
		p.Cooler,
		p.Door,
	)
	if err != nil {
		return fmt.Errorf("recorder: insert point: %w", err)
	}
	return nil
}

// RecordTransitions stores events in one transaction.
func (r *Recorder) RecordTransitions(at time.Time, events []control.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("recorder: begin: %w", err)
	}
	stmt, err := tx.Prepare(insertTransition)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("recorder: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(at.UnixMilli(), uint32(e.At), string(e.From), string(e.To), e.Reason); err != nil {
			tx.Rollback()
			return fmt.Errorf("recorder: insert transition: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("recorder: commit: %w", err)
	}
	return nil
}

// Recent returns up to limit of the newest data points, oldest first.
func (r *Recorder) Recent(limit int) ([]Point, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT ts, tick, state, mode, beer, beer_set, fridge, fridge_set, room, heater, cooler, door
		FROM (SELECT * FROM points ORDER BY id DESC LIMIT ?) ORDER BY id`, limit)
	if err != nil {
		return nil, fmt.Errorf("recorder: query points: %w", err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var p Point
		var ts int64
		var state, mode string
		var beer, beerSet, fridge, fridgeSet, room sql.NullInt64
		if err := rows.Scan(&ts, &p.Tick, &state, &mode, &beer, &beerSet, &fridge, &fridgeSet, &room,
			&p.Heater, &p.Cooler, &p.Door); err != nil {
			return nil, fmt.Errorf("recorder: scan point: %w", err)
		}
		p.Time = time.UnixMilli(ts).UTC()
		p.State = control.State(state)
		p.Mode = control.Mode(mode)
		p.Beer = fromNull(beer)
		p.BeerSet = fromNull(beerSet)
		p.Fridge = fromNull(fridge)
		p.FridgeSet = fromNull(fridgeSet)
		p.Room = fromNull(room)
		points = append(points, p)
	}
	return points, rows.Err()
}

// Transitions returns up to limit of the newest transitions, oldest first.
func (r *Recorder) Transitions(limit int) ([]Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT ts, tick, from_state, to_state, reason
		FROM (SELECT * FROM transitions ORDER BY id DESC LIMIT ?) ORDER BY id`, limit)
	if err != nil {
		return nil, fmt.Errorf("recorder: query transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			t        Transition
			ts       int64
			from, to string
		)
		if err := rows.Scan(&ts, &t.Tick, &from, &to, &t.Reason); err != nil {
			return nil, fmt.Errorf("recorder: scan transition: %w", err)
		}
		t.Time = time.UnixMilli(ts).UTC()
		t.From = control.State(from)
		t.To = control.State(to)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Prune deletes data points and transitions older than before.
func (r *Recorder) Prune(before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := before.UnixMilli()
	res, err := r.db.Exec(`DELETE FROM points WHERE ts < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("recorder: prune points: %w", err)
	}
	n, _ := res.RowsAffected()
	res, err = r.db.Exec(`DELETE FROM transitions WHERE ts < ?`, cutoff)
	if err != nil {
		return n, fmt.Errorf("recorder: prune transitions: %w", err)
	}
	m, _ := res.RowsAffected()
	return n + m, nil
}

func nullTemp(t temp.Temp) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(t), Valid: t.Valid()}
}

func fromNull(v sql.NullInt64) temp.Temp {
	if !v.Valid {
		return temp.Invalid
	}
	return temp.Temp(v.Int64)
}
