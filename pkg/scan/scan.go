package scan

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"mongoscan/internal/metrics"
	"mongoscan/pkg/apperr"
	"mongoscan/pkg/dbmanager"
	"mongoscan/pkg/predicate"
	"mongoscan/pkg/rowconv"
)

// State is the lifecycle state of a scan.
type State int

const (
	StateClosed State = iota
	StateScanning
	StateRowReady
	StateExhausted
	StateFailed
	StateCountReady
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateRowReady:
		return "row-ready"
	case StateExhausted:
		return "exhausted"
	case StateFailed:
		return "failed"
	case StateCountReady:
		return "count-ready"
	default:
		return "closed"
	}
}

// Scan is one begin/end pair. Everything a scan needs lives here, so nothing
// outlives EndScan.
type Scan struct {
	ID string

	handler  *Handler
	conn     *dbmanager.Connection
	coll     dbmanager.Collection
	filter   bson.D
	residual predicate.Node
	findOpts dbmanager.FindOptions

	state     State
	countMode bool
	err       error
	cursor    dbmanager.Cursor
	current   bson.D
	position  int64
	counted   int64
	pending   int64
	started   time.Time
}

func newScan(h *Handler, conn *dbmanager.Connection, filter bson.D) *Scan {
	return &Scan{
		ID:      uuid.NewString(),
		handler: h,
		conn:    conn,
		coll:    conn.Collection(h.loc.Collection),
		filter:  filter,
		state:   StateScanning,
		started: time.Now(),
	}
}

func (s *Scan) mode() string {
	if s.countMode {
		return "count"
	}
	return "rows"
}

// State returns the current lifecycle state.
func (s *Scan) State() State {
	return s.state
}

// Filtered reports whether the store applies a filter to this scan.
func (s *Scan) Filtered() bool {
	return s.filter != nil
}

// Residual returns the declined predicate the host must still apply, if any.
func (s *Scan) Residual() predicate.Node {
	return s.residual
}

// Count returns the total of a count scan.
func (s *Scan) Count() int64 {
	return s.counted
}

// Document returns the document behind the row just produced, or nil.
func (s *Scan) Document() bson.D {
	if s.state != StateRowReady {
		return nil
	}
	return s.current
}

func (s *Scan) startCount(ctx context.Context) error {
	n, err := s.coll.CountDocuments(ctx, s.filter)
	if err != nil {
		return dbmanager.ClassifyError("Scan.Count", err)
	}
	s.counted = n
	s.pending = n
	s.countMode = true
	s.state = StateCountReady
	return nil
}

func (s *Scan) open(ctx context.Context) error {
	cursor, err := s.coll.Find(ctx, s.filter, s.findOpts)
	if err != nil {
		return dbmanager.ClassifyError("Scan.Find", err)
	}
	s.cursor = cursor
	s.current = nil
	s.position = 0
	s.state = StateScanning
	return nil
}

// NextRow produces the next row into row. It returns false once the scan is
// exhausted. In a count scan it yields the counted rows without reading or
// converting any document and leaves row untouched.
func (s *Scan) NextRow(ctx context.Context, row rowconv.Row) (bool, error) {
	switch s.state {
	case StateClosed:
		return false, ErrNoScan
	case StateFailed:
		return false, s.err
	case StateExhausted:
		return false, nil
	case StateCountReady:
		if s.pending == 0 {
			s.state = StateExhausted
			return false, nil
		}
		s.pending--
		s.position++
		metrics.RowsReturned.Inc()
		return true, nil
	}

	doc, ok, err := s.advance(ctx)
	if err != nil || !ok {
		return false, err
	}
	if err := s.convert(doc, row); err != nil {
		return false, err
	}
	metrics.RowsReturned.Inc()
	return true, nil
}

// advance reads and decodes the next document without converting it.
func (s *Scan) advance(ctx context.Context) (bson.D, bool, error) {
	if !s.cursor.Next(ctx) {
		if err := s.cursor.Err(); err != nil {
			return nil, false, s.fail(dbmanager.ClassifyError("Scan.Next", err))
		}
		if err := ctx.Err(); err != nil {
			return nil, false, s.fail(apperr.Wrap(apperr.KindConnectionFailed, "Scan.Next", err))
		}
		s.closeCursor()
		s.current = nil
		s.state = StateExhausted
		return nil, false, nil
	}

	var doc bson.D
	if err := s.cursor.Decode(&doc); err != nil {
		return nil, false, s.fail(apperr.Wrap(apperr.KindConversionFailed, "Scan.Decode", err))
	}
	metrics.DocumentsScanned.Inc()
	s.current = doc
	s.position++
	s.state = StateRowReady
	return doc, true, nil
}

func (s *Scan) convert(doc bson.D, row rowconv.Row) error {
	if err := s.handler.converter.Convert(doc, row); err != nil {
		return s.fail(err)
	}
	return nil
}

func (s *Scan) fail(err error) error {
	s.err = err
	s.state = StateFailed
	s.closeCursor()
	log.Printf("ScanEngine -> Scan -> Scan %s failed: %v", s.ID, err)
	return err
}

// CapturePosition returns the ordinal of the row just produced.
func (s *Scan) CapturePosition() (int64, error) {
	if s.state == StateClosed {
		return 0, ErrNoScan
	}
	if s.position == 0 {
		return 0, fmt.Errorf("no row has been produced yet")
	}
	return s.position - 1, nil
}

// Seek makes the row at ordinal current and converts it into row. Seeking
// backwards reopens the cursor and replays from the start.
func (s *Scan) Seek(ctx context.Context, ordinal int64, row rowconv.Row) error {
	switch {
	case s.state == StateClosed:
		return ErrNoScan
	case s.state == StateFailed:
		return s.err
	case s.countMode:
		return fmt.Errorf("seek is not supported on a count scan")
	case ordinal < 0:
		return fmt.Errorf("invalid ordinal %d", ordinal)
	}

	if s.state == StateRowReady && ordinal == s.position-1 {
		return s.convert(s.current, row)
	}

	if ordinal < s.position || s.state == StateExhausted {
		s.closeCursor()
		if err := s.open(ctx); err != nil {
			return s.fail(err)
		}
	}

	for s.position <= ordinal {
		doc, ok, err := s.advance(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("ordinal %d is past the end of the scan", ordinal)
		}
		if s.position-1 == ordinal {
			return s.convert(doc, row)
		}
	}
	return fmt.Errorf("ordinal %d could not be reached", ordinal)
}

// End closes the cursor, drops the filter and returns the connection. It is
// safe to call more than once.
func (s *Scan) End() {
	if s.state == StateClosed {
		return
	}
	mode := s.mode()

	s.closeCursor()
	s.filter = nil
	s.residual = nil
	s.current = nil
	s.counted, s.pending = 0, 0
	s.state = StateClosed

	if s.conn != nil {
		s.handler.engine.manager.Release(s.conn)
		s.conn = nil
	}
	if s.handler.scan == s {
		s.handler.scan = nil
	}
	metrics.ScanDuration.WithLabelValues(mode).Observe(time.Since(s.started).Seconds())
}

func (s *Scan) closeCursor() {
	if s.cursor == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.cursor.Close(ctx); err != nil {
		log.Printf("ScanEngine -> closeCursor -> Error closing cursor for scan %s: %v", s.ID, err)
	}
	s.cursor = nil
}
