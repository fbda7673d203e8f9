// Package loan implements the loan lifecycle. All mutations of a book's loans
// are serialized by a per-book lock and run in a single transaction.
package loan

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/erazemk/paralibrary/internal/catalog"
	"github.com/erazemk/paralibrary/internal/db"
	"github.com/erazemk/paralibrary/internal/model"
	"github.com/erazemk/paralibrary/internal/store"
)

// DefaultLendingPeriod is how long a book stays out after Begin.
const DefaultLendingPeriod = 14 * 24 * time.Hour

const instrumentationName = "github.com/erazemk/paralibrary/internal/loan"

// Manager owns every loan state change.
type Manager struct {
	db     *sql.DB
	locks  *bookLocks
	now    func() time.Time
	period time.Duration
	policy catalog.Policy

	tracer      trace.Tracer
	meter       metric.Meter
	transitions metric.Int64Counter
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLendingPeriod sets how long a begun loan lasts.
func WithLendingPeriod(d time.Duration) Option {
	return func(m *Manager) { m.period = d }
}

// WithPolicy sets the visibility policy used to decide who may request a book.
func WithPolicy(p catalog.Policy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithTracer sets the tracer used for spans.
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// WithMeter sets the meter used for the transition counter.
func WithMeter(mt metric.Meter) Option {
	return func(m *Manager) { m.meter = mt }
}

// New returns a Manager backed by database.
func New(database *sql.DB, opts ...Option) *Manager {
	m := &Manager{
		db:     database,
		locks:  newBookLocks(),
		now:    time.Now,
		period: DefaultLendingPeriod,
		policy: catalog.DefaultPolicy,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(m)
	}

	counter, err := m.meter.Int64Counter("paralibrary.loan.transitions",
		metric.WithDescription("Loan state transitions by name and outcome"))
	if err != nil {
		slog.Warn("creating loan transition counter", "error", err)
		counter = noop.Int64Counter{}
	}
	m.transitions = counter

	return m
}

func (m *Manager) clock() time.Time {
	return m.now().UTC()
}

// finish records the outcome of an operation on its span and counter.
func (m *Manager) finish(ctx context.Context, span trace.Span, name string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = model.KindName(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("loan.outcome", outcome))
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("transition", name),
		attribute.String("outcome", outcome),
	))
}

// Locked runs fn while holding bookID's lock, so no loan of that book changes
// until fn returns.
func (m *Manager) Locked(ctx context.Context, bookID int64, fn func(ctx context.Context) error) error {
	release, err := m.locks.acquire(ctx, bookID)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// Request creates a pending loan of bookID for requesterID.
func (m *Manager) Request(ctx context.Context, bookID, requesterID int64) (l *model.Loan, err error) {
	ctx, span := m.tracer.Start(ctx, "loan.request", trace.WithAttributes(
		attribute.Int64("book.id", bookID),
		attribute.Int64("requester.id", requesterID),
	))
	defer span.End()
	defer func() { m.finish(ctx, span, "request", err) }()

	err = m.Locked(ctx, bookID, func(ctx context.Context) error {
		return db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
			book, err := store.GetBook(ctx, tx, bookID)
			if err != nil {
				return err
			}
			if book == nil {
				return model.Errorf(model.ErrNotFound, "book %d not found", bookID).ForBook(bookID)
			}
			// Nobody could accept a request for a deleted user's book.
			owner, err := store.GetActiveUser(ctx, tx, book.OwnerID)
			if err != nil {
				return err
			}
			if owner == nil {
				return model.Errorf(model.ErrNotFound, "book %d not found", bookID).ForBook(bookID)
			}

			requester, err := store.GetActiveUser(ctx, tx, requesterID)
			if err != nil {
				return err
			}
			if requester == nil {
				return model.Errorf(model.ErrNotFound, "user %d not found", requesterID)
			}
			if requester.ID == book.OwnerID {
				return model.Errorf(model.ErrValidation, "cannot borrow your own book").ForBook(bookID)
			}
			if !requester.CanRequestLoans() {
				return model.Errorf(model.ErrValidation, "an email address is required to borrow books").ForBook(bookID)
			}

			visible, err := catalog.Visible(ctx, tx, m.policy, book, requesterID)
			if err != nil {
				return err
			}
			if !visible {
				return model.Errorf(model.ErrAuthorization, "book %d is not visible to user %d", bookID, requesterID).ForBook(bookID)
			}

			active, err := store.ActiveLoanForBook(ctx, tx, bookID)
			if err != nil {
				return err
			}
			if active != nil {
				return model.Errorf(model.ErrConflict, "book %d already has an active loan", bookID).ForBook(bookID)
			}

			l, err = store.InsertLoan(ctx, tx, &model.Loan{
				BookID:      bookID,
				OwnerID:     book.OwnerID,
				RequesterID: requesterID,
				Status:      model.LoanPending,
				RequestDate: m.clock(),
			})
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int64("loan.id", l.ID))
	slog.Info("loan requested", "loan", l.ID, "book", bookID, "requester", requesterID)
	return l, nil
}

// actor roles allowed to perform a transition.
type role int

const (
	roleOwner role = 1 << iota
	roleRequester
	roleSystem
)

type transition struct {
	name  string
	from  []model.LoanStatus
	to    model.LoanStatus
	roles role
	apply func(l *model.Loan, now time.Time)
}

var (
	cancelTransition = transition{
		name:  "cancel",
		from:  []model.LoanStatus{model.LoanPending},
		to:    model.LoanCancelled,
		roles: roleOwner | roleRequester,
	}
	acceptTransition = transition{
		name:  "accept",
		from:  []model.LoanStatus{model.LoanPending},
		to:    model.LoanAccepted,
		roles: roleOwner,
		apply: func(l *model.Loan, now time.Time) { l.AcceptDate = &now },
	}
	returnTransition = transition{
		name:  "return",
		from:  []model.LoanStatus{model.LoanLoaned, model.LoanLate},
		to:    model.LoanReturned,
		roles: roleOwner | roleRequester,
		apply: func(l *model.Loan, now time.Time) { l.ReturnDate = &now },
	}
)

func (t transition) permits(l *model.Loan, actorID int64) bool {
	switch {
	case t.roles&roleOwner != 0 && actorID == l.OwnerID:
		return true
	case t.roles&roleRequester != 0 && actorID == l.RequesterID:
		return true
	}
	return false
}

func (t transition) accepts(s model.LoanStatus) bool {
	return slices.Contains(t.from, s)
}

// Cancel withdraws a pending request. Either party may cancel.
func (m *Manager) Cancel(ctx context.Context, loanID, actorID int64) (*model.Loan, error) {
	return m.transition(ctx, loanID, actorID, cancelTransition)
}

// Accept approves a pending request. Only the owner may accept.
func (m *Manager) Accept(ctx context.Context, loanID, actorID int64) (*model.Loan, error) {
	return m.transition(ctx, loanID, actorID, acceptTransition)
}

// Begin hands an accepted book over and starts the lending period. Only the
// owner may begin a loan.
func (m *Manager) Begin(ctx context.Context, loanID, actorID int64) (*model.Loan, error) {
	period := m.period
	return m.transition(ctx, loanID, actorID, transition{
		name:  "begin",
		from:  []model.LoanStatus{model.LoanAccepted},
		to:    model.LoanLoaned,
		roles: roleOwner,
		apply: func(l *model.Loan, now time.Time) {
			end := now.Add(period)
			l.LoanStartDate = &now
			l.LoanEndDate = &end
		},
	})
}

// Return records that a loaned or late book came back.
func (m *Manager) Return(ctx context.Context, loanID, actorID int64) (*model.Loan, error) {
	return m.transition(ctx, loanID, actorID, returnTransition)
}

// MarkLate moves an overdue loaned book to late. Marking a late loan again is
// a no-op.
func (m *Manager) MarkLate(ctx context.Context, loanID int64) (*model.Loan, error) {
	return m.transition(ctx, loanID, 0, transition{
		name:  "mark_late",
		from:  []model.LoanStatus{model.LoanLoaned},
		to:    model.LoanLate,
		roles: roleSystem,
	})
}

func (m *Manager) transition(ctx context.Context, loanID, actorID int64, t transition) (l *model.Loan, err error) {
	ctx, span := m.tracer.Start(ctx, "loan."+t.name, trace.WithAttributes(
		attribute.Int64("loan.id", loanID),
		attribute.Int64("actor.id", actorID),
	))
	defer span.End()
	defer func() { m.finish(ctx, span, t.name, err) }()

	// A loan never moves to another book, so its book ID may be read before
	// locking. apply checks it again inside the transaction.
	current, err := store.GetLoan(ctx, m.db, loanID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, model.Errorf(model.ErrNotFound, "loan %d not found", loanID)
	}
	span.SetAttributes(attribute.Int64("book.id", current.BookID))

	err = m.Locked(ctx, current.BookID, func(ctx context.Context) error {
		return db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
			var err error
			l, err = m.apply(ctx, tx, loanID, current.BookID, actorID, t)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	slog.Info("loan transition", "action", t.name, "loan", l.ID, "book", l.BookID, "status", l.Status, "actor", actorID)
	return l, nil
}

// apply runs t on loanID while the lock for lockedBookID is held.
func (m *Manager) apply(ctx context.Context, tx *sql.Tx, loanID, lockedBookID, actorID int64, t transition) (*model.Loan, error) {
	l, err := store.GetLoan(ctx, tx, loanID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, model.Errorf(model.ErrNotFound, "loan %d not found", loanID)
	}
	if l.BookID != lockedBookID {
		return nil, fmt.Errorf("loan %d moved from book %d to book %d", loanID, lockedBookID, l.BookID)
	}

	if t.roles != roleSystem && !t.permits(l, actorID) {
		return nil, model.Errorf(model.ErrAuthorization, "user %d may not %s loan %d", actorID, t.name, loanID).ForBook(l.BookID)
	}

	now := m.clock()
	if t.roles == roleSystem {
		if l.Status == t.to {
			return l, nil
		}
		if l.Status == model.LoanLoaned && !l.Overdue(now) {
			return nil, model.Errorf(model.ErrInvalidState, "loan %d is not overdue yet", loanID).ForLoan(l)
		}
	}

	// Callers see an overdue loan as late even before the sweeper stores it.
	// The stored status stays the compare-and-set source.
	seen := *l
	if t.roles != roleSystem {
		m.project(&seen)
	}
	if !t.accepts(seen.Status) {
		return nil, model.Errorf(model.ErrInvalidState, "cannot %s loan %d in status %s", t.name, loanID, seen.Status).ForLoan(&seen)
	}

	from := l.Status
	l.Status = t.to
	if t.apply != nil {
		t.apply(l, now)
	}

	ok, err := store.UpdateLoan(ctx, tx, l, from, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		fresh, err := store.GetLoan(ctx, tx, loanID)
		if err != nil {
			return nil, err
		}
		if fresh == nil {
			return nil, model.Errorf(model.ErrNotFound, "loan %d not found", loanID)
		}
		return nil, model.Errorf(model.ErrInvalidState, "loan %d changed to %s concurrently", loanID, fresh.Status).ForLoan(fresh)
	}
	return l, nil
}

// project reports a loaned book past its end date as late, whether or not the
// sweeper has persisted it yet.
func (m *Manager) project(l *model.Loan) {
	if l != nil && l.Overdue(m.clock()) {
		l.Status = model.LoanLate
	}
}

// Loan returns a loan by ID.
func (m *Manager) Loan(ctx context.Context, loanID int64) (*model.Loan, error) {
	l, err := store.GetLoan(ctx, m.db, loanID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, model.Errorf(model.ErrNotFound, "loan %d not found", loanID)
	}
	m.project(l)
	return l, nil
}

// ActiveForBook returns the book's active loan, or nil if it is available.
func (m *Manager) ActiveForBook(ctx context.Context, bookID int64) (*model.Loan, error) {
	l, err := store.ActiveLoanForBook(ctx, m.db, bookID)
	if err != nil {
		return nil, err
	}
	m.project(l)
	return l, nil
}

// List returns loans matching f with overdue loans reported as late.
func (m *Manager) List(ctx context.Context, f store.LoanFilter) ([]model.Loan, error) {
	wanted := f.Statuses
	if slices.Contains(wanted, model.LoanLate) {
		// Overdue loans may still be stored as loaned.
		f.Statuses = append(append([]model.LoanStatus{}, wanted...), model.LoanLoaned)
	}

	loans, err := store.ListLoans(ctx, m.db, f)
	if err != nil {
		return nil, err
	}

	out := loans[:0]
	for i := range loans {
		m.project(&loans[i])
		if len(wanted) == 0 || slices.Contains(wanted, loans[i].Status) {
			out = append(out, loans[i])
		}
	}
	return out, nil
}
