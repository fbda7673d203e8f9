package store

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"

	"github.com/erazemk/paralibrary/internal/db"
	"github.com/erazemk/paralibrary/internal/model"
)

var dialect = goqu.Dialect("sqlite3")

// LoanFilter narrows ListLoans. Zero fields are ignored.
type LoanFilter struct {
	BookID      int64
	OwnerID     int64
	RequesterID int64
	// PartyID matches loans where the user is either owner or requester.
	PartyID  int64
	Statuses []model.LoanStatus
}

func loanSelect() *goqu.SelectDataset {
	return dialect.From(goqu.T("loans").As("l")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("l.book_id")))).
		Join(goqu.T("users").As("o"), goqu.On(goqu.I("o.id").Eq(goqu.I("l.owner_id")))).
		Join(goqu.T("users").As("r"), goqu.On(goqu.I("r.id").Eq(goqu.I("l.requester_id")))).
		Select(
			goqu.I("l.id"), goqu.I("l.book_id"), goqu.I("l.owner_id"), goqu.I("l.requester_id"),
			goqu.I("l.status"), goqu.I("l.request_date"), goqu.I("l.accept_date"),
			goqu.I("l.loan_start_date"), goqu.I("l.loan_end_date"), goqu.I("l.return_date"),
			goqu.I("b.title"),
			goqu.L("COALESCE(NULLIF(o.display_name, ''), o.username)").As("owner_name"),
			goqu.L("COALESCE(NULLIF(r.display_name, ''), r.username)").As("requester_name"),
		).
		Prepared(true)
}

func scanLoan(s interface{ Scan(...any) error }, l *model.Loan) error {
	return s.Scan(&l.ID, &l.BookID, &l.OwnerID, &l.RequesterID,
		&l.Status, &l.RequestDate, &l.AcceptDate,
		&l.LoanStartDate, &l.LoanEndDate, &l.ReturnDate,
		&l.BookTitle, &l.OwnerName, &l.RequesterName)
}

func queryLoans(ctx context.Context, q db.Querier, ds *goqu.SelectDataset) ([]model.Loan, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building loan query: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying loans: %w", err)
	}
	defer rows.Close()

	var loans []model.Loan
	for rows.Next() {
		var l model.Loan
		if err := scanLoan(rows, &l); err != nil {
			return nil, fmt.Errorf("scanning loan: %w", err)
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

func activeStatuses() []any {
	out := make([]any, len(model.ActiveLoanStatuses))
	for i, s := range model.ActiveLoanStatuses {
		out[i] = string(s)
	}
	return out
}

// InsertLoan stores a new loan. A second active loan for the same book is
// rejected by the database and reported as a conflict.
func InsertLoan(ctx context.Context, q db.Querier, l *model.Loan) (*model.Loan, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO loans (book_id, owner_id, requester_id, status, request_date, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		l.BookID, l.OwnerID, l.RequesterID, string(l.Status), l.RequestDate, l.RequestDate,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.Errorf(model.ErrConflict, "book %d already has an active loan", l.BookID).ForBook(l.BookID)
		}
		return nil, fmt.Errorf("inserting loan: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting loan id: %w", err)
	}

	return GetLoan(ctx, q, id)
}

// GetLoan returns a loan by ID, or nil if none exists.
func GetLoan(ctx context.Context, q db.Querier, id int64) (*model.Loan, error) {
	loans, err := queryLoans(ctx, q, loanSelect().Where(goqu.I("l.id").Eq(id)))
	if err != nil {
		return nil, fmt.Errorf("getting loan: %w", err)
	}
	if len(loans) == 0 {
		return nil, nil
	}
	return &loans[0], nil
}

// ActiveLoanForBook returns the book's active loan, or nil if it is free.
func ActiveLoanForBook(ctx context.Context, q db.Querier, bookID int64) (*model.Loan, error) {
	loans, err := queryLoans(ctx, q, loanSelect().Where(
		goqu.I("l.book_id").Eq(bookID),
		goqu.I("l.status").In(activeStatuses()...),
	))
	if err != nil {
		return nil, fmt.Errorf("getting active loan: %w", err)
	}
	if len(loans) == 0 {
		return nil, nil
	}
	return &loans[0], nil
}

// ListLoans returns loans matching f, newest request first.
func ListLoans(ctx context.Context, q db.Querier, f LoanFilter) ([]model.Loan, error) {
	ds := loanSelect().Order(goqu.I("l.request_date").Desc(), goqu.I("l.id").Desc())

	if f.BookID > 0 {
		ds = ds.Where(goqu.I("l.book_id").Eq(f.BookID))
	}
	if f.OwnerID > 0 {
		ds = ds.Where(goqu.I("l.owner_id").Eq(f.OwnerID))
	}
	if f.RequesterID > 0 {
		ds = ds.Where(goqu.I("l.requester_id").Eq(f.RequesterID))
	}
	if f.PartyID > 0 {
		ds = ds.Where(goqu.Or(
			goqu.I("l.owner_id").Eq(f.PartyID),
			goqu.I("l.requester_id").Eq(f.PartyID),
		))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]any, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		ds = ds.Where(goqu.I("l.status").In(statuses...))
	}

	loans, err := queryLoans(ctx, q, ds)
	if err != nil {
		return nil, fmt.Errorf("listing loans: %w", err)
	}
	return loans, nil
}

// ListOverdueLoans returns loaned books whose end date is before now.
func ListOverdueLoans(ctx context.Context, q db.Querier, now time.Time) ([]model.Loan, error) {
	loaned, err := ListLoans(ctx, q, LoanFilter{Statuses: []model.LoanStatus{model.LoanLoaned}})
	if err != nil {
		return nil, err
	}

	var overdue []model.Loan
	for _, l := range loaned {
		if l.Overdue(now) {
			overdue = append(overdue, l)
		}
	}
	return overdue, nil
}

// UpdateLoan writes l's status and dates, but only if the stored status is
// still from. It returns false when the row had moved on.
func UpdateLoan(ctx context.Context, q db.Querier, l *model.Loan, from model.LoanStatus, now time.Time) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE loans SET status = ?, accept_date = ?, loan_start_date = ?, loan_end_date = ?,
		        return_date = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(l.Status), nullTime(l.AcceptDate), nullTime(l.LoanStartDate), nullTime(l.LoanEndDate),
		nullTime(l.ReturnDate), now, l.ID, string(from),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, model.Errorf(model.ErrConflict, "book %d already has an active loan", l.BookID).ForLoan(l)
		}
		return false, fmt.Errorf("updating loan: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking loan update: %w", err)
	}
	return n == 1, nil
}

// nullTime keeps nil pointers as SQL NULL.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
