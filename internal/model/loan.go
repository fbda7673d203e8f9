package model

import (
	"slices"
	"time"
)

// LoanStatus is a state in the loan lifecycle.
type LoanStatus string

// Loan statuses.
const (
	LoanPending   LoanStatus = "pending"
	LoanAccepted  LoanStatus = "accepted"
	LoanLoaned    LoanStatus = "loaned"
	LoanLate      LoanStatus = "late"
	LoanReturned  LoanStatus = "returned"
	LoanCancelled LoanStatus = "cancelled"
)

// ActiveLoanStatuses are the statuses that hold a book.
var ActiveLoanStatuses = []LoanStatus{LoanPending, LoanAccepted, LoanLoaned, LoanLate}

// Active reports whether the status holds the book.
func (s LoanStatus) Active() bool {
	return slices.Contains(ActiveLoanStatuses, s)
}

// Terminal reports whether no further transition is defined from s.
func (s LoanStatus) Terminal() bool {
	return s == LoanReturned || s == LoanCancelled
}

// Valid reports whether s is a known status.
func (s LoanStatus) Valid() bool {
	return s.Active() || s.Terminal()
}

// Loan is a request for, or the lending of, one book to one requester.
type Loan struct {
	ID            int64      `json:"id"`
	BookID        int64      `json:"book_id"`
	OwnerID       int64      `json:"owner_id"`
	RequesterID   int64      `json:"requester_id"`
	Status        LoanStatus `json:"status"`
	RequestDate   time.Time  `json:"request_date"`
	AcceptDate    *time.Time `json:"accept_date,omitempty"`
	LoanStartDate *time.Time `json:"loan_start_date,omitempty"`
	LoanEndDate   *time.Time `json:"loan_end_date,omitempty"`
	ReturnDate    *time.Time `json:"return_date,omitempty"`

	// Joined fields (not always populated).
	BookTitle     string `json:"book_title,omitempty"`
	OwnerName     string `json:"owner_name,omitempty"`
	RequesterName string `json:"requester_name,omitempty"`
}

// Overdue reports whether a loaned book is past its end date at now.
func (l *Loan) Overdue(now time.Time) bool {
	return l.Status == LoanLoaned && l.LoanEndDate != nil && now.After(*l.LoanEndDate)
}

// Party reports whether userID is the owner or the requester.
func (l *Loan) Party(userID int64) bool {
	return userID == l.OwnerID || userID == l.RequesterID
}
