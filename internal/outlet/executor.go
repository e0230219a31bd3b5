// internal/outlet/executor.go
package outlet

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
)

// Executor runs each parsed marker against the wired action stores.
type Executor struct {
	Notes     NoteStore
	Email     EmailSender
	Expenses  ExpenseStore
	Schedules ScheduleStore
}

// NewExecutor wires the given stores, substituting no-op defaults for any
// nil argument so a deployment missing a backend still completes the turn.
func NewExecutor(notes NoteStore, email EmailSender, expenses ExpenseStore, schedules ScheduleStore) *Executor {
	if notes == nil {
		notes = noopNoteStore{}
	}
	if email == nil {
		email = noopEmailSender{}
	}
	if expenses == nil {
		expenses = noopExpenseStore{}
	}
	if schedules == nil {
		schedules = noopScheduleStore{}
	}
	return &Executor{Notes: notes, Email: email, Expenses: expenses, Schedules: schedules}
}

// Execute runs one marker's side effect. For SEARCH_EMAIL it returns
// formatted results that the caller splices back in place of the marker
// (per spec.md §6); for every other marker it returns "".
func (e *Executor) Execute(ctx context.Context, userID string, m Marker) (replacement string, err error) {
	switch m.Type {
	case MarkerSaveNote:
		title := firstArg(m.Args)
		if !e.Notes.IsAvailable() {
			return "", nil
		}
		return "", e.Notes.SaveNote(ctx, userID, title, m.Body)

	case MarkerSendEmail:
		subject := firstArg(m.Args)
		recipient := ""
		if len(m.Args) > 1 {
			recipient = m.Args[1]
		}
		if !e.Email.IsAvailable() {
			return "", nil
		}
		return "", e.Email.SendEmail(ctx, userID, subject, recipient, m.Body)

	case MarkerScheduleEmail:
		subject := firstArg(m.Args)
		when := ""
		if len(m.Args) > 1 {
			when = m.Args[1]
		}
		if !e.Email.IsAvailable() {
			return "", nil
		}
		return "", e.Email.ScheduleEmail(ctx, userID, subject, when, m.Body)

	case MarkerAddExpense:
		amountStr := firstArg(m.Args)
		category := ""
		if len(m.Args) > 1 {
			category = m.Args[1]
		}
		amount, perr := strconv.ParseFloat(strings.TrimPrefix(strings.TrimSpace(amountStr), "$"), 64)
		if perr != nil {
			log.Printf("[Outlet] WARNING: ADD_EXPENSE had unparsable amount %q: %v", amountStr, perr)
			return "", nil
		}
		if !e.Expenses.IsAvailable() {
			return "", nil
		}
		return "", e.Expenses.AddExpense(ctx, userID, amount, category, m.Body)

	case MarkerAddSchedule:
		title := firstArg(m.Args)
		when := ""
		if len(m.Args) > 1 {
			when = m.Args[1]
		}
		if !e.Schedules.IsAvailable() {
			return "", nil
		}
		return "", e.Schedules.AddSchedule(ctx, userID, title, when, m.Body)

	case MarkerSearchEmail:
		query := firstArg(m.Args)
		if !e.Email.IsAvailable() {
			return "", nil
		}
		results, serr := e.Email.SearchEmail(ctx, userID, query)
		if serr != nil {
			return fmt.Sprintf("(email search failed: %v)", serr), nil
		}
		return results, nil

	default:
		return "", fmt.Errorf("unknown marker type %q", m.Type)
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
