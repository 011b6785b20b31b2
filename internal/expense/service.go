package expense

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RepositoryPort defines data access methods for expenses and categories.
type RepositoryPort interface {
	InsertExpense(ctx context.Context, e Expense) (Expense, error)
	UpdateExpense(ctx context.Context, e Expense) (Expense, error)
	DeleteExpense(ctx context.Context, id int64) error
	GetExpense(ctx context.Context, id int64) (Expense, error)
	ListExpenses(ctx context.Context, f Filter) ([]Expense, error)
	SumExpenses(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
	CategoryExists(ctx context.Context, id int64) (bool, error)
	GetCategory(ctx context.Context, id int64) (Category, error)
	InsertCategory(ctx context.Context, c Category) (Category, error)
	UpdateCategory(ctx context.Context, c Category) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
}

// Service tracks the shop's operating expenses.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	now    func() time.Time
}

// NewService builds Service.
func NewService(logger *slog.Logger, repo RepositoryPort) *Service {
	return &Service{logger: logger, repo: repo, now: time.Now}
}

// WithClock overrides the default clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) validate(ctx context.Context, in ExpenseInput) error {
	if strings.TrimSpace(in.Label) == "" {
		return ErrLabelRequired
	}
	if !in.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if in.CategoryID != nil {
		exists, err := s.repo.CategoryExists(ctx, *in.CategoryID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrCategoryNotFound
		}
	}
	return nil
}

// Record stores a new expense. The date defaults to today when absent.
func (s *Service) Record(ctx context.Context, in ExpenseInput) (Expense, error) {
	if err := s.validate(ctx, in); err != nil {
		return Expense{}, err
	}

	date := in.Date
	if date.IsZero() {
		date = s.now()
	}
	created, err := s.repo.InsertExpense(ctx, Expense{
		Date:       date,
		CategoryID: in.CategoryID,
		Label:      strings.TrimSpace(in.Label),
		Amount:     in.Amount,
		Method:     in.Method,
		Notes:      in.Notes,
		CreatedAt:  s.now(),
	})
	if err != nil {
		return Expense{}, err
	}

	s.logger.Info("expense recorded",
		slog.Int64("expense_id", created.ID),
		slog.String("label", created.Label),
		slog.String("amount", created.Amount.String()),
	)
	return created, nil
}

// Update replaces the mutable fields of an existing expense.
func (s *Service) Update(ctx context.Context, id int64, in ExpenseInput) (Expense, error) {
	if err := s.validate(ctx, in); err != nil {
		return Expense{}, err
	}
	existing, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		return Expense{}, err
	}

	existing.Date = in.Date
	if existing.Date.IsZero() {
		existing.Date = s.now()
	}
	existing.CategoryID = in.CategoryID
	existing.Label = strings.TrimSpace(in.Label)
	existing.Amount = in.Amount
	existing.Method = in.Method
	existing.Notes = in.Notes
	return s.repo.UpdateExpense(ctx, existing)
}

// Get returns one expense by id.
func (s *Service) Get(ctx context.Context, id int64) (Expense, error) {
	return s.repo.GetExpense(ctx, id)
}

// Delete removes an expense.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.repo.GetExpense(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteExpense(ctx, id)
}

// List returns expenses matching the filter, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Expense, error) {
	return s.repo.ListExpenses(ctx, f)
}

// CurrentMonth lists expenses from the first of the current month onward.
func (s *Service) CurrentMonth(ctx context.Context) ([]Expense, error) {
	from, to := s.currentMonthRange()
	return s.repo.ListExpenses(ctx, Filter{From: from, To: to})
}

// Total sums expenses between the two dates, inclusive. Both bounds are
// required so a forgotten parameter never silently sums all history.
func (s *Service) Total(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	if from.IsZero() || to.IsZero() {
		return decimal.Zero, ErrRangeRequired
	}
	return s.repo.SumExpenses(ctx, from, to)
}

// CurrentMonthTotal sums the current month's expenses.
func (s *Service) CurrentMonthTotal(ctx context.Context) (decimal.Decimal, error) {
	from, to := s.currentMonthRange()
	return s.repo.SumExpenses(ctx, from, to)
}

func (s *Service) currentMonthRange() (time.Time, time.Time) {
	now := s.now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	to := from.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return from, to
}

// Categories lists every category, active ones first in name order.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

// CreateCategory adds a category.
func (s *Service) CreateCategory(ctx context.Context, name, description string) (Category, error) {
	if strings.TrimSpace(name) == "" {
		return Category{}, ErrLabelRequired
	}
	return s.repo.InsertCategory(ctx, Category{
		Name:        strings.TrimSpace(name),
		Description: description,
		Active:      true,
	})
}

// RenameCategory updates a category's name and description.
func (s *Service) RenameCategory(ctx context.Context, id int64, name, description string) (Category, error) {
	if strings.TrimSpace(name) == "" {
		return Category{}, ErrLabelRequired
	}
	existing, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return Category{}, err
	}
	existing.Name = strings.TrimSpace(name)
	existing.Description = description
	return s.repo.UpdateCategory(ctx, existing)
}

// DeactivateCategory retires a category without touching its expenses.
func (s *Service) DeactivateCategory(ctx context.Context, id int64) error {
	existing, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	existing.Active = false
	_, err = s.repo.UpdateCategory(ctx, existing)
	return err
}
