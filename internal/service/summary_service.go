package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/recaphq/recap-api/internal/credit"
	"github.com/recaphq/recap-api/internal/domain"
	"github.com/recaphq/recap-api/internal/platform"
	"github.com/recaphq/recap-api/internal/platform/logger"
	"github.com/recaphq/recap-api/internal/store"
)

const (
	summaryService = "summary"

	// historyLimit bounds the task list.
	historyLimit = 100
)

// CreateTaskRequest is the caller's input for a new summary task.
type CreateTaskRequest struct {
	Username string
	Style    string
	Platform string
}

// TaskStatusView is what a polling client sees for one task.
type TaskStatusView struct {
	ID            uuid.UUID          `json:"id"`
	Status        domain.TaskStatus  `json:"status"`
	Message       string             `json:"message,omitempty"`
	Error         string             `json:"error,omitempty"`
	ImageURL      string             `json:"imageUrl,omitempty"`
	Progress      int                `json:"progress"`
	CurrentStep   *domain.Step       `json:"currentStep"`
	Steps         []domain.StepState `json:"steps"`
	EstimatedTime int                `json:"estimatedTime"`
}

// TaskListItem is a task together with the debit that paid for it.
type TaskListItem struct {
	*domain.Task
	CreditHistory *domain.CreditEntry `json:"creditHistory"`
}

// SummaryConfig controls admission.
type SummaryConfig struct {
	LivePlatforms   []domain.Platform
	BillingRequired bool
}

// SummaryService admits summary tasks and projects their state.
type SummaryService interface {
	// CreateTask validates the request, charges the style's price and inserts
	// a pending task. userID is empty for anonymous callers.
	CreateTask(ctx context.Context, userID string, req CreateTaskRequest) (*domain.Task, error)

	// GetStatus returns the status projection of a task the caller may see.
	GetStatus(ctx context.Context, userID string, id uuid.UUID) (*TaskStatusView, error)

	// ListTasks returns the caller's tasks newest first; admins see every task.
	ListTasks(ctx context.Context, userID string) ([]TaskListItem, error)
}

type summaryServiceImpl struct {
	tasks    store.TaskStore
	ledger   *credit.Ledger
	adapters platform.Registry
	live     map[domain.Platform]bool
	billing  bool
	logger   *slog.Logger
}

// NewSummaryService creates a SummaryService.
func NewSummaryService(
	tasks store.TaskStore,
	ledger *credit.Ledger,
	adapters platform.Registry,
	cfg SummaryConfig,
	logger *slog.Logger,
) (SummaryService, error) {
	if tasks == nil {
		return nil, errors.New("task store cannot be nil")
	}
	if ledger == nil {
		return nil, errors.New("credit ledger cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	live := make(map[domain.Platform]bool, len(cfg.LivePlatforms))
	for _, p := range cfg.LivePlatforms {
		live[p] = true
	}
	return &summaryServiceImpl{
		tasks:    tasks,
		ledger:   ledger,
		adapters: adapters,
		live:     live,
		billing:  cfg.BillingRequired,
		logger:   logger.With(slog.String("component", "summary_service")),
	}, nil
}

// CreateTask implements SummaryService.CreateTask.
func (s *summaryServiceImpl) CreateTask(ctx context.Context, userID string, req CreateTaskRequest) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	anonymous := userID == ""
	if anonymous && s.billing {
		return nil, domain.ErrUnauthorized
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || strings.TrimSpace(req.Style) == "" {
		return nil, ErrMissingFields
	}
	style, ok := domain.ParseStyle(req.Style)
	if !ok {
		return nil, domain.ErrInvalidStyle
	}
	required := style.Credits()

	plat, ok := domain.ParsePlatform(req.Platform)
	if !ok || !s.live[plat] {
		return nil, domain.ErrUnsupportedPlatform
	}
	adapter, err := s.adapters.Get(plat)
	if err != nil {
		return nil, domain.ErrUnsupportedPlatform
	}

	if !anonymous {
		balance, err := s.ledger.Balance(ctx, userID)
		if err != nil {
			return nil, wrap(summaryService, "create", err)
		}
		if balance < required {
			log.InfoContext(ctx, "insufficient credits for task",
				slog.String("user_id", userID),
				slog.Int("balance", balance),
				slog.Int("required", required))
			return nil, domain.ErrInsufficientCredits
		}
	}

	exists, err := adapter.UserExists(ctx, username)
	if err != nil {
		// verification failures never charge the caller
		log.WarnContext(ctx, "platform user lookup failed",
			slog.String("platform", string(plat)),
			slog.String("username", username),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", domain.ErrPlatformUserNotFound, err)
	}
	if !exists {
		return nil, domain.ErrPlatformUserNotFound
	}

	t, err := domain.NewTask(userID, plat, username, style)
	if err != nil {
		return nil, err
	}

	if anonymous {
		if err := s.tasks.Create(ctx, t); err != nil {
			return nil, wrap(summaryService, "create", err)
		}
	} else {
		err = s.ledger.Atomically(ctx, func(ctx context.Context, tx *sql.Tx, ledger *credit.Ledger) error {
			description := fmt.Sprintf("Created %s task for %s", style, username)
			if err := ledger.TryDebit(ctx, userID, required, domain.EntryTaskCreation, description, t.ID); err != nil {
				return err
			}
			return s.tasks.WithTx(tx).Create(ctx, t)
		})
		if err != nil {
			return nil, wrap(summaryService, "create", err)
		}
	}

	log.InfoContext(ctx, "task created",
		slog.String("task_id", t.ID.String()),
		slog.String("platform", string(plat)),
		slog.String("style", string(style)),
		slog.Bool("anonymous", anonymous))
	return t, nil
}

// GetStatus implements SummaryService.GetStatus.
func (s *summaryServiceImpl) GetStatus(ctx context.Context, userID string, id uuid.UUID) (*TaskStatusView, error) {
	t, err := s.visibleTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	view := &TaskStatusView{
		ID:            t.ID,
		Status:        t.Status,
		Message:       t.Message,
		Error:         t.Error,
		ImageURL:      t.ImageURL,
		Progress:      domain.Progress(t.Status, t.Step),
		Steps:         domain.StepStates(t.Status, t.Step),
		EstimatedTime: domain.EstimatedTotalMillis,
	}
	if t.Status == domain.TaskStatusProcessing {
		step := t.Step
		view.CurrentStep = &step
	}
	return view, nil
}

// visibleTask loads a task the caller owns. Admins see every task and
// anonymous tasks are visible to anyone holding the id.
func (s *summaryServiceImpl) visibleTask(ctx context.Context, userID string, id uuid.UUID) (*domain.Task, error) {
	t, err := s.tasks.GetByID(ctx, id)
	if errors.Is(err, store.ErrTaskNotFound) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, wrap(summaryService, "get", err)
	}
	if t.UserID == "" || t.OwnedBy(userID) {
		return t, nil
	}
	if userID != "" {
		admin, err := s.ledger.IsAdmin(ctx, userID)
		if err != nil {
			return nil, wrap(summaryService, "get", err)
		}
		if admin {
			return t, nil
		}
	}
	return nil, ErrNotOwned
}

// ListTasks implements SummaryService.ListTasks.
func (s *summaryServiceImpl) ListTasks(ctx context.Context, userID string) ([]TaskListItem, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	admin, err := s.ledger.IsAdmin(ctx, userID)
	if err != nil {
		return nil, wrap(summaryService, "list", err)
	}
	owner := userID
	if admin {
		owner = ""
	}

	tasks, err := s.tasks.ListByUser(ctx, owner, historyLimit)
	if err != nil {
		return nil, wrap(summaryService, "list", err)
	}
	items := make([]TaskListItem, 0, len(tasks))
	for _, t := range tasks {
		debit, err := s.ledger.DebitFor(ctx, t.ID, domain.EntryTaskCreation)
		if err != nil {
			return nil, wrap(summaryService, "list", err)
		}
		items = append(items, TaskListItem{Task: t, CreditHistory: debit})
	}
	return items, nil
}
