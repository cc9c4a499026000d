package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/observability"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

// allowedTransitions lists the statuses assigned staff may move an issue to.
// Rejected and Closed have no exits.
var allowedTransitions = func() map[domain.IssueStatus][]domain.IssueStatus {
	staffTargets := []domain.IssueStatus{
		domain.IssueStatusPending,
		domain.IssueStatusInProgress,
		domain.IssueStatusWorking,
		domain.IssueStatusResolved,
		domain.IssueStatusClosed,
	}
	table := make(map[domain.IssueStatus][]domain.IssueStatus)
	for _, from := range staffTargets {
		if from.IsTerminal() {
			continue
		}
		for _, to := range staffTargets {
			if to != from {
				table[from] = append(table[from], to)
			}
		}
	}
	return table
}()

func canTransition(from, to domain.IssueStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// IssueService coordinates the issue lifecycle.
type IssueService struct {
	issues     repository.IssueRepository
	users      repository.UserRepository
	gate       *AccessGate
	ledger     *LedgerService
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// IssueDependencies bundles collaborators for the issue service.
type IssueDependencies struct {
	IssueRepo  repository.IssueRepository
	UserRepo   repository.UserRepository
	Gate       *AccessGate
	Ledger     *LedgerService
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// NewIssueService constructs the service.
func NewIssueService(deps IssueDependencies) *IssueService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IssueService{
		issues:     deps.IssueRepo,
		users:      deps.UserRepo,
		gate:       deps.Gate,
		ledger:     deps.Ledger,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		metrics:    deps.Metrics,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// IssueQuery holds optional listing filters as received from clients.
type IssueQuery struct {
	Search   string
	Status   string
	Category string
	Priority string
}

func (q IssueQuery) filter() (repository.IssueFilter, error) {
	var filter repository.IssueFilter
	if term := strings.TrimSpace(q.Search); term != "" {
		filter.SearchTerm = &term
	}
	if q.Status != "" {
		status, err := domain.ParseIssueStatus(q.Status)
		if err != nil {
			return filter, fieldValidation(err)
		}
		filter.Statuses = []domain.IssueStatus{status}
	}
	if q.Category != "" {
		category, err := domain.ParseIssueCategory(q.Category)
		if err != nil {
			return filter, fieldValidation(err)
		}
		filter.Category = &category
	}
	if q.Priority != "" {
		priority, err := domain.ParseIssuePriority(q.Priority)
		if err != nil {
			return filter, fieldValidation(err)
		}
		filter.Priority = &priority
	}
	return filter, nil
}

// Create reports a new issue. One quota slot is reserved before the insert
// and handed back if the insert fails.
func (s *IssueService) Create(ctx context.Context, reporterEmail string, draft domain.IssueDraft) (*domain.Issue, error) {
	user, err := s.gate.Authorize(ctx, reporterEmail, OpCreateIssue, nil)
	if err != nil {
		return nil, err
	}
	issue, err := domain.NewIssue(uuid.NewString(), user.Email, draft, s.now())
	if err != nil {
		return nil, fieldValidation(err)
	}
	if _, err := s.ledger.CheckAndReserve(ctx, user.Email); err != nil {
		return nil, err
	}

	if err := s.issues.Create(ctx, issue); err != nil {
		if relErr := s.ledger.Release(ctx, user.Email); relErr != nil {
			s.logger.Error("release quota after failed insert", zap.String("user", user.Email), zap.Error(relErr))
		}
		return nil, apperrors.NewInternalError(fmt.Errorf("create issue: %w", err))
	}

	s.metrics.IncrementIssuesCreated()
	s.publishEvent(ctx, events.Event{
		Type:    events.EventIssueCreated,
		IssueID: issue.ID,
		Actor:   user.Actor(),
		Payload: events.IssueCreatedPayload{Title: issue.Title, Category: issue.Category},
	})
	return issue, nil
}

// Edit applies citizen changes to a Pending issue the caller reported.
func (s *IssueService) Edit(ctx context.Context, issueID, actorEmail string, patch domain.IssuePatch) (*domain.Issue, error) {
	issue, err := s.load(ctx, issueID)
	if err != nil {
		return nil, err
	}
	user, err := s.gate.Authorize(ctx, actorEmail, OpEditOwnIssue, &Resource{OwnerEmail: issue.ReporterEmail})
	if err != nil {
		return nil, err
	}
	if issue.Status != domain.IssueStatusPending {
		return nil, apperrors.NewInvalidState("only pending issues can be edited", map[string]any{"status": issue.Status})
	}
	if patch.IsEmpty() {
		return nil, apperrors.NewValidationError("no changes supplied", nil)
	}

	next := issue.Clone()
	if err := next.ApplyPatch(patch); err != nil {
		return nil, fieldValidation(err)
	}
	entry := domain.StatusEntry(domain.IssueStatusPending, "Issue details updated by citizen.", user.Actor(), s.now())
	if err := s.commit(ctx, issue, next, entry); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{Type: events.EventIssueUpdated, IssueID: next.ID, Actor: user.Actor()})
	return next, nil
}

// Delete removes a Pending issue and returns its quota slot to the reporter.
func (s *IssueService) Delete(ctx context.Context, issueID, actorEmail string) error {
	issue, err := s.load(ctx, issueID)
	if err != nil {
		return err
	}
	user, err := s.gate.Authorize(ctx, actorEmail, OpDeleteOwnIssue, &Resource{OwnerEmail: issue.ReporterEmail})
	if err != nil {
		return err
	}
	if issue.Status != domain.IssueStatusPending {
		return apperrors.NewInvalidState("only pending issues can be deleted", map[string]any{"status": issue.Status})
	}
	if err := s.issues.Delete(ctx, issue.ID, issue.Version); err != nil {
		return storeError(err, issue.ID)
	}
	if err := s.ledger.Release(ctx, issue.ReporterEmail); err != nil {
		s.logger.Error("release quota after delete", zap.String("issue_id", issue.ID), zap.Error(err))
	}

	s.publishEvent(ctx, events.Event{Type: events.EventIssueDeleted, IssueID: issue.ID, Actor: user.Actor()})
	return nil
}

// Assign hands an unassigned issue to a staff member. A Pending issue moves to In-Progress.
func (s *IssueService) Assign(ctx context.Context, issueID, adminEmail, staffEmail string) (*domain.Issue, error) {
	admin, err := s.gate.Authorize(ctx, adminEmail, OpAssign, nil)
	if err != nil {
		return nil, err
	}
	issue, err := s.load(ctx, issueID)
	if err != nil {
		return nil, err
	}
	staff, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(staffEmail))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewInternalError(err)
	}
	if err != nil || staff.Role != domain.RoleStaff {
		return nil, apperrors.NewNotFound("staff", map[string]any{"email": staffEmail})
	}
	if issue.IsAssigned() {
		return nil, apperrors.NewInvalidState("issue is already assigned", map[string]any{"assignedStaff": *issue.AssignedStaff})
	}
	if issue.Status.IsTerminal() {
		return nil, apperrors.NewInvalidState("issue is closed", map[string]any{"status": issue.Status})
	}

	next := issue.Clone()
	next.AssignedStaff = &staff.Email
	status := issue.Status
	if status == domain.IssueStatusPending {
		status = domain.IssueStatusInProgress
	}
	entry := domain.StatusEntry(status, "Assigned to staff: "+staff.DisplayName(), admin.Actor(), s.now())
	if err := s.commit(ctx, issue, next, entry); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:    events.EventIssueAssigned,
		IssueID: next.ID,
		Actor:   admin.Actor(),
		Payload: events.IssueAssignedPayload{StaffEmail: staff.Email},
	})
	if status != issue.Status {
		s.publishStatusChanged(ctx, next.ID, admin.Actor(), issue.Status, status, entry.Message)
	}
	return next, nil
}

// Reject closes a Pending issue without work.
func (s *IssueService) Reject(ctx context.Context, issueID, adminEmail, reason string) (*domain.Issue, error) {
	admin, err := s.gate.Authorize(ctx, adminEmail, OpReject, nil)
	if err != nil {
		return nil, err
	}
	issue, err := s.load(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if issue.Status != domain.IssueStatusPending {
		return nil, apperrors.NewInvalidState("only pending issues can be rejected", map[string]any{"status": issue.Status})
	}

	message := strings.TrimSpace(reason)
	if message == "" {
		message = "Issue rejected by admin"
	}
	next := issue.Clone()
	entry := domain.StatusEntry(domain.IssueStatusRejected, message, admin.Actor(), s.now())
	if err := s.commit(ctx, issue, next, entry); err != nil {
		return nil, err
	}

	s.publishStatusChanged(ctx, next.ID, admin.Actor(), issue.Status, domain.IssueStatusRejected, message)
	return next, nil
}

// TransitionStatus moves an issue along on behalf of its assigned staff member.
func (s *IssueService) TransitionStatus(ctx context.Context, issueID, staffEmail, newStatus string) (*domain.Issue, error) {
	issue, err := s.load(ctx, issueID)
	if err != nil {
		return nil, err
	}
	staff, err := s.gate.Authorize(ctx, staffEmail, OpTransitionStatus, &Resource{AssignedStaff: issue.AssignedStaff})
	if err != nil {
		return nil, err
	}
	target, err := domain.ParseIssueStatus(newStatus)
	if err != nil {
		return nil, apperrors.NewInvalidTransition(string(issue.Status), newStatus)
	}
	if !canTransition(issue.Status, target) {
		return nil, apperrors.NewInvalidTransition(string(issue.Status), string(target))
	}

	next := issue.Clone()
	message := fmt.Sprintf("Status changed from %s to %s", issue.Status, target)
	entry := domain.StatusEntry(target, message, staff.Actor(), s.now())
	if err := s.commit(ctx, issue, next, entry); err != nil {
		return nil, err
	}

	s.publishStatusChanged(ctx, next.ID, staff.Actor(), issue.Status, target, message)
	return next, nil
}

// Boost raises an issue to High priority. Callers must have verified payment.
func (s *IssueService) Boost(ctx context.Context, issueID string, actor domain.Actor) (*domain.Issue, error) {
	issue, err := s.load(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if issue.Priority == domain.IssuePriorityHigh {
		return nil, apperrors.NewAlreadyBoosted(issue.ID)
	}

	next := issue.Clone()
	next.Priority = domain.IssuePriorityHigh
	entry := domain.BoostEntry(actor, s.now())
	if err := s.commit(ctx, issue, next, entry); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{Type: events.EventIssueBoosted, IssueID: next.ID, Actor: actor})
	return next, nil
}

// Upvote records one vote from voterEmail and returns the new count.
func (s *IssueService) Upvote(ctx context.Context, issueID, voterEmail string) (int, error) {
	user, err := s.gate.Authorize(ctx, voterEmail, OpUpvote, nil)
	if err != nil {
		return 0, err
	}
	count, err := s.issues.AddUpvote(ctx, issueID, user.Email)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrPreconditionFailed):
		return 0, apperrors.NewSelfVote()
	case errors.Is(err, repository.ErrDuplicate):
		return 0, apperrors.NewDuplicateVote()
	default:
		return 0, storeError(err, issueID)
	}

	s.publishEvent(ctx, events.Event{Type: events.EventIssueUpvoted, IssueID: issueID, Actor: user.Actor()})
	return count, nil
}

// Get returns a single issue.
func (s *IssueService) Get(ctx context.Context, issueID string) (*domain.Issue, error) {
	return s.load(ctx, issueID)
}

// ListPublic lists every issue, High priority first.
func (s *IssueService) ListPublic(ctx context.Context, query IssueQuery, page PageRequest) (*Page[domain.Issue], error) {
	filter, err := query.filter()
	if err != nil {
		return nil, err
	}
	filter.Sort = repository.SortPriorityThenNewest
	return s.list(ctx, filter, page)
}

// LatestResolved returns the most recently resolved issues.
func (s *IssueService) LatestResolved(ctx context.Context, limit int) ([]domain.Issue, error) {
	if limit <= 0 {
		limit = 6
	}
	items, _, err := s.issues.List(ctx, repository.IssueFilter{
		Statuses: []domain.IssueStatus{domain.IssueStatusResolved},
		Sort:     repository.SortRecentlyUpdated,
		Limit:    limit,
	})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return items, nil
}

// ListForReporter lists the caller's own issues, newest first.
func (s *IssueService) ListForReporter(ctx context.Context, reporterEmail string, query IssueQuery, page PageRequest) (*Page[domain.Issue], error) {
	user, err := s.gate.Authorize(ctx, reporterEmail, OpReadOwnIssues, nil)
	if err != nil {
		return nil, err
	}
	filter, err := query.filter()
	if err != nil {
		return nil, err
	}
	filter.ReporterEmail = &user.Email
	filter.Sort = repository.SortNewest
	return s.list(ctx, filter, page)
}

// ListAssigned lists the issues assigned to the calling staff member.
func (s *IssueService) ListAssigned(ctx context.Context, staffEmail string, query IssueQuery, page PageRequest) (*Page[domain.Issue], error) {
	staff, err := s.gate.Authorize(ctx, staffEmail, OpReadAssignedIssues, nil)
	if err != nil {
		return nil, err
	}
	filter, err := query.filter()
	if err != nil {
		return nil, err
	}
	filter.AssignedStaff = &staff.Email
	filter.Sort = repository.SortPriorityThenNewest
	return s.list(ctx, filter, page)
}

// ListAll is the admin listing; search also matches the reporter email.
func (s *IssueService) ListAll(ctx context.Context, adminEmail string, query IssueQuery, page PageRequest) (*Page[domain.Issue], error) {
	if _, err := s.gate.Authorize(ctx, adminEmail, OpReadAll, nil); err != nil {
		return nil, err
	}
	filter, err := query.filter()
	if err != nil {
		return nil, err
	}
	filter.SearchReporter = true
	filter.Sort = repository.SortPriorityThenNewest
	return s.list(ctx, filter, page)
}

func (s *IssueService) list(ctx context.Context, filter repository.IssueFilter, page PageRequest) (*Page[domain.Issue], error) {
	filter.Limit, filter.Offset = page.limitOffset()
	items, total, err := s.issues.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return newPage(items, total, page), nil
}

func (s *IssueService) load(ctx context.Context, issueID string) (*domain.Issue, error) {
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, storeError(err, issueID)
	}
	return issue, nil
}

// commit records entry on next and writes it if current is still the stored version.
func (s *IssueService) commit(ctx context.Context, current, next *domain.Issue, entry domain.TimelineEntry) error {
	next.Record(entry)
	if err := s.issues.Update(ctx, next, current.Version, entry); err != nil {
		return storeError(err, current.ID)
	}
	return nil
}

func (s *IssueService) publishStatusChanged(ctx context.Context, issueID string, actor domain.Actor, from, to domain.IssueStatus, message string) {
	s.publishEvent(ctx, events.Event{
		Type:    events.EventIssueStatusChanged,
		IssueID: issueID,
		Actor:   actor,
		Payload: events.StatusChangedPayload{OldStatus: from, NewStatus: to, Message: message},
	})
}

func (s *IssueService) publishEvent(ctx context.Context, event events.Event) {
	publish(ctx, s.dispatcher, s.logger, event)
}

func publish(ctx context.Context, dispatcher events.Dispatcher, logger *zap.Logger, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := dispatcher.Publish(ctx, event); err != nil {
		logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func storeError(err error, issueID string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("issue", map[string]any{"issue_id": issueID})
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.NewConflict("issue was modified concurrently, reload and retry", map[string]any{"issue_id": issueID})
	default:
		return apperrors.NewInternalError(err)
	}
}

func fieldValidation(err error) error {
	var fieldErr *domain.FieldError
	if errors.As(err, &fieldErr) {
		return apperrors.NewValidationError("invalid "+fieldErr.Field, map[string]any{
			"field":  fieldErr.Field,
			"reason": fieldErr.Reason,
		})
	}
	return apperrors.NewValidationError(err.Error(), nil)
}
