package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lootbox-hub/internal/event"
	"lootbox-hub/internal/model"
	"lootbox-hub/internal/repository"
)

const (
	ticketSubjectMin = 3
	ticketSubjectMax = 200
	ticketMessageMin = 10
	ticketMessageMax = 5000
	ticketReplyMax   = 5000

	// maxOpenTicketsPerUser caps tickets still waiting for a first answer.
	maxOpenTicketsPerUser = 5
)

type CreateTicketInput struct {
	Subject  string
	Category model.TicketCategory
	Priority model.TicketPriority
	Message  string
}

type TicketService struct {
	repo     repository.TicketRepository
	bus      *event.Bus
	reporter opsReporter
	logger   *zap.Logger
	now      func() time.Time
}

func NewTicketService(
	repo repository.TicketRepository,
	auditRepo repository.AuditRepository,
	bus *event.Bus,
	logger *zap.Logger,
) *TicketService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		repo:     repo,
		bus:      bus,
		reporter: newOpsReporter(logger, bus, auditRepo),
		logger:   logger,
		now:      time.Now,
	}
}

// CreateTicket files a support request for the caller. Category defaults to
// general and priority to medium.
func (s *TicketService) CreateTicket(ctx context.Context, actor Actor, input CreateTicketInput) (*model.Ticket, error) {
	if err := actor.requireSelf(); err != nil {
		return nil, err
	}

	ticket, err := validateTicketInput(input)
	if err != nil {
		return nil, err
	}

	open := model.TicketStatusOpen
	pending, err := s.repo.Count(ctx, repository.TicketListFilter{UserID: &actor.UserID, Status: &open})
	if err != nil {
		return nil, err
	}
	if pending >= maxOpenTicketsPerUser {
		return nil, policyViolation(ErrTooManyOpenTickets, map[string]any{
			"open":  pending,
			"limit": maxOpenTicketsPerUser,
		})
	}

	ticket.UserID = actor.UserID
	ticket.Status = model.TicketStatusOpen
	ticket.CreatedAt = s.now().UTC()
	if err := s.repo.Create(ctx, ticket); err != nil {
		return nil, err
	}

	s.logger.Info("support ticket opened",
		zap.String("ticket_id", ticket.ID.String()),
		zap.String("user_id", actor.UserID.String()),
		zap.String("category", string(ticket.Category)),
		zap.String("priority", string(ticket.Priority)),
	)
	s.publish(event.EventTicketCreated, ticket)
	return ticket, nil
}

// ListMine pages through the caller's tickets, newest first.
func (s *TicketService) ListMine(ctx context.Context, actor Actor, page, pageSize int) ([]*model.Ticket, int64, error) {
	if err := actor.requireSelf(); err != nil {
		return nil, 0, err
	}
	return s.list(ctx, repository.TicketListFilter{UserID: &actor.UserID}, page, pageSize)
}

// ListAll is the operator queue, optionally narrowed by status and priority.
func (s *TicketService) ListAll(
	ctx context.Context,
	actor Actor,
	status *model.TicketStatus,
	priority *model.TicketPriority,
	page, pageSize int,
) ([]*model.Ticket, int64, error) {
	if err := actor.requireOperator(); err != nil {
		return nil, 0, err
	}
	if status != nil && !validTicketStatus(*status) {
		return nil, 0, invalidInput(ErrInvalidInput, "unknown status")
	}
	if priority != nil && !validTicketPriority(*priority) {
		return nil, 0, invalidInput(ErrInvalidInput, "unknown priority")
	}
	return s.list(ctx, repository.TicketListFilter{Status: status, Priority: priority}, page, pageSize)
}

func (s *TicketService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*model.Ticket, error) {
	if err := actor.requireSelf(); err != nil {
		return nil, err
	}
	ticket, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(ticket.UserID) {
		return nil, forbidden()
	}
	return ticket, nil
}

// Reply answers a ticket that is not closed. A later reply replaces the
// earlier one.
func (s *TicketService) Reply(ctx context.Context, actor Actor, id uuid.UUID, reply string) (*model.Ticket, error) {
	if err := actor.requireOperator(); err != nil {
		return nil, err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil, invalidInput(ErrInvalidInput, "reply is required")
	}
	if utf8.RuneCountInString(reply) > ticketReplyMax {
		return nil, invalidInput(ErrInvalidInput, "reply exceeds 5000 characters")
	}

	now := s.now().UTC()
	if err := s.repo.Reply(ctx, id, reply, actor.UserID, now); err != nil {
		return nil, s.transitionError(ctx, id, err)
	}

	ticket, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	operatorID := actor.UserID
	s.reporter.audit(ctx, &model.AuditLog{
		UserID:       &operatorID,
		Action:       model.AuditActionTicketReply,
		ResourceType: strPtr("ticket"),
		ResourceID:   strPtr(id.String()),
		NewValue:     map[string]interface{}{"status": ticket.Status, "owner_id": ticket.UserID.String()},
	})
	s.publish(event.EventTicketAnswered, ticket)
	return ticket, nil
}

// Close is allowed to the ticket owner and to operators.
func (s *TicketService) Close(ctx context.Context, actor Actor, id uuid.UUID) (*model.Ticket, error) {
	if err := actor.requireSelf(); err != nil {
		return nil, err
	}
	ticket, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(ticket.UserID) {
		return nil, forbidden()
	}
	if ticket.Status == model.TicketStatusClosed {
		return nil, invalidState(ErrTicketClosed, nil)
	}

	now := s.now().UTC()
	if err := s.repo.Close(ctx, id, now); err != nil {
		return nil, s.transitionError(ctx, id, err)
	}

	uid := actor.UserID
	s.reporter.audit(ctx, &model.AuditLog{
		UserID:       &uid,
		Action:       model.AuditActionTicketClose,
		ResourceType: strPtr("ticket"),
		ResourceID:   strPtr(id.String()),
		OldValue:     map[string]interface{}{"status": ticket.Status},
		NewValue:     map[string]interface{}{"status": model.TicketStatusClosed},
	})

	ticket.Status = model.TicketStatusClosed
	ticket.UpdatedAt = now
	return ticket, nil
}

func (s *TicketService) list(ctx context.Context, filter repository.TicketListFilter, page, pageSize int) ([]*model.Ticket, int64, error) {
	page, pageSize = normalizeListPagination(page, pageSize)
	filter.Pagination = repository.Pagination{
		Limit:  int32(pageSize),
		Offset: int32((page - 1) * pageSize),
	}

	tickets, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}

func (s *TicketService) find(ctx context.Context, id uuid.UUID) (*model.Ticket, error) {
	ticket, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound(ErrTicketNotFound)
		}
		return nil, err
	}
	return ticket, nil
}

// transitionError tells a missing ticket apart from one closed concurrently;
// the repository reports both as ErrNotFound.
func (s *TicketService) transitionError(ctx context.Context, id uuid.UUID, err error) error {
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if _, findErr := s.find(ctx, id); findErr != nil {
		return findErr
	}
	return invalidState(ErrTicketClosed, nil)
}

func (s *TicketService) publish(topic event.Topic, ticket *model.Ticket) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(topic, event.TicketPayload{
		TicketID:  ticket.ID.String(),
		UserID:    ticket.UserID.String(),
		Subject:   ticket.Subject,
		Category:  string(ticket.Category),
		Priority:  string(ticket.Priority),
		Status:    string(ticket.Status),
		Timestamp: s.now().UTC(),
	})
}

func validateTicketInput(input CreateTicketInput) (*model.Ticket, error) {
	subject := strings.TrimSpace(input.Subject)
	if n := utf8.RuneCountInString(subject); n < ticketSubjectMin || n > ticketSubjectMax {
		return nil, invalidInput(ErrInvalidInput, "subject must be 3 to 200 characters")
	}
	message := strings.TrimSpace(input.Message)
	if n := utf8.RuneCountInString(message); n < ticketMessageMin || n > ticketMessageMax {
		return nil, invalidInput(ErrInvalidInput, "message must be 10 to 5000 characters")
	}

	category := model.TicketCategory(strings.ToLower(strings.TrimSpace(string(input.Category))))
	if category == "" {
		category = model.TicketCategoryGeneral
	}
	if !validTicketCategory(category) {
		return nil, invalidInput(ErrInvalidInput, "unknown category")
	}

	priority := model.TicketPriority(strings.ToLower(strings.TrimSpace(string(input.Priority))))
	if priority == "" {
		priority = model.TicketPriorityMedium
	}
	if !validTicketPriority(priority) {
		return nil, invalidInput(ErrInvalidInput, "unknown priority")
	}

	return &model.Ticket{
		Subject:  subject,
		Category: category,
		Priority: priority,
		Message:  message,
	}, nil
}

func validTicketCategory(c model.TicketCategory) bool {
	switch c {
	case model.TicketCategoryGeneral,
		model.TicketCategoryTechnical,
		model.TicketCategoryPayment,
		model.TicketCategoryWithdrawal,
		model.TicketCategoryFairness,
		model.TicketCategoryAccount,
		model.TicketCategoryOther:
		return true
	}
	return false
}

func validTicketPriority(p model.TicketPriority) bool {
	switch p {
	case model.TicketPriorityLow, model.TicketPriorityMedium, model.TicketPriorityHigh, model.TicketPriorityUrgent:
		return true
	}
	return false
}

func validTicketStatus(st model.TicketStatus) bool {
	switch st {
	case model.TicketStatusOpen, model.TicketStatusAnswered, model.TicketStatusClosed:
		return true
	}
	return false
}
