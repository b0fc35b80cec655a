package service

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lootbox-hub/internal/event"
	"lootbox-hub/internal/model"
	"lootbox-hub/internal/repository"
	"lootbox-hub/internal/sse"
	"lootbox-hub/pkg/telegram"
	tplfs "lootbox-hub/templates"
)

type NotificationTemplate string

const (
	NotificationManualPending       NotificationTemplate = "withdrawal_manual_pending"
	NotificationWithdrawalCompleted NotificationTemplate = "withdrawal_completed"
	NotificationInvariantViolation  NotificationTemplate = "invariant_violation"
	NotificationWithdrawalBacklog   NotificationTemplate = "withdrawal_backlog"
	NotificationDepositCompleted    NotificationTemplate = "deposit_completed"
	NotificationTicketOpened        NotificationTemplate = "ticket_opened"
	NotificationTicketAnswered      NotificationTemplate = "ticket_answered"
)

var operatorRoles = []string{string(model.UserRoleAdmin), string(model.UserRoleModerator)}

var defaultRetryDelays = []time.Duration{0, 5 * time.Second, 15 * time.Second, 60 * time.Second}

const notificationSendTimeout = 15 * time.Second

// realtimeNotifier is the subset of the SSE hub used for pushes.
type realtimeNotifier interface {
	SendToUser(userID string, evt sse.SSEEvent)
	SendToRoles(roles []string, evt sse.SSEEvent)
}

type NotificationConfig struct {
	TelegramBotToken string
	OperatorChatID   int64
}

type NotificationService struct {
	userRepo       repository.UserRepository
	realtime       realtimeNotifier
	logger         *zap.Logger
	operatorChatID int64
	retryDelays    []time.Duration
	sendFn         func(ctx context.Context, chatID int64, text string) error

	templateMu sync.RWMutex
	templates  map[NotificationTemplate]*template.Template
}

func NewNotificationService(
	userRepo repository.UserRepository,
	hub *sse.SSEHub,
	cfg NotificationConfig,
	logger *zap.Logger,
) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}

	svc := &NotificationService{
		userRepo:       userRepo,
		logger:         logger,
		operatorChatID: cfg.OperatorChatID,
		retryDelays:    defaultRetryDelays,
		templates:      make(map[NotificationTemplate]*template.Template),
	}
	if hub != nil {
		svc.realtime = hub
	}
	if token := strings.TrimSpace(cfg.TelegramBotToken); token != "" {
		client := telegram.NewBotClient(token, nil)
		svc.sendFn = client.SendMarkdown
	}
	return svc
}

// Subscribe wires every bus event this service forwards.
func (s *NotificationService) Subscribe(bus *event.Bus) {
	if bus == nil {
		return
	}

	bus.Subscribe(event.EventDrawCompleted, func(payload any) {
		if p, ok := payload.(event.DrawCompletedPayload); ok {
			s.pushToUser(p.UserID, sse.EventDrawResult, p)
		}
	})
	bus.Subscribe(event.EventWithdrawalManualPending, func(payload any) {
		if p, ok := payload.(event.WithdrawalPayload); ok {
			s.onManualPending(p)
		}
	})
	bus.Subscribe(event.EventWithdrawalCompleted, func(payload any) {
		if p, ok := payload.(event.WithdrawalPayload); ok {
			s.onWithdrawalCompleted(p)
		}
	})
	bus.Subscribe(event.EventInvariantViolation, func(payload any) {
		if p, ok := payload.(event.InvariantViolationPayload); ok {
			s.onInvariantViolation(p)
		}
	})
	bus.Subscribe(event.EventDepositCompleted, func(payload any) {
		if p, ok := payload.(event.DepositCompletedPayload); ok {
			s.onDepositCompleted(p)
		}
	})
	bus.Subscribe(event.EventWithdrawalBacklogWarning, func(payload any) {
		if p, ok := payload.(event.BacklogPayload); ok {
			s.onBacklog(p)
		}
	})
	bus.Subscribe(event.EventTicketCreated, func(payload any) {
		if p, ok := payload.(event.TicketPayload); ok {
			s.onTicketCreated(p)
		}
	})
	bus.Subscribe(event.EventTicketAnswered, func(payload any) {
		if p, ok := payload.(event.TicketPayload); ok {
			s.onTicketAnswered(p)
		}
	})
}

func (s *NotificationService) onManualPending(p event.WithdrawalPayload) {
	s.pushToUser(p.UserID, sse.EventWithdrawalUpdate, p)
	s.pushToOperators(event.EventWithdrawalManualPending, p)

	if err := s.SendToOperators(NotificationManualPending, map[string]string{
		"withdrawal_id": p.WithdrawalID,
		"user_id":       p.UserID,
		"item_name":     p.ItemName,
		"eta":           formatTime(p.ETA),
	}); err != nil {
		s.logger.Warn("operator alert failed", zap.String("event", string(event.EventWithdrawalManualPending)), zap.Error(err))
	}
}

func (s *NotificationService) onWithdrawalCompleted(p event.WithdrawalPayload) {
	s.pushToUser(p.UserID, sse.EventWithdrawalUpdate, p)

	if err := s.SendToUser(context.Background(), p.UserID, NotificationWithdrawalCompleted, map[string]string{
		"withdrawal_id": p.WithdrawalID,
		"item_name":     p.ItemName,
	}); err != nil {
		s.logger.Debug("user notification skipped", zap.String("user_id", p.UserID), zap.Error(err))
	}
}

func (s *NotificationService) onInvariantViolation(p event.InvariantViolationPayload) {
	s.pushToOperators(event.EventInvariantViolation, p)

	if err := s.SendToOperators(NotificationInvariantViolation, map[string]string{
		"operation": p.Operation,
		"user_id":   p.UserID,
		"detail":    p.Detail,
		"time":      formatTime(p.Timestamp),
	}); err != nil {
		s.logger.Warn("operator alert failed", zap.String("event", string(event.EventInvariantViolation)), zap.Error(err))
	}
}

func (s *NotificationService) onDepositCompleted(p event.DepositCompletedPayload) {
	s.pushToUser(p.UserID, sse.EventDepositUpdate, p)

	if err := s.SendToUser(context.Background(), p.UserID, NotificationDepositCompleted, map[string]string{
		"deposit_id": p.DepositID,
		"amount_usd": p.AmountUSD,
	}); err != nil {
		s.logger.Debug("user notification skipped", zap.String("user_id", p.UserID), zap.Error(err))
	}
}

func (s *NotificationService) onBacklog(p event.BacklogPayload) {
	s.pushToOperators(event.EventWithdrawalBacklogWarning, p)

	if err := s.SendToOperators(NotificationWithdrawalBacklog, map[string]string{
		"pending":        strconv.FormatInt(p.Pending, 10),
		"over_threshold": strconv.FormatInt(p.OverThreshold, 10),
		"threshold":      p.Threshold.String(),
		"oldest":         p.OldestPending.Truncate(time.Minute).String(),
	}); err != nil {
		s.logger.Warn("operator alert failed", zap.String("event", string(event.EventWithdrawalBacklogWarning)), zap.Error(err))
	}
}

// onTicketCreated pages operators only for high and urgent tickets; the rest
// wait in the admin queue.
func (s *NotificationService) onTicketCreated(p event.TicketPayload) {
	switch model.TicketPriority(p.Priority) {
	case model.TicketPriorityHigh, model.TicketPriorityUrgent:
	default:
		return
	}
	s.pushToOperators(event.EventTicketCreated, p)

	if err := s.SendToOperators(NotificationTicketOpened, map[string]string{
		"ticket_id": p.TicketID,
		"user_id":   p.UserID,
		"subject":   p.Subject,
		"category":  p.Category,
		"priority":  p.Priority,
	}); err != nil {
		s.logger.Warn("operator alert failed", zap.String("event", string(event.EventTicketCreated)), zap.Error(err))
	}
}

func (s *NotificationService) onTicketAnswered(p event.TicketPayload) {
	s.pushToUser(p.UserID, sse.EventTicketUpdate, p)

	if err := s.SendToUser(context.Background(), p.UserID, NotificationTicketAnswered, map[string]string{
		"ticket_id": p.TicketID,
		"subject":   p.Subject,
	}); err != nil {
		s.logger.Debug("user notification skipped", zap.String("user_id", p.UserID), zap.Error(err))
	}
}

// SendToUser delivers a rendered template to the user's linked Telegram
// chat. Users without a linked chat are skipped silently.
func (s *NotificationService) SendToUser(
	ctx context.Context,
	userID string,
	templateName NotificationTemplate,
	vars map[string]string,
) error {
	if s.userRepo == nil {
		return errors.New("user repository is nil")
	}
	if s.sendFn == nil {
		return nil
	}

	uid, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return ErrInvalidUserID
	}

	user, err := s.userRepo.FindByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if user.TelegramChatID == nil || *user.TelegramChatID == 0 {
		return nil
	}

	payload := cloneStringMap(vars)
	payload["username"] = user.Username
	text, err := s.renderTemplate(templateName, payload)
	if err != nil {
		return err
	}

	s.sendAsyncWithRetry(*user.TelegramChatID, text, templateName)
	return nil
}

// SendToOperators posts to the configured operator chat.
func (s *NotificationService) SendToOperators(templateName NotificationTemplate, vars map[string]string) error {
	if s.sendFn == nil || s.operatorChatID == 0 {
		return nil
	}

	text, err := s.renderTemplate(templateName, cloneStringMap(vars))
	if err != nil {
		return err
	}

	s.sendAsyncWithRetry(s.operatorChatID, text, templateName)
	return nil
}

func (s *NotificationService) pushToUser(userID, eventType string, payload any) {
	if s.realtime == nil || strings.TrimSpace(userID) == "" {
		return
	}
	s.realtime.SendToUser(userID, sse.NewEvent(eventType, payload))
}

func (s *NotificationService) pushToOperators(kind event.Topic, payload any) {
	if s.realtime == nil {
		return
	}
	s.realtime.SendToRoles(operatorRoles, sse.NewEvent(sse.EventSystemAlert, map[string]any{
		"kind":    string(kind),
		"payload": payload,
	}))
}

func (s *NotificationService) sendAsyncWithRetry(chatID int64, text string, templateName NotificationTemplate) {
	send := s.sendFn
	delays := s.retryDelays
	go func() {
		var sendErr error
		for i, delay := range delays {
			if i > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), notificationSendTimeout)
			sendErr = send(ctx, chatID, text)
			cancel()
			if sendErr == nil {
				return
			}
		}

		s.logger.Error("send telegram notification failed",
			zap.Int64("chat_id", chatID),
			zap.String("template", string(templateName)),
			zap.Error(sendErr),
		)
	}()
}

func (s *NotificationService) renderTemplate(
	templateName NotificationTemplate,
	vars map[string]string,
) (string, error) {
	tpl, err := s.loadTemplate(templateName)
	if err != nil {
		return "", err
	}

	buf := bytes.NewBuffer(nil)
	if err := tpl.Execute(buf, vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *NotificationService) loadTemplate(name NotificationTemplate) (*template.Template, error) {
	s.templateMu.RLock()
	if tpl, ok := s.templates[name]; ok {
		s.templateMu.RUnlock()
		return tpl, nil
	}
	s.templateMu.RUnlock()

	body, err := tplfs.Notification(string(name))
	if err != nil {
		return nil, err
	}

	tpl, err := template.New(string(name)).
		Option("missingkey=zero").
		Funcs(template.FuncMap{"md": telegram.EscapeMarkdown}).
		Parse(body)
	if err != nil {
		return nil, err
	}

	s.templateMu.Lock()
	s.templates[name] = tpl
	s.templateMu.Unlock()
	return tpl, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04 MST")
}

func cloneStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return make(map[string]string)
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
