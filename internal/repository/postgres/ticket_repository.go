package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"lootbox-hub/internal/model"
	"lootbox-hub/internal/repository"
)

type ticketRepository struct {
	pool *pgxpool.Pool
}

func NewTicketRepository(pool *pgxpool.Pool) repository.TicketRepository {
	return &ticketRepository{pool: pool}
}

var _ repository.TicketRepository = (*ticketRepository)(nil)

const ticketColumns = `
	id,
	user_id,
	subject,
	category,
	priority,
	status,
	message,
	reply,
	replied_by,
	replied_at,
	created_at,
	updated_at
`

func (r *ticketRepository) Create(ctx context.Context, ticket *model.Ticket) error {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	if ticket.Status == "" {
		ticket.Status = model.TicketStatusOpen
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}
	ticket.UpdatedAt = ticket.CreatedAt

	_, err := r.pool.Exec(ctx, `
		INSERT INTO support_tickets (id, user_id, subject, category, priority, status, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ticket.ID,
		ticket.UserID,
		ticket.Subject,
		ticket.Category,
		ticket.Priority,
		ticket.Status,
		ticket.Message,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	)
	return err
}

func (r *ticketRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Ticket, error) {
	return oneRow(scanTicket(r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM support_tickets WHERE id = $1`, id)))
}

// List returns tickets newest first.
func (r *ticketRepository) List(ctx context.Context, filter repository.TicketListFilter) ([]*model.Ticket, error) {
	clause := ticketFilter(filter)
	limit, args := clause.page(filter.Pagination)

	rows, err := r.pool.Query(ctx, `SELECT `+ticketColumns+` FROM support_tickets`+clause.where()+` ORDER BY created_at DESC, id DESC`+limit, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := make([]*model.Ticket, 0)
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}

func (r *ticketRepository) Count(ctx context.Context, filter repository.TicketListFilter) (int64, error) {
	clause := ticketFilter(filter)

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM support_tickets`+clause.where(), clause.args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *ticketRepository) Reply(ctx context.Context, id uuid.UUID, reply string, repliedBy uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE support_tickets
		   SET status = $2, reply = $3, replied_by = $4, replied_at = $5, updated_at = $5
		 WHERE id = $1
		   AND status <> $6`,
		id,
		model.TicketStatusAnswered,
		reply,
		repliedBy,
		at,
		model.TicketStatusClosed,
	)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *ticketRepository) Close(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE support_tickets
		   SET status = $2, updated_at = $3
		 WHERE id = $1
		   AND status <> $2`,
		id,
		model.TicketStatusClosed,
		at,
	)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func ticketFilter(filter repository.TicketListFilter) *filterClause {
	clause := &filterClause{}
	if filter.UserID != nil {
		clause.eq("user_id", *filter.UserID)
	}
	if filter.Status != nil {
		clause.eq("status", *filter.Status)
	}
	if filter.Priority != nil {
		clause.eq("priority", *filter.Priority)
	}
	return clause
}

func scanTicket(src scanTarget) (*model.Ticket, error) {
	ticket := &model.Ticket{}
	if err := src.Scan(
		&ticket.ID,
		&ticket.UserID,
		&ticket.Subject,
		&ticket.Category,
		&ticket.Priority,
		&ticket.Status,
		&ticket.Message,
		&ticket.Reply,
		&ticket.RepliedBy,
		&ticket.RepliedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return ticket, nil
}
