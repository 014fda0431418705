package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/station-helpdesk/internal/domain"
)

// TicketFilter captures list search parameters.
type TicketFilter struct {
	Status     *domain.TicketStatus
	Priority   *domain.TicketPriority
	Category   *domain.TicketCategory
	Location   *string
	AssignedTo *string
	ReportedBy *string
	DateFrom   *time.Time
	DateTo     *time.Time
	Page       Page
}

// TicketRepository encapsulates ticket persistence including comments and attachments.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]*domain.Ticket, int, error)
	AppendComment(ctx context.Context, comment *domain.Comment) error
	Stats(ctx context.Context) (domain.TicketStats, error)
	// CountByUser counts tickets the user reported, is assigned to or commented on.
	CountByUser(ctx context.Context, userID string) (int, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, title, description, priority, status, category, gas_station_location,
               reported_by, assigned_to, estimated_resolution_time, actual_resolution_time,
               is_urgent, tags, escalation_level, customer_contact, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const query = `
        INSERT INTO tickets (title, description, priority, status, category, gas_station_location, reported_by,
            assigned_to, estimated_resolution_time, actual_resolution_time, is_urgent, tags, escalation_level, customer_contact)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        RETURNING id, created_at, updated_at`
	if err := tx.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Priority,
		ticket.Status,
		ticket.Category,
		ticket.GasStationLocation,
		ticket.ReportedBy,
		ticket.AssignedTo,
		ticket.EstimatedResolutionTime,
		ticket.ActualResolutionTime,
		ticket.IsUrgent,
		ticket.Tags,
		ticket.EscalationLevel,
		ticket.CustomerContact,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
		return translate(err)
	}

	const attachmentQuery = `
        INSERT INTO ticket_attachments (ticket_id, filename, original_name, storage_path, mime_type, size_bytes)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	for i := range ticket.Attachments {
		att := &ticket.Attachments[i]
		if err := tx.QueryRow(ctx, attachmentQuery,
			ticket.ID,
			att.Filename,
			att.OriginalName,
			att.StoragePath,
			att.MimeType,
			att.Size,
		).Scan(&att.ID, &att.CreatedAt); err != nil {
			return translate(err)
		}
	}

	return tx.Commit(ctx)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, priority=$3, status=$4, category=$5, assigned_to=$6,
            estimated_resolution_time=$7, actual_resolution_time=$8, is_urgent=$9, tags=$10,
            escalation_level=$11, customer_contact=$12, updated_at=NOW()
        WHERE id=$13
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Priority,
		ticket.Status,
		ticket.Category,
		ticket.AssignedTo,
		ticket.EstimatedResolutionTime,
		ticket.ActualResolutionTime,
		ticket.IsUrgent,
		ticket.Tags,
		ticket.EscalationLevel,
		ticket.CustomerContact,
		ticket.ID,
	).Scan(&ticket.UpdatedAt)
	return translate(err)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id))
	if err != nil {
		return nil, translate(err)
	}
	if err := r.loadChildren(ctx, []*domain.Ticket{ticket}); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]*domain.Ticket, int, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		clauses = append(clauses, fmt.Sprintf("priority=$%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.Location != nil && strings.TrimSpace(*filter.Location) != "" {
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(*filter.Location))+"%")
		clauses = append(clauses, fmt.Sprintf("LOWER(gas_station_location) LIKE $%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to::text=$%d", len(args)))
	}
	if filter.ReportedBy != nil {
		args = append(args, *filter.ReportedBy)
		clauses = append(clauses, fmt.Sprintf("reported_by::text=$%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	where := strings.Join(clauses, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}

	page := filter.Page.Normalize()
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		ticketColumns, where, page.Limit, page.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, translate(err)
	}
	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, 0, err
	}
	if err := r.loadChildren(ctx, tickets); err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}

func (r *ticketRepository) AppendComment(ctx context.Context, comment *domain.Comment) error {
	const query = `
        INSERT INTO ticket_comments (ticket_id, author_id, content, is_internal)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	if err := r.pool.QueryRow(ctx, query,
		comment.TicketID,
		comment.AuthorID,
		comment.Content,
		comment.IsInternal,
	).Scan(&comment.ID, &comment.CreatedAt); err != nil {
		return translate(err)
	}
	_, err := r.pool.Exec(ctx, `UPDATE tickets SET updated_at=NOW() WHERE id=$1`, comment.TicketID)
	return translate(err)
}

func (r *ticketRepository) Stats(ctx context.Context) (domain.TicketStats, error) {
	stats := domain.TicketStats{
		ByStatus:   make(map[domain.TicketStatus]int, len(domain.TicketStatuses)),
		ByPriority: make(map[domain.TicketPriority]int, len(domain.TicketPriorities)),
	}
	for _, status := range domain.TicketStatuses {
		stats.ByStatus[status] = 0
	}
	for _, priority := range domain.TicketPriorities {
		stats.ByPriority[priority] = 0
	}

	var avgMs *float64
	if err := r.pool.QueryRow(ctx, `
        SELECT COUNT(*),
               AVG(EXTRACT(EPOCH FROM (actual_resolution_time - created_at)) * 1000)
                   FILTER (WHERE actual_resolution_time IS NOT NULL)
        FROM tickets`).Scan(&stats.Total, &avgMs); err != nil {
		return stats, translate(err)
	}
	if avgMs != nil {
		stats.AvgResolutionTimeMs = int64(*avgMs)
	}

	if err := r.countBy(ctx, "status", func(key string, n int) {
		stats.ByStatus[domain.TicketStatus(key)] = n
	}); err != nil {
		return stats, err
	}
	if err := r.countBy(ctx, "priority", func(key string, n int) {
		stats.ByPriority[domain.TicketPriority(key)] = n
	}); err != nil {
		return stats, err
	}

	rows, err := r.pool.Query(ctx, `
        SELECT gas_station_location, COUNT(*) AS n FROM tickets
        GROUP BY gas_station_location ORDER BY n DESC, gas_station_location ASC LIMIT $1`, domain.TopLocationLimit)
	if err != nil {
		return stats, translate(err)
	}
	defer rows.Close()
	stats.TopLocations = []domain.LocationCount{}
	for rows.Next() {
		var lc domain.LocationCount
		if err := rows.Scan(&lc.Location, &lc.Count); err != nil {
			return stats, err
		}
		stats.TopLocations = append(stats.TopLocations, lc)
	}
	return stats, rows.Err()
}

// countBy runs a GROUP BY over a fixed, trusted column name.
func (r *ticketRepository) countBy(ctx context.Context, column string, set func(string, int)) error {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s, COUNT(*) FROM tickets GROUP BY %s`, column, column))
	if err != nil {
		return translate(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		set(key, n)
	}
	return rows.Err()
}

func (r *ticketRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
        SELECT COUNT(*) FROM tickets t
        WHERE t.reported_by::text=$1 OR t.assigned_to::text=$1
           OR EXISTS (SELECT 1 FROM ticket_comments c WHERE c.ticket_id=t.id AND c.author_id::text=$1)`, userID).Scan(&n)
	return n, translate(err)
}

func (r *ticketRepository) loadChildren(ctx context.Context, tickets []*domain.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	index := make(map[string]*domain.Ticket, len(tickets))
	ids := make([]string, 0, len(tickets))
	for _, ticket := range tickets {
		ticket.Attachments = []domain.Attachment{}
		ticket.Comments = []domain.Comment{}
		index[ticket.ID] = ticket
		ids = append(ids, ticket.ID)
	}

	attRows, err := r.pool.Query(ctx, `
        SELECT id, ticket_id, filename, original_name, storage_path, mime_type, size_bytes, created_at
        FROM ticket_attachments WHERE ticket_id::text = ANY($1) ORDER BY created_at ASC`, ids)
	if err != nil {
		return translate(err)
	}
	for attRows.Next() {
		var (
			att      domain.Attachment
			ticketID string
		)
		if err := attRows.Scan(&att.ID, &ticketID, &att.Filename, &att.OriginalName, &att.StoragePath, &att.MimeType, &att.Size, &att.CreatedAt); err != nil {
			attRows.Close()
			return err
		}
		if ticket, ok := index[ticketID]; ok {
			ticket.Attachments = append(ticket.Attachments, att)
		}
	}
	attRows.Close()
	if err := attRows.Err(); err != nil {
		return err
	}

	commentRows, err := r.pool.Query(ctx, `
        SELECT id, ticket_id, author_id, content, is_internal, created_at
        FROM ticket_comments WHERE ticket_id::text = ANY($1) ORDER BY created_at ASC`, ids)
	if err != nil {
		return translate(err)
	}
	defer commentRows.Close()
	for commentRows.Next() {
		var comment domain.Comment
		if err := commentRows.Scan(&comment.ID, &comment.TicketID, &comment.AuthorID, &comment.Content, &comment.IsInternal, &comment.CreatedAt); err != nil {
			return err
		}
		if ticket, ok := index[comment.TicketID]; ok {
			ticket.Comments = append(ticket.Comments, comment)
		}
	}
	return commentRows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Priority,
		&ticket.Status,
		&ticket.Category,
		&ticket.GasStationLocation,
		&ticket.ReportedBy,
		&ticket.AssignedTo,
		&ticket.EstimatedResolutionTime,
		&ticket.ActualResolutionTime,
		&ticket.IsUrgent,
		&ticket.Tags,
		&ticket.EscalationLevel,
		&ticket.CustomerContact,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]*domain.Ticket, error) {
	defer rows.Close()
	result := []*domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
