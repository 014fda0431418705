package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/station-helpdesk/internal/domain"
)

// NotificationFilter narrows a recipient's inbox.
type NotificationFilter struct {
	UnreadOnly bool
	Page       Page
}

// NotificationRepository persists per-user notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	ListByRecipient(ctx context.Context, recipientID string, filter NotificationFilter) ([]*domain.Notification, int, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
	Delete(ctx context.Context, id string) error
	DeleteByRecipient(ctx context.Context, recipientID string) error
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository builds the Postgres implementation.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

const notificationColumns = `id, recipient_id, title, message, type, related_ticket_id, is_read, read_at,
               priority, action_url, metadata, created_at`

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
	const query = `
        INSERT INTO notifications (recipient_id, title, message, type, related_ticket_id, priority, action_url, metadata)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		n.RecipientID,
		n.Title,
		n.Message,
		n.Type,
		n.RelatedTicketID,
		n.Priority,
		n.ActionURL,
		n.Metadata,
	).Scan(&n.ID, &n.CreatedAt)
	return translate(err)
}

func (r *notificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	n, err := scanNotification(r.pool.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id=$1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return n, nil
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID string, filter NotificationFilter) ([]*domain.Notification, int, error) {
	where := "recipient_id=$1"
	if filter.UnreadOnly {
		where += " AND is_read=FALSE"
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE `+where, recipientID).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}

	page := filter.Page.Normalize()
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		notificationColumns, where, page.Limit, page.Offset)
	rows, err := r.pool.Query(ctx, query, recipientID)
	if err != nil {
		return nil, 0, translate(err)
	}
	defer rows.Close()

	result := []*domain.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, n)
	}
	return result, total, rows.Err()
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id=$1 AND is_read=FALSE`, recipientID).Scan(&n)
	return n, translate(err)
}

func (r *notificationRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_read=TRUE, read_at=COALESCE(read_at, $1) WHERE id=$2`, at, id)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_read=TRUE, read_at=$1 WHERE recipient_id=$2 AND is_read=FALSE`, at, recipientID)
	if err != nil {
		return 0, translate(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *notificationRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE id=$1`, id)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *notificationRepository) DeleteByRecipient(ctx context.Context, recipientID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE recipient_id=$1`, recipientID)
	return translate(err)
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	if err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.Title,
		&n.Message,
		&n.Type,
		&n.RelatedTicketID,
		&n.IsRead,
		&n.ReadAt,
		&n.Priority,
		&n.ActionURL,
		&n.Metadata,
		&n.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &n, nil
}
