package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// querier is the subset of pgxpool.Pool and pgx.Tx the cart reader needs.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *Store) GetCart(ctx context.Context, userID string) (models.Cart, error) {
	return loadCart(ctx, s.pool, userID)
}

func loadCart(ctx context.Context, q querier, userID string) (models.Cart, error) {
	rows, err := q.Query(ctx, `
		SELECT ci.quantity, p.product_id, p.name, p.price_cents
		FROM cart_items ci
		LEFT JOIN products p ON p.product_id = ci.product_id AND NOT p.deleted
		WHERE ci.user_id = $1
		ORDER BY ci.created_at, ci.product_id
	`, userID)
	if err != nil {
		return models.Cart{}, err
	}
	defer rows.Close()

	cart := models.Cart{Items: []models.CartItem{}}
	for rows.Next() {
		var item models.CartItem
		var productID, name sql.NullString
		var priceCents sql.NullInt64
		if err := rows.Scan(&item.Quantity, &productID, &name, &priceCents); err != nil {
			return models.Cart{}, err
		}
		if productID.Valid {
			item.Product = &models.Product{
				ProductID:  productID.String,
				Name:       name.String,
				PriceCents: priceCents.Int64,
			}
		}
		cart.Items = append(cart.Items, item)
	}
	return cart, rows.Err()
}

func (s *Store) UpsertItem(ctx context.Context, input store.UpsertItemInput) (models.Cart, error) {
	if input.Quantity < 1 {
		return models.Cart{}, store.ErrInvalidQuantity
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Cart{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var exists bool
	if err = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM products WHERE product_id = $1 AND NOT deleted)
	`, input.ProductID).Scan(&exists); err != nil {
		return models.Cart{}, err
	}
	if !exists {
		err = store.ErrProductNotFound
		return models.Cart{}, err
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
	`, input.UserID, input.ProductID, input.Quantity, createdAt); err != nil {
		return models.Cart{}, err
	}

	if err = appendOutboxTx(ctx, tx, store.OutboxEvent{
		UserID: input.UserID,
		Type:   store.EventCartItemAdded,
		Payload: cartEventPayload{
			RequestID: input.RequestID,
			UserID:    input.UserID,
			ProductID: input.ProductID,
			Quantity:  input.Quantity,
		}.marshal(),
	}); err != nil {
		return models.Cart{}, err
	}

	cart, err := loadCart(ctx, tx, input.UserID)
	if err != nil {
		return models.Cart{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Cart{}, err
	}
	return cart, nil
}

func (s *Store) UpdateItemQuantity(ctx context.Context, input store.UpdateQuantityInput) (models.Cart, error) {
	if input.Quantity < 1 {
		return models.Cart{}, store.ErrInvalidQuantity
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Cart{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE cart_items SET quantity = $3, updated_at = now()
		WHERE user_id = $1 AND product_id = $2
	`, input.UserID, input.ProductID, input.Quantity)
	if err != nil {
		return models.Cart{}, err
	}
	if tag.RowsAffected() == 0 {
		err = store.ErrItemNotFound
		return models.Cart{}, err
	}

	if err = appendOutboxTx(ctx, tx, store.OutboxEvent{
		UserID: input.UserID,
		Type:   store.EventCartItemUpdated,
		Payload: cartEventPayload{
			UserID:    input.UserID,
			ProductID: input.ProductID,
			Quantity:  input.Quantity,
		}.marshal(),
	}); err != nil {
		return models.Cart{}, err
	}

	cart, err := loadCart(ctx, tx, input.UserID)
	if err != nil {
		return models.Cart{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Cart{}, err
	}
	return cart, nil
}

func (s *Store) RemoveItem(ctx context.Context, userID, productID string) (models.Cart, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Cart{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
		DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2
	`, userID, productID)
	if err != nil {
		return models.Cart{}, err
	}
	if tag.RowsAffected() == 0 {
		err = store.ErrItemNotFound
		return models.Cart{}, err
	}

	if err = appendOutboxTx(ctx, tx, store.OutboxEvent{
		UserID:  userID,
		Type:    store.EventCartItemRemoved,
		Payload: cartEventPayload{UserID: userID, ProductID: productID}.marshal(),
	}); err != nil {
		return models.Cart{}, err
	}

	cart, err := loadCart(ctx, tx, userID)
	if err != nil {
		return models.Cart{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Cart{}, err
	}
	return cart, nil
}

func (s *Store) ClearCart(ctx context.Context, userID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return err
	}
	if err = appendOutboxTx(ctx, tx, store.OutboxEvent{
		UserID:  userID,
		Type:    store.EventCartCleared,
		Payload: cartEventPayload{UserID: userID}.marshal(),
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type cartEventPayload struct {
	RequestID string `json:"request_id,omitempty"`
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`
}

func (p cartEventPayload) marshal() json.RawMessage {
	data, _ := json.Marshal(p)
	return data
}

func appendOutboxTx(ctx context.Context, tx pgx.Tx, event store.OutboxEvent) error {
	eventID := event.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, user_id, type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, eventID, event.UserID, event.Type, event.Payload, createdAt)
	return err
}

func (s *Store) AppendOutboxEvent(ctx context.Context, event store.OutboxEvent) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if err = appendOutboxTx(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ListOutboxEvents(ctx context.Context, after store.Offset, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, user_id, type, payload, created_at
		FROM outbox_events
		WHERE (created_at, event_id) > ($1, $2)
		ORDER BY created_at, event_id
		LIMIT $3
	`, after.LastEventTime, after.LastEventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.UserID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *Store) GetOffset(ctx context.Context, consumer string) (store.Offset, error) {
	var offset store.Offset
	row := s.pool.QueryRow(ctx, `
		SELECT last_event_time, last_event_id FROM consumer_offsets WHERE consumer = $1
	`, consumer)
	if err := row.Scan(&offset.LastEventTime, &offset.LastEventID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Offset{}, nil
		}
		return store.Offset{}, err
	}
	return offset, nil
}

func (s *Store) UpdateOffset(ctx context.Context, consumer string, offset store.Offset) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO consumer_offsets (consumer, last_event_time, last_event_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (consumer)
		DO UPDATE SET last_event_time = EXCLUDED.last_event_time, last_event_id = EXCLUDED.last_event_id
	`, consumer, offset.LastEventTime, offset.LastEventID)
	return err
}

func (s *Store) ListNotifications(ctx context.Context, query store.NotificationQuery) (store.NotificationPage, error) {
	page := query.Page
	if page < 1 {
		page = 1
	}
	limit := query.Limit
	if limit <= 0 {
		limit = 20
	}

	countQuery := `SELECT count(*) FROM notifications WHERE user_id = $1`
	listQuery := `
		SELECT notification_id, user_id, message, action_type, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	args := []any{query.UserID}
	if query.IsRead != nil {
		countQuery = `SELECT count(*) FROM notifications WHERE user_id = $1 AND is_read = $2`
		listQuery = `
			SELECT notification_id, user_id, message, action_type, is_read, created_at
			FROM notifications
			WHERE user_id = $1 AND is_read = $2
			ORDER BY created_at DESC
			LIMIT $3 OFFSET $4`
		args = append(args, *query.IsRead)
	}

	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return store.NotificationPage{}, err
	}

	listArgs := append(args, limit, (page-1)*limit)
	rows, err := s.pool.Query(ctx, listQuery, listArgs...)
	if err != nil {
		return store.NotificationPage{}, err
	}
	defer rows.Close()

	result := store.NotificationPage{Notifications: []models.Notification{}, TotalNotifications: total}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.NotificationID, &n.UserID, &n.Message, &n.ActionType, &n.IsRead, &n.CreatedAt); err != nil {
			return store.NotificationPage{}, err
		}
		result.Notifications = append(result.Notifications, n)
	}
	return result, rows.Err()
}

func (s *Store) InsertNotification(ctx context.Context, notification models.Notification) error {
	notificationID := notification.NotificationID
	if notificationID == "" {
		notificationID = uuid.NewString()
	}
	createdAt := notification.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (notification_id, user_id, message, action_type, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, notificationID, notification.UserID, notification.Message, notification.ActionType, notification.IsRead, createdAt)
	return err
}

func (s *Store) MarkRead(ctx context.Context, userID string, notificationIDs []string) error {
	if len(notificationIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications SET is_read = true
		WHERE user_id = $1 AND notification_id = ANY($2)
	`, userID, notificationIDs)
	return err
}

func (s *Store) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM notifications WHERE user_id = $1 AND NOT is_read
	`, userID).Scan(&count)
	return count, err
}
