package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	// ErrNotFound - запись отсутствует или принадлежит другому пользователю.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidMessage - сообщение с неизвестным типом.
	ErrInvalidMessage = errors.New("invalid message")
)

// Repository - доступ к данным пользователя. Все запросы ограничены user_id.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// wrap превращает ошибку запроса в "failed to <op>: <cause>", sql.ErrNoRows - в ErrNotFound.
func wrap(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to %s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// checkID отсекает идентификаторы, которые не могут быть UUID: такой записи
// заведомо нет, а запрос к столбцу UUID закончился бы ошибкой приведения типа.
func checkID(op, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("failed to %s: %w: invalid id %q", op, ErrNotFound, id)
	}
	return nil
}

// affected проверяет, что DELETE/UPDATE затронул строку.
func affected(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrap(op, err)
	}
	if n == 0 {
		return wrap(op, ErrNotFound)
	}
	return nil
}
