package storage

import (
	"context"
	"time"

	"github.com/mycontacts-app/mycontacts/libs/db"
)

type Contact struct {
	ID        int64
	Name      string
	Email     string
	Mobile    string
	UserID    int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ContactRepository struct {
	pool *db.Pool
}

func NewContactRepository(pool *db.Pool) *ContactRepository {
	return &ContactRepository{pool: pool}
}

func (r *ContactRepository) Create(ctx context.Context, userID int64, name, email, mobile string) (Contact, error) {
	var c Contact
	err := r.pool.QueryRow(ctx, `
		INSERT INTO contacts (name, email, mobile, user_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, email, mobile, user_id, created_at, updated_at
	`, name, email, mobile, userID).Scan(
		&c.ID, &c.Name, &c.Email, &c.Mobile, &c.UserID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Contact{}, err
	}
	return c, nil
}

// ListByUser returns the user's newest contacts first.
func (r *ContactRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]Contact, error) {
	if limit <= 0 {
		limit = 15
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email, mobile, user_id, created_at, updated_at
		FROM contacts
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Mobile, &c.UserID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return contacts, nil
}

func (r *ContactRepository) GetByID(ctx context.Context, id int64) (Contact, error) {
	var c Contact
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, mobile, user_id, created_at, updated_at
		FROM contacts
		WHERE id = $1
	`, id).Scan(
		&c.ID, &c.Name, &c.Email, &c.Mobile, &c.UserID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Contact{}, err
	}
	return c, nil
}

func (r *ContactRepository) Update(ctx context.Context, id int64, name, email, mobile string) (Contact, error) {
	var c Contact
	err := r.pool.QueryRow(ctx, `
		UPDATE contacts
		SET name = $2, email = $3, mobile = $4, updated_at = now()
		WHERE id = $1
		RETURNING id, name, email, mobile, user_id, created_at, updated_at
	`, id, name, email, mobile).Scan(
		&c.ID, &c.Name, &c.Email, &c.Mobile, &c.UserID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Contact{}, err
	}
	return c, nil
}

func (r *ContactRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	return err
}
