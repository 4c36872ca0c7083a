package main

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
)

// Tx is a Session bound to one database transaction.
type Tx struct {
	tx        *sqlx.Tx
	d         goqu.DialectWrapper
	returning bool
}

var _ Session = (*Tx)(nil)

func (t *Tx) get(ctx context.Context, dst any, ds *goqu.SelectDataset) error {
	q, args, err := ds.ToSQL()
	if err != nil {
		return err
	}
	if err := t.tx.GetContext(ctx, dst, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (t *Tx) exec(ctx context.Context, q string, args []any, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	res, err := t.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// insert returns the new row id. Postgres reports it through RETURNING,
// SQLite through LastInsertId.
func (t *Tx) insert(ctx context.Context, ds *goqu.InsertDataset) (int64, error) {
	if t.returning {
		q, args, err := ds.Returning("id").ToSQL()
		if err != nil {
			return 0, err
		}
		var id int64
		err = t.tx.QueryRowxContext(ctx, q, args...).Scan(&id)
		return id, err
	}
	q, args, err := ds.ToSQL()
	if err != nil {
		return 0, err
	}
	res, err := t.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (t *Tx) UserByID(ctx context.Context, id int64) (User, error) {
	var u User
	err := t.get(ctx, &u, t.d.From("users").Prepared(true).
		Select("id", "email", "name", "is_admin", "created_at").
		Where(goqu.C("id").Eq(id)))
	return u, err
}

func (t *Tx) cardSelect() *goqu.SelectDataset {
	return t.d.From(goqu.T("cards").As("c")).Prepared(true).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("c.user_id")))).
		Select(
			goqu.I("c.id"), goqu.I("c.title"), goqu.I("c.description"), goqu.I("c.created_on"),
			goqu.I("c.status"), goqu.I("c.priority"), goqu.I("c.user_id"),
			goqu.I("u.name").As("owner_name"), goqu.I("u.email").As("owner_email"),
		)
}

func (t *Tx) CardByID(ctx context.Context, id int64) (Card, error) {
	var c Card
	err := t.get(ctx, &c, t.cardSelect().Where(goqu.I("c.id").Eq(id)))
	return c, err
}

// ListCards returns all cards, newest first.
func (t *Tx) ListCards(ctx context.Context) ([]Card, error) {
	q, args, err := t.cardSelect().Order(goqu.I("c.created_on").Desc(), goqu.I("c.id").Desc()).ToSQL()
	if err != nil {
		return nil, err
	}
	var out []Card
	if err := t.tx.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// CountCardsWithStatus counts cards with the status, leaving out excludeID when non-zero.
func (t *Tx) CountCardsWithStatus(ctx context.Context, status string, excludeID int64) (int64, error) {
	ds := t.d.From("cards").Prepared(true).Select(goqu.COUNT("*")).Where(goqu.C("status").Eq(status))
	if excludeID != 0 {
		ds = ds.Where(goqu.C("id").Neq(excludeID))
	}
	var n int64
	err := t.get(ctx, &n, ds)
	return n, err
}

func (t *Tx) InsertCard(ctx context.Context, c Card) (int64, error) {
	id, err := t.insert(ctx, t.d.Insert("cards").Prepared(true).Rows(goqu.Record{
		"title":       c.Title,
		"description": c.Description,
		"created_on":  c.Date,
		"status":      c.Status,
		"priority":    c.Priority,
		"user_id":     c.OwnerID,
	}))
	if uniqueViolation(err, ongoingIndex, "cards.status") {
		return 0, ErrOngoingTaken
	}
	return id, err
}

// UpdateCard writes the mutable fields. Date and owner are never updated.
func (t *Tx) UpdateCard(ctx context.Context, c Card) error {
	q, args, err := t.d.Update("cards").Prepared(true).Set(goqu.Record{
		"title":       c.Title,
		"description": c.Description,
		"status":      c.Status,
		"priority":    c.Priority,
	}).Where(goqu.C("id").Eq(c.ID)).ToSQL()
	n, err := t.exec(ctx, q, args, err)
	if uniqueViolation(err, ongoingIndex, "cards.status") {
		return ErrOngoingTaken
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCard removes the card and its comments.
func (t *Tx) DeleteCard(ctx context.Context, id int64) error {
	q, args, err := t.d.Delete("comments").Prepared(true).Where(goqu.C("card_id").Eq(id)).ToSQL()
	if _, err := t.exec(ctx, q, args, err); err != nil {
		return err
	}
	q, args, err = t.d.Delete("cards").Prepared(true).Where(goqu.C("id").Eq(id)).ToSQL()
	n, err := t.exec(ctx, q, args, err)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *Tx) commentSelect() *goqu.SelectDataset {
	return t.d.From(goqu.T("comments").As("m")).Prepared(true).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("m.user_id")))).
		Select(
			goqu.I("m.id"), goqu.I("m.card_id"), goqu.I("m.user_id"), goqu.I("m.message"), goqu.I("m.created_at"),
			goqu.I("u.name").As("author_name"), goqu.I("u.email").As("author_email"),
		)
}

// CommentsByCards returns the comments of the given cards ordered by id.
func (t *Tx) CommentsByCards(ctx context.Context, cardIDs ...int64) ([]Comment, error) {
	if len(cardIDs) == 0 {
		return nil, nil
	}
	q, args, err := t.commentSelect().Where(goqu.I("m.card_id").In(cardIDs)).Order(goqu.I("m.id").Asc()).ToSQL()
	if err != nil {
		return nil, err
	}
	var out []Comment
	if err := t.tx.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Tx) CommentByID(ctx context.Context, id int64) (Comment, error) {
	var c Comment
	err := t.get(ctx, &c, t.commentSelect().Where(goqu.I("m.id").Eq(id)))
	return c, err
}

func (t *Tx) InsertComment(ctx context.Context, c Comment) (int64, error) {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return t.insert(ctx, t.d.Insert("comments").Prepared(true).Rows(goqu.Record{
		"card_id":    c.CardID,
		"user_id":    c.AuthorID,
		"message":    c.Message,
		"created_at": createdAt,
	}))
}

func (t *Tx) UpdateCommentMessage(ctx context.Context, id int64, message string) error {
	q, args, err := t.d.Update("comments").Prepared(true).
		Set(goqu.Record{"message": message}).Where(goqu.C("id").Eq(id)).ToSQL()
	n, err := t.exec(ctx, q, args, err)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *Tx) DeleteComment(ctx context.Context, id int64) error {
	q, args, err := t.d.Delete("comments").Prepared(true).Where(goqu.C("id").Eq(id)).ToSQL()
	n, err := t.exec(ctx, q, args, err)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
