package main

import (
	"context"
	"errors"
)

// ListComments returns the comments of an existing card.
func (s *Service) ListComments(ctx context.Context, cardID int64) (comments []Comment, err error) {
	defer func() { s.finish("list_comments", err) }()
	err = s.store.InTx(ctx, func(tx Session) error {
		card, err := loadCard(ctx, tx, cardID)
		if err != nil {
			return err
		}
		comments = card.Comments
		return nil
	})
	if err != nil {
		return nil, err
	}
	return comments, nil
}

func (s *Service) CreateComment(ctx context.Context, id Identity, cardID int64, message string) (comment Comment, err error) {
	defer func() { s.finish("create_comment", err) }()
	if err := requireIdentity(id); err != nil {
		return Comment{}, err
	}
	err = s.store.InTx(ctx, func(tx Session) error {
		caller, err := s.loadCaller(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := authorizeCreate(caller, nil); err != nil {
			return err
		}
		if _, err := tx.CardByID(ctx, cardID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return notFoundf("Card with id %d doesn't exist", cardID)
			}
			return err
		}
		if message == "" {
			return invalid("message", msgRequired)
		}
		newID, err := tx.InsertComment(ctx, Comment{CardID: cardID, AuthorID: caller.ID, Message: message})
		if err != nil {
			return err
		}
		comment, err = tx.CommentByID(ctx, newID)
		return err
	})
	if err != nil {
		return Comment{}, err
	}
	s.log.Info("comment created", "comment_id", comment.ID, "card_id", cardID, "user_id", id.UserID)
	s.publish(Event{Type: "comment.created", Entity: "comment", CardID: cardID, Payload: toCommentView(comment)})
	return comment, nil
}

// EditComment replaces the message when one is given. Any authenticated
// caller may edit; the comment must belong to cardID.
func (s *Service) EditComment(ctx context.Context, id Identity, cardID, commentID int64, message string) (comment Comment, err error) {
	defer func() { s.finish("edit_comment", err) }()
	if err := requireIdentity(id); err != nil {
		return Comment{}, err
	}
	var changed bool
	err = s.store.InTx(ctx, func(tx Session) error {
		caller, err := s.loadCaller(ctx, tx, id)
		if err != nil {
			return err
		}
		comment, err = loadCommentOnCard(ctx, tx, cardID, commentID)
		if err != nil {
			return err
		}
		if err := authorizeCommentChange(caller, nil); err != nil {
			return err
		}
		changed = false
		if message == "" {
			return nil
		}
		if err := tx.UpdateCommentMessage(ctx, commentID, message); err != nil {
			return err
		}
		changed = true
		comment, err = tx.CommentByID(ctx, commentID)
		return err
	})
	if err != nil {
		return Comment{}, err
	}
	if !changed {
		return comment, nil
	}
	s.log.Info("comment edited", "comment_id", commentID, "card_id", cardID, "user_id", id.UserID)
	s.publish(Event{Type: "comment.updated", Entity: "comment", CardID: cardID, Payload: toCommentView(comment)})
	return comment, nil
}

func (s *Service) DeleteComment(ctx context.Context, id Identity, cardID, commentID int64) (err error) {
	defer func() { s.finish("delete_comment", err) }()
	if err := requireIdentity(id); err != nil {
		return err
	}
	err = s.store.InTx(ctx, func(tx Session) error {
		caller, err := s.loadCaller(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := loadCommentOnCard(ctx, tx, cardID, commentID); err != nil {
			return err
		}
		if err := authorizeCommentChange(caller, nil); err != nil {
			return err
		}
		return tx.DeleteComment(ctx, commentID)
	})
	if err != nil {
		return err
	}
	s.log.Info("comment deleted", "comment_id", commentID, "card_id", cardID, "user_id", id.UserID)
	s.publish(Event{Type: "comment.deleted", Entity: "comment", CardID: cardID, Payload: map[string]any{"id": commentID}})
	return nil
}

// loadCommentOnCard treats a comment on another card as missing.
func loadCommentOnCard(ctx context.Context, tx Session, cardID, commentID int64) (Comment, error) {
	c, err := tx.CommentByID(ctx, commentID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Comment{}, err
	}
	if err != nil || c.CardID != cardID {
		return Comment{}, notFoundf("Comment with id %d not found in card with id %d", commentID, cardID)
	}
	return c, nil
}
