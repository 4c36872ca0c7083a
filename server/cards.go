package main

import (
	"context"
	"errors"
)

func (s *Service) ListCards(ctx context.Context) (cards []Card, err error) {
	defer func() { s.finish("list_cards", err) }()
	if err := authorizeRead(nil, nil); err != nil {
		return nil, err
	}
	err = s.store.InTx(ctx, func(tx Session) error {
		cards, err = tx.ListCards(ctx)
		if err != nil {
			return err
		}
		return attachComments(ctx, tx, cards)
	})
	if err != nil {
		return nil, err
	}
	return cards, nil
}

func (s *Service) GetCard(ctx context.Context, cardID int64) (card Card, err error) {
	defer func() { s.finish("get_card", err) }()
	err = s.store.InTx(ctx, func(tx Session) error {
		card, err = loadCard(ctx, tx, cardID)
		return err
	})
	if err != nil {
		return Card{}, err
	}
	return card, nil
}

// CreateCard validates the fields and stores a card owned by the caller.
func (s *Service) CreateCard(ctx context.Context, id Identity, in CardInput) (card Card, err error) {
	defer func() { s.finish("create_card", err) }()
	if err := requireIdentity(id); err != nil {
		return Card{}, err
	}
	if err := validateCardInput(in, true); err != nil {
		return Card{}, err
	}
	err = s.store.InTx(ctx, func(tx Session) error {
		caller, err := s.loadCaller(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := authorizeCreate(caller, nil); err != nil {
			return err
		}
		if err := checkOngoing(ctx, tx, s.ongoing, in.Status, 0); err != nil {
			return err
		}
		newID, err := tx.InsertCard(ctx, Card{
			Title:       in.Title,
			Description: in.Description,
			Date:        s.today(),
			Status:      in.Status,
			Priority:    in.Priority,
			OwnerID:     caller.ID,
		})
		if err != nil {
			return ongoingWriteErr(err)
		}
		card, err = loadCard(ctx, tx, newID)
		return err
	})
	if err != nil {
		return Card{}, err
	}
	s.log.Info("card created", "card_id", card.ID, "user_id", id.UserID)
	s.publish(Event{Type: "card.created", Entity: "card", CardID: card.ID, Payload: toCardView(card)})
	return card, nil
}

// UpdateCard applies the non-empty fields of in. Only the owner may update.
func (s *Service) UpdateCard(ctx context.Context, id Identity, cardID int64, in CardInput) (card Card, err error) {
	defer func() { s.finish("update_card", err) }()
	if err := requireIdentity(id); err != nil {
		return Card{}, err
	}
	err = s.store.InTx(ctx, func(tx Session) error {
		caller, err := s.loadCaller(ctx, tx, id)
		if err != nil {
			return err
		}
		card, err = loadCard(ctx, tx, cardID)
		if err != nil {
			return err
		}
		if err := authorizeOwner(caller, &card); err != nil {
			return err
		}
		if err := validateCardInput(in, false); err != nil {
			return err
		}
		if err := checkOngoing(ctx, tx, s.ongoing, in.Status, card.ID); err != nil {
			return err
		}
		in.applyTo(&card)
		if err := tx.UpdateCard(ctx, card); err != nil {
			return ongoingWriteErr(err)
		}
		card, err = loadCard(ctx, tx, cardID)
		return err
	})
	if err != nil {
		return Card{}, err
	}
	s.log.Info("card updated", "card_id", card.ID, "user_id", id.UserID)
	s.publish(Event{Type: "card.updated", Entity: "card", CardID: card.ID, Payload: toCardView(card)})
	return card, nil
}

// DeleteCard removes a card and its comments. Admins only; the admin gate
// runs before the card lookup, so non-admins learn nothing about ids.
func (s *Service) DeleteCard(ctx context.Context, id Identity, cardID int64) (card Card, err error) {
	defer func() { s.finish("delete_card", err) }()
	if err := requireIdentity(id); err != nil {
		return Card{}, err
	}
	err = s.store.InTx(ctx, func(tx Session) error {
		caller, err := s.loadCaller(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := authorizeAdmin(caller, nil); err != nil {
			return err
		}
		card, err = loadCard(ctx, tx, cardID)
		if err != nil {
			return err
		}
		if err := tx.DeleteCard(ctx, cardID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return cardNotFound(cardID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return Card{}, err
	}
	s.log.Info("card deleted", "card_id", cardID, "comments", len(card.Comments), "user_id", id.UserID)
	s.publish(Event{Type: "card.deleted", Entity: "card", CardID: cardID, Payload: map[string]any{"id": cardID}})
	return card, nil
}

func cardNotFound(id int64) error { return notFoundf("Card with id %d not found", id) }

// loadCard reads a card with its comments.
func loadCard(ctx context.Context, tx Session, id int64) (Card, error) {
	c, err := tx.CardByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Card{}, cardNotFound(id)
	}
	if err != nil {
		return Card{}, err
	}
	c.Comments, err = tx.CommentsByCards(ctx, c.ID)
	if err != nil {
		return Card{}, err
	}
	return c, nil
}

func attachComments(ctx context.Context, tx Session, cards []Card) error {
	if len(cards) == 0 {
		return nil
	}
	ids := make([]int64, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}
	comments, err := tx.CommentsByCards(ctx, ids...)
	if err != nil {
		return err
	}
	byCard := make(map[int64][]Comment, len(cards))
	for _, c := range comments {
		byCard[c.CardID] = append(byCard[c.CardID], c)
	}
	for i := range cards {
		cards[i].Comments = byCard[cards[i].ID]
	}
	return nil
}
