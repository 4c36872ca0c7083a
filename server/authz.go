package main

// Predicate is one authorization rule. card is nil when the rule is checked
// before the target is loaded. A nil error means allow.
type Predicate func(caller *User, card *Card) error

func allOf(preds ...Predicate) Predicate {
	return func(caller *User, card *Card) error {
		for _, p := range preds {
			if err := p(caller, card); err != nil {
				return err
			}
		}
		return nil
	}
}

func anyone(*User, *Card) error { return nil }

func authenticated(caller *User, _ *Card) error {
	if caller == nil {
		return unauthenticated("authentication required")
	}
	return nil
}

func ownerOfCard(caller *User, card *Card) error {
	if card == nil || caller == nil || card.OwnerID != caller.ID {
		return forbidden("Only the owner can edit the card")
	}
	return nil
}

func admin(caller *User, _ *Card) error {
	if caller == nil || !caller.IsAdmin {
		return forbidden("Not authorised to delete a card")
	}
	return nil
}

// Comment edit and delete are open to any authenticated caller, unlike the
// owner and admin gates on cards.
var (
	authorizeRead          = Predicate(anyone)
	authorizeCreate        = Predicate(authenticated)
	authorizeOwner         = allOf(authenticated, ownerOfCard)
	authorizeAdmin         = allOf(authenticated, admin)
	authorizeCommentChange = Predicate(authenticated)
)
