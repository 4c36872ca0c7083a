package main

// Wire shapes. Comments never carry their parent card.

type userSummary struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type commentView struct {
	ID      int64       `json:"id"`
	Message string      `json:"message"`
	User    userSummary `json:"user"`
}

type cardView struct {
	ID          int64         `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Date        string        `json:"date"`
	Status      string        `json:"status"`
	Priority    string        `json:"priority"`
	User        userSummary   `json:"user"`
	Comments    []commentView `json:"comments"`
}

func toCommentView(c Comment) commentView {
	return commentView{ID: c.ID, Message: c.Message, User: userSummary{Name: c.AuthorName, Email: c.AuthorEmail}}
}

func toCommentViews(cs []Comment) []commentView {
	out := make([]commentView, 0, len(cs))
	for _, c := range cs {
		out = append(out, toCommentView(c))
	}
	return out
}

func toCardView(c Card) cardView {
	return cardView{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Date:        c.Date.Format("2006-01-02"),
		Status:      c.Status,
		Priority:    c.Priority,
		User:        userSummary{Name: c.OwnerName, Email: c.OwnerEmail},
		Comments:    toCommentViews(c.Comments),
	}
}

func toCardViews(cs []Card) []cardView {
	out := make([]cardView, 0, len(cs))
	for _, c := range cs {
		out = append(out, toCardView(c))
	}
	return out
}
