package main

import "time"

const (
	StatusToDo     = "To Do"
	StatusOngoing  = "Ongoing"
	StatusDone     = "Done"
	StatusTesting  = "Testing"
	StatusDeployed = "Deployed"
)

var validStatuses = []string{StatusToDo, StatusOngoing, StatusDone, StatusTesting, StatusDeployed}

var validPriorities = []string{"Low", "Medium", "High", "Urgent"}

type User struct {
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name"`
	IsAdmin   bool      `db:"is_admin" json:"is_admin"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Card is a work item. Empty Description, Status or Priority means unset.
// Date and OwnerID are fixed at creation.
type Card struct {
	ID          int64     `db:"id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Date        time.Time `db:"created_on"`
	Status      string    `db:"status"`
	Priority    string    `db:"priority"`
	OwnerID     int64     `db:"user_id"`
	OwnerName   string    `db:"owner_name"`
	OwnerEmail  string    `db:"owner_email"`
	Comments    []Comment `db:"-"`
}

type Comment struct {
	ID          int64     `db:"id"`
	CardID      int64     `db:"card_id"`
	AuthorID    int64     `db:"user_id"`
	Message     string    `db:"message"`
	AuthorName  string    `db:"author_name"`
	AuthorEmail string    `db:"author_email"`
	CreatedAt   time.Time `db:"created_at"`
}
