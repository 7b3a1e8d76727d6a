// Package client provides the REST client for the novel generation backend.
// Its types mirror the backend DTOs; the development server reuses them.
package client

import "time"

// User mirrors the backend UserDTO.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Score     int       `json:"score,omitempty"`
	CreatedAt Timestamp `json:"createdAt,omitempty"`
}

// DisplayName picks the friendliest non-empty identifier.
func (u *User) DisplayName() string {
	switch {
	case u == nil:
		return ""
	case u.Username != "":
		return u.Username
	case u.Email != "":
		return u.Email
	default:
		return u.Phone
	}
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email"`
}

// Task mirrors the backend TaskDTO. The same shape is pushed on task
// topics, so it doubles as the realtime payload.
type Task struct {
	ID         int64     `json:"id"`
	Name       string    `json:"taskName"`
	Type       string    `json:"taskType"`
	RelationID int64     `json:"taskRelationId"`
	Status     int       `json:"taskStatus"` // 0 pending, 1 running, 2 done, 3 failed
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  Timestamp `json:"createdAt,omitempty"`
}

// TaskFilter narrows GET /tasks. The backend only honours the filter when
// both fields are set and otherwise returns the active tasks.
type TaskFilter struct {
	Type   string
	Status *int
}

// Novel mirrors the fields of NovelDTO the client displays.
type Novel struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"userId"`
	Title         string    `json:"title"`
	Genre         string    `json:"genre,omitempty"`
	SettingText   string    `json:"settingText,omitempty"`
	Structure     string    `json:"structure,omitempty"`
	ChapterNumber int       `json:"chapterNumber,omitempty"`
	CreatedAt     Timestamp `json:"createdAt,omitempty"`
}

// Chapter mirrors the fields of ChapterDTO the client displays.
type Chapter struct {
	ID              int64     `json:"id"`
	NovelID         int64     `json:"novelId"`
	ChapterNumber   int       `json:"chapterNumber"`
	Title           string    `json:"title"`
	AbstractContent string    `json:"abstractContent,omitempty"`
	Content         string    `json:"content,omitempty"`
	Status          int       `json:"status"`
	CreatedAt       Timestamp `json:"createdAt,omitempty"`
}

// Timestamp accepts the backend's zone-less LocalDateTime strings as well
// as RFC 3339.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return &time.ParseError{Value: s, Message: ": timestamp must be a string"}
	}
	s = s[1 : len(s)-1]
	var err error
	for _, layout := range timestampLayouts {
		var parsed time.Time
		if parsed, err = time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return err
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + t.Format("2006-01-02T15:04:05") + `"`), nil
}
