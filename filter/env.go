package filter

import "github.com/tcriess/terrace-buddy/types"

/*
Env is what the notification live filter expressions are evaluated against.
Once this struct is fixed, it should not be changed, otherwise configured filters may not compile any more
(f.e. if properties are renamed etc.)
*/
type Env struct {
	UserId      string
	Type        string
	Title       string
	Message     string
	RelatedId   string
	RelatedType string
	Created     int64
	Hour        int // UTC hour of creation, 0-23
}

func NewEnv(n *types.Notification) Env {
	return Env{
		UserId:      n.UserId,
		Type:        n.Type,
		Title:       n.Title,
		Message:     n.Message,
		RelatedId:   n.RelatedId,
		RelatedType: n.RelatedType,
		Created:     n.CreatedAt.Unix(),
		Hour:        n.CreatedAt.UTC().Hour(),
	}
}
