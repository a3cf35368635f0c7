package model

type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	// ChangeResync подписчик мог пропустить события и должен перечитать переписку
	ChangeResync ChangeKind = "resync"
)

// ChangeEvent событие ленты изменений таблицы messages
type ChangeEvent struct {
	Kind    ChangeKind `json:"kind"`
	ApplyID string     `json:"apply_id"`
	Message Message    `json:"message"`
}
