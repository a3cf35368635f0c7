package thread

import (
	"sort"

	"tush00nka/secujob_messaging/internal/model"
)

// messageList упорядоченный по времени список сообщений с индексом по ID.
// Элементы только добавляются и заменяются на месте, флаг прочтения не откатывается.
type messageList struct {
	items []model.Message
	index map[string]int
}

func newMessageList() *messageList {
	return &messageList{index: make(map[string]int)}
}

// mergeMessage новая версия сообщения поверх старой без отката is_read
func mergeMessage(old, next model.Message) model.Message {
	next.IsRead = old.IsRead || next.IsRead
	if next.CreatedAt.IsZero() {
		next.CreatedAt = old.CreatedAt
	}
	return next
}

func (l *messageList) Len() int {
	return len(l.items)
}

func (l *messageList) Has(id string) bool {
	_, ok := l.index[id]
	return ok
}

func (l *messageList) Get(id string) (model.Message, bool) {
	i, ok := l.index[id]
	if !ok {
		return model.Message{}, false
	}
	return l.items[i], true
}

// Upsert добавляет сообщение на свое место или обновляет существующее.
// Возвращает true, если сообщение новое.
func (l *messageList) Upsert(msg model.Message) bool {
	if i, ok := l.index[msg.ID]; ok {
		l.items[i] = mergeMessage(l.items[i], msg)
		return false
	}

	pos := sort.Search(len(l.items), func(i int) bool {
		return msg.Before(l.items[i])
	})

	l.items = append(l.items, model.Message{})
	copy(l.items[pos+1:], l.items[pos:])
	l.items[pos] = msg
	l.reindex(pos)
	return true
}

// Update заменяет только уже известное сообщение
func (l *messageList) Update(msg model.Message) (model.Message, bool) {
	i, ok := l.index[msg.ID]
	if !ok {
		return model.Message{}, false
	}
	l.items[i] = mergeMessage(l.items[i], msg)
	return l.items[i], true
}

// Merge объединяет загруженную историю с локальным списком.
// Сообщение с ID skip не добавляется: оно еще в переходе.
func (l *messageList) Merge(fetched []model.Message, skip string) {
	for _, msg := range fetched {
		if skip != "" && msg.ID == skip {
			continue
		}
		l.Upsert(msg)
	}
}

func (l *messageList) reindex(from int) {
	for i := from; i < len(l.items); i++ {
		l.index[l.items[i].ID] = i
	}
}

func (l *messageList) Messages() []model.Message {
	out := make([]model.Message, len(l.items))
	copy(out, l.items)
	return out
}

// HasFromOther есть ли в списке сообщение не от userID
func (l *messageList) HasFromOther(userID string) bool {
	for i := range l.items {
		if l.items[i].SenderID != userID {
			return true
		}
	}
	return false
}

// TrailingFrom количество последних сообщений подряд от userID.
// Счет останавливается на первом чужом сообщении и на сообщениях не новее after.
func (l *messageList) TrailingFrom(userID string, after *model.Message) int {
	count := 0
	for i := len(l.items) - 1; i >= 0; i-- {
		msg := l.items[i]
		if msg.SenderID != userID {
			break
		}
		if after != nil && !after.Before(msg) {
			break
		}
		count++
	}
	return count
}
