package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tush00nka/secujob_messaging/internal/model"
	"tush00nka/secujob_messaging/internal/repository"
	"tush00nka/secujob_messaging/internal/repository/repotest"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.ChangeEvent
}

func (p *recordingPublisher) PublishChange(ctx context.Context, ev model.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) kinds() []model.ChangeKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.ChangeKind, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Kind
	}
	return out
}

func TestMessageRepository_ListByThreadOldestFirst(t *testing.T) {
	db := repotest.OpenDB(t)
	repo := repository.NewMessageRepository(db, nil)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, content := range []string{"troisième", "premier", "deuxième"} {
		offsets := []time.Duration{2 * time.Minute, 0, time.Minute}
		msg := &model.Message{
			ApplyID:   "apply-1",
			SenderID:  "user-1",
			Content:   content,
			CreatedAt: base.Add(offsets[i]),
		}
		if err := repo.Create(ctx, msg); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	other := &model.Message{ApplyID: "apply-2", SenderID: "user-1", Content: "ailleurs"}
	if err := repo.Create(ctx, other); err != nil {
		t.Fatalf("create other: %v", err)
	}

	msgs, err := repo.ListByThread(ctx, "apply-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	want := []string{"premier", "deuxième", "troisième"}
	for i, msg := range msgs {
		if msg.Content != want[i] {
			t.Fatalf("msgs[%d] = %q, want %q", i, msg.Content, want[i])
		}
	}
}

func TestMessageRepository_CreatePublishesInsert(t *testing.T) {
	db := repotest.OpenDB(t)
	pub := &recordingPublisher{}
	repo := repository.NewMessageRepository(db, pub)

	msg := &model.Message{ApplyID: "apply-1", SenderID: "user-1", Content: "Bonjour"}
	if err := repo.Create(context.Background(), msg); err != nil {
		t.Fatalf("create: %v", err)
	}
	if msg.ID == "" {
		t.Fatalf("expected id to be assigned")
	}
	if msg.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be set")
	}

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Kind != model.ChangeInsert || ev.ApplyID != "apply-1" || ev.Message.ID != msg.ID {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestMessageRepository_MarkReadTransitionsOnce(t *testing.T) {
	db := repotest.OpenDB(t)
	pub := &recordingPublisher{}
	repo := repository.NewMessageRepository(db, pub)
	ctx := context.Background()

	unread := &model.Message{ApplyID: "apply-1", SenderID: "peer", Content: "Disponible ?"}
	read := &model.Message{ApplyID: "apply-1", SenderID: "peer", Content: "Déjà lu", IsRead: true}
	for _, m := range []*model.Message{unread, read} {
		if err := repo.Create(ctx, m); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	updated, err := repo.MarkRead(ctx, []string{unread.ID, read.ID})
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if len(updated) != 1 || updated[0].ID != unread.ID || !updated[0].IsRead {
		t.Fatalf("expected only the unread message to transition, got %+v", updated)
	}

	again, err := repo.MarkRead(ctx, []string{unread.ID, read.ID})
	if err != nil {
		t.Fatalf("mark read again: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected second call to be a no-op, got %d rows", len(again))
	}

	kinds := pub.kinds()
	want := []model.ChangeKind{model.ChangeInsert, model.ChangeInsert, model.ChangeUpdate}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events = %v, want %v", kinds, want)
		}
	}

	msgs, err := repo.ListByThread(ctx, "apply-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, m := range msgs {
		if !m.IsRead {
			t.Fatalf("message %s still unread", m.ID)
		}
	}
}

func TestMessageRepository_CountUnread(t *testing.T) {
	db := repotest.OpenDB(t)
	repo := repository.NewMessageRepository(db, nil)
	ctx := context.Background()

	seed := []model.Message{
		{ApplyID: "apply-1", SenderID: "candidate", Content: "Oui"},
		{ApplyID: "apply-1", SenderID: "candidate", Content: "Quand ?"},
		{ApplyID: "apply-1", SenderID: "candidate", Content: "lu", IsRead: true},
		{ApplyID: "apply-1", SenderID: "company", Content: "Demain"},
		{ApplyID: "apply-2", SenderID: "candidate", Content: "autre"},
	}
	for i := range seed {
		if err := repo.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	from, err := repo.CountUnreadFrom(ctx, "apply-1", "candidate")
	if err != nil {
		t.Fatalf("count from: %v", err)
	}
	if from != 2 {
		t.Fatalf("CountUnreadFrom = %d, want 2", from)
	}

	forCompany, err := repo.CountUnreadFor(ctx, "apply-1", "company")
	if err != nil {
		t.Fatalf("count for: %v", err)
	}
	if forCompany != 2 {
		t.Fatalf("CountUnreadFor(company) = %d, want 2", forCompany)
	}

	forCandidate, err := repo.CountUnreadFor(ctx, "apply-1", "candidate")
	if err != nil {
		t.Fatalf("count for: %v", err)
	}
	if forCandidate != 1 {
		t.Fatalf("CountUnreadFor(candidate) = %d, want 1", forCandidate)
	}
}

func TestNotificationRepository_ReplaceKeepsSingleRow(t *testing.T) {
	db := repotest.OpenDB(t)
	repo := repository.NewNotificationRepository(db)
	ctx := context.Background()

	for _, body := range []string{"Nouveau message", "2 nouveaux messages", "3 nouveaux messages"} {
		n := &model.Notification{
			RecipientID: "company",
			Type:        model.NotificationTypeMessage,
			Title:       "Karim Benali - Agent de sécurité",
			Body:        body,
			EntityType:  model.EntityTypeMessage,
			EntityID:    "apply-1",
		}
		if err := repo.ReplaceForThread(ctx, n); err != nil {
			t.Fatalf("replace: %v", err)
		}
	}
	other := &model.Notification{
		RecipientID: "company",
		Type:        model.NotificationTypeMessage,
		Body:        "Nouveau message",
		EntityType:  model.EntityTypeMessage,
		EntityID:    "apply-2",
	}
	if err := repo.ReplaceForThread(ctx, other); err != nil {
		t.Fatalf("replace other: %v", err)
	}

	list, err := repo.ListForRecipient(ctx, "company")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected one row per thread, got %d", len(list))
	}
	for _, n := range list {
		if n.EntityID == "apply-1" && n.Body != "3 nouveaux messages" {
			t.Fatalf("expected latest body, got %q", n.Body)
		}
	}
}

func TestNotificationRepository_MarkThreadRead(t *testing.T) {
	db := repotest.OpenDB(t)
	repo := repository.NewNotificationRepository(db)
	ctx := context.Background()

	n := &model.Notification{
		RecipientID: "candidate",
		Type:        model.NotificationTypeMessage,
		Body:        "Nouveau message",
		EntityType:  model.EntityTypeMessage,
		EntityID:    "apply-1",
	}
	if err := repo.ReplaceForThread(ctx, n); err != nil {
		t.Fatalf("replace: %v", err)
	}

	at := repository.Now()
	affected, err := repo.MarkThreadRead(ctx, "candidate", "apply-1", at)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if affected != 1 {
		t.Fatalf("affected = %d, want 1", affected)
	}

	affected, err = repo.MarkThreadRead(ctx, "candidate", "apply-1", at)
	if err != nil {
		t.Fatalf("mark read again: %v", err)
	}
	if affected != 0 {
		t.Fatalf("second mark read affected %d rows", affected)
	}

	list, err := repo.ListForRecipient(ctx, "candidate")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || !list[0].IsRead || list[0].ReadAt == nil {
		t.Fatalf("expected notification to be read, got %+v", list)
	}
}

func TestPresenceRepository_TouchUpserts(t *testing.T) {
	db := repotest.OpenDB(t)
	repo := repository.NewPresenceRepository(db)
	ctx := context.Background()

	if _, ok, err := repo.LastSeen(ctx, "user-1", "apply-1"); err != nil || ok {
		t.Fatalf("expected no heartbeat yet, ok=%v err=%v", ok, err)
	}

	first := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(3 * time.Second)
	for _, at := range []time.Time{first, second} {
		if err := repo.Touch(ctx, "user-1", "apply-1", at); err != nil {
			t.Fatalf("touch: %v", err)
		}
	}

	seen, ok, err := repo.LastSeen(ctx, "user-1", "apply-1")
	if err != nil || !ok {
		t.Fatalf("last seen: ok=%v err=%v", ok, err)
	}
	if !seen.Equal(second) {
		t.Fatalf("last seen = %v, want %v", seen, second)
	}

	var rows int64
	if err := db.Model(&model.Presence{}).Count(&rows).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected heartbeat to be overwritten in place, got %d rows", rows)
	}
}

func TestApplicationRepository_GetWithParties(t *testing.T) {
	db := repotest.OpenDB(t)
	f := repotest.SeedApplication(t, db, "in_progress")
	repo := repository.NewApplicationRepository(db)
	ctx := context.Background()

	app, err := repo.GetWithParties(ctx, f.ApplyID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if app.Job.CompanyID != f.CompanyID || app.Job.Title != "Agent de sécurité" {
		t.Fatalf("job not preloaded: %+v", app.Job)
	}
	if app.Candidate.Firstname != "Karim" {
		t.Fatalf("candidate not preloaded: %+v", app.Candidate)
	}

	if _, err := repo.GetWithParties(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApplicationRepository_Touch(t *testing.T) {
	db := repotest.OpenDB(t)
	f := repotest.SeedApplication(t, db, "in_progress")
	repo := repository.NewApplicationRepository(db)
	ctx := context.Background()

	at := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := repo.Touch(ctx, f.ApplyID, at); err != nil {
		t.Fatalf("touch: %v", err)
	}

	app, err := repo.GetWithParties(ctx, f.ApplyID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !app.UpdatedAt.Equal(at) {
		t.Fatalf("updated_at = %v, want %v", app.UpdatedAt, at)
	}
}
