package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stemsi/lms-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAIStore struct {
	items    map[uuid.UUID]*model.AIQuestion
	approved []model.Question
}

func (f *fakeAIStore) List(_ context.Context, status *model.AIQuestionStatus) ([]model.AIQuestion, error) {
	var out []model.AIQuestion
	for _, q := range f.items {
		if status == nil || q.Status == *status {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (f *fakeAIStore) GetByID(_ context.Context, id uuid.UUID) (*model.AIQuestion, error) {
	q, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (f *fakeAIStore) Create(_ context.Context, q *model.AIQuestion) error {
	q.ID = uuid.New()
	cp := *q
	f.items[q.ID] = &cp
	return nil
}

func (f *fakeAIStore) Update(_ context.Context, q *model.AIQuestion) error {
	cp := *q
	f.items[q.ID] = &cp
	return nil
}

func (f *fakeAIStore) Approve(_ context.Context, q *model.AIQuestion, question *model.Question) error {
	question.ID = uuid.New()
	f.approved = append(f.approved, *question)
	q.Status = model.AIQuestionApproved
	q.AssessmentID = &question.AssessmentID
	cp := *q
	f.items[q.ID] = &cp
	return nil
}

type fakeRefresher struct{ refreshed []uuid.UUID }

func (f *fakeRefresher) RefreshCache(_ context.Context, id uuid.UUID) error {
	f.refreshed = append(f.refreshed, id)
	return nil
}

func newAIFixture(t *testing.T) (*AIQuestionService, *fakeAIStore, *fakeRefresher, *model.AIQuestion) {
	t.Helper()
	store := &fakeAIStore{items: map[uuid.UUID]*model.AIQuestion{}}
	refresher := &fakeRefresher{}
	svc := NewAIQuestionService(store, refresher, zerolog.Nop())

	q := &model.AIQuestion{
		SourceContent: "Photosynthesis converts light into chemical energy.",
		Text:          "What does photosynthesis produce?",
		Kind:          model.QuestionKindSingleChoice,
		Options:       []string{"Glucose", "Salt", "Iron"},
		CorrectAnswer: model.OptionAnswer(0),
	}
	require.NoError(t, svc.Propose(context.Background(), q))
	return svc, store, refresher, q
}

func TestAIQuestion_ProposeRejectsMalformed(t *testing.T) {
	svc, _, _, _ := newAIFixture(t)
	err := svc.Propose(context.Background(), &model.AIQuestion{
		Text:          "Broken",
		Kind:          model.QuestionKindSingleChoice,
		Options:       []string{"A", "B"},
		CorrectAnswer: model.OptionAnswer(5),
	})
	assert.ErrorIs(t, err, ErrAIQuestionMalformed)
}

func TestAIQuestion_EditThenApprove(t *testing.T) {
	svc, store, refresher, q := newAIFixture(t)
	ctx := context.Background()
	assert.Equal(t, model.AIQuestionPending, q.Status)

	text := "Photosynthesis releases oxygen."
	kind := model.QuestionKindTrueFalse
	ans := model.BoolAnswer(true)
	edited, err := svc.Edit(ctx, q.ID, model.EditAIQuestionRequest{Text: &text, Kind: &kind, CorrectAnswer: &ans})
	require.NoError(t, err)
	assert.Equal(t, model.AIQuestionEdited, edited.Status)
	assert.Empty(t, edited.Options)

	_, _, err = svc.Approve(ctx, q.ID, model.ApproveAIQuestionRequest{})
	assert.ErrorIs(t, err, ErrAIQuestionNoTarget)

	target := uuid.New()
	approved, question, err := svc.Approve(ctx, q.ID, model.ApproveAIQuestionRequest{AssessmentID: &target})
	require.NoError(t, err)
	assert.Equal(t, model.AIQuestionApproved, approved.Status)
	assert.True(t, question.AIGenerated)
	assert.Equal(t, target, question.AssessmentID)
	require.Len(t, store.approved, 1)
	assert.Equal(t, []uuid.UUID{target}, refresher.refreshed)

	_, err = svc.Reject(ctx, q.ID)
	assert.ErrorIs(t, err, ErrAIQuestionReviewed)
}

func TestAIQuestion_EditRejectsInvalidMerge(t *testing.T) {
	svc, _, _, q := newAIFixture(t)
	ans := model.BoolAnswer(true)
	_, err := svc.Edit(context.Background(), q.ID, model.EditAIQuestionRequest{CorrectAnswer: &ans})
	assert.ErrorIs(t, err, ErrAIQuestionMalformed)
}

func TestAIQuestion_RejectAndList(t *testing.T) {
	svc, _, _, q := newAIFixture(t)
	ctx := context.Background()

	rejected, err := svc.Reject(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AIQuestionRejected, rejected.Status)

	pending := model.AIQuestionPending
	list, err := svc.List(ctx, &pending)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)

	_, err = svc.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
