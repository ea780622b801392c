package message

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/omnidesk/internal/logger"
)

func seed(t *testing.T, svc *Service, sessionID int64, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		sender := SenderCustomer
		if i%2 == 1 {
			sender = SenderBot
		}
		_, err := svc.Persist(context.Background(), PersistInput{SessionID: sessionID, SenderType: sender, Content: string(rune('a' + i))})
		require.NoError(t, err)
	}
}

func TestPersistRejectsUnknownSender(t *testing.T) {
	t.Parallel()
	svc := NewService(logger.Discard(), NewMemoryRepository())
	_, err := svc.Persist(context.Background(), PersistInput{SessionID: 1, SenderType: "robot", Content: "x"})
	require.True(t, errors.Is(err, ErrInvalidSender))
}

func TestLatestIsChronological(t *testing.T) {
	t.Parallel()
	svc := NewService(logger.Discard(), NewMemoryRepository())
	seed(t, svc, 7, 6)

	msgs, err := svc.Latest(context.Background(), 7, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"d", "e", "f"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content})
}

func TestHistoryPaging(t *testing.T) {
	t.Parallel()
	svc := NewService(logger.Discard(), NewMemoryRepository())
	seed(t, svc, 1, 5)

	page1, err := svc.History(context.Background(), 1, 1, 2)
	require.NoError(t, err)
	page3, err := svc.History(context.Background(), 1, 3, 2)
	require.NoError(t, err)

	assert.Equal(t, "d", page1[0].Content)
	assert.Equal(t, "e", page1[1].Content)
	require.Len(t, page3, 1)
	assert.Equal(t, "a", page3[0].Content)
}

func TestDeleteScopedToSession(t *testing.T) {
	t.Parallel()
	repo := NewMemoryRepository()
	svc := NewService(logger.Discard(), repo)
	seed(t, svc, 1, 2)
	seed(t, svc, 2, 1)

	n, err := svc.Delete(context.Background(), 1, []int64{1, 3})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, repo.rows, 2)
}

func TestTranscript(t *testing.T) {
	t.Parallel()
	got := Transcript([]Message{
		{SenderType: SenderCustomer, Content: "hi"},
		{SenderType: SenderBot, Content: "  hello  "},
		{SenderType: SenderStaff, Content: ""},
		{SenderType: SenderCustomer, Attachments: []string{"http://x/a.png"}},
	})
	assert.Equal(t, "customer: hi\nbot: hello\ncustomer: [image]", got)
}

func TestTail(t *testing.T) {
	t.Parallel()
	msgs := []Message{{ID: 1}, {ID: 2}, {ID: 3}}
	assert.Len(t, Tail(msgs, 5), 3)
	assert.Equal(t, int64(2), Tail(msgs, 2)[0].ID)
	assert.Nil(t, Tail(msgs, 0))
}
