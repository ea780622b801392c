package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/session"
)

func TestCheckWebSessionRestoresOrCreates(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.CreateWebSession(ctx, "")
	require.NoError(t, err)

	got, created, err := f.svc.CheckWebSession(ctx, sess.ID, "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, sess.ID, got.ID)

	got, created, err = f.svc.CheckWebSession(ctx, 12345, "https://b.example")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, sess.ID, got.ID)
	assert.Equal(t, "https://b.example", got.OriginURL)

	tg, err := f.sessions.GetOrCreate(ctx, channel.Telegram, "T-1", session.Defaults{})
	require.NoError(t, err)
	got, created, err = f.svc.CheckWebSession(ctx, tg.ID, "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, channel.Web, got.Channel)
}

func TestUpdateStatusRoundTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.CreateWebSession(ctx, "")
	require.NoError(t, err)

	paused, err := f.svc.UpdateStatus(ctx, sess.ID, "false", nil, "carol")
	require.NoError(t, err)
	assert.Equal(t, session.StatusPaused, paused.Status)
	assert.Equal(t, "carol", paused.CurrentOwner)
	assert.False(t, f.handoff.CanAutoReply(ctx, sess.ID))

	auto, err := f.svc.UpdateStatus(ctx, sess.ID, "auto", nil, "carol")
	require.NoError(t, err)
	assert.Equal(t, session.BotOwner, auto.CurrentOwner)
	assert.Equal(t, "carol", auto.PreviousOwner)
	assert.True(t, f.handoff.CanAutoReply(ctx, sess.ID))

	_, err = f.svc.UpdateStatus(ctx, sess.ID, "sleeping", nil, "carol")
	assert.ErrorIs(t, err, session.ErrInvalidStatus)
}

func TestBulkSendReportsFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.CreateWebSession(ctx, "")
	require.NoError(t, err)
	b, err := f.sessions.GetOrCreate(ctx, channel.Zalo, "Z-77", session.Defaults{})
	require.NoError(t, err)

	res := f.svc.BulkSend(ctx, []int64{a.ID, b.ID, 404}, "alice", "Khuyến mãi hôm nay", nil)
	f.wait(t)
	assert.Equal(t, []int64{a.ID, b.ID}, res.Sent)
	require.Contains(t, res.Failed, int64(404))

	sent := f.deliverer.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "77", sent[0].Recipient)
	assert.False(t, f.handoff.CanAutoReply(ctx, a.ID))
}

func TestCustomersJoinProfiles(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.CreateWebSession(ctx, "")
	require.NoError(t, err)
	b, err := f.sessions.GetOrCreate(ctx, channel.Telegram, "T-5", session.Defaults{})
	require.NoError(t, err)
	f.profiles.data[a.ID] = map[string]string{"name": "An"}

	all, err := f.svc.Customers(ctx, session.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	byID := map[int64]Customer{}
	for _, c := range all {
		byID[c.ID] = c
	}
	assert.Equal(t, map[string]string{"name": "An"}, byID[a.ID].CustomerData)
	assert.Equal(t, map[string]string{}, byID[b.ID].CustomerData)

	tg, err := f.svc.Customers(ctx, session.ListFilter{Channel: channel.Telegram})
	require.NoError(t, err)
	require.Len(t, tg, 1)
	assert.Equal(t, b.ID, tg[0].ID)
}

func TestDashboardTotals(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.CreateWebSession(ctx, "")
	require.NoError(t, err)
	_, err = f.svc.CreateWebSession(ctx, "")
	require.NoError(t, err)
	_, err = f.svc.CustomerTurn(ctx, a.ID, "hello", nil)
	require.NoError(t, err)
	f.wait(t)

	d, err := f.svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.TotalSessions)
	assert.Equal(t, []session.ChannelCount{{Channel: "web", Total: 2}}, d.Sessions)
	assert.NotNil(t, d.Messages)
}

func TestDeleteSessionsAndMessages(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.CreateWebSession(ctx, "")
	require.NoError(t, err)
	frames, err := f.svc.CustomerTurn(ctx, a.ID, "hello", nil)
	require.NoError(t, err)
	f.wait(t)

	n, err := f.svc.DeleteMessages(ctx, a.ID, []int64{frames[0].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	msgs, err := f.svc.History(ctx, a.ID, 1, 20)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	n, err = f.svc.DeleteSessions(ctx, []int64{a.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = f.svc.History(ctx, a.ID, 1, 20)
	assert.ErrorIs(t, err, session.ErrNotFound)
}
