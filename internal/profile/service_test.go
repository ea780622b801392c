package profile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/omnidesk/internal/cache"
	"github.com/omnidesk/omnidesk/internal/events"
	"github.com/omnidesk/omnidesk/internal/logger"
	"github.com/omnidesk/omnidesk/internal/message"
)

type memProfiles struct {
	mu      sync.Mutex
	data    map[int64]map[string]string
	upserts int
}

func (m *memProfiles) Get(_ context.Context, id int64) (Profile, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[id]
	if !ok {
		return Profile{}, false, nil
	}
	return Profile{SessionID: id, Data: d}, true, nil
}

func (m *memProfiles) GetMany(ctx context.Context, ids []int64) (map[int64]Profile, error) {
	out := map[int64]Profile{}
	for _, id := range ids {
		if p, ok, _ := m.Get(ctx, id); ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *memProfiles) Upsert(_ context.Context, id int64, data map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = data
	m.upserts++
	return nil
}

type memFields struct {
	fields []FieldConfig
	lists  int
}

func (m *memFields) List(context.Context) ([]FieldConfig, error) {
	m.lists++
	return append([]FieldConfig(nil), m.fields...), nil
}

func (m *memFields) Create(_ context.Context, f FieldConfig) (FieldConfig, error) {
	f.ID = int64(len(m.fields) + 1)
	m.fields = append(m.fields, f)
	return f, nil
}

func (m *memFields) Update(_ context.Context, f FieldConfig) (FieldConfig, error) {
	for i := range m.fields {
		if m.fields[i].ID == f.ID {
			m.fields[i] = f
			return f, nil
		}
	}
	return FieldConfig{}, ErrFieldNotFound
}

func (m *memFields) Delete(_ context.Context, id int64) error {
	for i := range m.fields {
		if m.fields[i].ID == id {
			m.fields = append(m.fields[:i], m.fields[i+1:]...)
			return nil
		}
	}
	return ErrFieldNotFound
}

type staticHistory []message.Message

func (h staticHistory) Latest(context.Context, int64, int) ([]message.Message, error) {
	return h, nil
}

type stubGenerator struct {
	reply   string
	err     error
	prompts []string
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.reply, g.err
}

type alertRecorder struct{ ids []int64 }

func (a *alertRecorder) SetAlert(_ context.Context, id int64, alert bool) error {
	if alert {
		a.ids = append(a.ids, id)
	}
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	values []any
}

func (p *recordingPublisher) Publish(_ context.Context, topic, _ string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.values = append(p.values, value)
	return nil
}

type fixture struct {
	svc       *Service
	profiles  *memProfiles
	generator *stubGenerator
	alerts    *alertRecorder
	publisher *recordingPublisher
}

func newFixture(fields []FieldConfig, reply string) fixture {
	profiles := &memProfiles{data: map[int64]map[string]string{}}
	gen := &stubGenerator{reply: reply}
	alerts := &alertRecorder{}
	pub := &recordingPublisher{}
	source := NewFieldSource(logger.Discard(), &memFields{fields: fields}, cache.NewMemoryStore(), time.Hour)
	svc := NewService(logger.Discard(), Deps{
		Repo:      profiles,
		Fields:    source,
		History:   staticHistory{{SenderType: message.SenderCustomer, Content: "I'm An, phone 0901"}},
		Generator: gen,
		Alerts:    alerts,
		Publisher: pub,
		Topics:    Topics{Profile: "profile", SheetSync: "sheet"},
	})
	return fixture{svc: svc, profiles: profiles, generator: gen, alerts: alerts, publisher: pub}
}

var testFields = []FieldConfig{
	{ID: 1, FieldName: "phone", Required: true, Column: "B"},
	{ID: 2, FieldName: "name", Required: true, Column: "A"},
}

func TestRefreshCreatesProfileAndNotifies(t *testing.T) {
	t.Parallel()
	f := newFixture(testFields, "```json\n{\"name\": \"An\", \"phone\": \"0901\", \"email\": \"x@y\"}\n```")

	update, err := f.svc.Refresh(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, update)
	assert.True(t, update.Created)
	assert.Equal(t, map[string]string{"name": "An", "phone": "0901"}, update.Data)
	assert.Equal(t, []int64{7}, f.alerts.ids)
	assert.Equal(t, []string{"profile", "sheet"}, f.publisher.topics)

	env, ok := f.publisher.values[1].(events.Envelope)
	require.True(t, ok)
	row, ok := env.Data.([]SheetCell)
	require.True(t, ok)
	require.Len(t, row, 2)
	assert.Equal(t, "A", row[0].Column)
	assert.Equal(t, "An", row[0].Value)
}

func TestRefreshIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(testFields, `{"name": "An", "phone": null}`)
	ctx := context.Background()

	first, err := f.svc.Refresh(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := f.svc.Refresh(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Equal(t, 1, f.profiles.upserts)
	assert.Len(t, f.alerts.ids, 1)
	assert.Len(t, f.publisher.topics, 2)
}

func TestRefreshWithoutFieldsSkipsGeneration(t *testing.T) {
	t.Parallel()
	f := newFixture(nil, `{"name": "An"}`)

	update, err := f.svc.Refresh(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, update)
	assert.Empty(t, f.generator.prompts)
}

func TestRefreshPropagatesGeneratorError(t *testing.T) {
	t.Parallel()
	f := newFixture(testFields, "")
	f.generator.err = errors.New("quota")

	update, err := f.svc.Refresh(context.Background(), 1)
	require.Error(t, err)
	assert.Nil(t, update)
	assert.Empty(t, f.alerts.ids)
}

func TestExtractionPromptListsOnlyConfiguredFields(t *testing.T) {
	t.Parallel()
	f := newFixture(testFields, `{}`)
	_, err := f.svc.Refresh(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, f.generator.prompts, 1)
	prompt := f.generator.prompts[0]
	assert.Contains(t, prompt, "- name:")
	assert.Contains(t, prompt, "- phone:")
	assert.Contains(t, prompt, "customer: I'm An, phone 0901")
}

func TestFieldSourceCachesAndInvalidates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := &memFields{fields: []FieldConfig{{ID: 1, FieldName: "name", Column: "A"}}}
	src := NewFieldSource(logger.Discard(), repo, cache.NewMemoryStore(), time.Hour)

	assert.Len(t, src.Fields(ctx), 1)
	assert.Len(t, src.Fields(ctx), 1)
	assert.Equal(t, 1, repo.lists)

	_, err := src.Create(ctx, FieldConfig{FieldName: " email ", Column: "b"})
	require.NoError(t, err)
	fields := src.Fields(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, "email", fields[1].FieldName)
	assert.Equal(t, "B", fields[1].Column)
	assert.Equal(t, 2, repo.lists)
}

func TestFieldSourceRejectsInvalidFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := NewFieldSource(logger.Discard(), &memFields{}, cache.NewMemoryStore(), time.Hour)

	_, err := src.Create(ctx, FieldConfig{FieldName: "  ", Column: "A"})
	assert.ErrorIs(t, err, ErrInvalidField)
	_, err = src.Create(ctx, FieldConfig{FieldName: "phone", Column: "B2"})
	assert.ErrorIs(t, err, ErrInvalidField)
	_, err = src.Update(ctx, FieldConfig{ID: 1, FieldName: ""})
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestSortFieldsByColumn(t *testing.T) {
	t.Parallel()
	fields := []FieldConfig{{Column: "AA"}, {Column: "C"}, {Column: "A"}, {Column: "Z"}}
	SortFields(fields)
	var cols []string
	for _, f := range fields {
		cols = append(cols, f.Column)
	}
	assert.Equal(t, []string{"A", "C", "Z", "AA"}, cols)
}

func TestParseExtractionDropsUnknownKeys(t *testing.T) {
	t.Parallel()
	got, err := ParseExtraction("Sure:\n```json\n{\"name\":\"B\",\"status\":\"new\"}\n```", []string{"name"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "B"}, got)

	_, err = ParseExtraction("no json here", []string{"name"})
	require.Error(t, err)
}

func TestSplitFields(t *testing.T) {
	t.Parallel()
	req, opt := Split([]FieldConfig{{FieldName: "a", Required: true}, {FieldName: "b"}})
	assert.Equal(t, []string{"a"}, req)
	assert.Equal(t, []string{"b"}, opt)
}
