package document

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snaptrail/populate"
)

type stubEngine struct {
	actions []Action
	err     error
}

func (s *stubEngine) FetchExpanded(ctx context.Context, typeUID, documentID string, plan *populate.Plan) (Document, error) {
	return Document{"documentId": documentID}, nil
}

func (s *stubEngine) Execute(ctx context.Context, action *Action) (Document, error) {
	s.actions = append(s.actions, *action)
	if s.err != nil {
		return nil, s.err
	}
	return Document{"documentId": action.DocumentID, "kind": string(action.Kind)}, nil
}

type recordingMiddleware struct {
	name  string
	trace *[]string
}

func (m *recordingMiddleware) Name() string { return m.name }

func (m *recordingMiddleware) Handle(ctx context.Context, action *Action, next Next) (Document, error) {
	*m.trace = append(*m.trace, m.name+":before")
	doc, err := next(ctx, action)
	*m.trace = append(*m.trace, m.name+":after")
	return doc, err
}

type shortCircuit struct{}

func (shortCircuit) Name() string { return "short" }

func (shortCircuit) Handle(ctx context.Context, action *Action, next Next) (Document, error) {
	return Document{"cached": true}, nil
}

func TestPipeline_Order(t *testing.T) {
	engine := &stubEngine{}
	p := NewPipeline(engine)
	var trace []string
	p.Use(&recordingMiddleware{name: "outer", trace: &trace})
	p.Use(&recordingMiddleware{name: "inner", trace: &trace})

	doc, err := p.Update(context.Background(), "api::a.a", "d1", map[string]any{"x": 1}, "en")
	require.NoError(t, err)

	assert.Equal(t, []string{"outer:before", "inner:before", "inner:after", "outer:after"}, trace)
	assert.Equal(t, "update", doc["kind"])
	require.Len(t, engine.actions, 1)
	assert.Equal(t, "en", engine.actions[0].Locale)
	assert.Equal(t, []string{"outer", "inner"}, p.Middlewares())
}

func TestPipeline_ShortCircuit(t *testing.T) {
	engine := &stubEngine{}
	p := NewPipeline(engine)
	p.Use(shortCircuit{})

	doc, err := p.Delete(context.Background(), "api::a.a", "d1", "")
	require.NoError(t, err)
	assert.Equal(t, true, doc["cached"])
	assert.Empty(t, engine.actions)
}

func TestPipeline_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	p := NewPipeline(&stubEngine{err: boom})

	_, err := p.Publish(context.Background(), "api::a.a", "d1", "")
	assert.ErrorIs(t, err, boom)
}

func TestKind(t *testing.T) {
	audited := []Kind{KindCreate, KindUpdate, KindDelete, KindPublish, KindUnpublish}
	for _, k := range audited {
		assert.True(t, k.Audited(), k)
	}
	assert.False(t, KindFindOne.Audited())
	assert.False(t, KindDiscardDraft.Audited())

	assert.False(t, KindCreate.TargetsExisting())
	assert.True(t, KindUnpublish.TargetsExisting())
}
