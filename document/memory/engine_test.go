package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snaptrail/document"
	"snaptrail/errors"
	"snaptrail/populate"
	"snaptrail/redact"
	"snaptrail/schema"
)

const (
	articleUID = "api::article.article"
	authorUID  = "api::author.author"
	tagUID     = "api::tag.tag"
)

type fixture struct {
	engine  *Engine
	planner *populate.Planner
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := schema.LoadFile("testdata/blog.yaml")
	require.NoError(t, err)

	f := &fixture{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	seq := 0
	f.engine = New(reg,
		WithClock(func() time.Time { return f.now }),
		WithIDGenerator(func() string { seq++; return fmt.Sprintf("doc-%d", seq) }),
		WithLoaderWait(100*time.Microsecond),
	)
	f.planner = populate.NewPlanner(reg, redact.NewOmitSet(redact.DefaultOmitFields...))
	return f
}

func (f *fixture) create(t *testing.T, uid string, data map[string]any) string {
	t.Helper()
	doc, err := f.engine.Execute(context.Background(), &document.Action{TypeUID: uid, Kind: document.KindCreate, Data: data})
	require.NoError(t, err)
	return doc["documentId"].(string)
}

func TestEngine_CreateAndFetchWithoutPlan(t *testing.T) {
	f := newFixture(t)
	authorID := f.create(t, authorUID, map[string]any{"name": "Ada"})
	id := f.create(t, articleUID, map[string]any{"title": "Hello", "author": authorID})

	doc, err := f.engine.FetchExpanded(context.Background(), articleUID, id, nil)
	require.NoError(t, err)

	assert.Equal(t, id, doc["documentId"])
	assert.Equal(t, "Hello", doc["title"])
	assert.Equal(t, "2026-05-01T09:00:00Z", doc["createdAt"])
	assert.Nil(t, doc["publishedAt"])
	assert.NotContains(t, doc, "author", "relations are only returned when expanded")
}

func TestEngine_FetchWithFullPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	authorID := f.create(t, authorUID, map[string]any{
		"name":   "Ada",
		"avatar": map[string]any{"url": "/ada.png"},
	})
	tag1 := f.create(t, tagUID, map[string]any{"label": "go"})
	tag2 := f.create(t, tagUID, map[string]any{"label": "audit"})
	articleID := f.create(t, articleUID, map[string]any{
		"title":  "Hello",
		"author": authorID,
		"tags":   []any{tag1, "missing-tag", tag2},
		"seo":    map[string]any{"metaTitle": "hi", "ogImage": map[string]any{"url": "/og.png"}},
		"blocks": []any{
			map[string]any{ComponentKey: "blocks.quote", "text": "cite", "source": authorID},
			map[string]any{ComponentKey: "blocks.gallery", "images": []any{map[string]any{"url": "/1.png"}}},
		},
	})
	_, err := f.engine.Execute(ctx, &document.Action{TypeUID: authorUID, Kind: document.KindUpdate, DocumentID: authorID,
		Data: map[string]any{"articles": []any{articleID}}})
	require.NoError(t, err)

	doc, err := f.engine.FetchExpanded(ctx, articleUID, articleID, f.planner.Plan(articleUID))
	require.NoError(t, err)

	author := doc["author"].(map[string]any)
	assert.Equal(t, "Ada", author["name"])
	assert.Equal(t, map[string]any{"url": "/ada.png"}, author["avatar"])
	articles := author["articles"].([]any)
	require.Len(t, articles, 1)
	back := articles[0].(map[string]any)
	assert.Equal(t, articleID, back["documentId"])
	assert.NotContains(t, back, "author", "cycle is cut after one level")

	tags := doc["tags"].([]any)
	require.Len(t, tags, 2, "dangling references are dropped")
	assert.Equal(t, "go", tags[0].(map[string]any)["label"])
	assert.Equal(t, "audit", tags[1].(map[string]any)["label"])

	seo := doc["seo"].(map[string]any)
	assert.Equal(t, map[string]any{"url": "/og.png"}, seo["ogImage"])

	blocks := doc["blocks"].([]any)
	require.Len(t, blocks, 2)
	quote := blocks[0].(map[string]any)
	assert.Equal(t, "blocks.quote", quote[ComponentKey])
	assert.Equal(t, "Ada", quote["source"].(map[string]any)["name"])
	gallery := blocks[1].(map[string]any)
	assert.Len(t, gallery["images"], 1)
}

// TestEngine_LeafPlanExpandsOneLevel 叶子计划展开所有一级字段但不再向下
func TestEngine_LeafPlanExpandsOneLevel(t *testing.T) {
	f := newFixture(t)
	authorID := f.create(t, authorUID, map[string]any{"name": "Ada", "avatar": map[string]any{"url": "/a.png"}})
	id := f.create(t, articleUID, map[string]any{"title": "x", "author": authorID})

	doc, err := f.engine.FetchExpanded(context.Background(), articleUID, id, populate.Leaf())
	require.NoError(t, err)

	author := doc["author"].(map[string]any)
	assert.Equal(t, "Ada", author["name"])
	assert.NotContains(t, author, "avatar")
}

func TestEngine_UpdateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, articleUID, map[string]any{"title": "x"})

	_, err := f.engine.Execute(ctx, &document.Action{TypeUID: articleUID, Kind: document.KindUpdate, DocumentID: id,
		Data: map[string]any{"subtitle": "nope"}})
	assert.True(t, errors.IsValidation(err))

	_, err = f.engine.Execute(ctx, &document.Action{TypeUID: articleUID, Kind: document.KindUpdate, DocumentID: id,
		Data: map[string]any{"blocks": []any{map[string]any{ComponentKey: "blocks.video"}}}})
	assert.True(t, errors.IsValidation(err))

	_, err = f.engine.Execute(ctx, &document.Action{TypeUID: articleUID, Kind: document.KindUpdate, DocumentID: id,
		Data: map[string]any{"author": 12}})
	assert.True(t, errors.IsValidation(err))
}

func TestEngine_MissingDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, kind := range []document.Kind{document.KindUpdate, document.KindDelete, document.KindPublish, document.KindFindOne} {
		_, err := f.engine.Execute(ctx, &document.Action{TypeUID: articleUID, Kind: kind, DocumentID: "ghost"})
		assert.True(t, errors.IsNotFound(err), "kind %s", kind)
	}
}

// TestEngine_UpdateFromExpandedSnapshot 已展开的快照可以直接写回
func TestEngine_UpdateFromExpandedSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	authorID := f.create(t, authorUID, map[string]any{"name": "Ada"})
	tagID := f.create(t, tagUID, map[string]any{"label": "go"})
	id := f.create(t, articleUID, map[string]any{"title": "v1", "author": authorID, "tags": []any{tagID}})

	snapshot, err := f.engine.FetchExpanded(ctx, articleUID, id, f.planner.Plan(articleUID))
	require.NoError(t, err)
	snapshot = redact.Object(snapshot, redact.NewOmitSet(redact.DefaultOmitFields...))

	_, err = f.engine.Execute(ctx, &document.Action{TypeUID: articleUID, Kind: document.KindUpdate, DocumentID: id,
		Data: map[string]any{"title": "v2", "author": nil, "tags": []any{}}})
	require.NoError(t, err)

	_, err = f.engine.Execute(ctx, &document.Action{TypeUID: articleUID, Kind: document.KindUpdate, DocumentID: id, Data: snapshot})
	require.NoError(t, err)

	doc, err := f.engine.FetchExpanded(ctx, articleUID, id, populate.Leaf())
	require.NoError(t, err)
	assert.Equal(t, "v1", doc["title"])
	assert.Equal(t, authorID, doc["author"].(map[string]any)["documentId"])
	assert.Len(t, doc["tags"], 1)
}

func TestEngine_PublishLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, articleUID, map[string]any{"title": "x"})

	f.now = f.now.Add(time.Hour)
	doc, err := f.engine.Execute(ctx, &document.Action{TypeUID: articleUID, Kind: document.KindPublish, DocumentID: id})
	require.NoError(t, err)
	assert.Equal(t, "2026-05-01T10:00:00Z", doc["publishedAt"])

	doc, err = f.engine.Execute(ctx, &document.Action{TypeUID: articleUID, Kind: document.KindUnpublish, DocumentID: id})
	require.NoError(t, err)
	assert.Nil(t, doc["publishedAt"])

	doc, err = f.engine.Execute(ctx, &document.Action{TypeUID: articleUID, Kind: document.KindDelete, DocumentID: id})
	require.NoError(t, err)
	assert.Nil(t, doc)
	assert.Equal(t, 0, f.engine.Count(articleUID))
}

func TestEngine_UnknownTypeStoresRawData(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "api::free.free", map[string]any{"anything": map[string]any{"nested": true}, "documentId": "ignored"})

	doc, err := f.engine.FetchExpanded(context.Background(), "api::free.free", id, nil)
	require.NoError(t, err)
	assert.Equal(t, id, doc["documentId"])
	assert.Equal(t, map[string]any{"nested": true}, doc["anything"])
}

func TestEngine_FetchReturnsIndependentCopy(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, articleUID, map[string]any{"title": "x", "seo": map[string]any{"metaTitle": "m"}})

	doc, err := f.engine.FetchExpanded(context.Background(), articleUID, id, populate.Leaf())
	require.NoError(t, err)
	doc["seo"].(map[string]any)["metaTitle"] = "mutated"

	again, err := f.engine.FetchExpanded(context.Background(), articleUID, id, populate.Leaf())
	require.NoError(t, err)
	assert.Equal(t, "m", again["seo"].(map[string]any)["metaTitle"])
}
