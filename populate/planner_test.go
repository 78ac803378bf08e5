package populate

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snaptrail/redact"
	"snaptrail/schema"
)

func blogPlanner(t *testing.T, opts ...Option) *Planner {
	t.Helper()
	reg, err := schema.LoadFile("testdata/blog.yaml")
	require.NoError(t, err)
	return NewPlanner(reg, redact.NewOmitSet(redact.DefaultOmitFields...), opts...)
}

func TestPlanner_GoldenArticle(t *testing.T) {
	plan := blogPlanner(t).Plan("api::article.article")

	out, err := json.Marshal(plan.Query())
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "article_plan", out)
}

func TestPlanner_OmittedFieldsAreNotExpanded(t *testing.T) {
	plan := blogPlanner(t).Plan("api::article.article")

	assert.NotContains(t, plan.Populate, "createdBy")
	assert.NotContains(t, plan.Populate, "title", "scalars never appear in a plan")
}

func TestPlanner_UnknownTypeIsLeaf(t *testing.T) {
	plan := blogPlanner(t).Plan("api::nope.nope")

	assert.True(t, plan.IsLeaf())
	out, err := json.Marshal(plan)
	require.NoError(t, err)
	assert.Equal(t, "true", string(out))
}

func TestPlanner_ScalarOnlyTypeIsLeaf(t *testing.T) {
	assert.True(t, blogPlanner(t).Plan("api::tag.tag").IsLeaf())
}

func TestPlanner_SelfReference(t *testing.T) {
	reg := schema.MustRegistry("v1", schema.EntityType{
		UID: "api::node.node",
		Fields: []schema.Field{
			{Name: "label", Kind: schema.KindScalar},
			{Name: "parent", Kind: schema.KindRelation, Target: "api::node.node"},
			{Name: "children", Kind: schema.KindRelation, Target: "api::node.node", Multiple: true},
		},
	})

	plan := NewPlanner(reg, redact.NewOmitSet()).Plan("api::node.node")

	require.False(t, plan.IsLeaf())
	assert.True(t, plan.Populate["parent"].IsLeaf())
	assert.True(t, plan.Populate["children"].IsLeaf())
	assert.Equal(t, 1, plan.Depth())
}

func TestPlanner_MutualReference(t *testing.T) {
	reg := schema.MustRegistry("v1",
		schema.EntityType{UID: "a", Fields: []schema.Field{{Name: "b", Kind: schema.KindRelation, Target: "b"}}},
		schema.EntityType{UID: "b", Fields: []schema.Field{{Name: "a", Kind: schema.KindRelation, Target: "a"}}},
	)

	out, err := json.Marshal(NewPlanner(reg, nil).Plan("a"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"populate":{"b":{"populate":{"a":true}}}}`, string(out))
}

// TestPlanner_SiblingBranchesAreIndependent 访问集合按路径而非全局共享
func TestPlanner_SiblingBranchesAreIndependent(t *testing.T) {
	reg := schema.MustRegistry("v1",
		schema.EntityType{UID: "root", Fields: []schema.Field{
			{Name: "left", Kind: schema.KindRelation, Target: "x"},
			{Name: "right", Kind: schema.KindRelation, Target: "x"},
		}},
		schema.EntityType{UID: "x", Fields: []schema.Field{
			{Name: "y", Kind: schema.KindComponent, Target: "y"},
		}},
		schema.EntityType{UID: "y", Fields: []schema.Field{
			{Name: "pic", Kind: schema.KindMedia},
		}},
	)

	plan := NewPlanner(reg, nil).Plan("root")

	require.False(t, plan.Populate["left"].IsLeaf())
	assert.Equal(t, plan.Populate["left"], plan.Populate["right"])
	assert.Equal(t, 3, plan.Depth())
}

func TestPlanner_EmptyZoneIsLeaf(t *testing.T) {
	reg := schema.MustRegistry("v1", schema.EntityType{UID: "page", Fields: []schema.Field{
		{Name: "blocks", Kind: schema.KindDynamicZone},
	}})

	plan := NewPlanner(reg, nil).Plan("page")
	assert.True(t, plan.Populate["blocks"].IsLeaf())
}

func TestPlanner_CacheReturnsIndependentCopies(t *testing.T) {
	p := blogPlanner(t, WithCache(8))

	first := p.Plan("api::article.article")
	first.Populate["injected"] = Leaf()
	delete(first.Populate, "author")

	second := p.Plan("api::article.article")
	assert.NotContains(t, second.Populate, "injected")
	assert.Contains(t, second.Populate, "author")
	assert.Equal(t, int64(1), p.memo.Stats().Hits)
}

// TestPlanner_CacheKeyedByVersion 注册表变化后不会返回旧计划
func TestPlanner_CacheKeyedByVersion(t *testing.T) {
	reg := schema.MustRegistry("v1", schema.EntityType{UID: "a", Fields: []schema.Field{
		{Name: "pic", Kind: schema.KindMedia},
	}})
	p := NewPlanner(reg, nil, WithCache(8))
	require.Contains(t, p.Plan("a").Populate, "pic")

	require.NoError(t, reg.Register(schema.EntityType{UID: "a", Fields: []schema.Field{
		{Name: "cover", Kind: schema.KindMedia},
	}}))
	reg.SetVersion("v2")

	plan := p.Plan("a")
	assert.Contains(t, plan.Populate, "cover")
	assert.NotContains(t, plan.Populate, "pic")
}

func TestPlanner_ConcurrentUse(t *testing.T) {
	p := blogPlanner(t, WithCache(4))
	want, err := json.Marshal(p.Plan("api::article.article"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := json.Marshal(p.Plan("api::article.article"))
			assert.NoError(t, err)
			assert.Equal(t, string(want), string(got))
		}()
	}
	wg.Wait()
}

// randomRegistry 把整数编码解成 n 个类型与若干字段，用于性质测试
func randomRegistry(n int, codes []int) *schema.Registry {
	types := make([]schema.EntityType, n)
	for i := range types {
		types[i].UID = fmt.Sprintf("t%d", i)
	}
	for j, code := range codes {
		owner := code % n
		kind := (code / n) % 4
		target := fmt.Sprintf("t%d", (code/(n*4))%n)
		name := fmt.Sprintf("f%d", j)
		var f schema.Field
		switch kind {
		case 0:
			f = schema.Field{Name: name, Kind: schema.KindRelation, Target: target}
		case 1:
			f = schema.Field{Name: name, Kind: schema.KindComponent, Target: target}
		case 2:
			next := fmt.Sprintf("t%d", ((code/(n*4))+1)%n)
			f = schema.Field{Name: name, Kind: schema.KindDynamicZone, Components: []string{target, next}}
		default:
			f = schema.Field{Name: name, Kind: schema.KindMedia}
		}
		types[owner].Fields = append(types[owner].Fields, f)
	}
	return schema.MustRegistry("prop", types...)
}

func TestPlanner_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 150
	properties := gopter.NewProperties(parameters)

	properties.Property("depth never exceeds the number of distinct types", prop.ForAll(
		func(n int, codes []int) bool {
			reg := randomRegistry(n, codes)
			plan := NewPlanner(reg, nil).Plan("t0")
			return plan.Depth() <= n
		},
		gen.IntRange(1, 6),
		gen.SliceOfN(14, gen.IntRange(0, 10000)),
	))

	properties.Property("omitted names never appear at any depth", prop.ForAll(
		func(n int, codes []int) bool {
			reg := randomRegistry(n, codes)
			plan := NewPlanner(reg, redact.NewOmitSet("f0", "f3")).Plan("t0")
			return !planMentions(plan, "f0") && !planMentions(plan, "f3")
		},
		gen.IntRange(1, 6),
		gen.SliceOfN(14, gen.IntRange(0, 10000)),
	))

	properties.TestingRun(t)
}

func planMentions(p *Plan, field string) bool {
	if p == nil {
		return false
	}
	for name, child := range p.Populate {
		if name == field || planMentions(child, field) {
			return true
		}
	}
	for _, child := range p.On {
		if planMentions(child, field) {
			return true
		}
	}
	return false
}
