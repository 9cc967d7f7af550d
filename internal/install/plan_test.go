package install

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGraph() Graph {
	return Graph{Nodes: []Node{
		{Name: "web-app", Dependencies: []Dependency{
			{Name: "next", Spec: "15.0.0"},
			{Name: "lit-wrapper", Spec: "workspace:*"},
		}},
		{Name: "lit-wrapper", Dependencies: []Dependency{
			{Name: "multiformats", Spec: "^9.9.0"},
			{Name: "ethers", Spec: "^5.7.2"},
		}},
		{Name: "web-storage-wrapper", Dependencies: []Dependency{
			{Name: "multiformats", Spec: "^13.1.0"},
		}},
	}}
}

func TestComputeInstallPlan(t *testing.T) {
	plan := ComputeInstallPlan(testGraph(), Policy{Isolate: []string{"lit-wrapper", "web-storage-wrapper"}})

	want := []Edge{
		{From: "lit-wrapper", To: "ethers", Spec: "^5.7.2", Mode: Injected},
		{From: "lit-wrapper", To: "multiformats", Spec: "^9.9.0", Mode: Injected},
		{From: "web-app", To: "lit-wrapper", Spec: "workspace:*", Mode: Hoisted},
		{From: "web-app", To: "next", Spec: "15.0.0", Mode: Hoisted},
		{From: "web-storage-wrapper", To: "multiformats", Spec: "^13.1.0", Mode: Injected},
	}
	if diff := cmp.Diff(want, plan.Edges); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, plan.Unmatched)
	assert.Len(t, plan.Injected(), 3)

	require.Len(t, plan.Conflicts, 1)
	c := plan.Conflicts[0]
	assert.Equal(t, "multiformats", c.Package)
	assert.Equal(t, []Requirement{
		{Wrapper: "lit-wrapper", Spec: "^9.9.0", Major: 9},
		{Wrapper: "web-storage-wrapper", Spec: "^13.1.0", Major: 13},
	}, c.Requirements)
}

func TestComputeInstallPlanUnmatched(t *testing.T) {
	plan := ComputeInstallPlan(testGraph(), Policy{Isolate: []string{"lit-wraper", "lit-wrapper"}})

	assert.Equal(t, []string{"lit-wraper"}, plan.Unmatched)
	assert.Len(t, plan.Injected(), 2, "matched names are still isolated")
}

func TestComputeInstallPlanIsPure(t *testing.T) {
	g := testGraph()
	p := Policy{Isolate: []string{"web-storage-wrapper", "lit-wrapper"}}

	first := ComputeInstallPlan(g, p)
	second := ComputeInstallPlan(g, p)
	assert.Equal(t, first, second)
	assert.Equal(t, testGraph(), g)
	assert.Equal(t, []string{"web-storage-wrapper", "lit-wrapper"}, p.Isolate)
}

func TestComputeInstallPlanEmptyPolicy(t *testing.T) {
	plan := ComputeInstallPlan(testGraph(), Policy{})
	assert.Empty(t, plan.Injected())
	assert.Empty(t, plan.Conflicts)
	assert.Len(t, plan.Edges, 5)
}

func TestMajorVersion(t *testing.T) {
	tests := []struct {
		spec  string
		major int64
		ok    bool
	}{
		{"^1.2.0", 1, true},
		{"~2.1", 2, true},
		{">=3", 3, true},
		{">=3.0.0 <4.0.0", 3, true},
		{"4.x", 4, true},
		{"v5.0.0-beta.1", 5, true},
		{"13.1.0", 13, true},
		{"^0.9.1 || ^1.0.0", 0, true},
		{"workspace:*", 0, false},
		{"file:../sdk", 0, false},
		{"github:user/repo", 0, false},
		{"*", 0, false},
		{"latest", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			major, ok := MajorVersion(tt.spec)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.major, major)
		})
	}
}
