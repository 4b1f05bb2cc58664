package view

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func TestEl_BuildsTree(t *testing.T) {
	got := El("div", ID("root"), Class("box"),
		El("span", Text("count: "), Text("3")),
		Children(Text("a"), Text("b")),
	)

	want := Node{
		Tag:   "div",
		Attrs: map[string]string{"id": "root", "class": "box"},
		Children: []Node{
			{Tag: "span", Children: []Node{{Text: "count: "}, {Text: "3"}}},
			{Text: "a"},
			{Text: "b"},
		},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Node{}, "Handlers")); diff != "" {
		t.Errorf("El() mismatch (-want +got):\n%s", diff)
	}
}

func TestNode_FindAndHandlers(t *testing.T) {
	req := require.New(t)
	clicks := 0
	tree := El("div",
		El("button", ID("inc"), On("click", func(Event) { clicks++ }), Text("+")),
		El("button", ID("dec"), On("click", nil), Text("-")),
	)

	inc, ok := tree.Find("inc")
	req.True(ok)
	inc.Handlers["click"](Event{Type: "click"})
	req.Equal(1, clicks)

	dec, ok := tree.Find("dec")
	req.True(ok)
	req.Nil(dec.Handlers)

	_, ok = tree.Find("missing")
	req.False(ok)
}

func TestHTML_EscapesAndSortsAttributes(t *testing.T) {
	req := require.New(t)
	n := El("p", Attr("title", `"q"`), ID("x"), Text("a < b"))

	req.Equal(`<p id="x" title="&#34;q&#34;">a &lt; b</p>`, HTML(n))
	req.Equal("<template></template>", HTML(Placeholder()))
	req.True(Placeholder().IsPlaceholder())
	req.Equal("a < b", n.TextContent())
}

func TestContext_FlushRunsHooksOnce(t *testing.T) {
	req := require.New(t)
	rc := NewContext()
	var order []int
	rc.AfterRender(func() { order = append(order, 1) })
	rc.AfterRender(func() { order = append(order, 2) })
	req.Equal(2, rc.Pending())

	rc.Flush()
	rc.Flush()

	req.Equal([]int{1, 2}, order)
	req.Equal(0, rc.Pending())
}
