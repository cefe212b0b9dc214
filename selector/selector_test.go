package selector

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(t *testing.T, body string) *goquery.Selection {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	require.NoError(t, err)
	return d.Selection
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    []string
		wantErr bool
	}{
		{name: "text", spec: "h3", want: []string{"h3"}},
		{name: "attr", spec: "a.link@href", want: []string{"a.link@href"}},
		{name: "fallbacks", spec: "a.x@href, a.y@href,a@href", want: []string{"a.x@href", "a.y@href", "a@href"}},
		{name: "comma in attribute value", spec: "a[title='a, b']@href, span", want: []string{"a[title='a, b']@href", "span"}},
		{name: "comma in pseudo", spec: "a:not(.x, .y)@href", want: []string{"a:not(.x, .y)@href"}},
		{name: "at sign in quotes", spec: "a[href='mailto:x@y.com']", want: []string{"a[href='mailto:x@y.com']"}},
		{name: "self attribute", spec: "@href", want: []string{"@href"}},
		{name: "contains", spec: "a:contains('Next')@href", want: []string{"a:contains('Next')@href"}},
		{name: "empty", spec: "", wantErr: true},
		{name: "blank slot", spec: "h3,,h2", wantErr: true},
		{name: "malformed css", spec: "div[", wantErr: true},
		{name: "bare at", spec: "@", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sels, err := Parse(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			var got []string
			for _, s := range sels {
				got = append(got, s.String())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalFallback(t *testing.T) {
	root := doc(t, `<div>
		<a class="y" href="/from-y">y</a>
		<a class="z" href="/from-z">z</a>
	</div>`)

	r := MustCompile("link", "a.x@href, a.y@href, a@href")
	v, ok := r.Eval(root)
	assert.True(t, ok)
	assert.Equal(t, "/from-y", v)
}

func TestEvalSkipsEmptyValues(t *testing.T) {
	root := doc(t, `<div><h3>   </h3><a class="x" href="">x</a><h2>Launch  party
	</h2><a class="y" href="/y">y</a></div>`)

	v, ok := MustCompile("title", "h3, h2").Eval(root)
	assert.True(t, ok)
	assert.Equal(t, "Launch party", v)

	v, ok = MustCompile("link", "a.x@href, a.y@href").Eval(root)
	assert.True(t, ok)
	assert.Equal(t, "/y", v)
}

func TestEvalNotFound(t *testing.T) {
	root := doc(t, `<div><p>nothing here</p></div>`)

	v, ok := MustCompile("email", "a.mail@href, .email").Eval(root)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestEvalSelfAttribute(t *testing.T) {
	root := doc(t, `<a class="card" href="/e/1"><span>Card</span></a>`)
	card := root.Find("a.card")

	v, ok := MustCompile("source_url", "@href").Eval(card)
	assert.True(t, ok)
	assert.Equal(t, "/e/1", v)
}

func TestEvalRegexAndDefault(t *testing.T) {
	root := doc(t, `<div><p class="org">Organized by Acme Events Ltd</p></div>`)

	r, err := Compile("company", Spec{Selector: "p.org", Regex: `(?i)organized by\s+(.+)`})
	require.NoError(t, err)
	v, ok := r.Eval(root)
	assert.True(t, ok)
	assert.Equal(t, "Acme Events Ltd", v)

	r, err = Compile("city", Spec{Selector: ".city", Default: "Remote"})
	require.NoError(t, err)
	v, ok = r.Eval(root)
	assert.True(t, ok)
	assert.Equal(t, "Remote", v)

	r, err = Compile("phone", Spec{Selector: "p.org", Regex: `\d{3}-\d{4}`})
	require.NoError(t, err)
	_, ok = r.Eval(root)
	assert.False(t, ok)
}

func TestCompileSpecAttr(t *testing.T) {
	r, err := Compile("img", Spec{Selector: "img.logo, img@data-src", Attr: "src"})
	require.NoError(t, err)
	require.Len(t, r.Selectors, 2)
	assert.Equal(t, "src", r.Selectors[0].Attr)
	assert.Equal(t, "data-src", r.Selectors[1].Attr)

	_, err = Compile("img", Spec{Selector: "img", Attr: "bad attr"})
	assert.Error(t, err)

	_, err = Compile("x", Spec{Selector: "p", Regex: "("})
	assert.Error(t, err)
}

func TestText(t *testing.T) {
	root := doc(t, `<div id="d"> Hello <b>big</b>
		<script>var x = 1;</script><style>.a{}</style> world </div>`)

	assert.Equal(t, "Hello big world", Text(root.Find("#d")))
}

func TestSpecJSON(t *testing.T) {
	var fields map[string]Spec
	err := json.Unmarshal([]byte(`{
		"event_name": "h3",
		"company": {"selector": ".org", "regex": "by (.+)", "default": "unknown"}
	}`), &fields)
	require.NoError(t, err)

	assert.Equal(t, Spec{Selector: "h3"}, fields["event_name"])
	assert.Equal(t, Spec{Selector: ".org", Regex: "by (.+)", Default: "unknown"}, fields["company"])

	b, err := json.Marshal(fields["event_name"])
	require.NoError(t, err)
	assert.JSONEq(t, `"h3"`, string(b))

	b, err = json.Marshal(fields["company"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"selector": ".org", "regex": "by (.+)", "default": "unknown"}`, string(b))
}

func TestLines(t *testing.T) {
	root := doc(t, `<div id="d"><p>Organized by
	Acme Events</p><script>x()</script><p> Call us </p></div>`)

	assert.Equal(t, []string{"Organized by Acme Events", "Call us"}, Lines(root.Find("#d")))
}
