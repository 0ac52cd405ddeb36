// File: internal/scenario/scenario_test.go
package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/locator"
)

const smokeYAML = `
name: search smoke
url: https://example.com/
timeout: 30s
pages:
  home:
    timeout: 20s
    elements:
      more: {link_text: "More information..."}
      heading: {xpath: "//h1"}
      panel: {css: "#panel"}
      item: {class_name: item, within: panel}
cases:
  - name: heading visible
    page: home
    steps:
      - {action: expect_displayed, element: heading}
      - {action: expect_text, element: heading, contains: Example}
      - {action: type, element: item, text: hello, clear: false}
      - {action: hover, element: more}
      - {action: alert, create: "Alert: Hi!", accept: true, equals: "Alert: Hi!"}
  - name: scroll
    steps:
      - {action: scroll_by, x: 0, y: 400}
      - {action: navigate, url: "https://example.com/next"}
`

func TestParse(t *testing.T) {
	sc, err := Parse(strings.NewReader(smokeYAML))
	require.NoError(t, err)

	assert.Equal(t, "search smoke", sc.Name)
	assert.Equal(t, 30*time.Second, sc.Timeout)
	home := sc.Pages["home"]
	assert.Equal(t, 20*time.Second, home.Timeout)
	assert.Equal(t, "panel", home.Elements["item"].Within)

	require.Len(t, sc.Cases, 2)
	steps := sc.Cases[0].Steps
	require.Len(t, steps, 5)
	assert.Equal(t, ActionExpectDisplayed, steps[0].Action)
	require.NotNil(t, steps[1].Contains)
	assert.Equal(t, "Example", *steps[1].Contains)
	assert.False(t, boolOr(steps[2].Clear, true))
	assert.True(t, boolOr(steps[4].Accept, false))

	want := Step{Action: ActionScrollBy, Y: 400}
	if diff := cmp.Diff(want, sc.Cases[1].Steps[0]); diff != "" {
		t.Errorf("scroll_by step mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smoke.yaml")
	require.NoError(t, os.WriteFile(path, []byte(smokeYAML), 0o644))

	sc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", sc.URL)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to open scenario")
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "empty document",
			yaml: "",
			want: []string{"empty scenario"},
		},
		{
			name: "unknown key",
			yaml: "url: https://x/\nbrowser: chrome\n",
			want: []string{"field browser not found"},
		},
		{
			name: "missing url and cases",
			yaml: "name: nothing\n",
			want: []string{"url is required", "at least one case is required"},
		},
		{
			name: "unknown action",
			yaml: `
url: https://x/
cases:
  - name: a
    steps: [{action: teleport}]
`,
			want: []string{`case "a" step 1 (teleport): unknown action`},
		},
		{
			name: "unknown page and element",
			yaml: `
url: https://x/
pages:
  home: {elements: {title: {tag_name: h1}}}
cases:
  - name: a
    page: nowhere
    steps: [{action: click, element: title}]
  - name: b
    page: home
    steps: [{action: click, element: button}]
`,
			want: []string{`case "a": unknown page "nowhere"`, `unknown element "button" on page "home"`},
		},
		{
			name: "locator strategies",
			yaml: `
url: https://x/
pages:
  home:
    elements:
      none: {}
      both: {id: a, css: "#a"}
cases:
  - name: a
    steps: [{action: refresh}]
`,
			want: []string{
				`page "home" element "both": several locator strategies set (css, id)`,
				`page "home" element "none": no locator strategy set`,
			},
		},
		{
			name: "within loops",
			yaml: `
url: https://x/
pages:
  home:
    elements:
      a: {id: a, within: b}
      b: {id: b, within: a}
      c: {id: c, within: ghost}
cases:
  - name: a
    steps: [{action: refresh}]
`,
			want: []string{
				`element "a": within chain loops`,
				`element "c": within unknown element "ghost"`,
			},
		},
		{
			name: "step fields",
			yaml: `
url: https://x/
pages:
  home: {elements: {title: {tag_name: h1}}}
cases:
  - name: a
    page: home
    steps:
      - {action: navigate}
      - {action: click}
      - {action: expect_text, element: title}
      - {action: expect_text, element: title, equals: x, contains: y}
      - {action: expect_attribute, element: title, equals: x}
      - {action: dispatch, element: title}
      - {action: refresh, element: title}
      - {action: click, element: title, equals: x}
  - name: a
    steps:
      - {action: click, element: title}
`,
			want: []string{
				"step 1 (navigate): url is required",
				"step 2 (click): element is required",
				"step 3 (expect_text): one of equals or contains is required",
				"step 4 (expect_text): equals and contains are exclusive",
				"step 5 (expect_attribute): name is required",
				"step 6 (dispatch): event is required",
				"step 7 (refresh): element is not used by this action",
				"step 8 (click): equals/contains are not used by this action",
				`case "a": duplicate name`,
				`element "title" needs the case to name a page`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.yaml))
			require.Error(t, err)
			for _, want := range tt.want {
				assert.ErrorContains(t, err, want)
			}
		})
	}
}

func TestElementSpec_Locator(t *testing.T) {
	loc, err := ElementSpec{PartialLinkText: "More"}.Locator()
	require.NoError(t, err)
	assert.Equal(t, locator.ByPartialLinkText("More"), loc)

	loc, err = ElementSpec{Name: "q", Within: "form"}.Locator()
	require.NoError(t, err)
	assert.Equal(t, locator.ByName("q"), loc)
}
