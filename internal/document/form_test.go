package document

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleForm = `<html><body>
<form action="/search.do" method="post">
	<input type="hidden" name="formChanged" value="false"/>
	<input type="text" name="suchwort" value=""/>
	<input type="submit" name="doSearch" value="Suchen"/>
	<input type="reset" name="doReset" value="Reset"/>
	<input type="image" name="doImage" value="img"/>
	<input type="radio" name="variant" value="a"/>
	<input type="radio" name="variant" value="b" checked/>
	<input type="checkbox" name="exact" value="yes"/>
	<input type="checkbox" name="fuzzy" value="yes" checked="checked"/>
	<input type="text" name="ignored" value="x" disabled/>
	<input type="text" name="noValueAttr"/>
	<select name="period">
		<option value="17">17</option>
		<option value="18" selected>18</option>
		<option value="19">19</option>
	</select>
	<select name="blatt">
		<option value="BGBl I">BGBl I</option>
		<option value="BGBl II">BGBl II</option>
	</select>
	<select name="broken"></select>
	<select>
		<option value="anonymous">no name</option>
	</select>
	<textarea name="remark">some remark</textarea>
	<textarea name="empty"></textarea>
</form>
</body></html>`

func TestExtractFormState(t *testing.T) {
	doc := mustParse(t, sampleForm, "http://host/page.do")

	fields, err := ExtractFormState(doc, "//form")
	require.NoError(t, err)

	want := FieldSet{
		{"formChanged", "false"},
		{"suchwort", ""},
		{"variant", "b"},
		{"fuzzy", "yes"},
		{"period", "18"},
		{"blatt", "BGBl I"},
		{"remark", "some remark"},
		{"empty", ""},
	}
	assert.Equal(t, want, fields)
}

func TestExtractFormStateIsDeterministic(t *testing.T) {
	first, err := ExtractFormState(mustParse(t, sampleForm, "http://host/"), "//form")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := ExtractFormState(mustParse(t, sampleForm, "http://host/"), "//form")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestExtractFormStateNoForm(t *testing.T) {
	doc := mustParse(t, "<html><body><p>nothing here</p></body></html>", "http://host/")
	_, err := ExtractFormState(doc, "//form")
	assert.ErrorIs(t, err, ErrNoFormFound)
}

func TestExtractFormStateUsesFirstForm(t *testing.T) {
	body := `<html><body>
		<form><input type="hidden" name="which" value="first"/></form>
		<form><input type="hidden" name="which" value="second"/></form>
	</body></html>`
	doc := mustParse(t, body, "http://host/")

	fields, err := ExtractFormState(doc, "//form")
	require.NoError(t, err)
	value, ok := fields.Get("which")
	require.True(t, ok)
	assert.Equal(t, "first", value)
}

// The portal's advanced search form carries a large number of hidden fields.
// Make sure nothing gets lost or duplicated on a form of realistic size.
func TestExtractFormStateFieldCount(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body><form>")
	for i := 0; i < 95; i++ {
		fmt.Fprintf(&b, `<input type="hidden" name="f%d" value="v%d"/>`, i, i)
	}
	b.WriteString(`<select name="s0"><option value="x" selected>x</option></select>`)
	b.WriteString(`<select name="s1"><option value="y">y</option></select>`)
	b.WriteString(`<textarea name="t0">z</textarea>`)
	b.WriteString(`<textarea name="t1"></textarea>`)
	b.WriteString("</form></body></html>")

	fields, err := ExtractFormState(mustParse(t, b.String(), "http://host/"), "//form")
	require.NoError(t, err)
	assert.Len(t, fields, 99)
}

func TestFieldSetSetReplacesFirstMatchInPlace(t *testing.T) {
	fields := FieldSet{{"a", "1"}, {"b", "2"}, {"a", "3"}}

	updated := fields.Set("a", "9")
	assert.Equal(t, FieldSet{{"a", "9"}, {"b", "2"}, {"a", "3"}}, updated)
	// the receiver stays untouched
	assert.Equal(t, FieldSet{{"a", "1"}, {"b", "2"}, {"a", "3"}}, fields)

	appended := fields.Set("c", "4")
	assert.Equal(t, Field{"c", "4"}, appended[len(appended)-1])
}

func TestFieldSetEncodePreservesOrder(t *testing.T) {
	fields := FieldSet{
		{"zulu", "1"},
		{"alpha", "2"},
		{"mid dle", "a b"},
	}
	assert.Equal(t, "zulu=1&alpha=2&mid+dle=a+b", fields.Encode())
}
