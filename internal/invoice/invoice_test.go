package invoice

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
)

func TestFormatAndParseID(t *testing.T) {
	day := Day(time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, "141026", day)

	id := FormatID("OG", day, 7)
	assert.Equal(t, "OG_141026_7", id)

	parsed, err := ParseID(id)
	require.NoError(t, err)
	assert.Equal(t, ID{Prefix: "OG", Day: "141026", Seq: 7}, parsed)
	assert.Equal(t, id, parsed.String())
}

func TestParseID_Invalid(t *testing.T) {
	for _, s := range []string{"", "OG", "OG_1410_1", "OG_141026_0", "OG_141026_x", "OG_141026_1_Jane"} {
		_, err := ParseID(s)
		assert.ErrorIs(t, err, model.ErrValidation, s)
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "OG_141026_3_Jane_Doe.pdf", FileName("OG_141026_3", "Jane", "Doe", "pdf"))
	assert.Equal(t, "OG_141026_3_Anna_van-der-Berg.html", FileName("OG_141026_3", "Anna", "van der Berg", ".html"))
	assert.Equal(t, "OG_141026_3_a-b_-.html", FileName("OG_141026_3", "a/b", "", "html"))
}

func TestScanMaxSequence(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"OG_141026_1_Jane_Doe.pdf",
		"OG_141026_12_John_Roe.html",
		"OG_131026_40_Old_Day.pdf",
		"XX_141026_99_Other_Org.pdf",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	max, err := ScanMaxSequence(dir, "OG", "141026")
	require.NoError(t, err)
	assert.Equal(t, 12, max)

	max, err = ScanMaxSequence(filepath.Join(dir, "missing"), "OG", "141026")
	require.NoError(t, err)
	assert.Equal(t, 0, max)
}

func TestLatvianWords(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "nulle"},
		{7, "septiņi"},
		{13, "trīspadsmit"},
		{40, "četrdesmit"},
		{125, "simts divdesmit pieci"},
		{1000, "tūkstotis"},
		{2310, "divi tūkstoši trīs simti desmit"},
		{21_000, "divdesmit viens tūkstotis"},
		{11_000, "vienpadsmit tūkstoši"},
		{1_000_000, "miljons"},
		{2_000_005, "divi miljoni pieci"},
		{1_234_567, "miljons divi simti trīsdesmit četri tūkstoši pieci simti sešdesmit septiņi"},
		{3_000_000_000, "trīs miljardi"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatvianWords(tt.n), "n=%d", tt.n)
	}
	assert.Equal(t, "divdesmit pieci eiro un piecdesmit centi", AmountInWords(2550))
}

func TestRenderer_Render(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "invoices")
	r := NewRenderer(dir, Issuer{Name: `LTD "Company"`, RegNo: "Reģ. Nr 123456789"})

	reg := model.Registration{
		InvoiceID:  "OG_141026_2",
		FullName:   "Jane <b>Doe</b>",
		Email:      "jane@example.com",
		Attendees:  2,
		TotalPrice: 2550,
		CreatedAt:  time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC),
	}
	ev := model.EventSnapshot{EventID: "E1", Name: "Quiz Night", Date: "2026-10-20", Time: "19:00", PricePerPerson: 1275}

	path, err := r.Render(reg, ev)
	require.NoError(t, err)
	assert.Equal(t, r.PathFor(reg), path)
	assert.Equal(t, "OG_141026_2_Jane_<b>Doe<-b>.html", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "OG/141026/2")
	assert.Contains(t, html, "Quiz Night 20.10.26")
	assert.Contains(t, html, "25.50 EUR")
	assert.Contains(t, html, "divdesmit pieci eiro un piecdesmit centi")
	assert.NotContains(t, html, "<b>Doe</b>", "raw HTML from user input must be escaped")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "the artifact is renamed into place with no temporary file left")
	assert.Equal(t, filepath.Base(path), entries[0].Name())
}

func TestRenderer_RejectsMissingInvoiceID(t *testing.T) {
	r := NewRenderer(t.TempDir(), Issuer{})
	_, err := r.Render(model.Registration{}, model.EventSnapshot{})
	assert.ErrorIs(t, err, model.ErrValidation)
}
