package invoice

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/atomicfile"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
)

// Issuer is the supplier block printed on every invoice.
type Issuer struct {
	Name    string `yaml:"name"`
	RegNo   string `yaml:"reg_no"`
	Address string `yaml:"address"`
	Bank    string `yaml:"bank"`
}

// Renderer writes one HTML invoice per registration into Dir.
type Renderer struct {
	dir    string
	issuer Issuer
	md     goldmark.Markdown
}

// NewRenderer returns a Renderer writing into dir. Raw HTML in the
// Markdown source is escaped (WithUnsafe is not set).
func NewRenderer(dir string, issuer Issuer) *Renderer {
	return &Renderer{
		dir:    dir,
		issuer: issuer,
		md: goldmark.New(
			goldmark.WithExtensions(extension.Table),
			goldmark.WithRendererOptions(goldmarkHTML.WithHardWraps()),
		),
	}
}

// Dir returns the output directory.
func (r *Renderer) Dir() string {
	return r.dir
}

// PathFor returns where the artifact for reg is (or would be) written.
func (r *Renderer) PathFor(reg model.Registration) string {
	return filepath.Join(r.dir, FileName(reg.InvoiceID, reg.FirstName(), reg.LastName(), "html"))
}

// Render produces the invoice document for reg and returns its path.
func (r *Renderer) Render(reg model.Registration, ev model.EventSnapshot) (string, error) {
	if reg.InvoiceID == "" {
		return "", fmt.Errorf("render invoice: %w", model.ErrValidation)
	}
	var body bytes.Buffer
	if err := r.md.Convert([]byte(r.markdown(reg, ev)), &body); err != nil {
		return "", fmt.Errorf("render invoice %s: %w", reg.InvoiceID, err)
	}

	var doc bytes.Buffer
	doc.WriteString("<!DOCTYPE html>\n<html lang=\"lv\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&doc, "<title>%s</title>\n", reg.InvoiceID)
	doc.WriteString("</head>\n<body>\n")
	doc.Write(body.Bytes())
	doc.WriteString("</body>\n</html>\n")

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create invoice dir: %w", err)
	}
	path := r.PathFor(reg)
	if err := atomicfile.Write(path, doc.Bytes()); err != nil {
		return "", fmt.Errorf("write invoice: %w", err)
	}
	return path, nil
}

func (r *Renderer) markdown(reg model.Registration, ev model.EventSnapshot) string {
	number := strings.ReplaceAll(reg.InvoiceID, "_", "/")
	issued := reg.CreatedAt
	if issued.IsZero() {
		issued = time.Now()
	}
	gameDate := ev.Date
	if d, err := time.Parse(model.DateLayout, ev.Date); err == nil {
		gameDate = d.Format("02.01.06")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# RĒĶINS Nr %s\n\n", escape(number))
	fmt.Fprintf(&b, "no %s\n\n", issued.Format("02.01.2006"))
	fmt.Fprintf(&b, "**Maksātājs**\n%s\n%s\n\n", escape(reg.FullName), escape(reg.Email))
	fmt.Fprintf(&b, "**Piegādātājs**\n%s\n", escape(r.issuer.Name))
	for _, line := range []string{r.issuer.RegNo, r.issuer.Address, r.issuer.Bank} {
		if line != "" {
			fmt.Fprintf(&b, "%s\n", escape(line))
		}
	}
	b.WriteString("\n")
	b.WriteString("| Nosaukums | Mērv. | Daudzums | Cena | Summa |\n")
	b.WriteString("|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %s %s | kompl. | %d | %s EUR | %s EUR |\n\n",
		escape(ev.Name), gameDate, reg.Attendees, ev.PricePerPerson, reg.TotalPrice)
	fmt.Fprintf(&b, "**Kopā apmaksai:** %s EUR\n%s\n", reg.TotalPrice, AmountInWords(reg.TotalPrice))
	return b.String()
}

const markdownSpecials = "\\`*_{}[]()#+-.!|<>~"

func escape(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(markdownSpecials, r) {
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
