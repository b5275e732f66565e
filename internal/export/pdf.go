package export

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/diewo77/go-quotations/internal/models"
	"github.com/diewo77/go-quotations/internal/pricing"
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/image"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/extension"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// QuotationDocument is everything the PDF needs, already loaded.
type QuotationDocument struct {
	Quotation *models.Quotation
	Logo      []byte
	Address   string
	Now       time.Time
}

// Number returns the display number, QT-<yyyyMMddHHmmss> of the render time.
func (d QuotationDocument) Number() string {
	return "QT-" + d.Now.Format("20060102150405")
}

var headerBg = &props.Color{Red: 68, Green: 114, Blue: 196}

// QuotationPDF renders one quotation.
func QuotationPDF(d QuotationDocument) ([]byte, error) {
	q := d.Quotation
	if q == nil {
		return nil, fmt.Errorf("no quotation to render")
	}
	if d.Now.IsZero() {
		d.Now = time.Now()
	}

	cfg := config.NewBuilder().
		WithLeftMargin(12).
		WithTopMargin(12).
		WithRightMargin(12).
		Build()
	m := maroto.New(cfg)

	if logo := logoCol(d.Logo); logo != nil {
		m.AddRow(24, logo, col.New(8))
	}
	m.AddRows(
		text.NewRow(12, "QUOTATION", props.Text{Size: 18, Style: fontstyle.Bold, Align: align.Right}),
		text.NewRow(6, d.Number(), props.Text{Size: 10, Align: align.Right}),
		line.NewRow(4),
	)
	m.AddRow(6,
		text.NewCol(6, "Project: "+q.ProjectName, props.Text{Style: fontstyle.Bold}),
		text.NewCol(6, "Date: "+q.Date, props.Text{Align: align.Right}),
	)
	m.AddRow(6,
		text.NewCol(6, "To: "+q.Recipient),
		text.NewCol(6, "Valid until: "+q.ValidityDate, props.Text{Align: align.Right}),
	)
	m.AddRows(line.NewRow(6))

	m.AddRows(itemHeader())
	for i, it := range q.Items {
		m.AddRows(itemRow(i+1, it, q.CurrencyType))
	}
	m.AddRows(line.NewRow(6))

	m.AddRows(
		totalRow("Subtotal", pricing.FormatMoney(q.Subtotal(), q.CurrencyType), false),
		totalRow("Discount", pricing.FormatMoney(q.Discount, q.CurrencyType), false),
		totalRow("Total", pricing.FormatMoney(q.Total(), q.CurrencyType), true),
	)

	if note := strings.TrimSpace(q.Note); note != "" {
		m.AddRows(
			text.NewRow(10, "Note", props.Text{Top: 4, Style: fontstyle.Bold}),
			text.NewRow(12, note, props.Text{Size: 9}),
		)
	}
	if addr := strings.TrimSpace(d.Address); addr != "" {
		m.AddRows(
			line.NewRow(8),
			text.NewRow(8, addr, props.Text{Size: 8, Align: align.Center}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate pdf: %w", err)
	}
	return doc.GetBytes(), nil
}

func logoCol(logo []byte) core.Col {
	if len(logo) == 0 {
		return nil
	}
	var ext extension.Type
	switch http.DetectContentType(logo) {
	case "image/png":
		ext = extension.Png
	case "image/jpeg":
		ext = extension.Jpg
	default:
		return nil
	}
	return image.NewFromBytesCol(4, logo, ext, props.Rect{Center: false, Percent: 100})
}

func itemHeader() core.Row {
	white := &props.Color{Red: 255, Green: 255, Blue: 255}
	style := props.Text{Style: fontstyle.Bold, Color: white, Top: 1.5}
	right := style
	right.Align = align.Right
	return row.New(8).Add(
		text.NewCol(1, "#", style),
		text.NewCol(5, "Item", style),
		text.NewCol(2, "Qty", right),
		text.NewCol(2, "Unit price", right),
		text.NewCol(2, "Amount", right),
	).WithStyle(&props.Cell{BackgroundColor: headerBg})
}

func itemRow(n int, it models.QuotationItem, currency string) core.Row {
	name := it.Name
	if it.Description != "" {
		name += " - " + it.Description
	}
	right := props.Text{Align: align.Right, Top: 1}
	return row.New(7).Add(
		text.NewCol(1, fmt.Sprint(n), props.Text{Top: 1}),
		text.NewCol(5, name, props.Text{Top: 1}),
		text.NewCol(2, pricing.FormatNumber(it.Quantity), right),
		text.NewCol(2, pricing.FormatNumber(it.UnitPrice), right),
		text.NewCol(2, pricing.FormatMoney(it.TotalPrice, currency), right),
	)
}

func totalRow(label, value string, bold bool) core.Row {
	style := props.Text{Align: align.Right}
	if bold {
		style.Style = fontstyle.Bold
		style.Size = 12
	}
	return row.New(7).Add(
		col.New(6),
		text.NewCol(3, label, style),
		text.NewCol(3, value, style),
	)
}
