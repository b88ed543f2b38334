package spreadsheet

import (
	"context"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/care-records/internal/core/domain"
)

const xlsxMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Extractor flattens every sheet of an XLSX workbook into tab separated
// lines, one block per sheet.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Name() string { return "spreadsheet" }

func (e *Extractor) Supports(mimeType string) bool {
	return mimeType == xlsxMimeType
}

func (e *Extractor) Extract(ctx context.Context, _ string, body io.Reader) (domain.Extraction, error) {
	book, err := excelize.OpenReader(body)
	if err != nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrExtraction, "open workbook", err)
	}
	defer book.Close()

	var sb strings.Builder
	sheets := book.GetSheetList()
	for _, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return domain.Extraction{}, err
		}
		rows, err := book.GetRows(sheet)
		if err != nil {
			return domain.Extraction{}, domain.WrapError(domain.ErrExtraction, "read sheet "+sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("# " + sheet + "\n")
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t")
			if line == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	return domain.Extraction{Text: strings.TrimSpace(sb.String()), PageCount: len(sheets)}, nil
}
