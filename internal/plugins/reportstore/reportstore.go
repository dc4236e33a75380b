// Package reportstore is a store sink that buffers every record it
// receives during a run and, on Done, renders them as a single PDF
// report via go-pdf/fpdf — the same buffer-then-finalize-on-Done shape as
// stores/filestore.py's two-phase write, applied to a document output
// instead of a JSON file.
package reportstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog/log"

	"github.com/cloudwarden/cloudwarden/internal/pluginloader"
	"github.com/cloudwarden/cloudwarden/internal/record"
)

func init() {
	pluginloader.Register("plugins/reportstore.ReportStore", New)
}

// ReportStore buffers every record it receives and renders them as a PDF
// on Done.
type ReportStore struct {
	mu      sync.Mutex
	dir     string
	title   string
	records []record.Record
}

// New constructs a ReportStore from its descriptor params: path (string,
// directory the report is written into, default "/tmp/cloudwarden"),
// title (string, default "cloudwarden audit report").
func New(params map[string]interface{}) (interface{}, error) {
	dir := "/tmp/cloudwarden"
	if v, ok := params["path"].(string); ok && v != "" {
		dir = v
	}
	title := "cloudwarden audit report"
	if v, ok := params["title"].(string); ok && v != "" {
		title = v
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("reportstore: mkdir: %w", err)
	}
	return &ReportStore{dir: dir, title: title}, nil
}

// Write implements plugin.Sink.
func (r *ReportStore) Write(ctx context.Context, rec record.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

// Done implements plugin.Sink. It renders every buffered record into one
// PDF file per audit key and clears the buffer. A render failure is
// logged, not returned, matching the Sink contract's lack of an error
// return from Done.
func (r *ReportStore) Done() {
	r.mu.Lock()
	records := r.records
	r.records = nil
	r.mu.Unlock()

	if len(records) == 0 {
		return
	}

	auditKey := records[0].Com.AuditKey
	if auditKey == "" {
		auditKey = "report"
	}
	path := filepath.Join(r.dir, auditKey+".pdf")
	if err := renderPDF(path, r.title, records); err != nil {
		log.Error().Err(err).Str("path", path).Msg("reportstore: render failed")
	}
}

func renderPDF(path, title string, records []record.Record) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 8, "Generated "+time.Now().UTC().Format(time.RFC3339), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	for i, rec := range records {
		if rec.IsControl() {
			continue
		}
		recordType, _ := rec.Ext["record_type"].(string)
		description, _ := rec.Ext["description"].(string)
		recommendation, _ := rec.Ext["recommendation"].(string)

		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, fmt.Sprintf("%d. %s", i+1, recordType), "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		if description != "" {
			pdf.MultiCell(0, 6, "Description: "+description, "", "L", false)
		}
		if recommendation != "" {
			pdf.MultiCell(0, 6, "Recommendation: "+recommendation, "", "L", false)
		}
		pdf.Ln(3)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("reportstore: render: %w", err)
	}
	return pdf.OutputFileAndClose(path)
}
