package audit

import (
	"encoding/csv"
	"io"
	"time"
)

// WriteTimelineCSV serialises timeline rows to CSV.
func WriteTimelineCSV(w io.Writer, rows []TimelineRow) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"At", "Tenant", "Actor", "Action", "Kind", "Resource", "Source IP"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.At.UTC().Format(time.RFC3339),
			row.TenantID,
			row.Actor,
			row.Action,
			row.Kind,
			row.ResourceID,
			row.SourceIP,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
