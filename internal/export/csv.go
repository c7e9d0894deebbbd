package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"Go2NetPulse/internal/model"
)

// ErrNoData is returned when there are no records to export.
var ErrNoData = errors.New("no data to export")

// Header lists the export columns in their fixed order.
var Header = []string{"timestamp", "source_ip", "dest_ip", "source_port", "dest_port", "protocol", "size"}

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, records []model.PacketRecord) error {
	if len(records) == 0 {
		return ErrNoData
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.Timestamp.Format(model.TimestampLayout),
			r.SourceIP,
			r.DestIP,
			strconv.Itoa(int(r.SourcePort)),
			strconv.Itoa(int(r.DestPort)),
			r.Protocol,
			strconv.Itoa(r.Size),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FileName returns the download name for an export taken at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("network_capture_%s.csv", t.Format("20060102_150405"))
}
