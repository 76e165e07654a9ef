// Package workload reads and generates memory-access streams for the controller.
package workload

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// AccessEvent is one sampled memory access.
// Index is the position in the sampling stream; zero means "next".
type AccessEvent struct {
	Timestamp uint64
	TID       uint64
	PhysAddr  uint64
	VirtAddr  uint64
	Index     int64
}

// traceColumns is the CSV header of an access trace.
var traceColumns = []string{"timestamp", "tid", "phys_addr", "virt_addr", "index"}

// ReadTrace loads an access trace CSV. Addresses may be decimal or 0x-prefixed
// hex. Timestamps must not decrease.
func ReadTrace(path string) ([]AccessEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening access trace: %w", err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(traceColumns)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	for i, col := range traceColumns {
		if strings.TrimSpace(header[i]) != col {
			return nil, fmt.Errorf("CSV header column %d is %q, expected %q", i, header[i], col)
		}
	}

	var events []AccessEvent
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row: %w", err)
		}
		ev, err := parseAccessEvent(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if n := len(events); n > 0 && ev.Timestamp < events[n-1].Timestamp {
			return nil, fmt.Errorf("line %d: timestamp %d precedes %d", line, ev.Timestamp, events[n-1].Timestamp)
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseAccessEvent(row []string) (AccessEvent, error) {
	var ev AccessEvent
	var err error
	if ev.Timestamp, err = strconv.ParseUint(row[0], 10, 64); err != nil {
		return ev, fmt.Errorf("parsing timestamp: %w", err)
	}
	if ev.TID, err = strconv.ParseUint(row[1], 10, 64); err != nil {
		return ev, fmt.Errorf("parsing tid: %w", err)
	}
	if ev.PhysAddr, err = strconv.ParseUint(row[2], 0, 64); err != nil {
		return ev, fmt.Errorf("parsing phys_addr: %w", err)
	}
	if ev.VirtAddr, err = strconv.ParseUint(row[3], 0, 64); err != nil {
		return ev, fmt.Errorf("parsing virt_addr: %w", err)
	}
	if ev.Index, err = strconv.ParseInt(row[4], 10, 64); err != nil {
		return ev, fmt.Errorf("parsing index: %w", err)
	}
	return ev, nil
}

// WriteTrace writes events in the format ReadTrace accepts, addresses in hex.
func WriteTrace(path string, events []AccessEvent) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating access trace: %w", err)
	}
	w := csv.NewWriter(file)
	if err := w.Write(traceColumns); err != nil {
		_ = file.Close()
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, ev := range events {
		row := []string{
			strconv.FormatUint(ev.Timestamp, 10),
			strconv.FormatUint(ev.TID, 10),
			"0x" + strconv.FormatUint(ev.PhysAddr, 16),
			"0x" + strconv.FormatUint(ev.VirtAddr, 16),
			strconv.FormatInt(ev.Index, 10),
		}
		if err := w.Write(row); err != nil {
			_ = file.Close()
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = file.Close()
		return fmt.Errorf("flushing access trace: %w", err)
	}
	return file.Close()
}
