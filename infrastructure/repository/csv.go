package repository

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/missatech/breach-analytics/domain/entity"
)

// csvColumns are the register export columns, in file order. Files may
// carry extra trailing columns; they are ignored.
var csvColumns = []string{
	"system_name",
	"region",
	"attack_type",
	"data_sensitivity_level",
	"records_exposed",
	"estimated_cost_per_record_usd",
	"estimated_total_cost_usd",
	"detection_delay_days",
	"response_time_days",
	"notification_required",
}

// CSVSource reads the breach register from a CSV export. Rows have no
// identifier column; ids are assigned from the row position so repeated
// loads of the same file agree.
type CSVSource struct {
	path   string
	logger *zap.Logger
}

// NewCSVSource creates a source over the file at path.
func NewCSVSource(path string, logger *zap.Logger) *CSVSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVSource{path: path, logger: logger.Named("csv_source")}
}

// FetchIncidents parses the file. Rows that fail to parse or validate are
// skipped and logged; a missing or malformed header fails the load.
func (s *CSVSource) FetchIncidents(ctx context.Context) ([]entity.Incident, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open register file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read register header: %w", err)
	}
	columns, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	var (
		incidents []entity.Incident
		rowsRead  int
		rejected  int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read register row: %w", err)
		}

		rowsRead++
		inc, err := parseCSVRecord(record, columns, rowsRead)
		if err != nil {
			rejected++
			s.logger.Warn("skipping invalid register row",
				zap.Int("row", rowsRead),
				zap.Error(err))
			continue
		}
		incidents = append(incidents, inc)
	}

	s.logger.Info("incident fetch complete",
		zap.String("path", s.path),
		zap.Int("rows_read", rowsRead),
		zap.Int("rows_rejected", rejected))
	return incidents, nil
}

// resolveColumns maps each expected column name to its position in the
// header, so exports with reordered or extra columns still load.
func resolveColumns(header []string) (map[string]int, error) {
	positions := make(map[string]int, len(header))
	for i, name := range header {
		positions[strings.TrimSpace(strings.ToLower(name))] = i
	}

	columns := make(map[string]int, len(csvColumns))
	for _, name := range csvColumns {
		pos, ok := positions[name]
		if !ok {
			return nil, fmt.Errorf("register header is missing column %q", name)
		}
		columns[name] = pos
	}
	return columns, nil
}

func parseCSVRecord(record []string, columns map[string]int, row int) (entity.Incident, error) {
	field := func(name string) (string, error) {
		pos := columns[name]
		if pos >= len(record) {
			return "", fmt.Errorf("row is missing column %q", name)
		}
		return strings.TrimSpace(record[pos]), nil
	}

	var (
		inc      entity.Incident
		firstErr error
	)
	str := func(name string) string {
		if firstErr != nil {
			return ""
		}
		v, err := field(name)
		if err != nil {
			firstErr = err
		}
		return v
	}
	integer := func(name string) int64 {
		raw := str(name)
		if firstErr != nil {
			return 0
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			firstErr = fmt.Errorf("column %q: %w", name, err)
		}
		return v
	}
	float := func(name string) float64 {
		raw := str(name)
		if firstErr != nil {
			return 0
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			firstErr = fmt.Errorf("column %q: %w", name, err)
		}
		return v
	}

	inc.ID = fmt.Sprintf("BR-%04d", row)
	inc.System = str("system_name")
	inc.Region = str("region")
	inc.AttackType = str("attack_type")
	inc.SensitivityLevel = int(integer("data_sensitivity_level"))
	inc.RecordsExposed = integer("records_exposed")
	inc.CostPerRecord = float("estimated_cost_per_record_usd")
	inc.Cost = float("estimated_total_cost_usd")
	inc.DetectionTimeDays = float("detection_delay_days")
	inc.ResponseTimeDays = float("response_time_days")

	notif := str("notification_required")
	if firstErr != nil {
		return entity.Incident{}, firstErr
	}
	switch strings.ToLower(notif) {
	case "yes":
		inc.NotificationRequired = true
	case "no":
		inc.NotificationRequired = false
	default:
		return entity.Incident{}, fmt.Errorf("column %q: unrecognized value %q", "notification_required", notif)
	}

	if err := inc.Validate(); err != nil {
		return entity.Incident{}, err
	}
	return inc, nil
}
