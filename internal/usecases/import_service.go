package usecases

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"onboardingbot/internal/entities"
	"onboardingbot/internal/interfaces"
)

// ImportResult reports the outcome of a bulk spreadsheet import.
type ImportResult struct {
	Added   int      `json:"added"`
	Skipped int      `json:"skipped"`
	Failed  []string `json:"failed"`
}

// ImportService creates candidates from uploaded spreadsheets and triggers
// the outbound onboarding template per new row.
type ImportService struct {
	store     interfaces.CandidateStore
	messenger interfaces.Messenger
	logger    *zap.Logger
}

func NewImportService(store interfaces.CandidateStore, messenger interfaces.Messenger, logger *zap.Logger) *ImportService {
	return &ImportService{store: store, messenger: messenger, logger: logger}
}

// ImportXLSX reads the first sheet of an xlsx file with a header row of
// (name, surname, phone_number, company, position). Rows whose normalized
// phone number already exists are skipped, not updated.
func (s *ImportService) ImportXLSX(ctx context.Context, r io.Reader) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < 2 {
		return &ImportResult{Failed: []string{}}, nil
	}

	cols := headerIndex(rows[0])
	result := &ImportResult{Failed: []string{}}

	for _, row := range rows[1:] {
		phone := entities.NormalizePhone(cell(row, colFor(cols, "phone_number")))
		if phone == "" {
			result.Failed = append(result.Failed, phone)
			continue
		}

		exists, err := s.store.Exists(ctx, phone)
		if err != nil {
			s.logger.Error("duplicate check failed", zap.String("phone", phone), zap.Error(err))
			result.Failed = append(result.Failed, phone)
			continue
		}
		if exists {
			result.Skipped++
			continue
		}

		c := &entities.Candidate{
			Name:        defaultIfEmpty(cell(row, colFor(cols, "name")), "Unknown"),
			Surname:     defaultIfEmpty(cell(row, colFor(cols, "surname")), "Unknown"),
			PhoneNumber: phone,
			Company:     cell(row, colFor(cols, "company")),
			Position:    cell(row, colFor(cols, "position")),
			Status:      entities.StatusSent,
		}
		if err := s.store.Create(ctx, c); err != nil {
			s.logger.Error("candidate create failed", zap.String("phone", phone), zap.Error(err))
			result.Failed = append(result.Failed, phone)
			continue
		}

		name := strings.TrimSpace(c.Name)
		if name == "" || name == "Unknown" {
			name = "Amico"
		}
		if err := s.messenger.SendOnboardingTemplate(ctx, phone, name); err != nil {
			s.logger.Warn("template send failed", zap.String("phone", phone), zap.Error(err))
			result.Failed = append(result.Failed, phone)
			continue
		}
		result.Added++
	}

	return result, nil
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func colFor(cols map[string]int, key string) int {
	if i, ok := cols[key]; ok {
		return i
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func defaultIfEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
