// Package advice stores free-text clinician advice attached to a patient, shown next to the
// patient's GH risk summary.
package advice

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/gh-risk-server/internal/domain"
)

// MaxTextLength is the longest accepted advice text, in characters, after trimming.
const MaxTextLength = 5000

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 100

// Advice is one note from a clinician.
type Advice struct {
	ID        int64     `json:"id,omitempty"`
	PatientID int64     `json:"patient_id"`
	Text      string    `json:"advice_text"`
	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store defines the interface for advice storage operations.
type Store interface {
	// Add inserts advice and sets its ID and CreatedAt. Stores that know the patient
	// registry return domain.ErrNotFound for an unknown patient.
	Add(ctx context.Context, a *Advice) error

	// List returns a patient's advice, newest first.
	List(ctx context.Context, patientID int64, limit int) ([]*Advice, error)

	// ExportJSON writes every advice entry to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// Close closes the store and releases resources.
	Close() error
}

// Export is the JSON export format.
type Export struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Advice     []*Advice `json:"advice"`
}

// Service validates advice before it reaches a Store.
type Service struct {
	store  Store
	logger *logrus.Logger
}

// NewService creates an advice service.
func NewService(store Store, logger *logrus.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Add trims text and stores it. Text must be 1 to MaxTextLength characters.
func (s *Service) Add(ctx context.Context, patientID int64, text, author string) (*Advice, error) {
	if patientID <= 0 {
		return nil, domain.NewValidationError("patient_id", "must be a positive integer", patientID)
	}
	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return nil, domain.NewValidationError("advice_text", "must not be empty", "")
	}
	if n > MaxTextLength {
		return nil, domain.NewValidationError("advice_text", fmt.Sprintf("must be at most %d characters", MaxTextLength), n)
	}

	a := &Advice{PatientID: patientID, Text: text, Author: strings.TrimSpace(author)}
	if err := s.store.Add(ctx, a); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"patient_id": patientID,
		"advice_id":  a.ID,
		"length":     n,
	}).Info("Clinician advice recorded")
	return a, nil
}

// List returns a patient's advice newest first.
func (s *Service) List(ctx context.Context, patientID int64, limit int) ([]*Advice, error) {
	if patientID <= 0 {
		return nil, domain.NewValidationError("patient_id", "must be a positive integer", patientID)
	}
	out, err := s.store.List(ctx, patientID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*Advice{}
	}
	return out, nil
}

// Export writes every stored advice entry as JSON.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	return s.store.ExportJSON(ctx, w)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > DefaultListLimit {
		return DefaultListLimit
	}
	return limit
}
