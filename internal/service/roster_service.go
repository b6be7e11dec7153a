package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollment-api/internal/models"
	"github.com/noah-isme/enrollment-api/pkg/export"
	appErrors "github.com/noah-isme/enrollment-api/pkg/errors"
)

// Roster export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type classReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error)
}

type rosterReader interface {
	ListByClass(ctx context.Context, classID string) ([]models.Enrollment, error)
}

type waitlistReader interface {
	ListByClass(ctx context.Context, classID string) ([]models.WaitlistEntry, error)
}

type droplistReader interface {
	ListByClass(ctx context.Context, classID string) ([]models.DropEntry, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, opts export.PDFOptions) ([]byte, error)
}

// RosterExport is a rendered roster file.
type RosterExport struct {
	Filename    string
	ContentType string
	Data        []byte
}

// RosterService serves the instructor views of a class. Every call checks
// that the caller teaches the class.
type RosterService struct {
	classes     classReader
	enrollments rosterReader
	waitlists   waitlistReader
	droplists   droplistReader
	csv         csvRenderer
	pdf         pdfRenderer
	logger      *zap.Logger
	now         func() time.Time
}

// NewRosterService constructs RosterService.
func NewRosterService(classes classReader, enrollments rosterReader, waitlists waitlistReader, droplists droplistReader, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *RosterService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{
		classes:     classes,
		enrollments: enrollments,
		waitlists:   waitlists,
		droplists:   droplists,
		csv:         csv,
		pdf:         pdf,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Roster lists the students enrolled in the class.
func (s *RosterService) Roster(ctx context.Context, instructorID, classID string) ([]models.Enrollment, error) {
	if _, err := s.ownedClass(ctx, instructorID, classID); err != nil {
		return nil, err
	}
	enrollments, err := s.enrollments.ListByClass(ctx, classID)
	if err != nil {
		return nil, storeErr(err, "failed to list roster")
	}
	return enrollments, nil
}

// Waitlist lists the class waitlist in promotion order.
func (s *RosterService) Waitlist(ctx context.Context, instructorID, classID string) ([]models.WaitlistEntry, error) {
	if _, err := s.ownedClass(ctx, instructorID, classID); err != nil {
		return nil, err
	}
	entries, err := s.waitlists.ListByClass(ctx, classID)
	if err != nil {
		return nil, storeErr(err, "failed to list waitlist")
	}
	return entries, nil
}

// Droplist lists the recorded drops of the class.
func (s *RosterService) Droplist(ctx context.Context, instructorID, classID string) ([]models.DropEntry, error) {
	if _, err := s.ownedClass(ctx, instructorID, classID); err != nil {
		return nil, err
	}
	entries, err := s.droplists.ListByClass(ctx, classID)
	if err != nil {
		return nil, storeErr(err, "failed to list droplist")
	}
	return entries, nil
}

// ExportRoster renders the class roster as CSV or PDF.
func (s *RosterService) ExportRoster(ctx context.Context, instructorID, classID, format string) (*RosterExport, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	class, err := s.ownedClass(ctx, instructorID, classID)
	if err != nil {
		return nil, err
	}
	enrollments, err := s.enrollments.ListByClass(ctx, classID)
	if err != nil {
		return nil, storeErr(err, "failed to list roster")
	}
	lines := make([]export.RosterLine, 0, len(enrollments))
	for _, enrollment := range enrollments {
		lines = append(lines, export.RosterLine{StudentID: enrollment.StudentID, EnrollmentDate: enrollment.EnrollmentDate})
	}
	data := export.RosterDataset(lines)
	base := fmt.Sprintf("%s-%d-%02d-%d%s-roster", class.DepartmentCode, class.CourseNo, class.SectionNo, class.AcademicYear, class.Semester)

	var out *RosterExport
	switch format {
	case ExportFormatPDF:
		body, err := s.pdf.Render(data, export.PDFOptions{
			Title:     fmt.Sprintf("%s %d-%02d Roster", class.DepartmentCode, class.CourseNo, class.SectionNo),
			Subtitle:  fmt.Sprintf("%s %d, room %s, %d enrolled", class.Semester, class.AcademicYear, class.RoomNumber, len(lines)),
			CreatedAt: s.now(),
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
		}
		out = &RosterExport{Filename: base + ".pdf", ContentType: "application/pdf", Data: body}
	default:
		body, err := s.csv.Render(data)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
		}
		out = &RosterExport{Filename: base + ".csv", ContentType: "text/csv", Data: body}
	}
	s.logger.Debug("roster exported", zap.String("class_id", classID), zap.String("format", format), zap.Int("rows", len(lines)))
	return out, nil
}

// Authorize confirms the instructor teaches the class.
func (s *RosterService) Authorize(ctx context.Context, instructorID, classID string) error {
	_, err := s.ownedClass(ctx, instructorID, classID)
	return err
}

func (s *RosterService) ownedClass(ctx context.Context, instructorID, classID string) (*models.Class, error) {
	if instructorID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "caller id is required")
	}
	class, err := s.classes.FindByID(ctx, nil, classID)
	if err != nil {
		return nil, lookupErr(err, "class not found", "failed to load class")
	}
	if class.InstructorID != instructorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "class is taught by another instructor")
	}
	return class, nil
}
