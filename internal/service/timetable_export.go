package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/export"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

type fileStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type linkSigner interface {
	Generate(scope, path string) (string, time.Time, error)
	Parse(token string) (*storage.Grant, error)
}

// ExportLinkConfig tunes stored exports and their download links.
type ExportLinkConfig struct {
	APIPrefix string
	RetainFor time.Duration
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

type timetableGridReader interface {
	ClassTimetable(ctx context.Context, schoolID, classID string) (*dto.TimetableGrid, bool, error)
	TeacherTimetable(ctx context.Context, schoolID, teacherID string) (*dto.TimetableGrid, bool, error)
}

// TimetableDocument is a rendered printable timetable.
type TimetableDocument struct {
	Filename    string
	ContentType string
	Content     []byte
}

// StoredExport is an opened, previously published document. The caller closes File.
type StoredExport struct {
	File        *os.File
	Filename    string
	ContentType string
}

// TimetableExportService renders class and teacher grids as CSV, PDF or XLSX.
type TimetableExportService struct {
	grids     timetableGridReader
	classes   classLister
	teachers  teacherLister
	renderers map[string]datasetRenderer
	files     fileStorage
	signer    linkSigner
	links     ExportLinkConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewTimetableExportService wires exporters keyed by format.
func NewTimetableExportService(grids timetableGridReader, classes classLister, teachers teacherLister, logger *zap.Logger, renderers ...datasetRenderer) *TimetableExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(renderers) == 0 {
		renderers = []datasetRenderer{export.NewCSVExporter(), export.NewPDFExporter(), export.NewXLSXExporter()}
	}
	return &TimetableExportService{
		grids:     grids,
		classes:   classes,
		teachers:  teachers,
		renderers: lo.KeyBy(renderers, func(r datasetRenderer) string { return r.Extension() }),
		logger:    logger,
		now:       time.Now,
	}
}

// WithLinks enables Publish and OpenLink backed by files and signer.
func (s *TimetableExportService) WithLinks(files fileStorage, signer linkSigner, cfg ExportLinkConfig) *TimetableExportService {
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	if cfg.RetainFor <= 0 {
		cfg.RetainFor = 24 * time.Hour
	}
	s.files, s.signer, s.links = files, signer, cfg
	return s
}

// Publish renders a grid, stores it and returns a signed download link.
func (s *TimetableExportService) Publish(ctx context.Context, schoolID, ownerType, ownerID, format string) (*dto.ExportLink, error) {
	if s.files == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "export links are disabled")
	}
	doc, err := s.Export(ctx, schoolID, ownerType, ownerID, format)
	if err != nil {
		return nil, err
	}
	stamp := s.now().UTC().Format("20060102_150405")
	name := path.Join(slug(schoolID), stamp+"-"+doc.Filename)
	stored, err := s.files.Save(name, doc.Content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(schoolID, stored)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export link")
	}
	s.logger.Info("timetable export published",
		zap.String("school_id", schoolID),
		zap.String("owner", ownerType+":"+ownerID),
		zap.String("file", stored),
	)
	return &dto.ExportLink{
		URL:       fmt.Sprintf("%s/exports/%s", strings.TrimRight(s.links.APIPrefix, "/"), token),
		Filename:  doc.Filename,
		Format:    strings.ToLower(format),
		ExpiresAt: expiresAt,
	}, nil
}

// OpenLink resolves a download token to its stored document.
func (s *TimetableExportService) OpenLink(token string) (*StoredExport, error) {
	if s.files == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "export links are disabled")
	}
	grant, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export link expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export link not found")
	}
	file, err := s.files.Open(grant.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export no longer available")
	}
	filename := path.Base(grant.Path)
	if i := strings.Index(filename, "-"); i >= 0 {
		filename = filename[i+1:]
	}
	contentType := "application/octet-stream"
	if renderer, ok := s.renderers[strings.TrimPrefix(path.Ext(filename), ".")]; ok {
		contentType = renderer.ContentType()
	}
	return &StoredExport{File: file, Filename: filename, ContentType: contentType}, nil
}

// Cleanup removes stored exports older than the retention window.
func (s *TimetableExportService) Cleanup() (int, error) {
	if s.files == nil {
		return 0, nil
	}
	deleted, err := s.files.CleanupOlderThan(s.links.RetainFor)
	if err != nil {
		return 0, err
	}
	if len(deleted) > 0 {
		s.logger.Info("expired timetable exports removed", zap.Int("files", len(deleted)))
	}
	return len(deleted), nil
}

// Export renders the grid of a class or teacher in the requested format.
func (s *TimetableExportService) Export(ctx context.Context, schoolID, ownerType, ownerID, format string) (*TimetableDocument, error) {
	renderer, ok := s.renderers[strings.ToLower(format)]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	var (
		grid  *dto.TimetableGrid
		title string
		err   error
	)
	switch ownerType {
	case dto.GridOwnerClass:
		grid, _, err = s.grids.ClassTimetable(ctx, schoolID, ownerID)
		if err == nil {
			title = "Timetable for " + s.className(ctx, schoolID, ownerID)
		}
	case dto.GridOwnerTeacher:
		grid, _, err = s.grids.TeacherTimetable(ctx, schoolID, ownerID)
		if err == nil {
			title = "Timetable for " + s.teacherName(ctx, schoolID, ownerID)
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported timetable owner %q", ownerType))
	}
	if err != nil {
		return nil, err
	}

	var classNames map[string]string
	if ownerType == dto.GridOwnerTeacher {
		classNames = s.classNames(ctx, schoolID)
	}
	content, err := renderer.Render(gridDataset(grid, title, classNames))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable")
	}
	return &TimetableDocument{
		Filename:    fmt.Sprintf("timetable-%s-%s.%s", ownerType, slug(title), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Content:     content,
	}, nil
}

func (s *TimetableExportService) className(ctx context.Context, schoolID, classID string) string {
	class, err := s.classes.FindByID(ctx, schoolID, classID)
	if err != nil {
		return classID
	}
	return class.Name
}

func (s *TimetableExportService) teacherName(ctx context.Context, schoolID, teacherID string) string {
	teacher, err := s.teachers.FindByID(ctx, schoolID, teacherID)
	if err != nil {
		return teacherID
	}
	return teacher.Name
}

func (s *TimetableExportService) classNames(ctx context.Context, schoolID string) map[string]string {
	classes, err := s.classes.ListBySchool(ctx, schoolID)
	if err != nil {
		s.logger.Warn("class names unavailable for export", zap.String("school_id", schoolID), zap.Error(err))
		return nil
	}
	return lo.SliceToMap(classes, func(c models.Class) (string, string) { return c.ID, c.Name })
}

// gridDataset flattens a grid into one row per timeslot. classNames, when set, prefixes each lesson with its class.
func gridDataset(grid *dto.TimetableGrid, title string, classNames map[string]string) export.Dataset {
	data := export.Dataset{
		Title:   title,
		Headers: append([]string{"Period"}, grid.Days...),
		Rows:    make([][]string, 0, len(grid.Rows)),
	}
	for _, row := range grid.Rows {
		label := row.Period.Name
		if row.Period.StartTime != "" {
			label = fmt.Sprintf("%s (%s-%s)", row.Period.Name, row.Period.StartTime, row.Period.EndTime)
		}
		record := []string{label}
		for _, cell := range row.Cells {
			if row.Period.IsBreak {
				record = append(record, "Break")
				continue
			}
			lessons := make([]string, 0, len(cell))
			for _, lesson := range cell {
				text := lesson.DisplayName
				if lesson.TeacherDisplayName != "" {
					text += "\n" + lesson.TeacherDisplayName
				}
				if classNames != nil {
					text = lo.ValueOr(classNames, lesson.ClassID, lesson.ClassID) + ": " + text
				}
				lessons = append(lessons, text)
			}
			record = append(record, strings.Join(lessons, "\n"))
		}
		data.Rows = append(data.Rows, record)
	}
	return data
}

func slug(value string) string {
	value = strings.TrimPrefix(value, "Timetable for ")
	fields := strings.FieldsFunc(strings.ToLower(value), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	if len(fields) == 0 {
		return "export"
	}
	return strings.Join(fields, "-")
}
