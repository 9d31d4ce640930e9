package export

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Service renders project views into downloadable artifacts. It holds no
// state; the caller resolves visibility and assembles the views first.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// ExportProject generates an export of one project in the requested format.
func (s *Service) ExportProject(project ProjectView, owner string, format Format) (*Result, error) {
	switch format {
	case FormatHTML:
		html, err := RenderProjectHTML(TemplateData{Project: project, Owner: owner, ExportedAt: time.Now()})
		if err != nil {
			return nil, fmt.Errorf("render project template: %w", err)
		}
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(project.Name) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		html, err := RenderProjectHTML(TemplateData{Project: project, Owner: owner, ExportedAt: time.Now()})
		if err != nil {
			return nil, fmt.Errorf("render project template: %w", err)
		}
		return renderPDF(html, project.Name)
	case FormatYAML:
		data, err := yaml.Marshal(project)
		if err != nil {
			return nil, fmt.Errorf("marshal project: %w", err)
		}
		return &Result{
			Data:     data,
			Filename: sanitizeFilename(project.Name) + ".yaml",
			MimeType: "application/yaml",
		}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// MarshalSnapshot serializes a full user snapshot to YAML. The archive
// commits this form verbatim.
func (s *Service) MarshalSnapshot(snapshot Snapshot) ([]byte, error) {
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// ParseSnapshot reads a YAML snapshot, as produced by MarshalSnapshot or
// written by hand for bulk import.
func (s *Service) ParseSnapshot(data []byte) (Snapshot, error) {
	var snapshot Snapshot
	if err := yaml.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot: %w", err)
	}
	return snapshot, nil
}
