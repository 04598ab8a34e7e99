// Package files is the per-project file surface: content lives on local
// disk, one directory per project, while file metadata lives in the record
// store.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/intellisync/go-mcp/pkg/store"
)

const metadataTable = "project_files"

// Category classifies an uploaded file.
type Category string

const (
	CategoryDocument Category = "document"
	CategoryImage    Category = "image"
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategoryCode     Category = "code"
	CategoryData     Category = "data"
	CategoryOther    Category = "other"
)

// Visibility controls who may see a file.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityShared  Visibility = "shared"
)

// ErrInvalidName reports a project or file name that could escape the
// upload directory.
var ErrInvalidName = errors.New("invalid name")

// Options configure a Service.
type Options struct {
	BaseDir string // defaults to ./data/uploads
	Store   store.Store
	Logger  *logrus.Logger
}

// Service stores file content under BaseDir/<project>/<file id><ext> and
// keeps one metadata record per file.
type Service struct {
	baseDir string
	store   store.Store
	log     *logrus.Logger
}

func NewService(opts Options) *Service {
	if opts.BaseDir == "" {
		opts.BaseDir = filepath.Join(".", "data", "uploads")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Service{baseDir: opts.BaseDir, store: opts.Store, log: opts.Logger}
}

// UploadOptions carry the metadata supplied with an upload.
type UploadOptions struct {
	Category    Category
	Description string
	Visibility  Visibility
	Tags        []string
	Metadata    map[string]any
}

// Upload writes the content to disk and records its metadata. The returned
// map is the stored metadata record.
func (s *Service) Upload(ctx context.Context, projectID, filename string, content io.Reader, opts UploadOptions) (map[string]any, error) {
	if err := checkPathComponent(projectID); err != nil {
		return nil, err
	}
	if opts.Category == "" {
		opts.Category = CategoryOther
	}
	if opts.Visibility == "" {
		opts.Visibility = VisibilityPrivate
	}

	fileID := uuid.NewString()
	ext := filepath.Ext(filename)
	storedName := fileID + ext

	projectDir := filepath.Join(s.baseDir, projectID)
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return nil, err
	}

	path := filepath.Join(projectDir, storedName)
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	size, err := io.Copy(f, content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	tags := opts.Tags
	if tags == nil {
		tags = []string{}
	}

	record := store.Record{
		"id":                fileID,
		"project_id":        projectID,
		"original_filename": sanitizeName(filename),
		"stored_filename":   storedName,
		"size":              size,
		"category":          string(opts.Category),
		"description":       opts.Description,
		"visibility":        string(opts.Visibility),
		"tags":              tags,
		"metadata":          opts.Metadata,
		"uploaded_at":       time.Now().UTC().Format(time.RFC3339),
		"download_url":      fmt.Sprintf("/files/%s/%s", projectID, fileID),
	}
	stored, err := s.store.Insert(ctx, metadataTable, record)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"project_id": projectID,
		"file_id":    fileID,
		"size":       size,
	}).Info("uploaded file")
	return stored, nil
}

// List returns the metadata records for a project, optionally narrowed by
// category and visibility.
func (s *Service) List(ctx context.Context, projectID string, category Category, visibility Visibility) (map[string]any, error) {
	filter := store.Record{"project_id": projectID}
	if category != "" {
		filter["category"] = string(category)
	}
	if visibility != "" {
		filter["visibility"] = string(visibility)
	}

	records, err := s.store.Select(ctx, metadataTable, filter)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []store.Record{}
	}
	return map[string]any{"files": records, "total": len(records)}, nil
}

// Open returns the on-disk path and original filename for a download.
func (s *Service) Open(ctx context.Context, projectID, fileID string) (path, filename string, err error) {
	rec, err := s.lookup(ctx, projectID, fileID)
	if err != nil {
		return "", "", err
	}
	storedName, _ := rec["stored_filename"].(string)
	original, _ := rec["original_filename"].(string)
	if original == "" {
		original = storedName
	}
	return filepath.Join(s.baseDir, projectID, storedName), original, nil
}

// Delete removes the content and its metadata record.
func (s *Service) Delete(ctx context.Context, projectID, fileID string) error {
	rec, err := s.lookup(ctx, projectID, fileID)
	if err != nil {
		return err
	}
	storedName, _ := rec["stored_filename"].(string)
	if err := os.Remove(filepath.Join(s.baseDir, projectID, storedName)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := s.store.Delete(ctx, metadataTable, fileID); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"project_id": projectID,
		"file_id":    fileID,
	}).Info("deleted file")
	return nil
}

// Rename changes the stored filename to <file id>_<new name><ext> and
// updates the metadata record.
func (s *Service) Rename(ctx context.Context, projectID, fileID, newName string) (map[string]any, error) {
	if err := checkPathComponent(newName); err != nil {
		return nil, err
	}
	rec, err := s.lookup(ctx, projectID, fileID)
	if err != nil {
		return nil, err
	}

	oldName, _ := rec["stored_filename"].(string)
	ext := filepath.Ext(oldName)
	newStored := fmt.Sprintf("%s_%s%s", fileID, newName, ext)

	projectDir := filepath.Join(s.baseDir, projectID)
	if err := os.Rename(filepath.Join(projectDir, oldName), filepath.Join(projectDir, newStored)); err != nil {
		return nil, err
	}

	if _, err := s.store.Update(ctx, metadataTable, fileID, store.Record{
		"stored_filename":   newStored,
		"original_filename": newName + ext,
	}); err != nil {
		return nil, err
	}

	return map[string]any{
		"file_id":           fileID,
		"original_filename": oldName,
		"new_filename":      newStored,
		"download_url":      fmt.Sprintf("/files/%s/%s", projectID, fileID),
	}, nil
}

// Share updates a file's visibility and returns a share descriptor.
func (s *Service) Share(ctx context.Context, projectID, fileID string, visibility Visibility, shareWith []string, expiration *time.Time) (map[string]any, error) {
	if _, err := s.lookup(ctx, projectID, fileID); err != nil {
		return nil, err
	}

	changes := store.Record{"visibility": string(visibility)}
	if shareWith != nil {
		changes["shared_with"] = shareWith
	}
	if expiration != nil {
		changes["share_expiration"] = expiration.UTC().Format(time.RFC3339)
	}
	if _, err := s.store.Update(ctx, metadataTable, fileID, changes); err != nil {
		return nil, err
	}

	resp := map[string]any{
		"file_id":     fileID,
		"project_id":  projectID,
		"visibility":  string(visibility),
		"shared_with": shareWith,
		"share_url":   fmt.Sprintf("/files/shared/%s", fileID),
		"shared_at":   time.Now().UTC().Format(time.RFC3339),
	}
	if expiration != nil {
		resp["expiration"] = expiration.UTC().Format(time.RFC3339)
	}
	return resp, nil
}

// Search matches the query as a case-insensitive substring of the original
// filename, description or any tag.
func (s *Service) Search(ctx context.Context, query, projectID string, category Category) (map[string]any, error) {
	filter := store.Record{}
	if projectID != "" {
		filter["project_id"] = projectID
	}
	if category != "" {
		filter["category"] = string(category)
	}

	records, err := s.store.Select(ctx, metadataTable, filter)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	results := []map[string]any{}
	for _, rec := range records {
		matches := matchFields(rec, needle)
		if len(matches) == 0 {
			continue
		}
		results = append(results, map[string]any{
			"file_id":      rec["id"],
			"filename":     rec["original_filename"],
			"project_id":   rec["project_id"],
			"category":     rec["category"],
			"description":  rec["description"],
			"matches":      matches,
			"download_url": rec["download_url"],
		})
	}

	return map[string]any{
		"query":   query,
		"results": results,
		"total":   len(results),
	}, nil
}

// CreateFolder makes a named sub-directory inside the project.
func (s *Service) CreateFolder(ctx context.Context, projectID, folderName string) (map[string]any, error) {
	if err := checkPathComponent(projectID); err != nil {
		return nil, err
	}
	if err := checkPathComponent(folderName); err != nil {
		return nil, err
	}

	folderID := uuid.NewString()
	path := filepath.Join(s.baseDir, projectID, fmt.Sprintf("%s_%s", folderID, folderName))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}

	return map[string]any{
		"folder_id":   folderID,
		"project_id":  projectID,
		"folder_name": folderName,
		"created_at":  time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (s *Service) lookup(ctx context.Context, projectID, fileID string) (store.Record, error) {
	if err := checkPathComponent(projectID); err != nil {
		return nil, err
	}
	if err := checkPathComponent(fileID); err != nil {
		return nil, err
	}
	rec, err := s.store.Get(ctx, metadataTable, fileID)
	if err != nil {
		return nil, err
	}
	if rec["project_id"] != projectID {
		return nil, &store.NotFoundError{Table: metadataTable, ID: fileID}
	}
	return rec, nil
}

func matchFields(rec store.Record, needle string) []string {
	var matches []string
	if name, _ := rec["original_filename"].(string); strings.Contains(strings.ToLower(name), needle) {
		matches = append(matches, "filename")
	}
	if desc, _ := rec["description"].(string); desc != "" && strings.Contains(strings.ToLower(desc), needle) {
		matches = append(matches, "description")
	}
	for _, tag := range toStrings(rec["tags"]) {
		if strings.Contains(strings.ToLower(tag), needle) {
			matches = append(matches, "tags")
			break
		}
	}
	return matches
}

func toStrings(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// checkPathComponent rejects names that would resolve outside the project
// directory.
func checkPathComponent(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, `/\`) {
		return ErrInvalidName
	}
	return nil
}

func sanitizeName(n string) string {
	out := make([]rune, 0, len(n))
	for _, r := range n {
		if r == '/' || r == '\\' {
			out = append(out, '_')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
