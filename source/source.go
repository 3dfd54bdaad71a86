// Package source acquires an exercise repository and loads its course and task documents.
package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/docutag/crawler/models"
)

// ErrInvalidURL is returned when no checkout folder name can be derived from a git URL
var ErrInvalidURL = errors.New("invalid repository URL")

// Config contains repository acquisition configuration
type Config struct {
	WorkingDirectory string // Directory holding the checkouts
	GitPath          string // git binary
}

// DefaultConfig returns default acquisition configuration
func DefaultConfig() Config {
	return Config{
		WorkingDirectory: "./repositories",
		GitPath:          "git",
	}
}

// Repository clones git repositories into the working directory
type Repository struct {
	config Config
}

// New creates a new Repository instance
func New(config Config) *Repository {
	if config.GitPath == "" {
		config.GitPath = "git"
	}
	return &Repository{config: config}
}

// FolderName returns the checkout folder name for a git URL: its last path segment without ".git"
func FolderName(gitURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(gitURL), "/")
	name := trimmed[strings.LastIndex(trimmed, "/")+1:]
	return strings.TrimSuffix(name, ".git")
}

// Fetch makes sure the repository is checked out and returns the checkout path.
// An existing checkout is reused as is.
func (r *Repository) Fetch(ctx context.Context, gitURL string) (string, error) {
	name := FolderName(gitURL)
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, gitURL)
	}

	workDir, err := filepath.Abs(r.config.WorkingDirectory)
	if err != nil {
		return "", fmt.Errorf("failed to resolve working directory: %w", err)
	}
	folder := filepath.Join(workDir, name)

	if info, err := os.Stat(folder); err == nil && info.IsDir() {
		slog.Info("reusing existing checkout", "url", gitURL, "path", folder)
		return folder, nil
	}

	if err := os.MkdirAll(workDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create working directory: %w", err)
	}

	slog.Info("cloning repository", "url", gitURL, "path", folder)
	cmd := exec.CommandContext(ctx, r.config.GitPath, "clone", "--", gitURL, name)
	cmd.Dir = workDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("failed to clone %s: %w: %s", gitURL, err, strings.TrimSpace(string(out)))
	}

	return folder, nil
}

// Files lists the documents found in a checkout
type Files struct {
	Courses []string
	Tasks   []string
}

// Discover walks root and collects *course.yaml and *task.yaml files.
// Other YAML files, such as feedback settings, are ignored.
func Discover(root string) (Files, error) {
	var files Files
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		switch name := d.Name(); {
		case strings.HasSuffix(name, "course.yaml"):
			files.Courses = append(files.Courses, path)
		case strings.HasSuffix(name, "task.yaml"):
			files.Tasks = append(files.Tasks, path)
		}
		return nil
	})
	if err != nil {
		return Files{}, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Strings(files.Courses)
	sort.Strings(files.Tasks)
	return files, nil
}

// LoadCourse reads and decodes a course document
func LoadCourse(path string) (models.CourseDocument, error) {
	var doc models.CourseDocument
	if err := decodeFile(path, &doc); err != nil {
		return models.CourseDocument{}, err
	}
	doc.Path = path
	return doc, nil
}

// LoadTask reads and decodes a task document
func LoadTask(path string) (models.TaskDocument, error) {
	var doc models.TaskDocument
	if err := decodeFile(path, &doc); err != nil {
		return models.TaskDocument{}, err
	}
	doc.Path = path
	return doc, nil
}

// LoadAll decodes every discovered document with at most workers files in flight.
// The first failure cancels the remaining reads and is returned; results keep the
// order of files.
func LoadAll(ctx context.Context, files Files, workers int) ([]models.CourseDocument, []models.TaskDocument, error) {
	if workers < 1 {
		workers = 1
	}

	courses := make([]models.CourseDocument, len(files.Courses))
	tasks := make([]models.TaskDocument, len(files.Tasks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, path := range files.Courses {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, err := LoadCourse(path)
			if err != nil {
				return err
			}
			courses[i] = doc
			return nil
		})
	}
	for i, path := range files.Tasks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, err := LoadTask(path)
			if err != nil {
				return err
			}
			tasks[i] = doc
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return courses, tasks, nil
}

func decodeFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
