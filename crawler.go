package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/docutag/crawler/convert"
	"github.com/docutag/crawler/metrics"
	"github.com/docutag/crawler/models"
	"github.com/docutag/crawler/source"
)

// PlatformINGInious is the platform name attached to every crawled exercise
const PlatformINGInious = "INGINIOUS"

var tracer = otel.Tracer("github.com/docutag/crawler")

// Config contains crawler configuration
type Config struct {
	WorkingDirectory  string        // Directory holding repository checkouts
	GitPath           string        // git binary
	PandocPath        string        // pandoc binary
	ConversionTimeout time.Duration // Timeout for converting one description
	Workers           int           // Documents loaded and exercises built in parallel
	Platform          string        // Text of the platform tag
}

// DefaultConfig returns default crawler configuration
func DefaultConfig() Config {
	return Config{
		WorkingDirectory:  "./repositories",
		GitPath:           "git",
		PandocPath:        "pandoc",
		ConversionTimeout: 30 * time.Second,
		Workers:           5,
		Platform:          PlatformINGInious,
	}
}

// Options describes one crawl
type Options struct {
	URL          string // git URL of the repository
	License      string // optional SPDX identifier
	InginiousURL string // optional base URL of the course on the platform
}

// Fetcher makes a repository available locally and returns its checkout path
type Fetcher interface {
	Fetch(ctx context.Context, gitURL string) (string, error)
}

// Converter renders a task context as HTML
type Converter interface {
	Convert(ctx context.Context, rst string) (string, error)
}

// Crawler builds exercise catalogs from repositories
type Crawler struct {
	config    Config
	fetcher   Fetcher
	converter Converter
	metrics   *metrics.Metrics
}

// New creates a Crawler cloning with git and converting with pandoc.
// m may be nil.
func New(config Config, m *metrics.Metrics) *Crawler {
	repo := source.New(source.Config{
		WorkingDirectory: config.WorkingDirectory,
		GitPath:          config.GitPath,
	})
	return NewWithCollaborators(config, repo, convert.NewPandoc(config.PandocPath, config.ConversionTimeout), m)
}

// NewWithCollaborators creates a Crawler with the given fetcher and converter
func NewWithCollaborators(config Config, fetcher Fetcher, converter Converter, m *metrics.Metrics) *Crawler {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.Platform == "" {
		config.Platform = PlatformINGInious
	}
	return &Crawler{
		config:    config,
		fetcher:   fetcher,
		converter: converter,
		metrics:   m,
	}
}

// Crawl fetches a repository and builds its catalog. Any failure while acquiring
// or reading documents aborts the run; no partial catalog is returned.
func (c *Crawler) Crawl(ctx context.Context, opts Options) (*models.Catalog, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "crawler.Crawl", trace.WithAttributes(
		attribute.String("crawl.url", opts.URL),
		attribute.Bool("crawl.has_base_url", opts.InginiousURL != ""),
	))
	defer span.End()

	catalog, err := c.crawl(ctx, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.ObserveCrawl("error", time.Since(start))
		return nil, err
	}

	span.SetAttributes(attribute.Int("crawl.exercises", len(catalog.Exercises)))
	c.metrics.ObserveCrawl("success", time.Since(start))
	slog.Info("crawl completed",
		"url", opts.URL,
		"exercises", len(catalog.Exercises),
		"duration", time.Since(start),
	)
	return catalog, nil
}

func (c *Crawler) crawl(ctx context.Context, opts Options) (*models.Catalog, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("repository url is required")
	}

	root, err := c.fetcher.Fetch(ctx, opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch repository: %w", err)
	}

	files, err := source.Discover(root)
	if err != nil {
		return nil, fmt.Errorf("failed to discover documents: %w", err)
	}
	slog.Info("documents discovered", "url", opts.URL, "courses", len(files.Courses), "tasks", len(files.Tasks))

	courseDocs, taskDocs, err := source.LoadAll(ctx, files, c.config.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	courses := BuildCourseCatalogs(courseDocs)

	exercises, err := c.buildExercises(ctx, root, opts, courses, taskDocs)
	if err != nil {
		return nil, err
	}

	return &models.Catalog{
		Exercises:      exercises,
		OwnCategories:  models.OwnCategories,
		ExtractionDate: time.Now(),
		URL:            opts.URL,
	}, nil
}

// buildExercises builds one exercise per task with a pool of workers.
// Results keep the order of tasks.
func (c *Crawler) buildExercises(ctx context.Context, root string, opts Options, courses map[string]models.CourseRecord, tasks []models.TaskDocument) ([]models.Exercise, error) {
	exercises := make([]models.Exercise, len(tasks))
	if len(tasks) == 0 {
		return exercises, nil
	}

	numWorkers := min(c.config.Workers, len(tasks))

	type exerciseJob struct {
		index int
		task  models.TaskDocument
	}

	jobs := make(chan exerciseJob, len(tasks))
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				exercises[job.index] = c.buildExercise(ctx, root, opts, courses, job.task)
			}
		}()
	}

	for i, task := range tasks {
		jobs <- exerciseJob{index: i, task: task}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("crawl cancelled: %w", err)
	}
	return exercises, nil
}

func (c *Crawler) buildExercise(ctx context.Context, root string, opts Options, courses map[string]models.CourseRecord, task models.TaskDocument) models.Exercise {
	ctx, span := tracer.Start(ctx, "crawler.buildExercise", trace.WithAttributes(
		attribute.String("task.path", relativeSlash(root, task.Path)),
	))
	defer span.End()

	course, _ := ResolveCourse(task.Path, courses)
	if missing := UnresolvedCategories(task, course); len(missing) > 0 {
		slog.Warn("unresolved task categories", "task", task.Path, "course", course.Path, "ids", missing)
		c.metrics.UnresolvedCategories(len(missing))
	}

	description, err := c.converter.Convert(ctx, task.Context)
	if err != nil {
		slog.Warn("description conversion failed", "task", task.Path, "error", err)
		span.RecordError(err)
		c.metrics.ConversionFailed()
		description = convert.FailureMessage
	}

	ex := BuildExercise(ExerciseInput{
		Root: root,
		Source: Source{
			Platform: c.config.Platform,
			URL:      opts.URL,
			License:  opts.License,
		},
		BaseURL:     opts.InginiousURL,
		Description: description,
		Task:        task,
	}, courses)

	c.metrics.ObserveExercise(ex)
	if opts.InginiousURL != "" {
		c.metrics.RelativeLinks(countRelative(convert.Links(ex.Description)))
	}
	return ex
}

// ExerciseInput gathers what is needed to build one exercise
type ExerciseInput struct {
	Root        string // repository checkout the task was found in
	Source      Source
	BaseURL     string // course base URL on the platform, may be empty
	Description string // task context already converted to HTML
	Task        models.TaskDocument
}

// BuildExercise runs the engine for one task: resolve the course, merge auto-generated
// and declared tags, attach platform URL and archive properties, rewrite links and
// normalize the title.
func BuildExercise(in ExerciseInput, courses map[string]models.CourseRecord) models.Exercise {
	course, found := ResolveCourse(in.Task.Path, courses)

	tags := AutoTags(in.Source, course, in.Task)
	tags = append(tags, ReconcileTags(in.Task, course)...)

	ex := models.Exercise{
		Title:       in.Task.Name,
		Description: RewriteLinks(in.Description, in.BaseURL),
		Tags:        tags,
	}

	folder := relativeSlash(in.Root, filepath.Dir(in.Task.Path))
	if in.BaseURL != "" {
		ex.URL = strings.TrimRight(in.BaseURL, "/") + "/" + folder
	}
	if found {
		ex.ArchiveProperties = &models.ArchiveProperties{
			Folders: []string{folder},
			Files:   []string{relativeSlash(in.Root, course.Path)},
		}
	}

	return NormalizeTitle(ex)
}

// relativeSlash returns target relative to root with forward slashes.
// The root itself maps to the empty string.
func relativeSlash(root, target string) string {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		rel = target
	}
	if rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

func countRelative(links []string) int {
	n := 0
	for _, l := range links {
		if !IsAbsoluteURL(l) && !isFragment(l) {
			n++
		}
	}
	return n
}

func isFragment(link string) bool {
	return len(link) > 0 && link[0] == '#'
}
