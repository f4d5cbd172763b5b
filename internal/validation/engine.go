package validation

import (
	"github.com/JonMunkholm/mdo/internal/mapping"
	"github.com/JonMunkholm/mdo/internal/schema"
)

// TemplateFinder resolves template IDs. *schema.Registry satisfies it.
type TemplateFinder interface {
	Find(id string) (schema.SchemaTemplate, bool)
}

// Resolved is a file mapping whose template was found.
type Resolved struct {
	mapping.FileMapping
	Template schema.SchemaTemplate
}

// FileStage inspects one resolved file.
type FileStage func(r Resolved) []Issue

// CrossStage inspects every resolved file of a run together.
type CrossStage func(files []Resolved) []Issue

// Engine evaluates file mappings. It holds no mutable state; Evaluate is a
// pure function of its input.
type Engine struct {
	templates   TemplateFinder
	fileStages  []FileStage
	crossStages []CrossStage
}

// Option configures an Engine.
type Option func(*Engine)

// WithFileStage appends a per-file stage after the built-in ones.
func WithFileStage(s FileStage) Option {
	return func(e *Engine) { e.fileStages = append(e.fileStages, s) }
}

// WithCrossStage appends a cross-file stage after the built-in ones.
func WithCrossStage(s CrossStage) Option {
	return func(e *Engine) { e.crossStages = append(e.crossStages, s) }
}

// NewEngine returns an engine with the built-in structural stages followed
// by any stages supplied as options.
func NewEngine(templates TemplateFinder, opts ...Option) *Engine {
	e := &Engine{
		templates: templates,
		fileStages: []FileStage{
			requiredCoverage,
			mappedColumnsExist,
			columnReuse,
			unknownFields,
		},
		crossStages: []CrossStage{
			duplicateFileNames,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs every stage and returns the ordered issue list.
//
// Per file, in file order: a file whose template does not resolve yields one
// Blocker and nothing else. Otherwise the per-file stages run in order.
// Cross-file stages follow. When nothing was found, the list holds exactly
// one Info issue for the System pseudo-file.
func (e *Engine) Evaluate(files []mapping.FileMapping) []Issue {
	issues, resolved := e.evaluateFiles(files)
	for _, stage := range e.crossStages {
		issues = append(issues, stage(resolved)...)
	}
	if len(issues) == 0 {
		issues = append(issues, Clean())
	}
	return Number(issues)
}

// Structural runs the template check and per-file stages without the
// cross-file stages or the clean fallback. The run backend combines the
// result with row checks.
func (e *Engine) Structural(files []mapping.FileMapping) ([]Issue, []Resolved) {
	return e.evaluateFiles(files)
}

// CrossFile runs only the cross-file stages.
func (e *Engine) CrossFile(resolved []Resolved) []Issue {
	var issues []Issue
	for _, stage := range e.crossStages {
		issues = append(issues, stage(resolved)...)
	}
	return issues
}

func (e *Engine) evaluateFiles(files []mapping.FileMapping) ([]Issue, []Resolved) {
	var (
		issues   []Issue
		resolved []Resolved
	)
	for _, fm := range files {
		tmpl, ok := e.resolve(fm.TemplateID)
		if !ok {
			issues = append(issues, templateMissing(fm))
			continue
		}
		r := Resolved{FileMapping: fm, Template: tmpl}
		resolved = append(resolved, r)
		for _, stage := range e.fileStages {
			issues = append(issues, stage(r)...)
		}
	}
	return issues, resolved
}

func (e *Engine) resolve(id string) (schema.SchemaTemplate, bool) {
	if id == "" || e.templates == nil {
		return schema.SchemaTemplate{}, false
	}
	return e.templates.Find(id)
}

// Evaluate is a convenience for NewEngine(templates).Evaluate(files).
func Evaluate(files []mapping.FileMapping, templates TemplateFinder) []Issue {
	return NewEngine(templates).Evaluate(files)
}
