package markdown

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jcdickinson/kbpress/internal/schema"
)

// Pass is one rewrite over a document tree. Visit is called once for every
// node in pre-order.
type Pass interface {
	Name() string
	Visit(ctx context.Context, t *Tree, id NodeID) error
}

// Rewriter splits off the schema block of a document, runs its passes over
// the remaining body in order and renders the result.
type Rewriter struct {
	Passes []Pass

	// Schema, when set, receives the sections of every rewritten document.
	Schema *schema.Table

	// Strict turns pass failures into document failures. Otherwise the
	// failing node is left as it was and the walk continues.
	Strict bool

	Log *slog.Logger
}

// Result is the outcome of rewriting one document.
type Result struct {
	Body     string
	Schema   schema.Sections
	Warnings int
}

// PassError reports the failures of one pass in one document.
type PassError struct {
	Pass string
	Errs []error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("%s pass: %d node(s) failed, first: %v", e.Pass, len(e.Errs), e.Errs[0])
}

func (e *PassError) Unwrap() []error { return e.Errs }

// Rewrite transforms src, the body of the document written to docPath.
func (r *Rewriter) Rewrite(ctx context.Context, docPath, src string) (Result, error) {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("path", docPath)

	body, block, _ := SplitSchema(src)
	res := Result{Schema: ParseSchema(block)}

	t := Parse(body)
	for _, p := range r.Passes {
		var errs []error
		err := t.Walk(t.Root(), func(id NodeID) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := p.Visit(ctx, t, id); err != nil {
				log.Warn("rewrite failed for node", "pass", p.Name(), "node", t.Kind(id).String(), "error", err)
				errs = append(errs, err)
			}
			return nil
		})
		if err != nil {
			return res, err
		}
		if len(errs) == 0 {
			continue
		}
		res.Warnings += len(errs)
		if r.Strict {
			return res, &PassError{Pass: p.Name(), Errs: errs}
		}
	}

	res.Body = Render(t)
	if r.Schema != nil {
		r.Schema.Put(docPath, res.Schema)
	}
	return res, nil
}
