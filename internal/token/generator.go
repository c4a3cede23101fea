// Package token issues the human-facing queue tokens ("CS-014"). Sequence
// numbers are scoped to (category code, calendar day) and reset at local
// midnight; uniqueness under concurrent check-ins is enforced by the database
// constraint, with the caller retrying allocation on conflict.
package token

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

const (
	defaultPadding   = 3
	defaultMaxPerDay = 9999
)

// Generator proposes the next token for a category.
type Generator struct {
	padding   int
	maxPerDay int
}

// NewGenerator builds a generator. maxPerDay <= 0 falls back to the default.
func NewGenerator(maxPerDay int) *Generator {
	if maxPerDay <= 0 {
		maxPerDay = defaultMaxPerDay
	}
	return &Generator{padding: defaultPadding, maxPerDay: maxPerDay}
}

// Next proposes the next token number for the category on the given day. The
// proposal is the current maximum plus one; a concurrent writer claiming the
// same number surfaces as a unique violation on insert, which the caller
// resolves by re-invoking Next.
func (g *Generator) Next(ctx context.Context, tickets repository.TicketRepository, category *domain.Category, day time.Time) (string, error) {
	code := CategoryCode(category.Name)
	max, err := tickets.MaxTokenSequence(ctx, code, DayOf(day))
	if err != nil {
		return "", err
	}
	seq := max + 1
	if seq > g.maxPerDay {
		return "", apperrors.NewTokenExhausted(category.ID)
	}
	return g.Format(code, seq), nil
}

// Format renders a token as code-NNN with zero padding.
func (g *Generator) Format(code string, seq int) string {
	return fmt.Sprintf("%s-%0*d", code, g.padding, seq)
}

// CategoryCode derives the short token prefix from a category name: the first
// letter of each word, letters only, uppercased. Falls back to "Q" when the
// name yields nothing usable.
func CategoryCode(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		for _, r := range word {
			if unicode.IsLetter(r) {
				b.WriteRune(unicode.ToUpper(r))
				break
			}
		}
	}
	if b.Len() == 0 {
		return "Q"
	}
	return b.String()
}

// DayOf truncates a timestamp to its local calendar day.
func DayOf(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
