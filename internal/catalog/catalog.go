// Copyright 2025 Klangraum Kollektiv. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package catalog maps physical tokens to their domain meaning. The
// catalog is a TOML file of answer entries, loaded once at startup and
// read-only afterwards: levels are questions in lexicographic ID order,
// and a level's cardinality is its answer count in file order.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/klgrm/figurine/internal/session"
)

var (
	ErrEmptyCatalog = errors.New("catalog has no answers")
)

// Entry is one catalog row: a token EPC bound to an answer of a question.
type Entry struct {
	EPC      string `toml:"epc"`
	Question string `toml:"question"`
	Answer   string `toml:"answer"`
}

type fileSchema struct {
	Answers []Entry `toml:"answer"`
}

// Catalog resolves EPCs to levels and indices and carries the cardinality
// vector derived from its entries.
type Catalog struct {
	byEPC map[string]session.Answer
	card  []int
}

// Load reads and builds a catalog from a TOML file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var schema fileSchema
	if err := toml.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return New(schema.Answers)
}

// New builds a catalog from entries. Question IDs sorted lexicographically
// define the level order; each entry's index is its position among its
// question's answers, in entry order.
func New(entries []Entry) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyCatalog
	}

	perQuestion := make(map[string][]Entry)
	for i, e := range entries {
		if e.EPC == "" || e.Question == "" || e.Answer == "" {
			return nil, fmt.Errorf("catalog entry %d incomplete: %+v", i, e)
		}
		q := strings.TrimSpace(e.Question)
		perQuestion[q] = append(perQuestion[q], e)
	}

	questions := make([]string, 0, len(perQuestion))
	for q := range perQuestion {
		questions = append(questions, q)
	}
	sort.Strings(questions)

	c := &Catalog{
		byEPC: make(map[string]session.Answer, len(entries)),
		card:  make([]int, len(questions)),
	}
	for level, q := range questions {
		answers := perQuestion[q]
		c.card[level] = len(answers)
		for index, e := range answers {
			epc := strings.ToUpper(strings.TrimSpace(e.EPC))
			if _, dup := c.byEPC[epc]; dup {
				return nil, fmt.Errorf("duplicate EPC in catalog: %s", epc)
			}
			c.byEPC[epc] = session.Answer{
				EPC:      epc,
				Level:    level,
				Index:    index,
				Question: q,
				Label:    e.Answer,
			}
		}
	}
	return c, nil
}

// Lookup resolves an EPC, case-insensitively. The second return is false
// for tokens the catalog does not know.
func (sf *Catalog) Lookup(epc string) (session.Answer, bool) {
	ans, ok := sf.byEPC[strings.ToUpper(strings.TrimSpace(epc))]
	return ans, ok
}

// Cardinalities returns the answers-per-question vector in level order.
func (sf *Catalog) Cardinalities() []int {
	card := make([]int, len(sf.card))
	copy(card, sf.card)
	return card
}

// TotalIdentities returns the product of all cardinalities, the size of
// the identity space this catalog spans.
func (sf *Catalog) TotalIdentities() int {
	total := 1
	for _, c := range sf.card {
		total *= c
	}
	return total
}

// Levels returns the number of questions.
func (sf *Catalog) Levels() int { return len(sf.card) }
