package main

import (
	"database/sql"
	"fmt"
	"log"
	"sort"
)

// guidanceChunks is the fixed corpus of HMRC Corporation Tax R&D relief
// criteria, condensed from the official guidance. Seeded once; embeddings
// are computed at seed time and persisted so later runs skip the backend.
var guidanceChunks = []CriterionChunk{
	{
		ID:       "advance_1",
		Category: "advance",
		Section:  "Advance in science or technology",
		Text: "Advance in science or technology: An advance in overall knowledge or capability " +
			"in a field of science or technology (not just your company's own state of knowledge). " +
			"This includes an appreciable improvement to existing knowledge or capability.",
	},
	{
		ID:       "advance_2",
		Category: "advance",
		Section:  "Advance in science or technology",
		Text: "The advance must be in the field of science or technology, not just commercial use " +
			"of existing technologies. Routine analysis, copying, or adaptation of existing " +
			"knowledge does not qualify.",
	},
	{
		ID:       "uncertainty_1",
		Category: "uncertainty",
		Section:  "Scientific or technological uncertainty",
		Text: "Scientific or technological uncertainty: The knowledge you're seeking is not " +
			"readily available or deducible by a competent professional working in the field. " +
			"The uncertainty must exist at the start of the project.",
	},
	{
		ID:       "uncertainty_2",
		Category: "uncertainty",
		Section:  "Scientific or technological uncertainty",
		Text: "Examples of technological uncertainty include: whether something is scientifically " +
			"possible or technologically feasible, how to achieve a scientific or technological " +
			"advance, which of various technological approaches will work or work better, " +
			"whether a particular design will be efficient or effective.",
	},
	{
		ID:       "systematic_1",
		Category: "systematic",
		Section:  "Systematic investigation",
		Text: "A systematic investigation or search: Work must be directly related to resolving " +
			"the scientific or technological uncertainty. It must follow a systematic approach, " +
			"not just trial and error. This includes hypothesis testing, experimentation, " +
			"analysis, and iteration.",
	},
	{
		ID:       "systematic_2",
		Category: "systematic",
		Section:  "Systematic investigation",
		Text: "Qualifying activities include: designing, building, and testing prototypes; " +
			"developing new or improved materials, products, devices, processes or services; " +
			"research to resolve technological uncertainties; feasibility studies to inform " +
			"R&D decisions.",
	},
	{
		ID:       "evidence_1",
		Category: "evidence",
		Section:  "Evidence and documentation",
		Text: "Evidence requirements: You should maintain records of your R&D activities including " +
			"project plans, test results, design documents, technical reports, and details of " +
			"the uncertainties you faced and how you resolved them. Failed experiments are " +
			"important evidence of genuine R&D.",
	},
	{
		ID:       "excluded_1",
		Category: "exclusion",
		Section:  "Excluded activities",
		Text: "Activities that do not qualify: Routine or periodic alterations to existing products, " +
			"processes, materials, devices, or services, even if improvements result. Work in " +
			"the arts, humanities or social sciences (unless it supports an R&D project in science " +
			"or technology). Cosmetic or aesthetic modifications.",
	},
	{
		ID:       "software_1",
		Category: "software",
		Section:  "Software development R&D",
		Text: "Software development qualifies as R&D when it seeks an advance in the field of " +
			"software engineering, not just implementing known techniques. Qualifying software " +
			"R&D includes: developing new algorithms, creating novel architectures, solving " +
			"complex performance or scalability challenges, advancing AI/ML capabilities.",
	},
	{
		ID:       "software_2",
		Category: "software",
		Section:  "Software development exclusions",
		Text: "Software activities that typically do not qualify: Using established development " +
			"methods, implementing standard business logic, routine debugging, website design " +
			"using standard tools, integrating existing software packages without significant " +
			"customization requiring new technological solutions.",
	},
}

// CriteriaStore holds the guidance corpus and answers nearest-neighbor
// queries over it. The corpus is small enough that a linear scan over all
// chunks is the whole search.
type CriteriaStore struct {
	db    *sql.DB
	embed embedFunc

	chunks []CriterionChunk // loaded lazily after seeding
}

func NewCriteriaStore(db *sql.DB, embed embedFunc) *CriteriaStore {
	return &CriteriaStore{db: db, embed: embed}
}

// Seed embeds and persists the guidance corpus. Idempotent: if the store
// already holds rows, seeding is a no-op.
func (s *CriteriaStore) Seed() error {
	count, err := CountCriteria(s.db)
	if err != nil {
		return fmt.Errorf("counting criteria: %w", err)
	}
	if count > 0 {
		log.Printf("criteria store already seeded count=%d", count)
		return nil
	}

	chunks := make([]CriterionChunk, 0, len(guidanceChunks))
	for _, seed := range guidanceChunks {
		vec, err := s.embed(seed.Text)
		if err != nil {
			return fmt.Errorf("embedding criterion %s: %w", seed.ID, err)
		}
		chunk := seed
		chunk.Embedding = vec
		chunks = append(chunks, chunk)
	}

	inserted, err := InsertCriteria(s.db, chunks)
	if err != nil {
		return fmt.Errorf("storing criteria: %w", err)
	}
	s.chunks = nil
	log.Printf("criteria store seeded chunks=%d", inserted)
	return nil
}

// Retrieve returns the k chunks closest to the query text, ascending by
// cosine distance. k=0 returns nothing without touching the backend.
func (s *CriteriaStore) Retrieve(query string, k int) ([]RetrievedCriterion, error) {
	if k <= 0 {
		return nil, nil
	}

	queryVec, err := s.embed(query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	chunks, err := s.loadChunks()
	if err != nil {
		return nil, err
	}

	results := make([]RetrievedCriterion, 0, len(chunks))
	for _, chunk := range chunks {
		dist, err := cosineDistance(queryVec, chunk.Embedding)
		if err != nil {
			return nil, fmt.Errorf("criterion %s: %w", chunk.ID, err)
		}
		results = append(results, RetrievedCriterion{CriterionChunk: chunk, Distance: dist})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// ListByCategory returns every chunk text in a category, unranked.
func (s *CriteriaStore) ListByCategory(category string) ([]string, error) {
	return GetCriteriaByCategory(s.db, category)
}

func (s *CriteriaStore) loadChunks() ([]CriterionChunk, error) {
	if s.chunks != nil {
		return s.chunks, nil
	}
	chunks, err := LoadCriteria(s.db)
	if err != nil {
		return nil, fmt.Errorf("loading criteria: %w", err)
	}
	s.chunks = chunks
	return chunks, nil
}
