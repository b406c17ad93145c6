// Package job defines the unit of work consumed by indexing workers.
package job

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes index (upsert) jobs from delete jobs.
type Kind string

const (
	// KindIndex fetches, transforms and writes records.
	KindIndex Kind = "index"
	// KindDelete removes documents by id.
	KindDelete Kind = "delete"
)

// Job is an indexing unit of work. Attempt starts at 1 and is owned by the queue.
type Job struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	SourceType string    `json:"source_type"`
	RecordIDs  []string  `json:"record_ids"`
	Tenant     string    `json:"tenant,omitempty"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// New creates a job with a fresh id. Duplicate record ids are dropped, order is kept.
func New(kind Kind, sourceType string, ids []string, tenant string) (Job, error) {
	if kind != KindIndex && kind != KindDelete {
		return Job{}, fmt.Errorf("unknown job kind %q", kind)
	}
	if sourceType == "" {
		return Job{}, fmt.Errorf("source type is required")
	}
	unique := dedupe(ids)
	if len(unique) == 0 {
		return Job{}, fmt.Errorf("at least one record id is required")
	}
	return Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		SourceType: sourceType,
		RecordIDs:  unique,
		Tenant:     tenant,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Split breaks ids into jobs of at most size ids each.
func Split(kind Kind, sourceType string, ids []string, tenant string, size int) ([]Job, error) {
	unique := dedupe(ids)
	if size <= 0 {
		size = len(unique)
	}
	jobs := make([]Job, 0, (len(unique)+size-1)/max(size, 1))
	for start := 0; start < len(unique); start += size {
		end := min(start+size, len(unique))
		j, err := New(kind, sourceType, unique[start:end], tenant)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
