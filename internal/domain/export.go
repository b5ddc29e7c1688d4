package domain

import "time"

type ExportArtifact struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Format    string    `json:"format"`
}

// IdentityOutcome - результат пакетной операции для одной identity
type IdentityOutcome struct {
	Identity string `json:"identity"`
	Count    int64  `json:"count"`
	Error    string `json:"error,omitempty"`
}

type BatchResult struct {
	Succeeded []IdentityOutcome `json:"succeeded"`
	Failed    []IdentityOutcome `json:"failed"`
	Total     int64             `json:"total"`
}

func (r *BatchResult) AddSuccess(identity string, count int64) {
	r.Succeeded = append(r.Succeeded, IdentityOutcome{Identity: identity, Count: count})
	r.Total += count
}

func (r *BatchResult) AddFailure(identity string, err error) {
	r.Failed = append(r.Failed, IdentityOutcome{Identity: identity, Error: err.Error()})
}

// ExportResult - артефакт (если создан) и разбивка по identity
type ExportResult struct {
	Artifact *ExportArtifact `json:"artifact,omitempty"`
	BatchResult
}

// ExportSnapshot - содержимое артефакта
type ExportSnapshot struct {
	CreatedAt  time.Time      `json:"created_at"`
	Identities []string       `json:"identities,omitempty"`
	Messages   []*ChatMessage `json:"messages"`
}
